package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlatformCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "platform",
		Short: "Show the detected platform and privilege level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.detector.Detect(cmd.Context())
			if err != nil {
				return fmt.Errorf("detect platform: %w", err)
			}

			assetOS, err := info.AssetOS()
			if err != nil {
				assetOS = "unsupported"
			}
			assetArch, err := info.AssetArch()
			if err != nil {
				assetArch = "unsupported"
			}
			elevated, err := a.privileges.IsElevated(cmd.Context())
			if err != nil {
				return fmt.Errorf("check privileges: %w", err)
			}

			fmt.Fprintf(a.stdout, "OS:        %s (asset: %s)\n", info.OS, assetOS)
			fmt.Fprintf(a.stdout, "Arch:      %s (asset: %s)\n", info.Arch, assetArch)
			if info.IsLinux() && info.Platform != "" {
				fmt.Fprintf(a.stdout, "Distro:    %s %s (%s)\n", info.Platform, info.Version, info.Family)
			}
			fmt.Fprintf(a.stdout, "Elevated:  %t\n", elevated)
			return nil
		},
	}
}
