package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/config"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/download"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/httpclient"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/install"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/launch"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/release"
)

func newInstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install [-- args...]",
		Short: "Download, install and launch the release asset for this machine",
		Args:  binaryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInstall(cmd.Context(), args)
		},
	}
}

func (a *app) runInstall(ctx context.Context, args []string) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Args = args
	}

	logger := a.logger()
	newRenderer, err := a.renderer(logger)
	if err != nil {
		return err
	}

	client := newClient(cfg, logger)
	launcher := launch.New(logger)
	launcher.Stdout = a.stdout
	launcher.Stderr = a.stderr

	inst := install.New(*cfg, install.Deps{
		Detector:   a.detector,
		Privileges: a.privileges,
		Releases:   release.NewResolver(client, cfg.APIBase, cfg.Repo),
		Downloader: download.NewFetcher(client, download.Options{
			Parallelism:        cfg.Parallelism,
			SmallFileThreshold: cfg.SmallFileThreshold,
			ProgressInterval:   cfg.ProgressInterval,
			ProgressStep:       cfg.ProgressStep,
			NewRenderer:        newRenderer,
			Logger:             logger,
		}),
		Launcher: launcher,
		Logger:   logger,
	}, a.runID)

	res, err := inst.Run(ctx)
	if err != nil {
		return err
	}

	if res.Cached {
		fmt.Fprintf(a.stdout, "Using existing %s\n", res.Destination)
	} else {
		fmt.Fprintf(a.stdout, "Installed %s %s to %s\n", cfg.Project, res.Version, res.Destination)
	}
	if res.Launched {
		a.exitCode = res.ExitCode
	}
	return nil
}

func newClient(cfg *config.Config, logger config.Logger) *httpclient.Client {
	return httpclient.New(httpclient.Options{
		UserAgent:           cfg.UserAgent,
		RequestsPerSecond:   cfg.RequestsPerSecond,
		Burst:               cfg.Burst,
		MaxIdleConnsPerHost: cfg.Parallelism,
		Logger:              logger,
	})
}

// renderer picks the progress display named by --progress.
func (a *app) renderer(logger config.Logger) (func(*download.Plan) download.Renderer, error) {
	switch mode := a.v.GetString("progress"); mode {
	case "bar":
		return func(p *download.Plan) download.Renderer {
			return download.NewBarRenderer(a.stderr, p.TotalSize, filepath.Base(p.Destination))
		}, nil
	case "log":
		return func(*download.Plan) download.Renderer {
			return download.NewLogRenderer(logger)
		}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown progress mode %q (want bar, log or none)", mode)
	}
}
