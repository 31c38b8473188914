package main

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/download"
)

func newPlanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <url>",
		Short: "Show how a URL would be split into segments, without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd.Context())
			if err != nil {
				return err
			}

			name, err := fileName(args[0])
			if err != nil {
				return err
			}
			logger := a.logger()
			fetcher := download.NewFetcher(newClient(cfg, logger), download.Options{
				Parallelism:        cfg.Parallelism,
				SmallFileThreshold: cfg.SmallFileThreshold,
				Logger:             logger,
			})
			plan := fetcher.Plan(cmd.Context(), args[0], filepath.Join(cfg.DownloadsDir, name))
			printPlan(a, plan)
			return nil
		},
	}
}

// fileName returns the last path element of rawURL.
func fileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid url %q: scheme must be http or https", rawURL)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return "download", nil
	}
	return name, nil
}

func printPlan(a *app, plan *download.Plan) {
	size := "unknown"
	if plan.Known() {
		size = fmt.Sprintf("%s (%d bytes)", download.FormatBytes(plan.TotalSize), plan.TotalSize)
	}
	fmt.Fprintf(a.stdout, "URL:         %s\n", plan.URL)
	fmt.Fprintf(a.stdout, "Destination: %s\n", plan.Destination)
	fmt.Fprintf(a.stdout, "Size:        %s\n", size)
	fmt.Fprintf(a.stdout, "Segments:    %d\n\n", len(plan.Segments))

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tSTART\tEND\tLENGTH\tPART")
	for _, seg := range plan.Segments {
		end, length := "?", "?"
		if seg.End >= 0 {
			end = fmt.Sprint(seg.End)
			length = fmt.Sprint(seg.Length())
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", seg.Index, seg.Start, end, length, filepath.Base(seg.Path))
	}
	w.Flush()
}
