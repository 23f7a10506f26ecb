package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frederic-klein/whlkit/internal/dist"
	"github.com/frederic-klein/whlkit/internal/downloader"
	"github.com/frederic-klein/whlkit/internal/index"
)

var (
	pageURL string
	workers int
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch DIR",
		Short: "Download the wheels listed on a published index page into DIR",
		Long: "Reads the names listed on the page at --from-url and downloads every wheel missing from DIR. " +
			"Download URLs are formed from --base-url the same way the index command forms link targets.",
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}

	cmd.Flags().StringVar(&pageURL, "from-url", "", "Published index page")
	cmd.Flags().String("base-url", index.DefaultBaseURL, "Prefix of every download URL")
	cmd.Flags().IntVarP(&workers, "workers", "w", 5, "Parallel download workers")
	_ = cmd.MarkFlagRequired("from-url")
	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := settings(cmd)
	if err != nil {
		return err
	}

	names, err := index.NewRemote(pageURL).Load(cmd.Context())
	if err != nil {
		return err
	}

	var jobs []downloader.Job
	for _, name := range index.Union(names) {
		if !strings.HasSuffix(name, dist.Ext) || filepath.Base(name) != name {
			logger.Warn("skipping listed name", "name", name)
			continue
		}
		jobs = append(jobs, downloader.Job{
			URL:      index.LinkURL(cfg.BaseURL, name),
			DestPath: filepath.Join(args[0], name),
		})
	}
	logger.Info("fetching", "wheels", len(jobs), "workers", workers)

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, TitleStyle.Render("fetch"))

	failed := 0
	for _, r := range downloader.NewDownloader(workers).Download(cmd.Context(), jobs) {
		name := filepath.Base(r.Job.DestPath)
		switch {
		case r.Error != nil:
			failed++
			fmt.Fprintf(w, "  %s %s: %v\n", ErrorStyle.Render("✗"), name, r.Error)
		case r.Skipped:
			fmt.Fprintf(w, "  %s %s\n", SubtitleStyle.Render("="), SubtitleStyle.Render(name))
		default:
			fmt.Fprintf(w, "  %s %s\n", SuccessStyle.Render("✓"), name)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(jobs))
	}
	return nil
}
