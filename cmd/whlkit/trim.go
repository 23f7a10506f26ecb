package main

import (
	"github.com/spf13/cobra"

	"github.com/frederic-klein/whlkit/internal/batch"
	"github.com/frederic-klein/whlkit/internal/profile"
)

var (
	trimOut      string
	cleanScratch bool
)

func newTrimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trim DIR",
		Short: "Trim every wheel in DIR into the derivative library",
		Long: "Unpacks each wheel directly inside DIR, applies the derivative profile and repacks it into DIR/out. " +
			"A failing wheel is reported and the rest are still processed; the command fails if any wheel failed.",
		Args: cobra.ExactArgs(1),
		RunE: runTrim,
	}

	cmd.Flags().StringVarP(&trimOut, "out", "o", "", "Output directory (default DIR/out)")
	cmd.Flags().BoolVar(&cleanScratch, "clean-scratch", false, "Remove the scratch tree when done")
	return cmd
}

func runTrim(cmd *cobra.Command, args []string) error {
	cfg, logger, err := settings(cmd)
	if err != nil {
		return err
	}

	p, err := profile.Load(cfg.Profile)
	if err != nil {
		return err
	}
	logger.Debug("using profile", "name", p.Name, "source", p.SourceRoot, "target", p.TargetRoot)

	driver := batch.NewDriver(p, batch.Options{
		OutDir:       outDir(trimOut, args[0]),
		CleanScratch: cleanScratch,
		Logger:       logger,
	})
	report, err := driver.Run(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), "trim", report)
	return report.Err()
}
