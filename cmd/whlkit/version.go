package main

import (
	"github.com/spf13/cobra"

	"github.com/frederic-klein/whlkit/internal/version"
)

var (
	versionOut  string
	versionFrom string
	rehash      bool
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version DIR TARGET",
		Short: "Rewrite the version token of every wheel in DIR",
		Long: "Copies each wheel directly inside DIR into DIR/out with its version token replaced by TARGET " +
			"in the file name, in every entry name and inside .py, METADATA and RECORD entries.",
		Args: cobra.ExactArgs(2),
		RunE: runVersion,
	}

	cmd.Flags().StringVarP(&versionOut, "out", "o", "", "Output directory (default DIR/out)")
	cmd.Flags().StringVar(&versionFrom, "from", "", "Version token to replace (default: each wheel's own version)")
	cmd.Flags().BoolVar(&rehash, "rehash", false, "Recompute RECORD digests of rewritten entries")
	return cmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	_, logger, err := settings(cmd)
	if err != nil {
		return err
	}

	rw, err := version.NewRewriter(version.Options{Rehash: rehash, Logger: logger})
	if err != nil {
		return err
	}

	report, err := rw.Batch(cmd.Context(), args[0], outDir(versionOut, args[0]), versionFrom, args[1])
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), "version", report)
	return report.Err()
}
