package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frederic-klein/whlkit/internal/index"
)

var fromURL string

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index DIR",
		Short: "Regenerate DIR/index.html from the wheels in DIR",
		Long: "Rewrites DIR/index.html with the sorted union of the names it already lists and the wheels in DIR. " +
			"With --from-url the names on a published index page are included too.",
		Args: cobra.ExactArgs(1),
		RunE: runIndex,
	}

	cmd.Flags().String("base-url", index.DefaultBaseURL, "Prefix of every link target")
	cmd.Flags().StringVar(&fromURL, "from-url", "", "Also include the names listed on this published index page")
	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, logger, err := settings(cmd)
	if err != nil {
		return err
	}

	opts := index.RegenerateOptions{BaseURL: cfg.BaseURL}
	if fromURL != "" {
		logger.Info("fetching published index", "url", fromURL)
		opts.Remote = index.NewRemote(fromURL)
	}

	local := index.NewLocal(args[0])
	names, err := local.Regenerate(cmd.Context(), opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
		SuccessStyle.Render("✓"), local.PagePath(), SubtitleStyle.Render(fmt.Sprintf("(%d wheels)", len(names))))
	return nil
}
