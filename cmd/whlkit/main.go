package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/frederic-klein/whlkit/internal/batch"
	"github.com/frederic-klein/whlkit/internal/config"
)

var buildVersion = "dev"

var configPath string

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCmd(),
		fang.WithVersion(buildVersion),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "whlkit",
		Short: "Trim, re-version and index Python wheels",
		Long: "whlkit turns the wheels of a library into wheels of a renamed, trimmed derivative, " +
			"rewrites embedded version tokens, and maintains the static index page that links them.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/whlkit/config.yaml)")
	rootCmd.PersistentFlags().StringP("profile", "p", "", "Derivative profile (default: built-in open3d_pycg)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(newTrimCmd(), newVersionCmd(), newIndexCmd(), newFetchCmd(), newProfileCmd(), newInspectCmd())
	return rootCmd
}

// settings resolves the config for cmd and builds the logger it reports through.
func settings(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, path, err := config.Load(config.LoadOptions{
		ConfigFilePath: configPath,
		Flags:          cmd.Flags(),
	})
	if err != nil {
		return nil, nil, err
	}

	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Prefix: "whlkit " + cmd.Name(),
	})
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
	if path != "" {
		logger.Debug("loaded config", "path", path)
	}
	return cfg, logger, nil
}

func outDir(flag, dir string) string {
	if flag != "" {
		return flag
	}
	return filepath.Join(dir, "out")
}

func printReport(w io.Writer, title string, report *batch.Report) {
	fmt.Fprintln(w, TitleStyle.Render(title))
	for _, o := range report.Outcomes {
		name := filepath.Base(o.Input)
		if o.Err != nil {
			fmt.Fprintf(w, "  %s %s: %v\n", ErrorStyle.Render("✗"), name, o.Err)
			continue
		}
		fmt.Fprintf(w, "  %s %s %s\n", SuccessStyle.Render("✓"), name, SubtitleStyle.Render("→ "+filepath.Base(o.Output)))
		for _, note := range o.Notes {
			fmt.Fprintf(w, "    %s\n", WarningStyle.Render(note))
		}
	}

	failed := len(report.Failed())
	summary := fmt.Sprintf("%d succeeded, %d failed", len(report.Outcomes)-failed, failed)
	if failed > 0 {
		fmt.Fprintln(w, ErrorStyle.Render(summary))
	} else {
		fmt.Fprintln(w, SuccessStyle.Render(summary))
	}
}
