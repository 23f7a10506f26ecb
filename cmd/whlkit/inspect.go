package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frederic-klein/whlkit/internal/extractor"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect WHEEL",
		Short: "Print a wheel's name, tags and declared dependencies",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	info, err := extractor.NewExtractor().Inspect(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, TitleStyle.Render(info.Metadata.Get("Name")+" "+info.Metadata.Get("Version")))
	fmt.Fprintf(w, "  dist-info: %s\n", info.DistInfo)
	fmt.Fprintf(w, "  tags:      %s\n", strings.Join(info.WheelTag.Values("Tag"), ", "))
	if build := info.WheelTag.Get("Build"); build != "" {
		fmt.Fprintf(w, "  build:     %s\n", build)
	}
	fmt.Fprintf(w, "  entries:   %d\n", len(info.Entries))

	if deps := info.Metadata.Values("Requires-Dist"); len(deps) > 0 {
		fmt.Fprintln(w, SubtitleStyle.Render("  requires:"))
		for _, dep := range deps {
			fmt.Fprintf(w, "    %s\n", dep)
		}
	}
	return nil
}
