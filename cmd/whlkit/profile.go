package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frederic-klein/whlkit/internal/profile"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or check derivative profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective profile as YAML",
		Args:  cobra.NoArgs,
		RunE:  runProfileShow,
	}, &cobra.Command{
		Use:   "check FILE",
		Short: "Validate a profile and audit its rule order",
		Args:  cobra.ExactArgs(1),
		RunE:  runProfileCheck,
	})
	return cmd
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := settings(cmd)
	if err != nil {
		return err
	}

	p, err := profile.Load(cfg.Profile)
	if err != nil {
		return err
	}
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runProfileCheck(cmd *cobra.Command, args []string) error {
	p, err := profile.Load(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s %s\n", SuccessStyle.Render("✓"), args[0],
		SubtitleStyle.Render(fmt.Sprintf("(%s: %d rules, %d deletions)", p.Name, len(p.Rules), len(p.Delete))))
	for i, r := range p.Rules {
		fmt.Fprintf(w, "  %d. %s\n", i+1, TitleStyle.Render(r.Name))
		if r.Invariant != "" {
			fmt.Fprintf(w, "     %s\n", SubtitleStyle.Render(r.Invariant))
		}
	}
	return nil
}
