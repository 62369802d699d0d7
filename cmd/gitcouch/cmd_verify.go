package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcouch/pkg/replicate"
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [DEST]",
		Short: "Check that every stored document's dependencies are stored",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			dstLoc := a.cfg.Destination
			if len(args) == 1 {
				dstLoc = args[0]
			}
			if dstLoc == "" {
				return fmt.Errorf("destination is required")
			}
			dst, err := a.openDestination(dstLoc)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), func(ctx context.Context) error {
				if err := prepareDestination(ctx, dst); err != nil {
					return err
				}
				report, err := replicate.Verify(ctx, dst)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !report.OK() {
					for _, p := range report.Problems {
						fmt.Fprintf(out, "broken: %s\n", p)
					}
					return fmt.Errorf("verify: %d of %d document(s) have missing or unreadable dependencies",
						len(report.Problems), report.Checked)
				}
				fmt.Fprintf(out, "ok: verified %d document(s), skipped %d\n", report.Checked, report.Skipped)
				return nil
			})
		},
	}
}
