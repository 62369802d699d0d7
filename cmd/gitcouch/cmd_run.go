package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run [SOURCE DEST]",
		Short: "Replicate once and exit",
		Long: `Replicate every branch of SOURCE into DEST in one pass.

SOURCE is https://github.com/OWNER/REPO or a local repository path.
DEST is a CouchDB database URL, sqlite:PATH, badger:DIR or mem:.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			srcLoc, dstLoc, err := a.locations(args)
			if err != nil {
				return err
			}
			r, err := a.scheduler(srcLoc, dstLoc)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), func(ctx context.Context) error {
				stats, err := r.Pass(ctx)
				if err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
}
