package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcouch/pkg/daemon"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [SOURCE DEST]",
		Short: "Replicate a local repository whenever its branches move",
		Args:  cobra.RangeArgs(0, 2),
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
			if debounce <= 0 {
				debounce = a.cfg.Watch.Debounce.Std()
			}
			r, err := a.scheduler(srcLoc, dstLoc)
			if err != nil {
				return err
			}
			if r.src.GitDir == "" {
				return fmt.Errorf("%w: watch needs a local repository root, got %q", ErrUnsupportedLocation, srcLoc)
			}
			opts := daemon.ForGitDir(r.src.GitDir, daemon.WatchOptions{
				Debounce: debounce,
				Fallback: a.cfg.Watch.Fallback.Std(),
				Logger:   a.log,
			})
			return a.serve(cmd.Context(), func(ctx context.Context) error {
				return daemon.Watch(ctx, opts, func(ctx context.Context) error {
					_, err := r.Pass(ctx)
					return err
				})
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "wait this long after a ref change before replicating")
	return cmd
}
