package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gitcouch/pkg/daemon"
)

func newPollCmd(g *globalFlags) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "poll [SOURCE DEST]",
		Short: "Replicate repeatedly on a fixed interval",
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
			if interval <= 0 {
				interval = a.cfg.PollInterval.Std()
			}
			r, err := a.scheduler(srcLoc, dstLoc)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), func(ctx context.Context) error {
				a.log.Info("polling", "interval", interval)
				return daemon.Poll(ctx, interval, func(ctx context.Context) error {
					_, err := r.Pass(ctx)
					return err
				}, a.log)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between passes (default from config, 1h)")
	return cmd
}
