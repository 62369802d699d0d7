// Package daemon runs replication passes repeatedly: on a fixed interval,
// or whenever a local repository's branch refs change.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/odvcencio/gitcouch/pkg/logging"
)

// PassFunc runs one replication pass.
type PassFunc func(ctx context.Context) error

// Poll runs pass immediately and then every interval until ctx is done.
// A failed pass is logged and retried on the next tick. Poll returns nil
// when ctx is canceled.
func Poll(ctx context.Context, interval time.Duration, pass PassFunc, log *slog.Logger) error {
	if interval <= 0 {
		return errors.New("daemon: poll interval must be positive")
	}
	log = logging.OrDiscard(log)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		runPass(ctx, pass, log, "poll")
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runPass(ctx context.Context, pass PassFunc, log *slog.Logger, trigger string) {
	if ctx.Err() != nil {
		return
	}
	if err := pass(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("pass failed; will retry", "trigger", trigger, "err", err)
	}
}
