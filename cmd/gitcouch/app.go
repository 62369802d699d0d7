package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/gitcouch/pkg/config"
	"github.com/odvcencio/gitcouch/pkg/logging"
	"github.com/odvcencio/gitcouch/pkg/metrics"
	"github.com/odvcencio/gitcouch/pkg/replicate"
	"github.com/odvcencio/gitcouch/pkg/resolve"
	"github.com/odvcencio/gitcouch/pkg/store"
)

// app is the runtime shared by the commands: resolved config, logger and
// whatever needs closing on exit.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	closers []io.Closer
}

func (g *globalFlags) setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFile != "" {
		cfg.Log.File = g.logFile
	}
	if g.metricsAddr != "" {
		cfg.MetricsAddr = g.metricsAddr
	}
	log, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, closers: []io.Closer{closer}}, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// locations fills source and destination from args, falling back to the
// config.
func (a *app) locations(args []string) (string, string, error) {
	src, dst := a.cfg.Source, a.cfg.Destination
	if len(args) > 0 {
		src = args[0]
	}
	if len(args) > 1 {
		dst = args[1]
	}
	if src == "" || dst == "" {
		return "", "", errors.New("source and destination are required (arguments, config file or GITCOUCH_SOURCE/GITCOUCH_DESTINATION)")
	}
	return src, dst, nil
}

func (a *app) openDestination(loc string) (store.Store, error) {
	dst, closer, err := openDestination(loc, a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	return dst, nil
}

// ensurer is a destination that has to be created before first use.
type ensurer interface {
	EnsureDatabase(ctx context.Context) error
}

// prepareDestination creates dst if it needs creating. An "already
// exists" answer counts as success.
func prepareDestination(ctx context.Context, dst store.Store) error {
	if e, ok := dst.(ensurer); ok {
		return e.EnsureDatabase(ctx)
	}
	return nil
}

// replication is a scheduler along with its opened endpoints. The
// destination is prepared on the first pass that reaches it, not when the
// command starts, so a database that is briefly down at startup is
// retried by the next poll tick or watch event.
type replication struct {
	*replicate.Scheduler
	src   *openedSource
	dst   store.Store
	ready bool
}

// Pass prepares the destination if no earlier pass has, then replicates
// every branch once.
func (r *replication) Pass(ctx context.Context) (replicate.Stats, error) {
	if !r.ready {
		if err := prepareDestination(ctx, r.dst); err != nil {
			return replicate.Stats{}, err
		}
		r.ready = true
	}
	return r.Run(ctx)
}

// scheduler wires a source and destination into a replication scheduler.
// Only local checks happen here; errors are about the locations
// themselves, never about reachability.
func (a *app) scheduler(srcLoc, dstLoc string) (*replication, error) {
	src, err := openSource(srcLoc, a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	dst, err := a.openDestination(dstLoc)
	if err != nil {
		return nil, err
	}
	s, err := replicate.New(resolve.New(src.Source), dst, replicate.Options{
		CacheSize:    a.cfg.CacheSize,
		PendingLimit: a.cfg.PendingLimit,
		PendingKeep:  a.cfg.PendingKeep,
		Retry: store.RetryPolicy{
			MaxAttempts: a.cfg.Retry.MaxAttempts,
			BaseDelay:   a.cfg.Retry.BaseDelay.Std(),
			MaxDelay:    a.cfg.Retry.MaxDelay.Std(),
		},
		Logger: a.log,
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("replicating", "source", srcLoc, "destination", redact(dstLoc))
	return &replication{Scheduler: s, src: src, dst: dst}, nil
}

// serve runs fn with a context canceled on SIGINT/SIGTERM, alongside the
// metrics endpoint when one is configured.
func (a *app) serve(parent context.Context, fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if a.cfg.MetricsAddr == "" {
		return fn(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("serving metrics", "addr", a.cfg.MetricsAddr)
		if err := metrics.Serve(gctx, a.cfg.MetricsAddr); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	return g.Wait()
}

func printStats(w io.Writer, stats replicate.Stats) {
	fmt.Fprintf(w, "ok: created %d, updated %d, unchanged %d document(s); fetched %d object(s)\n",
		stats.Created, stats.Updated, stats.Unchanged, stats.Fetched)
}
