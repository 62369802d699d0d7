package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/gitcouch/pkg/logging"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// Dirs are watched without their subdirectories.
	Dirs []string
	// Trees are watched with every subdirectory, including ones created
	// while watching.
	Trees []string
	// Debounce coalesces bursts of events into one pass.
	Debounce time.Duration
	// Fallback, when positive, runs a pass after this long without events.
	Fallback time.Duration
	Logger   *slog.Logger
}

// ForGitDir points opts at the places a branch update in the repository
// at gitDir shows up: packed-refs in the git dir itself, and loose refs
// under refs/heads. objects/ is left out; it changes on every fetch.
func ForGitDir(gitDir string, opts WatchOptions) WatchOptions {
	opts.Dirs = []string{gitDir}
	opts.Trees = []string{filepath.Join(gitDir, "refs", "heads")}
	return opts
}

// Watch runs pass once, then again after every debounced change under
// opts.Dirs, until ctx is done. It returns nil when ctx is canceled.
func Watch(ctx context.Context, opts WatchOptions, pass PassFunc) error {
	if len(opts.Dirs)+len(opts.Trees) == 0 {
		return errors.New("daemon: no directories to watch")
	}
	log := logging.OrDiscard(opts.Logger)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	for _, dir := range opts.Dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	for _, dir := range opts.Trees {
		if err := addTree(w, dir); err != nil {
			return err
		}
	}
	log.Debug("watching", "dirs", opts.Dirs, "trees", opts.Trees)

	trigger := make(chan struct{}, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if !relevant(ev) {
					continue
				}
				if ev.Has(fsnotify.Create) && within(opts.Trees, ev.Name) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						if err := addTree(w, ev.Name); err != nil {
							log.Warn("watch new directory", "path", ev.Name, "err", err)
						}
					}
				}
				log.Debug("ref change", "path", ev.Name, "op", ev.Op.String())
				select {
				case trigger <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				log.Warn("watcher error", "err", err)
			}
		}
	})
	g.Go(func() error {
		runPass(gctx, pass, log, "start")
		var fallback <-chan time.Time
		for {
			if opts.Fallback > 0 {
				fallback = time.After(opts.Fallback)
			}
			select {
			case <-gctx.Done():
				return nil
			case <-fallback:
				runPass(gctx, pass, log, "fallback")
			case <-trigger:
				if !sleep(gctx, opts.Debounce) {
					return nil
				}
				// Drop events that arrived during the debounce window.
				select {
				case <-trigger:
				default:
				}
				runPass(gctx, pass, log, "watch")
			}
		}
	})
	return g.Wait()
}

// relevant filters out git's lock files and pure attribute changes.
func relevant(ev fsnotify.Event) bool {
	if strings.HasSuffix(ev.Name, ".lock") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove)
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func within(roots []string, path string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
