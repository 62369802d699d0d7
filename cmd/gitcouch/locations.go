package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitcouch/pkg/config"
	"github.com/odvcencio/gitcouch/pkg/source"
	"github.com/odvcencio/gitcouch/pkg/source/github"
	"github.com/odvcencio/gitcouch/pkg/source/gitrepo"
	"github.com/odvcencio/gitcouch/pkg/store"
	"github.com/odvcencio/gitcouch/pkg/store/badgerstore"
	"github.com/odvcencio/gitcouch/pkg/store/couchdb"
	"github.com/odvcencio/gitcouch/pkg/store/sqlite"
)

// ErrUnsupportedLocation is returned for a source or destination this
// tool cannot open. It is not retried.
var ErrUnsupportedLocation = errors.New("unsupported location")

type openedSource struct {
	source.Source
	// GitDir is set for local repositories.
	GitDir string
}

// openSource accepts https://github.com/OWNER/REPO, a local repository
// path, or a file:// URL naming one.
func openSource(loc string, cfg config.Config, log *slog.Logger) (*openedSource, error) {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return nil, fmt.Errorf("%w: empty source", ErrUnsupportedLocation)
	}
	if strings.Contains(loc, "://") {
		u, err := url.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("%w: source %q: %v", ErrUnsupportedLocation, loc, err)
		}
		switch {
		case u.Scheme == "file":
			loc = u.Path
		case (u.Scheme == "https" || u.Scheme == "http") && strings.EqualFold(u.Host, "github.com"):
			gh, err := github.New(loc, github.Options{
				APIBase:     cfg.GitHub.APIBase,
				Token:       cfg.GitHub.Token,
				Timeout:     cfg.HTTP.Timeout.Std(),
				MaxAttempts: cfg.HTTP.MaxAttempts,
				Logger:      log,
			})
			if err != nil {
				return nil, fmt.Errorf("%w: %v (expected https://github.com/OWNER/REPO)", ErrUnsupportedLocation, err)
			}
			return &openedSource{Source: gh}, nil
		default:
			return nil, fmt.Errorf("%w: source %q (expected https://github.com/OWNER/REPO or a local repository)",
				ErrUnsupportedLocation, loc)
		}
	}

	path, err := filepath.Abs(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: %v", ErrUnsupportedLocation, loc, err)
	}
	repo, err := gitrepo.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedLocation, err)
	}
	gitDir, err := gitrepo.GitDir(path)
	if err != nil {
		// DetectDotGit found the repository from a subdirectory; watching
		// still needs the real git dir.
		gitDir = ""
	}
	return &openedSource{Source: repo, GitDir: gitDir}, nil
}

// openDestination accepts a CouchDB database URL, sqlite:PATH,
// badger:PATH or mem:. The returned closer may be nil. CouchDB
// databases are not contacted here; see prepareDestination.
func openDestination(loc string, cfg config.Config, log *slog.Logger) (store.Store, io.Closer, error) {
	loc = strings.TrimSpace(loc)
	scheme, rest, _ := strings.Cut(loc, ":")
	switch strings.ToLower(scheme) {
	case "http", "https":
		db, err := couchdb.New(loc, couchdb.Options{
			User:        cfg.CouchDB.User,
			Pass:        cfg.CouchDB.Password,
			Timeout:     cfg.HTTP.Timeout.Std(),
			MaxAttempts: cfg.HTTP.MaxAttempts,
			Logger:      log,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedLocation, err)
		}
		return db, nil, nil
	case "sqlite":
		if rest == "" {
			return nil, nil, fmt.Errorf("%w: sqlite destination needs a path (sqlite:PATH)", ErrUnsupportedLocation)
		}
		db, err := sqlite.Open(rest)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	case "badger":
		if rest == "" {
			return nil, nil, fmt.Errorf("%w: badger destination needs a directory (badger:DIR)", ErrUnsupportedLocation)
		}
		db, err := badgerstore.Open(badgerstore.Config{Path: rest, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	case "mem":
		return store.NewMemory(), nil, nil
	}
	return nil, nil, fmt.Errorf("%w: destination %q (expected http(s)://HOST/DB, sqlite:PATH, badger:DIR or mem:)",
		ErrUnsupportedLocation, redact(loc))
}

// redact hides URL passwords in log lines and errors.
func redact(loc string) string {
	u, err := url.Parse(loc)
	if err != nil || u.User == nil {
		return loc
	}
	return u.Redacted()
}
