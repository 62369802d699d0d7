// Package badgerstore stores documents in an embedded Badger database.
// Values are zstd-compressed JSON envelopes of revision plus body.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"github.com/odvcencio/gitcouch/pkg/document"
	"github.com/odvcencio/gitcouch/pkg/store"
)

const keyPrefix = "doc/"

// Config configures a Store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives Badger's internal logs. Nil silences them.
	Logger *slog.Logger
}

// Store is a store.Store over Badger.
type Store struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ store.Store = (*Store)(nil)

type envelope struct {
	Rev  string          `json:"rev"`
	Body json.RawMessage `json:"body"`
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Close releases the database and codec resources.
func (s *Store) Close() error {
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

func (s *Store) load(txn *badger.Txn, id string) (*envelope, error) {
	item, err := txn.Get([]byte(keyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var env envelope
	err = item.Value(func(val []byte) error {
		raw, err := s.dec.DecodeAll(val, nil)
		if err != nil {
			return fmt.Errorf("decompress: %w", err)
		}
		return json.Unmarshal(raw, &env)
	})
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *Store) Get(ctx context.Context, id string) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var env *envelope
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		env, err = s.load(txn, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	d, err := document.Decode(env.Body)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	d.Rev = env.Rev
	return d, nil
}

func (s *Store) Put(ctx context.Context, doc *document.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body, err := doc.Body()
	if err != nil {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}
	rev := store.NextRev(doc.Rev, body)
	val, err := json.Marshal(envelope{Rev: rev, Body: body})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}
	val = s.enc.EncodeAll(val, nil)

	err = s.db.Update(func(txn *badger.Txn) error {
		cur, err := s.load(txn, doc.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if doc.Rev != "" {
				return store.ErrNotFound
			}
		case err != nil:
			return err
		case cur.Rev != doc.Rev:
			return fmt.Errorf("%w: have %s, expected %q", store.ErrConflict, cur.Rev, doc.Rev)
		}
		return txn.Set([]byte(keyPrefix+doc.ID), val)
	})
	if errors.Is(err, badger.ErrConflict) {
		err = fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	if err != nil {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}
	return rev, nil
}

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	return ids, nil
}
