// Package sqlite stores documents in an embedded SQLite database.
//
// Each document is one row keyed by id. Revision checks happen inside the
// UPDATE statement itself, so concurrent writers through separate
// connections still see compare-and-swap semantics.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/odvcencio/gitcouch/pkg/document"
	"github.com/odvcencio/gitcouch/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id   TEXT PRIMARY KEY,
	rev  TEXT NOT NULL,
	body BLOB NOT NULL
)`

// Store is a store.Store in one SQLite file.
type Store struct {
	conn *sql.DB
	path string
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	// Pragmas in the DSN apply to every pooled connection.
	conn, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}
	if _, err := conn.Exec(schema); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*document.Document, error) {
	var rev string
	var body []byte
	err := s.conn.QueryRowContext(ctx, "SELECT rev, body FROM documents WHERE id = ?", id).Scan(&rev, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	d, err := document.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	d.Rev = rev
	return d, nil
}

func (s *Store) Put(ctx context.Context, doc *document.Document) (string, error) {
	body, err := doc.Body()
	if err != nil {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}
	rev := store.NextRev(doc.Rev, body)

	if doc.Rev == "" {
		res, err := s.conn.ExecContext(ctx,
			"INSERT INTO documents (id, rev, body) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING",
			doc.ID, rev, body)
		if err != nil {
			return "", fmt.Errorf("put %s: %w", doc.ID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return "", fmt.Errorf("put %s: %w", doc.ID, err)
		} else if n == 0 {
			return "", fmt.Errorf("put %s: %w: document exists", doc.ID, store.ErrConflict)
		}
		return rev, nil
	}

	res, err := s.conn.ExecContext(ctx,
		"UPDATE documents SET rev = ?, body = ? WHERE id = ? AND rev = ?",
		rev, body, doc.ID, doc.Rev)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}
	if n == 1 {
		return rev, nil
	}
	var exists int
	err = s.conn.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", doc.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("put %s: %w", doc.ID, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}
	return "", fmt.Errorf("put %s: %w: revision %s is stale", doc.ID, store.ErrConflict, doc.Rev)
}

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id FROM documents ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list ids: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	return ids, nil
}
