// Package store defines the destination document store and the
// compare-and-swap write protocol every replicated document goes through.
package store

import (
	"context"
	"errors"

	"github.com/odvcencio/gitcouch/pkg/document"
)

var (
	// ErrNotFound is returned by Get for an absent id, and by Put when an
	// update names a document that no longer exists.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned by Put when the expected revision is stale
	// or a create loses the race to another writer.
	ErrConflict = errors.New("document update conflict")
	// ErrRetriesExhausted is returned by Write when every attempt hit a
	// conflict.
	ErrRetriesExhausted = errors.New("document write retries exhausted")
	// ErrImmutableChanged is returned by Write when a commit, tree or blob
	// document already exists with different content.
	ErrImmutableChanged = errors.New("immutable document content changed")
)

// Store is a revisioned key-value document store.
//
// Put treats doc.Rev as the expected current revision: empty means the
// document must not exist yet. On success it returns the new revision.
type Store interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	Put(ctx context.Context, doc *document.Document) (string, error)
	ListIDs(ctx context.Context) ([]string, error)
}
