// Package source defines the read-only view of the upstream object graph.
package source

import (
	"context"
	"errors"

	"github.com/odvcencio/gitcouch/pkg/object"
)

var (
	// ErrNotFound is returned when the source has no object or branch
	// under the requested name.
	ErrNotFound = errors.New("source object not found")
	// ErrMalformed is returned when the source answers with data that
	// cannot be turned into a document, such as a blob with no content.
	ErrMalformed = errors.New("malformed source object")
)

// Source fetches raw objects from an upstream graph store. Implementations
// must not mutate the destination and should honor ctx cancellation on
// every call.
type Source interface {
	Branches(ctx context.Context) ([]string, error)
	BranchHead(ctx context.Context, name string) (object.Hash, error)
	Commit(ctx context.Context, h object.Hash) (*object.Commit, error)
	Tree(ctx context.Context, h object.Hash) (*object.Tree, error)
	Blob(ctx context.Context, h object.Hash) (*object.Blob, error)
}
