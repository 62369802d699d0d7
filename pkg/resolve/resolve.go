// Package resolve turns one reference into its destination document by
// reading the source, and computes the references a document depends on.
package resolve

import (
	"context"
	"fmt"

	"github.com/odvcencio/gitcouch/pkg/docref"
	"github.com/odvcencio/gitcouch/pkg/document"
	"github.com/odvcencio/gitcouch/pkg/object"
	"github.com/odvcencio/gitcouch/pkg/source"
)

// Resolver materializes documents from a Source.
type Resolver struct {
	src source.Source
}

// New returns a Resolver reading from src.
func New(src source.Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve fetches the object named by r and builds its document. Exactly
// one source call is made, except for the empty blob which needs none.
func (r *Resolver) Resolve(ctx context.Context, ref docref.Ref) (*document.Document, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	switch ref.Kind {
	case docref.KindBranches:
		names, err := r.src.Branches(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", ref, err)
		}
		return document.NewBranches(names)

	case docref.KindBranch:
		head, err := r.src.BranchHead(ctx, ref.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", ref, err)
		}
		if head == "" {
			return nil, fmt.Errorf("resolve %s: %w: branch has no head commit", ref, source.ErrMalformed)
		}
		return document.NewBranch(ref.Name, head)

	case docref.KindCommit:
		c, err := r.src.Commit(ctx, object.Hash(ref.Name))
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", ref, err)
		}
		if c.TreeHash == "" {
			return nil, fmt.Errorf("resolve %s: %w: commit has no tree", ref, source.ErrMalformed)
		}
		c.Hash = object.Hash(ref.Name)
		return document.NewCommit(c)

	case docref.KindTree:
		t, err := r.src.Tree(ctx, object.Hash(ref.Name))
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", ref, err)
		}
		t.Hash = object.Hash(ref.Name)
		d, err := document.NewTree(t)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w: %v", ref, source.ErrMalformed, err)
		}
		return d, nil

	case docref.KindBlob:
		h := object.Hash(ref.Name)
		if h == object.EmptyBlobHash {
			return document.NewBlob(h, []byte{})
		}
		b, err := r.src.Blob(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", ref, err)
		}
		if b.Data == nil {
			return nil, fmt.Errorf("resolve %s: %w: blob has no content", ref, source.ErrMalformed)
		}
		return document.NewBlob(h, b.Data)
	}
	return nil, fmt.Errorf("resolve %s: %w", ref, docref.ErrInvalidRef)
}

// Dependencies returns the references d points at. The result never
// contains duplicates; blobs have none.
func Dependencies(d *document.Document) ([]docref.Ref, error) {
	ref, err := d.Ref()
	if err != nil {
		return nil, err
	}
	var deps []docref.Ref
	switch ref.Kind {
	case docref.KindBranches:
		deps = document.Refs(d.Branches)
	case docref.KindBranch:
		if d.Commit == nil {
			return nil, fmt.Errorf("dependencies of %s: missing commit", ref)
		}
		deps = []docref.Ref{d.Commit.Ref}
	case docref.KindCommit:
		if d.Tree == nil {
			return nil, fmt.Errorf("dependencies of %s: missing tree", ref)
		}
		deps = append([]docref.Ref{d.Tree.Ref}, document.Refs(d.Parents)...)
	case docref.KindTree:
		for _, c := range d.Children {
			deps = append(deps, c.Child.Ref)
		}
	case docref.KindBlob:
		return nil, nil
	}
	return docref.Unique(deps), nil
}
