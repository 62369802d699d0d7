// Package storetest holds behavior checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/odvcencio/gitcouch/pkg/document"
	"github.com/odvcencio/gitcouch/pkg/store"
)

// Run exercises s, which must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		if _, err := s.Get(ctx, "git-branch-absent"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Get(absent) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("create and read back", func(t *testing.T) {
		d, err := document.NewBlob("b1", []byte("hello\r\n"))
		if err != nil {
			t.Fatalf("NewBlob: %v", err)
		}
		rev, err := s.Put(ctx, d)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if rev == "" {
			t.Fatalf("Put returned empty revision")
		}
		got, err := s.Get(ctx, d.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Rev != rev {
			t.Fatalf("Get rev = %q, want %q", got.Rev, rev)
		}
		if !document.ContentEqual(got, d) {
			t.Fatalf("Get = %+v, want %+v", got, d)
		}
		data, err := got.BlobBytes()
		if err != nil || string(data) != "hello\r\n" {
			t.Fatalf("BlobBytes = %q, %v", data, err)
		}
	})

	t.Run("create conflicts with existing", func(t *testing.T) {
		d, _ := document.NewBranch("dup", "c1")
		if _, err := s.Put(ctx, d); err != nil {
			t.Fatalf("Put: %v", err)
		}
		again, _ := document.NewBranch("dup", "c2")
		if _, err := s.Put(ctx, again); !errors.Is(err, store.ErrConflict) {
			t.Fatalf("second create error = %v, want ErrConflict", err)
		}
	})

	t.Run("update requires current revision", func(t *testing.T) {
		d, _ := document.NewBranch("main", "c1")
		rev1, err := s.Put(ctx, d)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		next, _ := document.NewBranch("main", "c2")
		next.Rev = rev1
		rev2, err := s.Put(ctx, next)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if rev2 == rev1 {
			t.Fatalf("update kept revision %q", rev1)
		}
		stale, _ := document.NewBranch("main", "c3")
		stale.Rev = rev1
		if _, err := s.Put(ctx, stale); !errors.Is(err, store.ErrConflict) {
			t.Fatalf("stale update error = %v, want ErrConflict", err)
		}
		got, err := s.Get(ctx, d.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Commit.Name != "c2" || got.Rev != rev2 {
			t.Fatalf("stored = %s@%s, want c2@%s", got.Commit.Name, got.Rev, rev2)
		}
	})

	t.Run("update of missing document", func(t *testing.T) {
		d, _ := document.NewBranch("ghost", "c1")
		d.Rev = "1-00000000000000000000000000000000"
		if _, err := s.Put(ctx, d); !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrConflict) {
			t.Fatalf("update missing error = %v, want ErrNotFound or ErrConflict", err)
		}
	})

	t.Run("write protocol", func(t *testing.T) {
		d, _ := document.NewBranch("proto", "c1")
		res, err := store.Write(ctx, s, d, store.RetryPolicy{MaxAttempts: 3})
		if err != nil || res.Outcome != store.OutcomeCreated {
			t.Fatalf("Write = %+v, %v", res, err)
		}
		res, err = store.Write(ctx, s, d, store.RetryPolicy{MaxAttempts: 3})
		if err != nil || res.Outcome != store.OutcomeUnchanged {
			t.Fatalf("rewrite = %+v, %v", res, err)
		}
	})

	t.Run("list ids", func(t *testing.T) {
		ids, err := s.ListIDs(ctx)
		if err != nil {
			t.Fatalf("ListIDs: %v", err)
		}
		want := map[string]bool{
			"git-blob-b1":      true,
			"git-branch-dup":   true,
			"git-branch-main":  true,
			"git-branch-proto": true,
		}
		if len(ids) != len(want) {
			t.Fatalf("ListIDs = %v, want %d ids", ids, len(want))
		}
		for _, id := range ids {
			if !want[id] {
				t.Fatalf("ListIDs returned unexpected %q", id)
			}
		}
	})
}
