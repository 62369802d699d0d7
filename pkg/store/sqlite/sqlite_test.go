package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/gitcouch/pkg/document"
	"github.com/odvcencio/gitcouch/pkg/store"
	"github.com/odvcencio/gitcouch/pkg/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, openTemp(t))
}

func TestReopenKeepsDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docs.db")
	s, err := Open(path)
	require.NoError(t, err)

	d, err := document.NewBranch("main", "c1")
	require.NoError(t, err)
	rev, err := s.Put(context.Background(), d)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, rev, got.Rev)
	assert.True(t, document.ContentEqual(d, got))
}

func TestConcurrentWriteConverges(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	seed, _ := document.NewBranch("main", "c0")
	_, err := store.Write(ctx, s, seed, store.RetryPolicy{MaxAttempts: 1})
	require.NoError(t, err)

	want, _ := document.NewBranch("main", "c1")
	policy := store.RetryPolicy{MaxAttempts: 50, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Write(ctx, s, want, policy)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.Commit.Name)
	gen, err := store.RevGeneration(got.Rev)
	require.NoError(t, err)
	assert.Equal(t, 2, gen)
}
