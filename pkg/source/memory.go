package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/odvcencio/gitcouch/pkg/object"
)

// Memory is an in-process Source. It is safe for concurrent use and
// counts every fetch so callers can assert which objects were read.
type Memory struct {
	mu       sync.Mutex
	branches map[string]object.Hash
	commits  map[object.Hash]*object.Commit
	trees    map[object.Hash]*object.Tree
	blobs    map[object.Hash]*object.Blob
	fetches  map[string]int
}

// NewMemory returns an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{
		branches: make(map[string]object.Hash),
		commits:  make(map[object.Hash]*object.Commit),
		trees:    make(map[object.Hash]*object.Tree),
		blobs:    make(map[object.Hash]*object.Blob),
		fetches:  make(map[string]int),
	}
}

// SetBranch points name at head, creating the branch if needed.
func (m *Memory) SetBranch(name string, head object.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[name] = head
}

// DeleteBranch removes name.
func (m *Memory) DeleteBranch(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.branches, name)
}

// AddCommit stores c under c.Hash.
func (m *Memory) AddCommit(c *object.Commit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits[c.Hash] = c
}

// AddTree stores t under t.Hash.
func (m *Memory) AddTree(t *object.Tree) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trees[t.Hash] = t
}

// AddBlob stores data under h. A nil data records a blob the source
// claims to have but cannot serve.
func (m *Memory) AddBlob(h object.Hash, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[h] = &object.Blob{Hash: h, Data: data}
}

// Fetches returns how many times the object or branch key was read. Keys
// are "branches", "branch:<name>", "commit:<hash>", "tree:<hash>" and
// "blob:<hash>".
func (m *Memory) Fetches(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[key]
}

// TotalFetches sums all recorded reads.
func (m *Memory) TotalFetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.fetches {
		n += c
	}
	return n
}

// ResetFetches clears the fetch counters.
func (m *Memory) ResetFetches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches = make(map[string]int)
}

func (m *Memory) Branches(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches["branches"]++
	names := make([]string, 0, len(m.branches))
	for name := range m.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) BranchHead(ctx context.Context, name string) (object.Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches["branch:"+name]++
	h, ok := m.branches[name]
	if !ok {
		return "", fmt.Errorf("branch %q: %w", name, ErrNotFound)
	}
	return h, nil
}

func (m *Memory) Commit(ctx context.Context, h object.Hash) (*object.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches["commit:"+string(h)]++
	c, ok := m.commits[h]
	if !ok {
		return nil, fmt.Errorf("commit %s: %w", h, ErrNotFound)
	}
	out := *c
	out.Parents = append([]object.Hash(nil), c.Parents...)
	return &out, nil
}

func (m *Memory) Tree(ctx context.Context, h object.Hash) (*object.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches["tree:"+string(h)]++
	t, ok := m.trees[h]
	if !ok {
		return nil, fmt.Errorf("tree %s: %w", h, ErrNotFound)
	}
	return &object.Tree{Hash: t.Hash, Entries: append([]object.TreeEntry(nil), t.Entries...)}, nil
}

func (m *Memory) Blob(ctx context.Context, h object.Hash) (*object.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches["blob:"+string(h)]++
	b, ok := m.blobs[h]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", h, ErrNotFound)
	}
	out := &object.Blob{Hash: b.Hash}
	if b.Data != nil {
		out.Data = append([]byte{}, b.Data...)
	}
	return out, nil
}
