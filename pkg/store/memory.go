package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/odvcencio/gitcouch/pkg/document"
)

type memEntry struct {
	rev  string
	body []byte
}

// Memory is an in-process Store with CouchDB revision semantics.
type Memory struct {
	mu   sync.Mutex
	docs map[string]memEntry
	puts int

	// BeforePut, when set, runs before each Put is applied. Tests use it
	// to interleave a competing writer between read and write.
	BeforePut func(doc *document.Document)
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]memEntry)}
}

func (m *Memory) Get(ctx context.Context, id string) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	e, ok := m.docs[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	d, err := document.Decode(e.body)
	if err != nil {
		return nil, err
	}
	d.Rev = e.rev
	return d, nil
}

func (m *Memory) Put(ctx context.Context, doc *document.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if hook := m.BeforePut; hook != nil {
		hook(doc)
	}
	body, err := doc.Body()
	if err != nil {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	cur, exists := m.docs[doc.ID]
	switch {
	case !exists && doc.Rev != "":
		return "", fmt.Errorf("put %s: %w", doc.ID, ErrNotFound)
	case exists && cur.rev != doc.Rev:
		return "", fmt.Errorf("put %s: %w (have %s, expected %q)", doc.ID, ErrConflict, cur.rev, doc.Rev)
	}
	rev := NextRev(cur.rev, body)
	m.docs[doc.ID] = memEntry{rev: rev, body: body}
	return rev, nil
}

func (m *Memory) ListIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes id regardless of revision.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// Puts returns how many Put calls reached the store, successful or not.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Revs returns a snapshot of id -> revision.
func (m *Memory) Revs() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.docs))
	for id, e := range m.docs {
		out[id] = e.rev
	}
	return out
}
