package couchdb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/odvcencio/gitcouch/pkg/document"
	"github.com/odvcencio/gitcouch/pkg/store"
	"github.com/odvcencio/gitcouch/pkg/store/storetest"
)

// fakeCouch serves the subset of the CouchDB API the adapter uses, backed
// by a store.Memory.
type fakeCouch struct {
	mu        sync.Mutex
	db        string
	created   bool
	docs      *store.Memory
	gzipPuts  int
	authSeen  string
	listCalls int
}

func newFakeCouch(t *testing.T) (*fakeCouch, *httptest.Server) {
	t.Helper()
	f := &fakeCouch{db: "git", docs: store.NewMemory()}
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return f, ts
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeCouch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.authSeen = r.Header.Get("Authorization")
	f.mu.Unlock()
	ctx := r.Context()

	if r.URL.Path == "/"+f.db && r.Method == http.MethodPut {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.created {
			writeJSON(w, http.StatusPreconditionFailed, map[string]string{"error": "file_exists", "reason": "The database could not be created, the file already exists."})
			return
		}
		f.created = true
		writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
		return
	}
	id, ok := strings.CutPrefix(r.URL.Path, "/"+f.db+"/")
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "reason": "Database does not exist."})
		return
	}

	switch {
	case id == "_all_docs" && r.Method == http.MethodGet:
		f.mu.Lock()
		f.listCalls++
		f.mu.Unlock()
		ids, _ := f.docs.ListIDs(ctx)
		ids = append(ids, "_design/gitbrowser")
		sort.Strings(ids)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var start string
		if sk := r.URL.Query().Get("startkey"); sk != "" {
			_ = json.Unmarshal([]byte(sk), &start)
		}
		type row struct {
			ID string `json:"id"`
		}
		rows := []row{}
		for _, id := range ids {
			if id < start {
				continue
			}
			if limit > 0 && len(rows) == limit {
				break
			}
			rows = append(rows, row{ID: id})
		}
		writeJSON(w, http.StatusOK, map[string]any{"total_rows": len(ids), "rows": rows})

	case r.Method == http.MethodGet:
		d, err := f.docs.Get(ctx, id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "reason": "missing"})
			return
		}
		writeJSON(w, http.StatusOK, d)

	case r.Method == http.MethodPut:
		var body io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "reason": err.Error()})
				return
			}
			f.mu.Lock()
			f.gzipPuts++
			f.mu.Unlock()
			body = zr
		}
		data, _ := io.ReadAll(body)
		d, err := document.Decode(data)
		if err != nil || d.ID != id {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "reason": "invalid document"})
			return
		}
		rev, err := f.docs.Put(ctx, d)
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict", "reason": "Document update conflict."})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal", "reason": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id, "rev": rev})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	}
}

func newTestStore(t *testing.T, url string) *Store {
	t.Helper()
	s, err := New(url, Options{MaxAttempts: 2, Backoff: time.Millisecond, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	_, ts := newFakeCouch(t)
	storetest.Run(t, newTestStore(t, ts.URL+"/git"))
}

func TestNewRequiresDatabase(t *testing.T) {
	for _, raw := range []string{"http://localhost:5984", "http://localhost:5984/", "http://localhost:5984/a/b"} {
		if _, err := New(raw, Options{}); err == nil {
			t.Fatalf("New(%q) succeeded", raw)
		}
	}
}

func TestEnsureDatabaseTolerates412(t *testing.T) {
	f, ts := newFakeCouch(t)
	s := newTestStore(t, ts.URL+"/git")
	for i := 0; i < 2; i++ {
		if err := s.EnsureDatabase(context.Background()); err != nil {
			t.Fatalf("EnsureDatabase #%d: %v", i+1, err)
		}
	}
	if !f.created {
		t.Fatalf("database was not created")
	}
}

func TestMissingDatabase(t *testing.T) {
	_, ts := newFakeCouch(t)
	s := newTestStore(t, ts.URL+"/other")
	if _, err := s.Get(context.Background(), "git-branches"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestBasicAuthFromURL(t *testing.T) {
	f, ts := newFakeCouch(t)
	u := strings.Replace(ts.URL, "http://", "http://admin:pw@", 1)
	s := newTestStore(t, u+"/git")
	if strings.Contains(s.URL(), "pw") {
		t.Fatalf("URL leaks password: %s", s.URL())
	}
	_, _ = s.Get(context.Background(), "git-branches")
	if !strings.HasPrefix(f.authSeen, "Basic ") {
		t.Fatalf("Authorization = %q, want basic auth", f.authSeen)
	}
}

func TestLargeDocumentsAreGzipped(t *testing.T) {
	f, ts := newFakeCouch(t)
	s := newTestStore(t, ts.URL+"/git")
	big := strings.Repeat("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abc\r\n", 2000)
	d, err := document.NewBlob("big", []byte(big))
	if err != nil {
		t.Fatalf("NewBlob: %v", err)
	}
	if _, err := s.Put(context.Background(), d); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if f.gzipPuts != 1 {
		t.Fatalf("gzip puts = %d, want 1", f.gzipPuts)
	}
	got, err := s.Get(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, err := got.BlobBytes()
	if err != nil || string(data) != big {
		t.Fatalf("round trip failed: %d bytes, %v", len(data), err)
	}
}

func TestListIDsPaginatesAndSkipsDesignDocs(t *testing.T) {
	f, ts := newFakeCouch(t)
	s := newTestStore(t, ts.URL+"/git")
	s.pageSize = 2
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		d, _ := document.NewBranch(name, "c1")
		if _, err := s.Put(ctx, d); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	ids, err := s.ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	want := "git-branch-a,git-branch-b,git-branch-c,git-branch-d,git-branch-e"
	if got := strings.Join(ids, ","); got != want {
		t.Fatalf("ListIDs = %s, want %s", got, want)
	}
	if f.listCalls != 3 {
		t.Fatalf("_all_docs calls = %d, want 3", f.listCalls)
	}
}
