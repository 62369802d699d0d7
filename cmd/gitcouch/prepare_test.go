package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/odvcencio/gitcouch/pkg/config"
	"github.com/odvcencio/gitcouch/pkg/document"
	"github.com/odvcencio/gitcouch/pkg/logging"
	"github.com/odvcencio/gitcouch/pkg/store"
)

// outageCouch is a CouchDB database "git" that answers 503 to everything
// while down.
type outageCouch struct {
	mu      sync.Mutex
	down    bool
	creates int
	docs    *store.Memory
}

func (c *outageCouch) setDown(down bool) {
	c.mu.Lock()
	c.down = down
	c.mu.Unlock()
}

func (c *outageCouch) reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (c *outageCouch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c.mu.Lock()
	down := c.down
	if r.URL.Path == "/git" && r.Method == http.MethodPut {
		c.creates++
	}
	c.mu.Unlock()
	if down {
		c.reply(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable", "reason": "starting up"})
		return
	}
	if r.URL.Path == "/git" && r.Method == http.MethodPut {
		c.reply(w, http.StatusCreated, map[string]bool{"ok": true})
		return
	}
	id, ok := strings.CutPrefix(r.URL.Path, "/git/")
	if !ok {
		c.reply(w, http.StatusNotFound, map[string]string{"error": "not_found", "reason": "Database does not exist."})
		return
	}
	switch {
	case id == "_all_docs" && r.Method == http.MethodGet:
		ids, _ := c.docs.ListIDs(ctx)
		rows := make([]map[string]string, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, map[string]string{"id": id})
		}
		c.reply(w, http.StatusOK, map[string]any{"total_rows": len(ids), "rows": rows})
	case r.Method == http.MethodGet:
		d, err := c.docs.Get(ctx, id)
		if err != nil {
			c.reply(w, http.StatusNotFound, map[string]string{"error": "not_found", "reason": "missing"})
			return
		}
		c.reply(w, http.StatusOK, d)
	case r.Method == http.MethodPut:
		var body io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				c.reply(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "reason": err.Error()})
				return
			}
			body = zr
		}
		data, _ := io.ReadAll(body)
		d, err := document.Decode(data)
		if err != nil || d.ID != id {
			c.reply(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "reason": "invalid document"})
			return
		}
		rev, err := c.docs.Put(ctx, d)
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			c.reply(w, http.StatusConflict, map[string]string{"error": "conflict", "reason": "Document update conflict."})
			return
		}
		if err != nil {
			c.reply(w, http.StatusInternalServerError, map[string]string{"error": "internal", "reason": err.Error()})
			return
		}
		c.reply(w, http.StatusCreated, map[string]any{"ok": true, "id": id, "rev": rev})
	default:
		c.reply(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	}
}

func TestPassCreatesDatabaseAfterStartupOutage(t *testing.T) {
	clearEnv(t)
	repo := initRepo(t)
	couch := &outageCouch{down: true, docs: store.NewMemory()}
	ts := httptest.NewServer(couch)
	defer ts.Close()

	cfg := config.Default()
	cfg.HTTP.MaxAttempts = 1
	a := &app{cfg: cfg, log: logging.Discard()}
	defer a.Close()

	r, err := a.scheduler(repo, ts.URL+"/git")
	if err != nil {
		t.Fatalf("scheduler with destination down: %v", err)
	}
	ctx := context.Background()
	if _, err := r.Pass(ctx); err == nil {
		t.Fatalf("Pass succeeded while the database was down")
	}
	if n, _ := couch.docs.ListIDs(ctx); len(n) != 0 {
		t.Fatalf("documents written while down: %v", n)
	}

	couch.setDown(false)
	stats, err := r.Pass(ctx)
	if err != nil {
		t.Fatalf("Pass after recovery: %v", err)
	}
	if stats.Created != 5 {
		t.Fatalf("created = %d, want 5", stats.Created)
	}
	stats, err = r.Pass(ctx)
	if err != nil {
		t.Fatalf("third Pass: %v", err)
	}
	if stats.Unchanged != 2 || stats.Created != 0 {
		t.Fatalf("third pass stats = %+v, want 2 unchanged", stats)
	}
	couch.mu.Lock()
	creates := couch.creates
	couch.mu.Unlock()
	if creates != 2 {
		t.Fatalf("database create requests = %d, want 2 (one failed, one ok)", creates)
	}
}

func TestPrepareDestinationSkipsLocalStores(t *testing.T) {
	if err := prepareDestination(context.Background(), store.NewMemory()); err != nil {
		t.Fatalf("prepareDestination(memory) = %v", err)
	}
}
