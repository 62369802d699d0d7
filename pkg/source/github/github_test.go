package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/gitcouch/pkg/object"
	"github.com/odvcencio/gitcouch/pkg/source"
)

const (
	commitSHA = "1111111111111111111111111111111111111111"
	treeSHA   = "2222222222222222222222222222222222222222"
	blobSHA   = "3333333333333333333333333333333333333333"
	parentSHA = "4444444444444444444444444444444444444444"
)

func newTestSource(t *testing.T, routes map[string]string) (*Source, *int) {
	t.Helper()
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}
		body, ok := routes[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)

	s, err := New("https://github.com/jwal/jwallib", Options{
		APIBase:     ts.URL,
		Token:       "tok",
		MaxAttempts: 1,
		Backoff:     time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, &calls
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		in          string
		owner, repo string
		ok          bool
	}{
		{"https://github.com/jwal/jwallib", "jwal", "jwallib", true},
		{"https://github.com/jwal/jwallib/", "jwal", "jwallib", true},
		{"https://github.com/jwal/jwallib.git", "jwal", "jwallib", true},
		{"https://gitlab.com/jwal/jwallib", "", "", false},
		{"https://github.com/jwal", "", "", false},
		{"https://github.com/jwal/jwallib/tree/main", "", "", false},
	}
	for _, tc := range tests {
		owner, repo, err := ParseRepoURL(tc.in)
		if tc.ok {
			if err != nil || owner != tc.owner || repo != tc.repo {
				t.Fatalf("ParseRepoURL(%q) = %q, %q, %v", tc.in, owner, repo, err)
			}
			continue
		}
		if !errors.Is(err, ErrUnsupportedURL) {
			t.Fatalf("ParseRepoURL(%q) error = %v, want ErrUnsupportedURL", tc.in, err)
		}
	}
}

func TestBranchesPaginates(t *testing.T) {
	var first []string
	for i := 0; i < perPage; i++ {
		first = append(first, fmt.Sprintf(`{"name":"b%03d"}`, i))
	}
	s, calls := newTestSource(t, map[string]string{
		"/repos/jwal/jwallib/branches?per_page=100&page=1": "[" + strings.Join(first, ",") + "]",
		"/repos/jwal/jwallib/branches?per_page=100&page=2": `[{"name":"main"}]`,
	})
	names, err := s.Branches(context.Background())
	if err != nil {
		t.Fatalf("Branches: %v", err)
	}
	if len(names) != perPage+1 || names[perPage] != "main" {
		t.Fatalf("Branches returned %d names, last %q", len(names), names[len(names)-1])
	}
	if *calls != 2 {
		t.Fatalf("calls = %d, want 2", *calls)
	}
}

func TestBranchHead(t *testing.T) {
	s, _ := newTestSource(t, map[string]string{
		"/repos/jwal/jwallib/git/refs/heads/main": `{"ref":"refs/heads/main","object":{"sha":"` + commitSHA + `","type":"commit"}}`,
	})
	h, err := s.BranchHead(context.Background(), "main")
	if err != nil {
		t.Fatalf("BranchHead: %v", err)
	}
	if h != commitSHA {
		t.Fatalf("BranchHead = %s, want %s", h, commitSHA)
	}
	if _, err := s.BranchHead(context.Background(), "gone"); !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("BranchHead(gone) error = %v, want ErrNotFound", err)
	}
}

func TestCommit(t *testing.T) {
	s, _ := newTestSource(t, map[string]string{
		"/repos/jwal/jwallib/git/commits/" + commitSHA: `{
			"sha": "` + commitSHA + `",
			"author": {"name": "A", "email": "a@example.com", "date": "2012-05-01T10:00:00Z"},
			"committer": {"name": "C", "email": "c@example.com", "date": "2012-05-01T11:00:00Z"},
			"message": "Initial commit",
			"tree": {"sha": "` + treeSHA + `"},
			"parents": [{"sha": "` + parentSHA + `"}]
		}`,
	})
	c, err := s.Commit(context.Background(), commitSHA)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if c.TreeHash != treeSHA || len(c.Parents) != 1 || c.Parents[0] != parentSHA {
		t.Fatalf("Commit = %+v", c)
	}
	if c.Author.Name != "A" || c.Committer.When.Hour() != 11 {
		t.Fatalf("Commit signatures = %+v / %+v", c.Author, c.Committer)
	}
}

func TestTree(t *testing.T) {
	s, _ := newTestSource(t, map[string]string{
		"/repos/jwal/jwallib/git/trees/" + treeSHA: `{"sha":"` + treeSHA + `","tree":[
			{"path":"README","mode":"100644","type":"blob","sha":"` + blobSHA + `"},
			{"path":"lib","mode":"040000","type":"tree","sha":"` + treeSHA + `"}
		],"truncated":false}`,
		"/repos/jwal/jwallib/git/trees/" + parentSHA: `{"sha":"` + parentSHA + `","tree":[],"truncated":true}`,
	})
	tr, err := s.Tree(context.Background(), treeSHA)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tr.Entries) != 2 || tr.Entries[1].Type != object.TypeTree || tr.Entries[0].Mode != "100644" {
		t.Fatalf("Tree = %+v", tr)
	}
	if _, err := s.Tree(context.Background(), parentSHA); !errors.Is(err, source.ErrMalformed) {
		t.Fatalf("Tree(truncated) error = %v, want ErrMalformed", err)
	}
}

func TestBlobDecodesWrappedBase64(t *testing.T) {
	s, _ := newTestSource(t, map[string]string{
		"/repos/jwal/jwallib/git/blobs/" + blobSHA:   `{"sha":"` + blobSHA + `","content":"aGVs\nbG8K\n","encoding":"base64","size":6}`,
		"/repos/jwal/jwallib/git/blobs/" + parentSHA: `{"sha":"` + parentSHA + `","encoding":"base64","size":3}`,
	})
	b, err := s.Blob(context.Background(), blobSHA)
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}
	if string(b.Data) != "hello\n" {
		t.Fatalf("Blob data = %q, want %q", b.Data, "hello\n")
	}
	missing, err := s.Blob(context.Background(), parentSHA)
	if err != nil {
		t.Fatalf("Blob(no content): %v", err)
	}
	if missing.Data != nil {
		t.Fatalf("Blob(no content) data = %q, want nil", missing.Data)
	}
}

func TestRejectsMalformedHashes(t *testing.T) {
	s, _ := newTestSource(t, map[string]string{
		"/repos/jwal/jwallib/git/refs/heads/main": `{"object":{"sha":"not-a-sha","type":"commit"}}`,
	})
	if _, err := s.BranchHead(context.Background(), "main"); !errors.Is(err, source.ErrMalformed) {
		t.Fatalf("BranchHead error = %v, want ErrMalformed", err)
	}
}
