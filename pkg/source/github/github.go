// Package github reads a repository's object graph through the GitHub v3
// REST API.
package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odvcencio/gitcouch/pkg/object"
	"github.com/odvcencio/gitcouch/pkg/remote"
	"github.com/odvcencio/gitcouch/pkg/source"
)

// ErrUnsupportedURL is returned for repository URLs that are not of the
// form https://github.com/:owner/:repo.
var ErrUnsupportedURL = errors.New("unsupported GitHub repository URL")

const (
	webPrefix  = "https://github.com/"
	defaultAPI = "https://api.github.com"
	perPage    = 100
)

// Options configures a Source.
type Options struct {
	// APIBase overrides https://api.github.com.
	APIBase     string
	Token       string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	Logger      *slog.Logger
}

// Source implements source.Source over the GitHub git data API.
type Source struct {
	owner  string
	repo   string
	client *remote.Client
}

var _ source.Source = (*Source)(nil)

// ParseRepoURL extracts owner and repository from a github.com URL.
func ParseRepoURL(raw string) (owner, repo string, err error) {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, webPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q; try a URL like %s:owner/:repo", ErrUnsupportedURL, raw, webPrefix)
	}
	rest = strings.TrimSuffix(strings.TrimSuffix(rest, "/"), ".git")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q; try a URL like %s:owner/:repo", ErrUnsupportedURL, raw, webPrefix)
	}
	return parts[0], parts[1], nil
}

// New returns a Source for the repository at repoURL.
func New(repoURL string, opts Options) (*Source, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	if opts.APIBase == "" {
		opts.APIBase = defaultAPI
	}
	client, err := remote.NewClient(opts.APIBase, remote.Options{
		Timeout:     opts.Timeout,
		MaxAttempts: opts.MaxAttempts,
		Backoff:     opts.Backoff,
		Token:       opts.Token,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Source{owner: owner, repo: repo, client: client}, nil
}

func (s *Source) url(parts ...string) string {
	segs := []string{"repos", url.PathEscape(s.owner), url.PathEscape(s.repo)}
	return s.client.URL(append(segs, parts...)...)
}

func (s *Source) get(ctx context.Context, what string, u string, limit int64, out any) error {
	err := s.client.GetJSON(ctx, u, limit, out)
	if err == nil {
		return nil
	}
	if remote.StatusCode(err) == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %v", what, source.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

type apiBranch struct {
	Name string `json:"name"`
}

func (s *Source) Branches(ctx context.Context) ([]string, error) {
	var names []string
	for page := 1; ; page++ {
		var batch []apiBranch
		u := s.url(fmt.Sprintf("branches?per_page=%d&page=%d", perPage, page))
		if err := s.get(ctx, "list branches", u, remote.ResponseLimitList, &batch); err != nil {
			return nil, err
		}
		for _, b := range batch {
			names = append(names, b.Name)
		}
		if len(batch) < perPage {
			return names, nil
		}
	}
}

type apiRef struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

func (s *Source) BranchHead(ctx context.Context, name string) (object.Hash, error) {
	var ref apiRef
	what := fmt.Sprintf("branch %q", name)
	if err := s.get(ctx, what, s.url("git/refs/heads", escapeRefName(name)), remote.ResponseLimitDefault, &ref); err != nil {
		return "", err
	}
	if ref.Object.Type != "" && ref.Object.Type != "commit" {
		return "", fmt.Errorf("%s: %w: points at a %s", what, source.ErrMalformed, ref.Object.Type)
	}
	return parseHash(what, ref.Object.SHA)
}

type apiPerson struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

type apiCommit struct {
	SHA       string    `json:"sha"`
	Author    apiPerson `json:"author"`
	Committer apiPerson `json:"committer"`
	Message   string    `json:"message"`
	Tree      struct {
		SHA string `json:"sha"`
	} `json:"tree"`
	Parents []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
}

func (s *Source) Commit(ctx context.Context, h object.Hash) (*object.Commit, error) {
	var c apiCommit
	what := "commit " + string(h)
	if err := s.get(ctx, what, s.url("git/commits", string(h)), remote.ResponseLimitObject, &c); err != nil {
		return nil, err
	}
	tree, err := parseHash(what+" tree", c.Tree.SHA)
	if err != nil {
		return nil, err
	}
	out := &object.Commit{
		Hash:      h,
		Author:    object.Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.Date},
		Committer: object.Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.Date},
		Message:   c.Message,
		TreeHash:  tree,
	}
	for _, p := range c.Parents {
		ph, err := parseHash(what+" parent", p.SHA)
		if err != nil {
			return nil, err
		}
		out.Parents = append(out.Parents, ph)
	}
	return out, nil
}

type apiTree struct {
	SHA  string `json:"sha"`
	Tree []struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

func (s *Source) Tree(ctx context.Context, h object.Hash) (*object.Tree, error) {
	var t apiTree
	what := "tree " + string(h)
	if err := s.get(ctx, what, s.url("git/trees", string(h)), remote.ResponseLimitList, &t); err != nil {
		return nil, err
	}
	if t.Truncated {
		return nil, fmt.Errorf("%s: %w: listing truncated by the API", what, source.ErrMalformed)
	}
	out := &object.Tree{Hash: h, Entries: make([]object.TreeEntry, 0, len(t.Tree))}
	for _, e := range t.Tree {
		eh, err := parseHash(fmt.Sprintf("%s entry %q", what, e.Path), e.SHA)
		if err != nil {
			return nil, err
		}
		out.Entries = append(out.Entries, object.TreeEntry{
			Name: e.Path,
			Type: object.ObjectType(e.Type),
			Hash: eh,
			Mode: e.Mode,
		})
	}
	return out, nil
}

type apiBlob struct {
	SHA      string  `json:"sha"`
	Content  *string `json:"content"`
	Encoding string  `json:"encoding"`
	Size     int     `json:"size"`
}

func (s *Source) Blob(ctx context.Context, h object.Hash) (*object.Blob, error) {
	var b apiBlob
	what := "blob " + string(h)
	if err := s.get(ctx, what, s.url("git/blobs", string(h)), remote.ResponseLimitObject, &b); err != nil {
		return nil, err
	}
	if b.Content == nil {
		return &object.Blob{Hash: h}, nil
	}
	var data []byte
	switch b.Encoding {
	case "base64":
		// The API wraps base64 content at 60 columns.
		clean := strings.NewReplacer("\n", "", "\r", "").Replace(*b.Content)
		var err error
		data, err = base64.StdEncoding.DecodeString(clean)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", what, source.ErrMalformed, err)
		}
	case "utf-8", "":
		data = []byte(*b.Content)
	default:
		return nil, fmt.Errorf("%s: %w: unknown encoding %q", what, source.ErrMalformed, b.Encoding)
	}
	if data == nil {
		data = []byte{}
	}
	return &object.Blob{Hash: h, Data: data}, nil
}

func parseHash(what, raw string) (object.Hash, error) {
	h, err := object.ParseHash(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", what, source.ErrMalformed, err)
	}
	return h, nil
}

func escapeRefName(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
