// Package couchdb stores documents in a CouchDB database over its HTTP
// API.
package couchdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odvcencio/gitcouch/pkg/document"
	"github.com/odvcencio/gitcouch/pkg/remote"
	"github.com/odvcencio/gitcouch/pkg/store"
)

// Options configures a Store.
type Options struct {
	User        string
	Pass        string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	Logger      *slog.Logger
}

// Store is a store.Store backed by one CouchDB database. The database
// URL names the database itself, e.g. http://localhost:5984/git.
type Store struct {
	client   *remote.Client
	pageSize int
}

var _ store.Store = (*Store)(nil)

// New returns a Store for the database at dbURL. Credentials may come from
// opts or from the URL's userinfo.
func New(dbURL string, opts Options) (*Store, error) {
	client, err := remote.NewClient(dbURL, remote.Options{
		Timeout:     opts.Timeout,
		MaxAttempts: opts.MaxAttempts,
		Backoff:     opts.Backoff,
		User:        opts.User,
		Pass:        opts.Pass,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(client.BaseURL())
	if err != nil {
		return nil, err
	}
	if db := strings.Trim(u.Path, "/"); db == "" || strings.Contains(db, "/") {
		return nil, fmt.Errorf("couchdb URL %q must name exactly one database", client.BaseURL())
	}
	return &Store{client: client, pageSize: allDocsPage}, nil
}

// URL returns the database URL without credentials.
func (s *Store) URL() string {
	return s.client.BaseURL()
}

// EnsureDatabase creates the database if it does not exist yet.
func (s *Store) EnsureDatabase(ctx context.Context) error {
	req, err := s.client.NewRequest(ctx, http.MethodPut, s.client.URL(), nil)
	if err != nil {
		return err
	}
	_, _, err = s.client.Do(req, remote.ResponseLimitDefault,
		http.StatusCreated, http.StatusAccepted, http.StatusPreconditionFailed)
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	return nil
}

func (s *Store) docURL(id string) string {
	return s.client.URL(url.PathEscape(id))
}

func (s *Store) Get(ctx context.Context, id string) (*document.Document, error) {
	req, err := s.client.NewRequest(ctx, http.MethodGet, s.docURL(id), nil)
	if err != nil {
		return nil, err
	}
	_, body, err := s.client.Do(req, remote.ResponseLimitObject, http.StatusOK)
	if err != nil {
		return nil, translate("get "+id, err)
	}
	return document.Decode(body)
}

type putResponse struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

func (s *Store) Put(ctx context.Context, doc *document.Document) (string, error) {
	req, err := s.client.NewRequest(ctx, http.MethodPut, s.docURL(doc.ID), doc)
	if err != nil {
		return "", err
	}
	_, body, err := s.client.Do(req, remote.ResponseLimitDefault, http.StatusCreated, http.StatusAccepted)
	if err != nil {
		return "", translate("put "+doc.ID, err)
	}
	var resp putResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("put %s: decode response: %w", doc.ID, err)
	}
	if resp.Rev == "" {
		return "", fmt.Errorf("put %s: response carried no revision", doc.ID)
	}
	return resp.Rev, nil
}

type allDocsResponse struct {
	TotalRows int `json:"total_rows"`
	Rows      []struct {
		ID string `json:"id"`
	} `json:"rows"`
}

// allDocsPage bounds the rows fetched per _all_docs request.
const allDocsPage = 10000

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	startKey := ""
	for {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(s.pageSize+1))
		if startKey != "" {
			k, _ := json.Marshal(startKey)
			q.Set("startkey", string(k))
		}
		var page allDocsResponse
		if err := s.client.GetJSON(ctx, s.client.URL("_all_docs?"+q.Encode()), remote.ResponseLimitList, &page); err != nil {
			return nil, translate("list ids", err)
		}
		rows := page.Rows
		more := len(rows) > s.pageSize
		if more {
			startKey = rows[s.pageSize].ID
			rows = rows[:s.pageSize]
		}
		for _, r := range rows {
			if strings.HasPrefix(r.ID, "_design/") {
				continue
			}
			ids = append(ids, r.ID)
		}
		if !more {
			return ids, nil
		}
	}
}

func translate(what string, err error) error {
	switch remote.StatusCode(err) {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w: %v", what, store.ErrNotFound, err)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w: %v", what, store.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
