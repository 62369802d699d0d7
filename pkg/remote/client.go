// Package remote is the HTTP plumbing shared by the CouchDB store and the
// GitHub source: bounded retries, response size limits, compressed bodies
// and structured errors.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Options configures a Client.
type Options struct {
	Timeout     time.Duration // HTTP client timeout (default 60s)
	MaxAttempts int           // attempts per request (default 3)
	Backoff     time.Duration // first retry delay (default 1s)

	// Token is sent as a bearer token. When empty, User/Pass (or the
	// base URL's userinfo) are sent as basic auth.
	Token string
	User  string
	Pass  string

	UserAgent string
	Logger    *slog.Logger
	// Transport overrides the default round tripper, mostly for tests.
	Transport http.RoundTripper
}

// Response limits per payload type.
const (
	ResponseLimitDefault = 2 << 20  // 2MB
	ResponseLimitList    = 64 << 20 // 64MB
	ResponseLimitObject  = 32 << 20 // 32MB
)

// gzipThreshold is the request body size above which bodies are
// gzip-encoded.
const gzipThreshold = 64 << 10

// Client sends JSON requests relative to a base URL.
type Client struct {
	base        *url.URL
	httpClient  *http.Client
	token       string
	user        string
	pass        string
	userAgent   string
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

// NewClient parses baseURL and applies defaults to zero-valued options.
// Credentials embedded in baseURL are moved to basic auth and stripped
// from the stored URL.
func NewClient(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("remote URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote URL %q must use http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("remote URL %q must include a host", baseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "gitcouch"
	}

	user, pass := strings.TrimSpace(opts.User), opts.Pass
	if opts.Token == "" && user == "" && u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	base := *u
	base.User = nil
	base.RawQuery = ""
	base.Fragment = ""
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawPath = ""

	return &Client{
		base:        &base,
		httpClient:  &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		token:       strings.TrimSpace(opts.Token),
		user:        user,
		pass:        pass,
		userAgent:   opts.UserAgent,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		logger:      opts.Logger,
	}, nil
}

// BaseURL returns the base URL without credentials.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// URL joins already-escaped path segments onto the base URL. A segment
// may carry a query string.
func (c *Client) URL(segments ...string) string {
	p := c.base.EscapedPath()
	for _, s := range segments {
		p += "/" + strings.TrimLeft(s, "/")
	}
	return c.base.Scheme + "://" + c.base.Host + p
}

// NewRequest builds a request for url. A non-nil body is JSON-encoded and
// gzip-compressed when large.
func (c *Client) NewRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	if body == nil {
		return http.NewRequestWithContext(ctx, method, url, nil)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s request: %w", method, url, err)
	}
	encoding := ""
	if len(data) > gzipThreshold {
		data, err = compressGzip(data)
		if err != nil {
			return nil, fmt.Errorf("compress %s %s request: %w", method, url, err)
		}
		encoding = "gzip"
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	return req, nil
}

// Do sends req with retries and returns the final status and decoded
// body. Statuses not listed in accept are returned as *Error.
func (c *Client) Do(req *http.Request, maxBytes int64, accept ...int) (int, []byte, error) {
	c.applyAuth(req)
	resp, err := c.retryDo(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	r, err := decodedBody(resp)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer r.Close()
	// Read one byte past the limit so oversized bodies are detected.
	body, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.URL.Path, err)
	}
	if int64(len(body)) > maxBytes {
		return resp.StatusCode, nil, fmt.Errorf("%s %s: response exceeds %d bytes", req.Method, req.URL.Path, maxBytes)
	}

	for _, s := range accept {
		if resp.StatusCode == s {
			return resp.StatusCode, body, nil
		}
	}
	return resp.StatusCode, body, newError(req, resp.StatusCode, body)
}

// GetJSON fetches url and decodes a 200 response into out.
func (c *Client) GetJSON(ctx context.Context, url string, maxBytes int64, out any) error {
	req, err := c.NewRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	_, body, err := c.Do(req, maxBytes, http.StatusOK)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) applyAuth(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, zstd")
	req.Header.Set("User-Agent", c.userAgent)

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		return
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
}
