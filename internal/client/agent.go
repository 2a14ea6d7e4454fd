// Package client talks to the dotpost REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryan-buckman/dotpost/internal/auth"
	"github.com/bryan-buckman/dotpost/internal/model"
	"github.com/bryan-buckman/dotpost/internal/paging"
)

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// paginationHeader mirrors server.PaginationHeader.
const paginationHeader = "Pagination"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// APIError is a non-2xx response. It unwraps to the sentinel for its status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api %d", e.StatusCode)
	}
	return fmt.Sprintf("api %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusBadRequest:
		return ErrInvalid
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	}
	return nil
}

// Options configures an Agent.
type Options struct {
	BaseURL  string
	Username string
	Timeout  time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Agent is a typed client for /api/posts.
type Agent struct {
	base     *url.URL
	username string
	client   *http.Client
	logger   zerolog.Logger
}

// New creates an Agent for the server at opts.BaseURL.
func New(opts Options) (*Agent, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", opts.BaseURL)
	}
	c := opts.HTTPClient
	if c == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c = &http.Client{Timeout: timeout}
	}
	return &Agent{
		base:     base,
		username: opts.Username,
		client:   c,
		logger:   opts.Logger.With().Str("component", "agent").Logger(),
	}, nil
}

// Username is the identity sent with every request.
func (a *Agent) Username() string {
	return a.username
}

// List fetches one page of posts. Filters become query parameters.
func (a *Agent) List(ctx context.Context, p paging.Params, filters map[string]string) (paging.List[model.Post], error) {
	q := url.Values{}
	q.Set("pageNumber", strconv.Itoa(p.PageNumber))
	q.Set("pageSize", strconv.Itoa(p.PageSize))
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, filters[k])
	}

	var out paging.List[model.Post]
	resp, err := a.do(ctx, http.MethodGet, "/api/posts", q, nil, &out.Items)
	if err != nil {
		return out, err
	}
	if raw := resp.Header.Get(paginationHeader); raw != "" {
		if err := json.Unmarshal([]byte(raw), &out.Metadata); err != nil {
			return out, fmt.Errorf("decode pagination header: %w", err)
		}
	}
	if out.Items == nil {
		out.Items = []model.Post{}
	}
	return out, nil
}

// Details fetches a single post.
func (a *Agent) Details(ctx context.Context, id uuid.UUID) (model.Post, error) {
	var p model.Post
	_, err := a.do(ctx, http.MethodGet, "/api/posts/"+id.String(), nil, nil, &p)
	return p, err
}

// Search runs a free-text search. Results are not paginated.
func (a *Agent) Search(ctx context.Context, term string) ([]model.Post, error) {
	var out []model.Post
	if _, err := a.do(ctx, http.MethodGet, "/api/posts/search", url.Values{"search": {term}}, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Post{}
	}
	return out, nil
}

// Create sends a new post. A nil ID asks the server to generate one.
func (a *Agent) Create(ctx context.Context, p model.Post) (model.Post, error) {
	body := map[string]string{
		"title":   p.Title,
		"date":    p.Date.Format(time.RFC3339Nano),
		"content": p.Content,
	}
	if p.ID != uuid.Nil {
		body["id"] = p.ID.String()
	}
	var created model.Post
	_, err := a.do(ctx, http.MethodPost, "/api/posts", nil, body, &created)
	return created, err
}

// Update sends a partial edit and returns the stored post.
func (a *Agent) Update(ctx context.Context, c model.PostChanges) (model.Post, error) {
	if c.ID == uuid.Nil {
		return model.Post{}, fmt.Errorf("%w: update needs an id", ErrInvalid)
	}
	var updated model.Post
	_, err := a.do(ctx, http.MethodPut, "/api/posts/"+c.ID.String(), nil, c, &updated)
	return updated, err
}

// Delete removes a post.
func (a *Agent) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := a.do(ctx, http.MethodDelete, "/api/posts/"+id.String(), nil, nil, nil)
	return err
}

func (a *Agent) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) (*http.Response, error) {
	u := *a.base
	u.Path = a.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.username != "" {
		req.Header.Set(auth.DefaultHeader, a.username)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	a.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, decodeError(resp)
	}
	if out == nil {
		return resp, nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(b))
	}
	return apiErr
}
