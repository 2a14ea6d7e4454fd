package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/dotpost/internal/database"
	"github.com/bryan-buckman/dotpost/internal/mediator"
	"github.com/bryan-buckman/dotpost/internal/model"
	"github.com/bryan-buckman/dotpost/internal/paging"
	"github.com/bryan-buckman/dotpost/internal/posts"
	"github.com/bryan-buckman/dotpost/internal/server"
)

func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := mediator.New()
	posts.NewHandlers(db, zerolog.Nop()).Register(m)
	srv := httptest.NewServer(server.New(server.Options{Store: db, Mediator: m, Logger: zerolog.Nop()}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func agent(t *testing.T, baseURL, user string) *Agent {
	t.Helper()
	a, err := New(Options{BaseURL: baseURL, Username: user, Timeout: 5 * time.Second, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return a
}

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "://nope"})
	assert.Error(t, err)
}

func TestAgentRoundTrip(t *testing.T) {
	srv := apiServer(t)
	bob := agent(t, srv.URL, "bob")
	ctx := context.Background()

	created, err := bob.Create(ctx, model.Post{Title: "Hello", Date: day("2024-01-02"), Content: "first"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "bob", created.AuthorUsername)

	id := uuid.New()
	_, err = bob.Create(ctx, model.Post{ID: id, Title: "Older", Date: day("2024-01-01"), Content: "second"})
	require.NoError(t, err)

	_, err = bob.Create(ctx, model.Post{ID: id, Title: "Again", Date: day("2024-01-01"), Content: "dup"})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := bob.Details(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Older", got.Title)

	page, err := bob.List(ctx, paging.Params{PageNumber: 1, PageSize: 1}, nil)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Hello", page.Items[0].Title)
	assert.Equal(t, paging.Metadata{CurrentPage: 1, ItemsPerPage: 1, TotalItems: 2, TotalPages: 2}, page.Metadata)

	page, err = bob.List(ctx, paging.NewParams(), map[string]string{"author": "alice"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)

	found, err := bob.Search(ctx, "SECOND")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)

	title := "Renamed"
	updated, err := bob.Update(ctx, model.PostChanges{ID: id, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "second", updated.Content)

	require.NoError(t, bob.Delete(ctx, id))
	_, err = bob.Details(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, bob.Delete(ctx, id), ErrNotFound)
}

func TestAgentAuthorization(t *testing.T) {
	srv := apiServer(t)
	ctx := context.Background()
	p, err := agent(t, srv.URL, "bob").Create(ctx, model.Post{Title: "Mine", Date: day("2024-01-01"), Content: "x"})
	require.NoError(t, err)

	title := "Theirs"
	_, err = agent(t, srv.URL, "mallory").Update(ctx, model.PostChanges{ID: p.ID, Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	err = agent(t, srv.URL, "").Delete(ctx, p.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = agent(t, srv.URL, "").Create(ctx, model.Post{Title: "anon", Date: day("2024-01-01"), Content: "x"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAgentValidationError(t *testing.T) {
	srv := apiServer(t)
	_, err := agent(t, srv.URL, "bob").Create(context.Background(), model.Post{Date: day("2024-01-01"), Content: "x"})
	require.ErrorIs(t, err, ErrInvalid)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "The post title is required", apiErr.Message)

	_, err = agent(t, srv.URL, "bob").Update(context.Background(), model.PostChanges{})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAgentErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
		msg    string
	}{
		{http.StatusNotFound, `{"error":"gone"}`, ErrNotFound, "gone"},
		{http.StatusConflict, `{"error":"exists"}`, ErrConflict, "exists"},
		{http.StatusForbidden, `{"error":"not the author"}`, ErrForbidden, "not the author"},
		{http.StatusInternalServerError, "boom", nil, "boom"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := agent(t, srv.URL, "bob").Details(context.Background(), uuid.New())
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.msg, apiErr.Message)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			} else {
				assert.Nil(t, apiErr.Unwrap())
			}
		})
	}
}

func TestAgentSendsUsernameHeader(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Username")
		w.Header().Set("Pagination", `{"currentPage":1,"itemsPerPage":10,"totalItems":0,"totalPages":0}`)
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	page, err := agent(t, srv.URL, "carol").List(context.Background(), paging.NewParams(), nil)
	require.NoError(t, err)
	assert.Equal(t, "carol", seen)
	assert.Equal(t, 10, page.Metadata.ItemsPerPage)
}

func TestAgentBadPaginationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Pagination", "not json")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	_, err := agent(t, srv.URL, "").List(context.Background(), paging.NewParams(), nil)
	assert.Error(t, err)
}
