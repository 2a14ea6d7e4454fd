package syndication

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/dotpost/internal/database"
	"github.com/bryan-buckman/dotpost/internal/mediator"
	"github.com/bryan-buckman/dotpost/internal/paging"
	"github.com/bryan-buckman/dotpost/internal/posts"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Engineering</title>
  <link>https://eng.example.com</link>
  <item>
    <title>Scaling reads</title>
    <guid>post-1</guid>
    <link>https://eng.example.com/1</link>
    <pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate>
    <description>Read replicas everywhere</description>
  </item>
  <item>
    <title>Zero downtime deploys</title>
    <link>https://eng.example.com/2</link>
    <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    <description>Blue and green</description>
  </item>
  <item>
    <title></title>
    <guid>untitled</guid>
    <description>No title, skipped</description>
  </item>
</channel>
</rss>`

type env struct {
	db      *database.SQLiteStore
	m       *mediator.Mediator
	handler *posts.Handlers
}

func newEnv(t *testing.T) env {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "syndication.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	m := mediator.New()
	h := posts.NewHandlers(db, zerolog.Nop())
	h.Register(m)
	return env{db: db, m: m, handler: h}
}

func feedServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/broken" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func (e env) count(t *testing.T) int {
	t.Helper()
	res, err := e.handler.List(context.Background(), posts.ListQuery{Params: paging.NewParams()})
	require.NoError(t, err)
	return res.Value.Metadata.TotalItems
}

func TestFetchFeedImportsOnce(t *testing.T) {
	e := newEnv(t)
	srv, _ := feedServer(t)
	feed := Feed{Name: "eng", URL: srv.URL + "/rss"}
	f := NewFetcher(e.m, FetcherOptions{Feeds: []Feed{feed}, Author: "syndication", DomainDelay: time.Millisecond, Logger: zerolog.Nop()})

	n, err := f.FetchFeed(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "untitled entry is rejected by validation")
	assert.Equal(t, 2, e.count(t))

	n, err = f.FetchFeed(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-import is a conflict, not a duplicate")
	assert.Equal(t, 2, e.count(t))

	p, err := e.db.GetPost(context.Background(), entryID(feed.URL, "post-1"))
	require.NoError(t, err)
	assert.Equal(t, "Scaling reads", p.Title)
	assert.Equal(t, "syndication", p.AuthorUsername)
	assert.Equal(t, "Read replicas everywhere", p.Content)
	assert.Equal(t, 2024, p.Date.Year())

	_, err = e.db.GetPost(context.Background(), entryID(feed.URL, "https://eng.example.com/2"))
	assert.NoError(t, err, "link is the fallback guid")
}

func TestFetchAll(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			e := newEnv(t)
			srv, _ := feedServer(t)
			feeds := []Feed{
				{Name: "a", URL: srv.URL + "/a"},
				{Name: "b", URL: srv.URL + "/b"},
				{Name: "broken", URL: srv.URL + "/broken"},
			}
			f := NewFetcher(e.m, FetcherOptions{Feeds: feeds, Author: "bot", HighConcurrency: parallel, DomainDelay: time.Millisecond, Logger: zerolog.Nop()})

			results, err := f.FetchAll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, map[string]int{srv.URL + "/a": 2, srv.URL + "/b": 2}, results)
			assert.Equal(t, 4, e.count(t))
		})
	}
}

func TestFetchAllNoFeeds(t *testing.T) {
	e := newEnv(t)
	results, err := NewFetcher(e.m, FetcherOptions{Logger: zerolog.Nop()}).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFetchAllCancelled(t *testing.T) {
	e := newEnv(t)
	srv, _ := feedServer(t)
	f := NewFetcher(e.m, FetcherOptions{Feeds: []Feed{{URL: srv.URL + "/a"}}, Author: "bot", Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.FetchAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "eng.example.com", extractDomain("https://eng.example.com/feed.xml"))
	assert.Equal(t, "127.0.0.1:8080", extractDomain("http://127.0.0.1:8080/rss"))
}

func TestEntryIDStable(t *testing.T) {
	assert.Equal(t, entryID("u", "g"), entryID("u", "g"))
	assert.NotEqual(t, entryID("u", "g"), entryID("v", "g"))
}

type fixedInterval int

func (f fixedInterval) GetSyndicationInterval(context.Context) (int, error) {
	return int(f), nil
}

func TestPollerRunsUntilCancelled(t *testing.T) {
	e := newEnv(t)
	srv, hits := feedServer(t)
	f := NewFetcher(e.m, FetcherOptions{Feeds: []Feed{{URL: srv.URL + "/a"}}, Author: "bot", DomainDelay: time.Millisecond, Logger: zerolog.Nop()})
	p := NewPoller(f, fixedInterval(1), zerolog.Nop())
	p.unit = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(hits) >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Equal(t, 2, e.count(t))
}
