// Package syndication imports entries from external RSS/Atom feeds as posts.
package syndication

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bryan-buckman/dotpost/internal/mediator"
	"github.com/bryan-buckman/dotpost/internal/model"
	"github.com/bryan-buckman/dotpost/internal/posts"
	"github.com/bryan-buckman/dotpost/internal/result"
)

// Concurrency settings
const (
	// MaxConcurrencyPostgres is the number of parallel fetches for PostgreSQL
	MaxConcurrencyPostgres = 10
	// MaxConcurrencySQLite is the number of parallel fetches for SQLite (limited due to locking)
	MaxConcurrencySQLite = 1
	// MaxConcurrencyPerDomain limits parallel requests to any single domain
	MaxConcurrencyPerDomain = 2
	// DelayBetweenDomainRequests is the minimum delay between requests to the same domain
	DelayBetweenDomainRequests = 500 * time.Millisecond
)

// Feed is an external source.
type Feed struct {
	Name string
	URL  string
}

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
type domainLimiter struct {
	mu          sync.Mutex
	delay       time.Duration
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

// newDomainLimiter creates a new per-domain rate limiter.
func newDomainLimiter(delay time.Duration) *domainLimiter {
	return &domainLimiter{
		delay:       delay,
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire gets a slot for the domain, blocking if necessary.
// It also enforces the minimum delay between requests to the same domain.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, MaxConcurrencyPerDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if !lastReq.IsZero() {
		if elapsed := time.Since(lastReq); elapsed < dl.delay {
			select {
			case <-time.After(dl.delay - elapsed):
			case <-ctx.Done():
				<-sem
				return ctx.Err()
			}
		}
	}
	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL // fallback to full URL
	}
	return u.Host
}

// entryID derives a stable post id so re-importing an entry is a Create conflict.
func entryID(feedURL, guid string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(feedURL+"#"+guid))
}

// Fetcher pulls feeds and creates posts through the mediator.
type Fetcher struct {
	mediator      *mediator.Mediator
	feeds         []Feed
	author        string
	parser        *gofeed.Parser
	concurrency   int
	domainLimiter *domainLimiter
	logger        zerolog.Logger
	now           func() time.Time
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Feeds  []Feed
	Author string
	// HighConcurrency enables the parallel worker pool (PostgreSQL).
	HighConcurrency bool
	// DomainDelay overrides DelayBetweenDomainRequests when positive.
	DomainDelay time.Duration
	Logger      zerolog.Logger
}

// NewFetcher creates a new fetcher with concurrency based on database type.
func NewFetcher(m *mediator.Mediator, opts FetcherOptions) *Fetcher {
	concurrency := MaxConcurrencySQLite
	if opts.HighConcurrency {
		concurrency = MaxConcurrencyPostgres
	}
	delay := opts.DomainDelay
	if delay <= 0 {
		delay = DelayBetweenDomainRequests
	}
	return &Fetcher{
		mediator:      m,
		feeds:         opts.Feeds,
		author:        opts.Author,
		parser:        gofeed.NewParser(),
		concurrency:   concurrency,
		domainLimiter: newDomainLimiter(delay),
		logger:        opts.Logger.With().Str("component", "syndication").Logger(),
		now:           time.Now,
	}
}

// FetchFeed fetches and parses a single feed, importing new entries.
// Returns the number of posts created.
func (f *Fetcher) FetchFeed(ctx context.Context, feed Feed) (int, error) {
	domain := extractDomain(feed.URL)
	if err := f.domainLimiter.acquire(ctx, domain); err != nil {
		return 0, fmt.Errorf("rate limit cancelled for %s: %w", feed.URL, err)
	}
	defer f.domainLimiter.release(domain)

	parsed, err := f.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return 0, fmt.Errorf("parse feed %s: %w", feed.URL, err)
	}

	now := f.now()
	newCount := 0
	for _, item := range parsed.Items {
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		if guid == "" {
			continue
		}
		date := now
		switch {
		case item.PublishedParsed != nil:
			date = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			date = *item.UpdatedParsed
		}
		content := item.Content
		if content == "" {
			content = item.Description
		}

		res, err := mediator.Send[posts.CreateCommand, result.Result[model.Post]](ctx, f.mediator, posts.CreateCommand{
			Post: model.Post{
				ID:      entryID(feed.URL, guid),
				Title:   item.Title,
				Date:    date,
				Content: content,
			},
			Author: f.author,
		})
		if err != nil {
			f.logger.Error().Err(err).Str("guid", guid).Msg("import entry")
			continue
		}
		switch res.Kind {
		case result.KindSuccess:
			newCount++
		case result.KindConflict:
			// already imported
		default:
			f.logger.Warn().Str("guid", guid).Str("feed", feed.URL).Str("reason", res.Message).Msg("skipped entry")
		}
	}
	return newCount, nil
}

// FetchAll fetches all feeds with configurable concurrency.
// Returns a map of feed URL -> new post count; failed feeds are logged and omitted.
func (f *Fetcher) FetchAll(ctx context.Context) (map[string]int, error) {
	if len(f.feeds) == 0 {
		return make(map[string]int), nil
	}

	f.logger.Info().Int("feeds", len(f.feeds)).Int("concurrency", f.concurrency).Msg("fetching feeds")

	if f.concurrency <= 1 {
		return f.fetchSequential(ctx)
	}
	return f.fetchParallel(ctx)
}

// fetchSequential fetches feeds one at a time (for SQLite).
func (f *Fetcher) fetchSequential(ctx context.Context) (map[string]int, error) {
	results := make(map[string]int)
	for i, feed := range f.feeds {
		select {
		case <-ctx.Done():
			f.logger.Warn().Int("done", i).Int("total", len(f.feeds)).Msg("fetch cancelled")
			return results, ctx.Err()
		default:
		}

		count, err := f.FetchFeed(ctx, feed)
		if err != nil {
			f.logger.Error().Err(err).Str("feed", feed.URL).Msg("fetch failed")
			continue
		}
		results[feed.URL] = count
	}
	return results, nil
}

// fetchParallel fans feeds out over at most f.concurrency goroutines.
// A failing feed does not stop the others.
func (f *Fetcher) fetchParallel(ctx context.Context) (map[string]int, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]int)
		g       errgroup.Group
	)
	g.SetLimit(f.concurrency)

	for _, feed := range f.feeds {
		if ctx.Err() != nil {
			break
		}
		feed := feed
		g.Go(func() error {
			count, err := f.FetchFeed(ctx, feed)
			if err != nil {
				f.logger.Error().Err(err).Str("feed", feed.URL).Msg("fetch failed")
				return nil
			}
			mu.Lock()
			results[feed.URL] = count
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}
