// Package store is the client-side post cache. It keeps a registry of posts
// fetched through the API agent, derives sorted and grouped views from it and
// applies the user's own mutations to it.
//
// A single mutex guards all state and is never held across a network call, so
// overlapping operations interleave and the registry is last-write-wins.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryan-buckman/dotpost/internal/client"
	"github.com/bryan-buckman/dotpost/internal/model"
	"github.com/bryan-buckman/dotpost/internal/paging"
)

// GroupDateLayout keys GroupedPosts buckets.
const GroupDateLayout = "02 Jan 2006"

// PredicateAll resets the predicate when passed to SetPredicate.
const PredicateAll = "all"

var (
	ErrDuplicateID = errors.New("post id already cached")
	ErrMissingID   = errors.New("post id is required")
)

// API is the subset of the REST agent the store depends on.
type API interface {
	List(ctx context.Context, p paging.Params, filters map[string]string) (paging.List[model.Post], error)
	Details(ctx context.Context, id uuid.UUID) (model.Post, error)
	Search(ctx context.Context, term string) ([]model.Post, error)
	Create(ctx context.Context, p model.Post) (model.Post, error)
	Update(ctx context.Context, c model.PostChanges) (model.Post, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Session identifies the signed-in user.
type Session struct {
	Username string
}

// State tracks whether the server has acknowledged a cached post.
type State int

const (
	Confirmed State = iota
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "confirmed"
}

// Post is a cached post. Cached values are never mutated in place; updates
// replace the registry entry.
type Post struct {
	model.Post
	IsAuthor bool
	State    State
}

// Group is one calendar day of GroupedPosts.
type Group struct {
	Date  string
	Posts []*Post
}

// Option configures a PostStore.
type Option func(*PostStore)

// WithIDGenerator overrides uuid.New for CreatePost.
func WithIDGenerator(f func() uuid.UUID) Option {
	return func(s *PostStore) { s.newID = f }
}

// WithPagingParams sets the initial and reset paging params.
func WithPagingParams(p paging.Params) Option {
	return func(s *PostStore) { s.defaults = p }
}

// WithPredicate sets the initial filters without publishing FilterChanged.
func WithPredicate(filters map[string]string) Option {
	return func(s *PostStore) {
		for k, v := range filters {
			if v != "" {
				s.predicate[k] = v
			}
		}
	}
}

// PostStore caches posts for one session.
type PostStore struct {
	api     API
	session Session
	logger  zerolog.Logger
	events  *Bus[FilterChanged]
	newID   func() uuid.UUID

	mu             sync.Mutex
	registry       map[uuid.UUID]*Post
	selected       *Post
	loading        bool
	loadingInitial bool
	pagination     *paging.Metadata
	defaults       paging.Params
	params         paging.Params
	predicate      map[string]string
}

// New creates a store for session. The store subscribes itself to its own
// FilterChanged events.
func New(api API, session Session, logger zerolog.Logger, opts ...Option) *PostStore {
	s := &PostStore{
		api:       api,
		session:   session,
		logger:    logger.With().Str("component", "store").Logger(),
		events:    NewBus[FilterChanged](),
		newID:     uuid.New,
		registry:  make(map[uuid.UUID]*Post),
		defaults:  paging.NewParams(),
		predicate: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.params = s.defaults
	s.events.Subscribe(s.onFilterChanged)
	return s
}

// Events exposes the store's bus so callers can observe filter changes.
func (s *PostStore) Events() *Bus[FilterChanged] {
	return s.events
}

// LoadPosts fetches the current page and merges it into the registry.
// On failure the registry is left untouched.
func (s *PostStore) LoadPosts(ctx context.Context) error {
	s.mu.Lock()
	s.loadingInitial = true
	params := s.params
	filters := copyMap(s.predicate)
	s.mu.Unlock()

	page, err := s.api.List(ctx, params, filters)
	if err != nil {
		s.logger.Error().Err(err).Int("page", params.PageNumber).Msg("load posts")
		s.setLoadingInitial(false)
		return fmt.Errorf("load posts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range page.Items {
		s.registry[p.ID] = s.decorate(p)
	}
	meta := page.Metadata
	s.pagination = &meta
	s.loadingInitial = false
	return nil
}

// LoadPost returns the cached post for id, or fetches and caches it.
// A cached post is returned as the identical pointer without a network call.
// The result becomes the selected post.
func (s *PostStore) LoadPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	s.mu.Lock()
	if p, ok := s.registry[id]; ok {
		s.selected = p
		s.mu.Unlock()
		return p, nil
	}
	s.loadingInitial = true
	s.mu.Unlock()

	fetched, err := s.api.Details(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("id", id.String()).Msg("load post")
		s.setLoadingInitial(false)
		return nil, fmt.Errorf("load post %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.decorate(fetched)
	s.registry[p.ID] = p
	s.selected = p
	s.loadingInitial = false
	return p, nil
}

// SearchPosts runs a server search. Results are not cached.
func (s *PostStore) SearchPosts(ctx context.Context, term string) ([]model.Post, error) {
	found, err := s.api.Search(ctx, term)
	if err != nil {
		s.logger.Error().Err(err).Str("term", term).Msg("search posts")
		return nil, fmt.Errorf("search posts: %w", err)
	}
	return found, nil
}

// CreatePost caches values as a pending post, sends it and confirms it.
// A missing id is generated locally. If the server rejects the post the
// pending entry is removed again.
func (s *PostStore) CreatePost(ctx context.Context, values model.Post) (*Post, error) {
	if values.ID == uuid.Nil {
		values.ID = s.newID()
	}
	values.AuthorUsername = s.session.Username
	values.Date = values.Date.UTC()

	s.mu.Lock()
	if _, ok := s.registry[values.ID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, values.ID)
	}
	pending := &Post{Post: values, IsAuthor: s.session.Username != "", State: Pending}
	s.registry[values.ID] = pending
	s.selected = pending
	s.loading = true
	s.mu.Unlock()

	_, err := s.api.Create(ctx, values)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	// UpdatePost may have replaced the pending entry meanwhile, so settle
	// whatever is cached under the id while it is still pending.
	cur, cached := s.registry[values.ID]
	if cached && cur.State != Pending {
		cached = false
	}
	if err != nil {
		s.logger.Error().Err(err).Str("id", values.ID.String()).Msg("create post")
		if cached {
			delete(s.registry, values.ID)
			if s.selected == cur {
				s.selected = nil
			}
		}
		return nil, fmt.Errorf("create post: %w", err)
	}

	if !cached {
		confirmed := *pending
		confirmed.State = Confirmed
		return &confirmed, nil
	}
	confirmed := *cur
	confirmed.State = Confirmed
	s.registry[values.ID] = &confirmed
	if s.selected == cur {
		s.selected = &confirmed
	}
	return &confirmed, nil
}

// UpdatePost sends changes, then merges every present field over the cached
// post. Fields absent from changes keep their cached values.
func (s *PostStore) UpdatePost(ctx context.Context, changes model.PostChanges) (*Post, error) {
	if changes.ID == uuid.Nil {
		return nil, ErrMissingID
	}
	s.setLoading(true)
	stored, err := s.api.Update(ctx, changes)
	if err != nil {
		s.logger.Error().Err(err).Str("id", changes.ID.String()).Msg("update post")
		s.setLoading(false)
		return nil, fmt.Errorf("update post: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var updated *Post
	if cached, ok := s.registry[changes.ID]; ok {
		merged := *cached
		merged.Post = cached.Post.Apply(changes)
		merged.Date = merged.Date.UTC()
		updated = &merged
	} else {
		updated = s.decorate(stored)
	}
	s.registry[changes.ID] = updated
	s.selected = updated
	s.loading = false
	return updated, nil
}

// DeletePost sends the delete and drops id from the registry. A post the
// server no longer has counts as deleted.
func (s *PostStore) DeletePost(ctx context.Context, id uuid.UUID) error {
	s.setLoading(true)
	err := s.api.Delete(ctx, id)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		s.logger.Error().Err(err).Str("id", id.String()).Msg("delete post")
		s.setLoading(false)
		return fmt.Errorf("delete post: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registry, id)
	if s.selected != nil && s.selected.ID == id {
		s.selected = nil
	}
	s.loading = false
	return nil
}

// PostsByDate returns every cached post, newest first.
func (s *PostStore) PostsByDate() []*Post {
	s.mu.Lock()
	out := make([]*Post, 0, len(s.registry))
	for _, p := range s.registry {
		out = append(out, p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// GroupedPosts buckets PostsByDate by calendar day, newest day first.
func (s *PostStore) GroupedPosts() []Group {
	var groups []Group
	index := make(map[string]int)
	for _, p := range s.PostsByDate() {
		key := p.Date.Format(GroupDateLayout)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Date: key})
		}
		groups[i].Posts = append(groups[i].Posts, p)
	}
	return groups
}

// SetPredicate changes one list filter and publishes FilterChanged.
// An empty value removes the key; PredicateAll clears every filter.
func (s *PostStore) SetPredicate(ctx context.Context, key, value string) {
	s.mu.Lock()
	switch {
	case key == PredicateAll:
		s.predicate = make(map[string]string)
	case value == "":
		delete(s.predicate, key)
	default:
		s.predicate[key] = value
	}
	ev := FilterChanged{Predicate: copyMap(s.predicate)}
	s.mu.Unlock()

	s.events.Publish(ctx, ev)
}

// onFilterChanged resets paging, flushes the registry and reloads.
func (s *PostStore) onFilterChanged(ctx context.Context, _ FilterChanged) {
	s.mu.Lock()
	s.params = s.defaults
	s.registry = make(map[uuid.UUID]*Post)
	s.selected = nil
	s.pagination = nil
	s.mu.Unlock()

	// LoadPosts logs its own failure.
	_ = s.LoadPosts(ctx)
}

// Predicate returns a copy of the active filters.
func (s *PostStore) Predicate() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.predicate)
}

// SetPagingParams sets the page requested by the next LoadPosts.
func (s *PostStore) SetPagingParams(p paging.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
}

// PagingParams returns the page the next LoadPosts will request.
func (s *PostStore) PagingParams() paging.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Pagination returns the metadata of the last successful LoadPosts, if any.
func (s *PostStore) Pagination() (paging.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pagination == nil {
		return paging.Metadata{}, false
	}
	return *s.pagination, true
}

// Selected returns the post last loaded, created or updated, or nil.
func (s *PostStore) Selected() *Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// ClearSelectedPost drops the selection without touching the registry.
func (s *PostStore) ClearSelectedPost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// LoadingInitial reports whether a LoadPosts or uncached LoadPost is in flight.
func (s *PostStore) LoadingInitial() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingInitial
}

// Loading reports whether a create, update or delete is in flight.
func (s *PostStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Len is the number of cached posts.
func (s *PostStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registry)
}

// decorate converts a server post into a cache entry. Callers hold mu.
func (s *PostStore) decorate(p model.Post) *Post {
	p.Date = p.Date.UTC()
	return &Post{
		Post:     p,
		IsAuthor: s.session.Username != "" && p.AuthorUsername == s.session.Username,
		State:    Confirmed,
	}
}

func (s *PostStore) setLoadingInitial(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingInitial = v
}

func (s *PostStore) setLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ API = (*client.Agent)(nil)

