package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bryan-buckman/dotpost/internal/database"
	"github.com/bryan-buckman/dotpost/internal/model"
	"github.com/bryan-buckman/dotpost/internal/paging"
	"github.com/bryan-buckman/dotpost/internal/result"
)

// ListQuery requests one page of posts, newest first.
type ListQuery struct {
	Params paging.Params
	Author string
}

// DetailsQuery requests a single post.
type DetailsQuery struct {
	ID uuid.UUID
}

// SearchQuery requests every post matching a free-text term.
type SearchQuery struct {
	Term string
}

// List returns a page of posts with pagination metadata.
func (h *Handlers) List(ctx context.Context, q ListQuery) (result.Result[paging.List[model.Post]], error) {
	params := q.Params
	if params.PageSize == 0 && h.paging.DefaultPageSize > 0 {
		params.PageSize = h.paging.DefaultPageSize
	}
	params = params.Normalize(h.paging.MaxPageSize)
	if err := params.Validate(); err != nil {
		return result.Invalid[paging.List[model.Post]](err.Error()), nil
	}
	filter := database.PostFilter{Author: strings.TrimSpace(q.Author)}

	total, err := h.db.CountPosts(ctx, filter)
	if err != nil {
		return result.Result[paging.List[model.Post]]{}, fmt.Errorf("count posts: %w", err)
	}

	resolved, fetch := h.paging.Overflow.Resolve(params, total)
	items := []model.Post{}
	if fetch {
		items, err = h.db.ListPosts(ctx, filter, resolved.PageSize, resolved.Offset())
		if err != nil {
			return result.Result[paging.List[model.Post]]{}, fmt.Errorf("list posts: %w", err)
		}
		if items == nil {
			items = []model.Post{}
		}
	}
	return result.Success(paging.List[model.Post]{
		Items:    items,
		Metadata: paging.NewMetadata(resolved, total),
	}), nil
}

// Details returns one post or NotFound.
func (h *Handlers) Details(ctx context.Context, q DetailsQuery) (result.Result[model.Post], error) {
	p, err := h.db.GetPost(ctx, q.ID)
	if errors.Is(err, database.ErrNotFound) {
		return result.NotFound[model.Post]("post not found"), nil
	}
	if err != nil {
		return result.Result[model.Post]{}, fmt.Errorf("get post %s: %w", q.ID, err)
	}
	return result.Success(*p), nil
}

// Search returns all posts matching the term under the configured policy.
// No matches is a successful empty slice.
func (h *Handlers) Search(ctx context.Context, q SearchQuery) (result.Result[[]model.Post], error) {
	found, err := h.db.SearchPosts(ctx, database.SearchSpec{
		Term:          q.Term,
		Fields:        h.search.Fields,
		CaseSensitive: h.search.CaseSensitive,
	})
	if err != nil {
		return result.Result[[]model.Post]{}, fmt.Errorf("search posts: %w", err)
	}
	if found == nil {
		found = []model.Post{}
	}
	return result.Success(found), nil
}
