package posts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bryan-buckman/dotpost/internal/database"
	"github.com/bryan-buckman/dotpost/internal/model"
	"github.com/bryan-buckman/dotpost/internal/result"
)

// CreateCommand stores a new post. A zero Post.ID is assigned by the server.
type CreateCommand struct {
	Post   model.Post
	Author string
}

// EditCommand applies a partial update. ID always wins over Changes.ID.
type EditCommand struct {
	ID      uuid.UUID
	Changes model.PostChanges
}

// DeleteCommand removes a post.
type DeleteCommand struct {
	ID uuid.UUID
}

// Create validates and inserts a post, failing with Conflict on a taken id.
func (h *Handlers) Create(ctx context.Context, c CreateCommand) (result.Result[model.Post], error) {
	p := c.Post
	if msg := validateCreate(c.Author, p); msg != "" {
		return result.Invalid[model.Post](msg), nil
	}
	if p.ID == uuid.Nil {
		p.ID = h.newID()
	}
	p.AuthorUsername = c.Author
	p.Date = canonicalDate(p.Date)

	err := h.db.CreatePost(ctx, &p)
	if errors.Is(err, database.ErrConflict) {
		return result.Conflict[model.Post]("a post with this id already exists"), nil
	}
	if err != nil {
		return result.Result[model.Post]{}, fmt.Errorf("create post: %w", err)
	}
	h.logger.Info().Str("post_id", p.ID.String()).Str("author", p.AuthorUsername).Msg("post created")
	return result.Success(p), nil
}

// Edit merges the present fields of the changes over the stored post.
func (h *Handlers) Edit(ctx context.Context, c EditCommand) (result.Result[model.Post], error) {
	changes := c.Changes
	changes.ID = c.ID
	if msg := validateChanges(changes); msg != "" {
		return result.Invalid[model.Post](msg), nil
	}

	existing, err := h.db.GetPost(ctx, c.ID)
	if errors.Is(err, database.ErrNotFound) {
		return result.NotFound[model.Post]("post not found"), nil
	}
	if err != nil {
		return result.Result[model.Post]{}, fmt.Errorf("load post %s: %w", c.ID, err)
	}
	if changes.Empty() {
		return result.Success(*existing), nil
	}

	updated := existing.Apply(changes)
	updated.Date = canonicalDate(updated.Date)
	err = h.db.UpdatePost(ctx, &updated)
	if errors.Is(err, database.ErrNotFound) {
		return result.NotFound[model.Post]("post not found"), nil
	}
	if err != nil {
		return result.Result[model.Post]{}, fmt.Errorf("update post %s: %w", c.ID, err)
	}
	h.logger.Info().Str("post_id", c.ID.String()).Msg("post edited")
	return result.Success(updated), nil
}

// Delete removes a post; an unknown id is NotFound, not an error.
func (h *Handlers) Delete(ctx context.Context, c DeleteCommand) (result.Result[struct{}], error) {
	err := h.db.DeletePost(ctx, c.ID)
	if errors.Is(err, database.ErrNotFound) {
		return result.NotFound[struct{}]("post not found"), nil
	}
	if err != nil {
		return result.Result[struct{}]{}, fmt.Errorf("delete post %s: %w", c.ID, err)
	}
	h.logger.Info().Str("post_id", c.ID.String()).Msg("post deleted")
	return result.Success(struct{}{}), nil
}
