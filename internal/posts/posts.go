// Package posts implements the post use cases as mediator queries and commands.
package posts

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryan-buckman/dotpost/internal/database"
	"github.com/bryan-buckman/dotpost/internal/mediator"
	"github.com/bryan-buckman/dotpost/internal/model"
	"github.com/bryan-buckman/dotpost/internal/paging"
	"github.com/bryan-buckman/dotpost/internal/result"
)

// SearchPolicy selects which fields a search matches and how.
type SearchPolicy struct {
	Fields        []string
	CaseSensitive bool
}

// DefaultSearchPolicy matches title and content case-insensitively.
func DefaultSearchPolicy() SearchPolicy {
	return SearchPolicy{Fields: []string{database.FieldTitle, database.FieldContent}}
}

// PagingPolicy bounds list queries.
type PagingPolicy struct {
	// DefaultPageSize replaces a missing page size; zero means paging.DefaultPageSize.
	DefaultPageSize int
	MaxPageSize     int
	Overflow        paging.OverflowPolicy
}

// Handlers holds the dependencies shared by every post use case.
type Handlers struct {
	db     database.Store
	search SearchPolicy
	paging PagingPolicy
	logger zerolog.Logger
	newID  func() uuid.UUID
}

// Option customises Handlers.
type Option func(*Handlers)

// WithSearchPolicy overrides the default search policy.
func WithSearchPolicy(p SearchPolicy) Option {
	return func(h *Handlers) { h.search = p }
}

// WithPagingPolicy overrides the default paging policy.
func WithPagingPolicy(p PagingPolicy) Option {
	return func(h *Handlers) { h.paging = p }
}

// WithIDGenerator replaces uuid.New for server-assigned identifiers.
func WithIDGenerator(f func() uuid.UUID) Option {
	return func(h *Handlers) { h.newID = f }
}

// NewHandlers creates the post handlers.
func NewHandlers(db database.Store, logger zerolog.Logger, opts ...Option) *Handlers {
	h := &Handlers{
		db:     db,
		search: DefaultSearchPolicy(),
		paging: PagingPolicy{MaxPageSize: paging.MaxPageSize, Overflow: paging.OverflowClamp},
		logger: logger.With().Str("component", "posts").Logger(),
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register binds every post query and command to m.
func (h *Handlers) Register(m *mediator.Mediator) {
	mediator.Register[ListQuery, result.Result[paging.List[model.Post]]](m, mediator.HandlerFunc[ListQuery, result.Result[paging.List[model.Post]]](h.List))
	mediator.Register[DetailsQuery, result.Result[model.Post]](m, mediator.HandlerFunc[DetailsQuery, result.Result[model.Post]](h.Details))
	mediator.Register[SearchQuery, result.Result[[]model.Post]](m, mediator.HandlerFunc[SearchQuery, result.Result[[]model.Post]](h.Search))
	mediator.Register[CreateCommand, result.Result[model.Post]](m, mediator.HandlerFunc[CreateCommand, result.Result[model.Post]](h.Create))
	mediator.Register[EditCommand, result.Result[model.Post]](m, mediator.HandlerFunc[EditCommand, result.Result[model.Post]](h.Edit))
	mediator.Register[DeleteCommand, result.Result[struct{}]](m, mediator.HandlerFunc[DeleteCommand, result.Result[struct{}]](h.Delete))
}

// newPost is the required shape of a post being created.
type newPost struct {
	Author  string    `validate:"required"`
	Title   string    `validate:"required"`
	Date    time.Time `validate:"required"`
	Content string    `validate:"required"`
}

// postEdit holds the fields of a partial update. Absent fields are skipped;
// present ones must not be blank.
type postEdit struct {
	Title   *string    `validate:"omitnil,required"`
	Date    *time.Time `validate:"omitnil,required"`
	Content *string    `validate:"omitnil,required"`
}

var validate = validator.New()

// requiredMessages are the client-facing messages for a missing field.
var requiredMessages = map[string]string{
	"Author":  "Author is required",
	"Title":   "The post title is required",
	"Date":    "Date is required",
	"Content": "Content is required",
}

func validateCreate(author string, p model.Post) string {
	return validationMessage(newPost{Author: author, Title: p.Title, Date: p.Date, Content: p.Content})
}

func validateChanges(c model.PostChanges) string {
	return validationMessage(postEdit{Title: c.Title, Date: c.Date, Content: c.Content})
}

// validationMessage returns the message for the first failing field, or "".
func validationMessage(v any) string {
	err := validate.Struct(v)
	if err == nil {
		return ""
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return err.Error()
	}
	fe := fields[0]
	if msg, ok := requiredMessages[fe.Field()]; ok && fe.Tag() == "required" {
		return msg
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

func canonicalDate(t time.Time) time.Time {
	return t.UTC()
}
