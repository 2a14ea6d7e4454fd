// Package database provides storage backends for posts.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bryan-buckman/dotpost/internal/model"
)

// Storage errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("already exists")
	ErrUnknownField  = errors.New("unknown search field")
	ErrUnknownDriver = errors.New("unknown database driver")
)

// Searchable post columns.
const (
	FieldTitle   = "title"
	FieldContent = "content"
)

// PostFilter narrows list queries.
type PostFilter struct {
	Author string
}

// SearchSpec describes a free-text search.
type SearchSpec struct {
	Term          string
	Fields        []string
	CaseSensitive bool
}

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	// SQLite returns false due to write locking limitations.
	SupportsHighConcurrency() bool

	// Post operations
	CountPosts(ctx context.Context, filter PostFilter) (int, error)
	ListPosts(ctx context.Context, filter PostFilter, limit, offset int) ([]model.Post, error)
	GetPost(ctx context.Context, id uuid.UUID) (*model.Post, error)
	CreatePost(ctx context.Context, post *model.Post) error
	UpdatePost(ctx context.Context, post *model.Post) error
	DeletePost(ctx context.Context, id uuid.UUID) error
	SearchPosts(ctx context.Context, spec SearchSpec) ([]model.Post, error)

	// Settings operations
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetSyndicationInterval(ctx context.Context) (int, error)
}

// Open opens the backend named by driver ("sqlite" or "postgres").
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return New(dsn)
	case "postgres":
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
