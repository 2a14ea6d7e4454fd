// Package model defines shared data structures.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Post is a single blog entry.
type Post struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Date           time.Time `json:"date"`
	Content        string    `json:"content"`
	AuthorUsername string    `json:"authorUsername"`
}

// PostChanges is a partial update of a Post. Nil fields are left untouched.
type PostChanges struct {
	ID      uuid.UUID  `json:"id"`
	Title   *string    `json:"title,omitempty"`
	Date    *time.Time `json:"date,omitempty"`
	Content *string    `json:"content,omitempty"`
}

// Apply returns a copy of p with every field present in c overwritten.
// The identifier and author are never changed.
func (p Post) Apply(c PostChanges) Post {
	if c.Title != nil {
		p.Title = *c.Title
	}
	if c.Date != nil {
		p.Date = *c.Date
	}
	if c.Content != nil {
		p.Content = *c.Content
	}
	return p
}

// Empty reports whether c carries no field changes.
func (c PostChanges) Empty() bool {
	return c.Title == nil && c.Date == nil && c.Content == nil
}

// Settings key constants.
const (
	SettingSyndicationInterval = "syndication_interval_minutes"
)

// ParseDate accepts RFC 3339 timestamps and plain calendar dates.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
