// Package paging provides page-based pagination parameters and result metadata
// shared by the server query handlers and the client store.
package paging

import (
	"errors"
	"fmt"
	"math"
)

// Defaults and limits.
const (
	DefaultPageNumber = 1
	DefaultPageSize   = 10
	MaxPageSize       = 50
)

// Validation errors.
var (
	ErrInvalidPage     = errors.New("page number must be >= 1")
	ErrInvalidPageSize = errors.New("page size must be >= 1")
	ErrUnknownOverflow = errors.New("unknown overflow policy")
)

// Params selects a single page. PageNumber is 1-based.
type Params struct {
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
}

// NewParams returns the default first page.
func NewParams() Params {
	return Params{PageNumber: DefaultPageNumber, PageSize: DefaultPageSize}
}

// Normalize fills zero values with defaults and caps the page size at limit.
// A limit of zero or less means MaxPageSize.
func (p Params) Normalize(limit int) Params {
	if limit <= 0 {
		limit = MaxPageSize
	}
	if p.PageNumber == 0 {
		p.PageNumber = DefaultPageNumber
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > limit {
		p.PageSize = limit
	}
	return p
}

// Validate rejects non-positive page numbers and sizes.
func (p Params) Validate() error {
	if p.PageNumber < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPage, p.PageNumber)
	}
	if p.PageSize < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPageSize, p.PageSize)
	}
	return nil
}

// Offset returns the number of items skipped before this page.
func (p Params) Offset() int {
	return (p.PageNumber - 1) * p.PageSize
}

// Metadata describes where a page sits in the full result set.
type Metadata struct {
	CurrentPage  int `json:"currentPage"`
	ItemsPerPage int `json:"itemsPerPage"`
	TotalItems   int `json:"totalItems"`
	TotalPages   int `json:"totalPages"`
}

// TotalPages returns ceil(total/size), or 0 when size is not positive.
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(size)))
}

// HasNext reports whether a later page exists.
func (m Metadata) HasNext() bool {
	return m.CurrentPage < m.TotalPages
}

// List is one page of items plus its metadata.
type List[T any] struct {
	Items    []T      `json:"items"`
	Metadata Metadata `json:"pagination"`
}

// OverflowPolicy decides what a request for a page past the end returns.
type OverflowPolicy string

// Overflow policies.
const (
	// OverflowClamp serves the last page instead.
	OverflowClamp OverflowPolicy = "clamp"
	// OverflowEmpty serves an empty page with the requested number echoed.
	OverflowEmpty OverflowPolicy = "empty"
)

// ParseOverflowPolicy parses a policy name; empty means OverflowClamp.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case "", OverflowClamp:
		return OverflowClamp, nil
	case OverflowEmpty:
		return OverflowEmpty, nil
	default:
		return "", fmt.Errorf("%w: %q (valid: clamp, empty)", ErrUnknownOverflow, s)
	}
}

// Resolve returns the params to actually fetch given the total item count,
// and whether any fetch is needed at all.
func (o OverflowPolicy) Resolve(p Params, total int) (Params, bool) {
	pages := TotalPages(total, p.PageSize)
	if pages == 0 {
		p.PageNumber = DefaultPageNumber
		return p, false
	}
	if p.PageNumber <= pages {
		return p, true
	}
	if o == OverflowEmpty {
		return p, false
	}
	p.PageNumber = pages
	return p, true
}

// NewMetadata builds metadata for a resolved page.
func NewMetadata(p Params, total int) Metadata {
	return Metadata{
		CurrentPage:  p.PageNumber,
		ItemsPerPage: p.PageSize,
		TotalItems:   total,
		TotalPages:   TotalPages(total, p.PageSize),
	}
}
