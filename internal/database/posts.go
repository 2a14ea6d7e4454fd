package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bryan-buckman/dotpost/internal/model"
)

// MinSyndicationIntervalMinutes is the floor applied to the stored interval.
const MinSyndicationIntervalMinutes = 15

// dialect captures the SQL differences between backends.
type dialect struct {
	// numbered placeholders ($1, $2) instead of ?.
	numbered bool
	// contains returns a predicate true when expr contains the bound argument.
	contains func(expr, arg string) string
}

var sqliteDialect = dialect{
	contains: func(expr, arg string) string { return "instr(" + expr + ", " + arg + ") > 0" },
}

var postgresDialect = dialect{
	numbered: true,
	contains: func(expr, arg string) string { return "strpos(" + expr + ", " + arg + ") > 0" },
}

// rebind rewrites ? placeholders for the dialect.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// postQueries implements the post and settings methods shared by both backends.
type postQueries struct {
	conn    *sql.DB
	dialect dialect
}

const postColumns = "id, title, posted_at, content, author_username"

func (q *postQueries) where(filter PostFilter) (string, []any) {
	if filter.Author == "" {
		return "", nil
	}
	return " WHERE author_username = ?", []any{filter.Author}
}

// CountPosts returns the number of posts matching filter.
func (q *postQueries) CountPosts(ctx context.Context, filter PostFilter) (int, error) {
	clause, args := q.where(filter)
	var n int
	err := q.conn.QueryRowContext(ctx, q.dialect.rebind("SELECT COUNT(*) FROM posts"+clause), args...).Scan(&n)
	return n, err
}

// ListPosts returns a window of posts, newest first.
func (q *postQueries) ListPosts(ctx context.Context, filter PostFilter, limit, offset int) ([]model.Post, error) {
	clause, args := q.where(filter)
	query := "SELECT " + postColumns + " FROM posts" + clause + " ORDER BY posted_at DESC, id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	rows, err := q.conn.QueryContext(ctx, q.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetPost returns a post by id, or ErrNotFound.
func (q *postQueries) GetPost(ctx context.Context, id uuid.UUID) (*model.Post, error) {
	row := q.conn.QueryRowContext(ctx, q.dialect.rebind("SELECT "+postColumns+" FROM posts WHERE id = ?"), id.String())
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePost inserts post. Returns ErrConflict when the id is taken.
func (q *postQueries) CreatePost(ctx context.Context, post *model.Post) error {
	res, err := q.conn.ExecContext(ctx, q.dialect.rebind(`
		INSERT INTO posts (id, title, posted_at, content, author_username)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`),
		post.ID.String(), post.Title, normalizeDate(post.Date), post.Content, post.AuthorUsername)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("post %s: %w", post.ID, ErrConflict)
	}
	return nil
}

// UpdatePost overwrites the mutable fields of an existing post.
func (q *postQueries) UpdatePost(ctx context.Context, post *model.Post) error {
	res, err := q.conn.ExecContext(ctx, q.dialect.rebind("UPDATE posts SET title = ?, posted_at = ?, content = ? WHERE id = ?"),
		post.Title, normalizeDate(post.Date), post.Content, post.ID.String())
	if err != nil {
		return err
	}
	return expectOneRow(res, post.ID)
}

// DeletePost removes a post by id.
func (q *postQueries) DeletePost(ctx context.Context, id uuid.UUID) error {
	res, err := q.conn.ExecContext(ctx, q.dialect.rebind("DELETE FROM posts WHERE id = ?"), id.String())
	if err != nil {
		return err
	}
	return expectOneRow(res, id)
}

// SearchPosts returns posts whose selected fields contain the term, newest first.
func (q *postQueries) SearchPosts(ctx context.Context, spec SearchSpec) ([]model.Post, error) {
	if strings.TrimSpace(spec.Term) == "" || len(spec.Fields) == 0 {
		return []model.Post{}, nil
	}
	var preds []string
	var args []any
	for _, f := range spec.Fields {
		if f != FieldTitle && f != FieldContent {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
		if spec.CaseSensitive {
			preds = append(preds, q.dialect.contains(f, "?"))
		} else {
			preds = append(preds, q.dialect.contains("lower("+f+")", "lower(?)"))
		}
		args = append(args, spec.Term)
	}
	query := "SELECT " + postColumns + " FROM posts WHERE " + strings.Join(preds, " OR ") + " ORDER BY posted_at DESC, id ASC"
	rows, err := q.conn.QueryContext(ctx, q.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	posts, err := scanPosts(rows)
	if posts == nil && err == nil {
		posts = []model.Post{}
	}
	return posts, err
}

// --- Settings Methods ---

// GetSetting retrieves a setting value.
func (q *postQueries) GetSetting(ctx context.Context, key string) (string, error) {
	var val string
	err := q.conn.QueryRowContext(ctx, q.dialect.rebind("SELECT value FROM settings WHERE key = ?"), key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	return val, err
}

// SetSetting saves a setting.
func (q *postQueries) SetSetting(ctx context.Context, key, value string) error {
	_, err := q.conn.ExecContext(ctx, q.dialect.rebind("INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"), key, value)
	return err
}

// GetSyndicationInterval returns the feed polling interval in minutes, with a minimum of 15.
func (q *postQueries) GetSyndicationInterval(ctx context.Context) (int, error) {
	val, err := q.GetSetting(ctx, model.SettingSyndicationInterval)
	if err != nil {
		return MinSyndicationIntervalMinutes, nil // default
	}
	mins, err := strconv.Atoi(val)
	if err != nil || mins < MinSyndicationIntervalMinutes {
		mins = MinSyndicationIntervalMinutes
	}
	return mins, nil
}

// --- Helper functions ---

func expectOneRow(res sql.Result, id uuid.UUID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*model.Post, error) {
	var p model.Post
	var date sql.NullTime
	if err := row.Scan(&p.ID, &p.Title, &date, &p.Content, &p.AuthorUsername); err != nil {
		return nil, err
	}
	if date.Valid {
		p.Date = date.Time.UTC()
	}
	return &p, nil
}

func scanPosts(rows *sql.Rows) ([]model.Post, error) {
	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// normalizeDate trims a post date to the precision both backends keep.
func normalizeDate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
