// Package auth resolves the caller identity and enforces author-only policies.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultHeader carries the caller's username.
const DefaultHeader = "X-Username"

// Identity is an authenticated caller.
type Identity struct {
	Username string
}

// Authenticator extracts an identity from a request.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, bool)
}

// HeaderAuthenticator trusts a username header set by a fronting proxy.
type HeaderAuthenticator struct {
	Header string
}

// Authenticate implements Authenticator.
func (a HeaderAuthenticator) Authenticate(r *http.Request) (Identity, bool) {
	h := a.Header
	if h == "" {
		h = DefaultHeader
	}
	name := strings.TrimSpace(r.Header.Get(h))
	if name == "" {
		return Identity{}, false
	}
	return Identity{Username: name}, true
}

type ctxKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by Middleware, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware attaches the caller identity to the request context when present.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := a.Authenticate(r); ok {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			deny(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthorLookup returns the author of the resource a request targets.
// found is false when the resource does not exist.
type AuthorLookup func(r *http.Request) (author string, found bool, err error)

// IsAuthor only lets the resource's author through. Missing resources pass
// so the handler can report not found.
func IsAuthor(lookup AuthorLookup, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "authentication required")
				return
			}
			author, found, err := lookup(r)
			if err != nil {
				logger.Error().Err(err).Str("path", r.URL.Path).Msg("author lookup failed")
				deny(w, http.StatusInternalServerError, "authorization check failed")
				return
			}
			if found && author != id.Username {
				logger.Warn().Str("user", id.Username).Str("path", r.URL.Path).Msg("rejected non-author")
				deny(w, http.StatusForbidden, "only the author may modify this post")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
