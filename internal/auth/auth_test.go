package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, "/api/posts/x", nil)
	if user != "" {
		req.Header.Set(DefaultHeader, user)
	}
	rec := httptest.NewRecorder()
	Middleware(HeaderAuthenticator{})(h).ServeHTTP(rec, req)
	return rec
}

func TestHeaderAuthenticator(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := HeaderAuthenticator{}.Authenticate(req)
	assert.False(t, ok)

	req.Header.Set(DefaultHeader, "  bob ")
	id, ok := HeaderAuthenticator{}.Authenticate(req)
	assert.True(t, ok)
	assert.Equal(t, "bob", id.Username)

	req.Header.Set("X-Forwarded-User", "carol")
	id, ok = HeaderAuthenticator{Header: "X-Forwarded-User"}.Authenticate(req)
	assert.True(t, ok)
	assert.Equal(t, "carol", id.Username)
}

func TestRequireUser(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, serve(RequireUser(okHandler()), "").Code)
	assert.Equal(t, http.StatusNoContent, serve(RequireUser(okHandler()), "bob").Code)
}

func TestIsAuthor(t *testing.T) {
	lookup := func(author string, found bool, err error) AuthorLookup {
		return func(*http.Request) (string, bool, error) { return author, found, err }
	}
	tests := []struct {
		name   string
		lookup AuthorLookup
		user   string
		want   int
	}{
		{"author passes", lookup("bob", true, nil), "bob", http.StatusNoContent},
		{"other user rejected", lookup("bob", true, nil), "mallory", http.StatusForbidden},
		{"anonymous rejected", lookup("bob", true, nil), "", http.StatusUnauthorized},
		{"missing post falls through", lookup("", false, nil), "mallory", http.StatusNoContent},
		{"lookup failure", lookup("", false, errors.New("db down")), "bob", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := IsAuthor(tt.lookup, zerolog.Nop())(okHandler())
			assert.Equal(t, tt.want, serve(h, tt.user).Code)
		})
	}
}
