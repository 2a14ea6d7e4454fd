// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/bryan-buckman/dotpost/internal/auth"
	"github.com/bryan-buckman/dotpost/internal/database"
	"github.com/bryan-buckman/dotpost/internal/mediator"
)

// Refresher imports posts from external feeds on demand.
type Refresher interface {
	FetchAll(ctx context.Context) (map[string]int, error)
}

// Server is the main HTTP server.
type Server struct {
	db       database.Store
	mediator *mediator.Mediator
	auth     auth.Authenticator
	refresh  Refresher
	logger   zerolog.Logger
	router   chi.Router
}

// Options configures a Server. Refresher may be nil.
type Options struct {
	Store         database.Store
	Mediator      *mediator.Mediator
	Authenticator auth.Authenticator
	Refresher     Refresher
	Logger        zerolog.Logger
}

// New creates a new server.
func New(opts Options) *Server {
	a := opts.Authenticator
	if a == nil {
		a = auth.HeaderAuthenticator{}
	}
	s := &Server{
		db:       opts.Store,
		mediator: opts.Mediator,
		auth:     a,
		refresh:  opts.Refresher,
		logger:   opts.Logger.With().Str("component", "server").Logger(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(auth.Middleware(s.auth))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/posts", func(r chi.Router) {
			r.Get("/", s.handleListPosts)
			r.Get("/search", s.handleSearchPosts)
			r.Get("/{id}", s.handleGetPost)
			r.With(auth.RequireUser).Post("/", s.handleCreatePost)
			r.Group(func(r chi.Router) {
				r.Use(auth.IsAuthor(s.postAuthor, s.logger))
				r.Put("/{id}", s.handleEditPost)
				r.Delete("/{id}", s.handleDeletePost)
			})
		})
		r.Get("/settings", s.handleGetSettings)
		r.With(auth.RequireUser).Put("/settings", s.handleSaveSettings)
		r.With(auth.RequireUser).Post("/refresh", s.handleRefresh)
	})

	s.router = r
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": s.db.DatabaseType(),
	})
}

// requestLogger logs one line per request through zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
