package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bryan-buckman/dotpost/internal/auth"
	"github.com/bryan-buckman/dotpost/internal/mediator"
	"github.com/bryan-buckman/dotpost/internal/model"
	"github.com/bryan-buckman/dotpost/internal/paging"
	"github.com/bryan-buckman/dotpost/internal/posts"
	"github.com/bryan-buckman/dotpost/internal/result"
)

// PaginationHeader carries list metadata as JSON.
const PaginationHeader = "Pagination"

// postRequest is the create/edit body. Every field is optional at decode
// time; the handlers decide what is required.
type postRequest struct {
	ID      string  `json:"id"`
	Title   *string `json:"title"`
	Date    *string `json:"date"`
	Content *string `json:"content"`
}

func (req postRequest) changes() (model.PostChanges, error) {
	c := model.PostChanges{Title: req.Title, Content: req.Content}
	if req.Date != nil && *req.Date != "" {
		t, err := model.ParseDate(*req.Date)
		if err != nil {
			return c, err
		}
		c.Date = &t
	} else if req.Date != nil {
		c.Date = &time.Time{}
	}
	return c, nil
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params, err := pagingFromQuery(q.Get("pageNumber"), q.Get("pageSize"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := mediator.Send[posts.ListQuery, result.Result[paging.List[model.Post]]](r.Context(), s.mediator, posts.ListQuery{
		Params: params,
		Author: q.Get("author"),
	})
	s.handlePagedResult(w, res, err)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := mediator.Send[posts.DetailsQuery, result.Result[model.Post]](r.Context(), s.mediator, posts.DetailsQuery{ID: id})
	handleResult(w, s, res, err)
}

func (s *Server) handleSearchPosts(w http.ResponseWriter, r *http.Request) {
	res, err := mediator.Send[posts.SearchQuery, result.Result[[]model.Post]](r.Context(), s.mediator, posts.SearchQuery{
		Term: r.URL.Query().Get("search"),
	})
	handleResult(w, s, res, err)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	var id uuid.UUID
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid post id")
			return
		}
		id = parsed
	}
	c, err := req.changes()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	post := model.Post{ID: id}.Apply(c)

	ident, _ := auth.FromContext(r.Context())
	res, err := mediator.Send[posts.CreateCommand, result.Result[model.Post]](r.Context(), s.mediator, posts.CreateCommand{
		Post:   post,
		Author: ident.Username,
	})
	handleResult(w, s, res, err)
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	c, err := req.changes()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The path identifier always wins over whatever the body claims.
	c.ID = id
	res, err := mediator.Send[posts.EditCommand, result.Result[model.Post]](r.Context(), s.mediator, posts.EditCommand{ID: id, Changes: c})
	handleResult(w, s, res, err)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := mediator.Send[posts.DeleteCommand, result.Result[struct{}]](r.Context(), s.mediator, posts.DeleteCommand{ID: id})
	if err == nil && res.IsSuccess() {
		w.WriteHeader(http.StatusOK)
		return
	}
	handleResult(w, s, res, err)
}

// postAuthor backs the IsAuthor policy for /api/posts/{id}.
func (s *Server) postAuthor(r *http.Request) (string, bool, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// Malformed ids are rejected by the handler with 400.
		return "", false, nil
	}
	res, err := mediator.Send[posts.DetailsQuery, result.Result[model.Post]](r.Context(), s.mediator, posts.DetailsQuery{ID: id})
	if err != nil {
		return "", false, err
	}
	if !res.IsSuccess() {
		return "", false, nil
	}
	return res.Value.AuthorUsername, true, nil
}

// --- Helpers ---

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid post id")
		return uuid.Nil, false
	}
	return id, true
}

func pagingFromQuery(number, size string) (paging.Params, error) {
	var p paging.Params
	var err error
	if number != "" {
		if p.PageNumber, err = strconv.Atoi(strings.TrimSpace(number)); err != nil {
			return p, fmt.Errorf("pageNumber: %q is not a number", number)
		}
	}
	if size != "" {
		if p.PageSize, err = strconv.Atoi(strings.TrimSpace(size)); err != nil {
			return p, fmt.Errorf("pageSize: %q is not a number", size)
		}
	}
	return p, nil
}

// handleResult maps a handler outcome to an HTTP response.
func handleResult[T any](w http.ResponseWriter, s *Server, res result.Result[T], err error) {
	if err != nil {
		s.logger.Error().Err(err).Msg("handler failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	switch res.Kind {
	case result.KindSuccess:
		writeJSON(w, http.StatusOK, res.Value)
	case result.KindNotFound:
		writeError(w, http.StatusNotFound, res.Message)
	case result.KindConflict:
		writeError(w, http.StatusConflict, res.Message)
	default:
		writeError(w, http.StatusBadRequest, res.Message)
	}
}

func (s *Server) handlePagedResult(w http.ResponseWriter, res result.Result[paging.List[model.Post]], err error) {
	if err == nil && res.IsSuccess() {
		meta, _ := json.Marshal(res.Value.Metadata)
		w.Header().Set(PaginationHeader, string(meta))
		w.Header().Set("Access-Control-Expose-Headers", PaginationHeader)
		writeJSON(w, http.StatusOK, res.Value.Items)
		return
	}
	handleResult(w, s, res, err)
}
