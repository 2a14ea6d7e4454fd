package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/bryan-buckman/dotpost/internal/database"
	"github.com/bryan-buckman/dotpost/internal/model"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	interval, _ := s.db.GetSyndicationInterval(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"syndication_interval": interval,
	})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SyndicationInterval int `json:"syndication_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	// Enforce minimum.
	if req.SyndicationInterval < database.MinSyndicationIntervalMinutes {
		req.SyndicationInterval = database.MinSyndicationIntervalMinutes
	}
	if err := s.db.SetSetting(r.Context(), model.SettingSyndicationInterval, strconv.Itoa(req.SyndicationInterval)); err != nil {
		s.logger.Error().Err(err).Msg("save settings")
		writeError(w, http.StatusInternalServerError, "Failed to save")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "syndication_interval": req.SyndicationInterval})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusNotFound, "syndication is disabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	results, err := s.refresh.FetchAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("refresh failed")
		writeError(w, http.StatusInternalServerError, "Fetch error")
		return
	}

	total := 0
	for _, c := range results {
		total += c
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"new_posts": total,
		"feeds":     len(results),
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
