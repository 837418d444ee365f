package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/liveshelf/liveshelf/db"
	"github.com/liveshelf/liveshelf/ingest"
	"github.com/liveshelf/liveshelf/models"
)

const (
	defaultPageSize = 30
	maxPageSize     = 100
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// handleAdd shelves a broadcast for the current user, optionally with an
// initial note.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user := s.currentUser(r)
	if s.requireAuth && user == nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.AddBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BroadcastURL == "" {
		respondError(w, http.StatusBadRequest, "broadcast_url is required")
		return
	}

	userID := ""
	if user != nil {
		userID = user.ID
	}

	result, err := s.ingestor.AddBroadcast(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrInvalidURL):
			respondError(w, http.StatusBadRequest, "invalid broadcast URL")
		case errors.Is(err, ingest.ErrUsernameRequired):
			respondError(w, http.StatusBadRequest, "Could not detect username. Please enter manually.")
		default:
			s.logger.Error("add broadcast failed", "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	respondJSON(w, http.StatusOK, models.AddBroadcastResponse{
		Success:     true,
		BroadcastID: result.BroadcastID,
		NoteSaved:   result.NoteSaved,
		Warning:     result.Warning,
	})
}

// handleAddNote attaches a note to an existing broadcast.
func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user := s.currentUser(r)
	if s.requireAuth && user == nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.AddNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := ""
	if user != nil {
		userID = user.ID
	}

	note, err := s.ingestor.AddNote(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrDuplicateNote):
			respondError(w, http.StatusBadRequest, "duplicate note")
		case errors.Is(err, ingest.ErrNoteBodyRequired):
			respondError(w, http.StatusBadRequest, "note body is required")
		case errors.Is(err, ingest.ErrBroadcastNotFound):
			respondError(w, http.StatusBadRequest, "broadcast not found")
		default:
			s.logger.Error("add note failed", "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"note":    note,
	})
}

// handlePreview returns the preview for a broadcast, refreshing it first when
// the stored state is stale under the freshness policy.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	broadcastID := r.URL.Query().Get("broadcast_id")
	if broadcastID == "" {
		respondError(w, http.StatusBadRequest, "broadcast_id is required")
		return
	}

	preview, cached, err := s.ingestor.GetOrRefreshPreview(r.Context(), broadcastID)
	if err != nil {
		if errors.Is(err, ingest.ErrBroadcastNotFound) {
			respondError(w, http.StatusNotFound, "broadcast not found")
			return
		}
		s.logger.Error("preview fetch failed", "broadcast_id", broadcastID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, models.PreviewResponse{
		Success: true,
		Preview: preview,
		Cached:  cached,
	})
}

// handleListBroadcasts serves the browse page data: a page of broadcasts with
// their notes attached, filterable by username and time range.
func (s *Server) handleListBroadcasts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	limit := parseIntParam(q.Get("limit"), defaultPageSize)
	offset := parseIntParam(q.Get("offset"), 0)

	opts := db.ListOptions{
		Limit:    limit,
		Offset:   offset,
		Username: q.Get("username"),
		Since:    sinceFromRange(q.Get("range")),
	}

	broadcasts, total, err := s.store.ListBroadcasts(r.Context(), opts)
	if err != nil {
		s.logger.Error("list broadcasts failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	rows, err := s.attachNotes(r, broadcasts)
	if err != nil {
		s.logger.Error("attach notes failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"broadcasts": rows,
		"count":      total,
	})
}

// handleSearch serves free-text search over usernames, preview text, note
// bodies, and tags.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := parseIntParam(r.URL.Query().Get("limit"), defaultPageSize)
	since := sinceFromRange(r.URL.Query().Get("range"))

	broadcasts, err := s.store.SearchBroadcasts(r.Context(), query, since, limit)
	if err != nil {
		s.logger.Error("search failed", "query", query, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	rows, err := s.attachNotes(r, broadcasts)
	if err != nil {
		s.logger.Error("attach notes failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"broadcasts": rows,
		"count":      len(rows),
	})
}

// handleBroadcasters serves broadcaster handle autocomplete.
func (s *Server) handleBroadcasters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := parseIntParam(r.URL.Query().Get("limit"), defaultPageSize)

	broadcasters, err := s.store.SearchBroadcasters(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("broadcaster search failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"broadcasters": broadcasters,
		"count":        len(broadcasters),
	})
}

// handleTag lists the broadcasts carrying a tag.
func (s *Server) handleTag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	tag := strings.TrimPrefix(r.URL.Path, "/api/tags/")
	if tag == "" || strings.Contains(tag, "/") {
		respondError(w, http.StatusBadRequest, "tag is required")
		return
	}
	tag = strings.ToLower(tag)

	q := r.URL.Query()
	limit := parseIntParam(q.Get("limit"), defaultPageSize)
	offset := parseIntParam(q.Get("offset"), 0)

	broadcasts, err := s.store.ListBroadcastsByTag(r.Context(), tag, limit, offset)
	if err != nil {
		s.logger.Error("tag lookup failed", "tag", tag, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	rows, err := s.attachNotes(r, broadcasts)
	if err != nil {
		s.logger.Error("attach notes failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tag":        tag,
		"broadcasts": rows,
		"count":      len(rows),
	})
}

// handleMe lists the broadcasts claimed by the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user := s.currentUser(r)
	if user == nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	q := r.URL.Query()
	limit := parseIntParam(q.Get("limit"), defaultPageSize)
	offset := parseIntParam(q.Get("offset"), 0)

	broadcasts, err := s.store.ListBroadcastsByUser(r.Context(), user.ID, limit, offset)
	if err != nil {
		s.logger.Error("user shelf lookup failed", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	rows, err := s.attachNotes(r, broadcasts)
	if err != nil {
		s.logger.Error("attach notes failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"broadcasts": rows,
		"count":      len(rows),
	})
}

// attachNotes loads the notes for a page of broadcasts in one batched query.
func (s *Server) attachNotes(r *http.Request, broadcasts []models.Broadcast) ([]models.BroadcastWithNotes, error) {
	ids := make([]string, len(broadcasts))
	for i, b := range broadcasts {
		ids[i] = b.BroadcastID
	}

	notesByID, err := s.store.ListNotesByBroadcastIDs(r.Context(), ids)
	if err != nil {
		return nil, err
	}

	rows := make([]models.BroadcastWithNotes, len(broadcasts))
	for i, b := range broadcasts {
		notes := notesByID[b.BroadcastID]
		if notes == nil {
			notes = []models.Note{}
		}
		rows[i] = models.BroadcastWithNotes{Broadcast: b, Notes: notes}
	}
	return rows, nil
}

// sinceFromRange translates the range query parameter into a time filter.
// Unknown values mean no filter.
func sinceFromRange(raw string) *time.Time {
	var since time.Time
	switch raw {
	case "24h":
		since = time.Now().UTC().Add(-24 * time.Hour)
	case "7d":
		since = time.Now().UTC().Add(-7 * 24 * time.Hour)
	default:
		return nil
	}
	return &since
}

func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	if n > maxPageSize && fallback != 0 {
		return maxPageSize
	}
	return n
}
