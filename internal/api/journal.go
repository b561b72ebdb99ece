package api

import (
	"net/http"
	"strconv"

	"github.com/stagecraft-systems/motion-core/internal/journal"
)

// handleListJournal returns motion journal entries, newest first.
// Supported query parameters: action, device, axis, limit, offset.
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "journal is not configured")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Action: q.Get("action"),
		Device: q.Get("device"),
		Axis:   q.Get("axis"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		writeInternalError(w, "failed to query journal")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
