package kernel

import (
	"errors"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

const defaultHistoryLimit = 50

// handleSessionMessages returns a session's stored history, oldest first.
func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := domain.SessionID(r.PathValue("id"))

	limit := defaultHistoryLimit
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	msgs, err := s.dispatcher.History(r.Context(), sessionID, limit)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "no messages for session "+string(sessionID))
			return
		}
		s.logger.Error("failed to load history", "session_id", string(sessionID), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   msgs,
		"count":      len(msgs),
	})
}
