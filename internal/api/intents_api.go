package api

import (
	"net/http"
	"strconv"

	"github.com/Latasoft/CitySoccer-sub001/internal/metrics"
	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

// handleIntentList lists recent payment intents in a given state, newest
// first. Operators use it to eyeball stuck or anomalous orders.
// GET /api/intents?state=pending&limit=50 (operator key required)
func (s *HTTPServer) handleIntentList(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("intent_list")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	state := r.URL.Query().Get("state")
	switch state {
	case models.IntentPending, models.IntentApproved, models.IntentRejected, models.IntentExpired:
	default:
		writeError(w, http.StatusBadRequest, "state must be one of pending, approved, rejected, expired")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	intents, err := s.db.ListIntentsByState(r.Context(), state, limit)
	if err != nil {
		s.log.Error().Err(err).Str("state", state).Msg("intent listing failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":   state,
		"count":   len(intents),
		"intents": intents,
	})
}
