package api

import (
	"net/http"
	"strconv"

	"github.com/Latasoft/CitySoccer-sub001/internal/metrics"
)

// handleAvailability lists a court's slots for a date with availability.
// The answer is advisory; the commit-time check lives in the reconciler.
// GET /api/availability?resource_id=5&date=2025-03-01
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resourceID, err := strconv.ParseInt(r.URL.Query().Get("resource_id"), 10, 64)
	if err != nil || resourceID <= 0 {
		writeError(w, http.StatusBadRequest, "resource_id is required")
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	slots, err := s.guard.DaySlots(r.Context(), resourceID, date, s.hours)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error().Err(err).Int64("resource_id", resourceID).Str("date", date).Msg("availability listing failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resource_id": resourceID,
		"date":        date,
		"slots":       slots,
	})
}

func isValidationError(err error) bool {
	return err != nil && err.Error() == "invalid date format; expected YYYY-MM-DD"
}
