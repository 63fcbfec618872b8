package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Latasoft/CitySoccer-sub001/internal/database"
	"github.com/Latasoft/CitySoccer-sub001/internal/metrics"
)

// handleRefundExport downloads the unresolved refund ledger as .xlsx.
// GET /api/refunds/export (operator key required)
func (s *HTTPServer) handleRefundExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("refund_export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filename := fmt.Sprintf("refunds_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	n, err := s.exporter.ExportUnresolved(r.Context(), w)
	if err != nil {
		// Headers are out; all we can do is log.
		s.log.Error().Err(err).Msg("refund export failed")
		return
	}
	s.log.Info().Int("records", n).Msg("refund ledger exported")
}

// ResolveRefundRequest is the request body for POST /api/refunds/resolve.
type ResolveRefundRequest struct {
	OrderRef string `json:"order_ref"`
}

// handleRefundResolve marks a refund handled by an operator. The engine
// never moves money itself; this records that a human did.
// POST /api/refunds/resolve (operator key required)
func (s *HTTPServer) handleRefundResolve(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("refund_resolve")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req ResolveRefundRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OrderRef == "" {
		writeError(w, http.StatusBadRequest, "order_ref is required")
		return
	}

	if err := s.db.ResolveRefund(r.Context(), req.OrderRef); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "refund record not found")
			return
		}
		s.log.Error().Err(err).Str("order_ref", req.OrderRef).Msg("refund resolve failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info().Str("order_ref", req.OrderRef).Msg("refund marked resolved")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
