package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/Latasoft/CitySoccer-sub001/internal/database"
	"github.com/Latasoft/CitySoccer-sub001/internal/gateway"
	"github.com/Latasoft/CitySoccer-sub001/internal/metrics"
	"github.com/Latasoft/CitySoccer-sub001/internal/models"
	"github.com/Latasoft/CitySoccer-sub001/internal/reconciler"
	"github.com/Latasoft/CitySoccer-sub001/internal/service"
)

// CreatePaymentRequest is the request body for POST /api/payment/create.
type CreatePaymentRequest struct {
	Amount     int64  `json:"amount"` // minor units
	Currency   string `json:"currency"`
	BuyerName  string `json:"buyer_name"`
	BuyerEmail string `json:"buyer_email"`
	BuyerPhone string `json:"buyer_phone,omitempty"`
	ResourceID int64  `json:"resource_id"`
	Date       string `json:"date"`       // YYYY-MM-DD
	StartTime  string `json:"start_time"` // HH:MM
	EndTime    string `json:"end_time,omitempty"`
}

// handlePaymentCreate starts a payment for a slot.
// POST /api/payment/create
func (s *HTTPServer) handlePaymentCreate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment_create")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req CreatePaymentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in, err := s.validateCreateRequest(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.payments.CreateSession(r.Context(), *in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSlotUnavailable):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "SLOT_UNAVAILABLE"})
		case isGatewayError(err):
			// Retryable from the client's perspective; the intent, if one was
			// written, stays pending.
			writeError(w, http.StatusBadGateway, "payment provider unavailable")
		default:
			s.log.Error().Err(err).Msg("payment create failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) validateCreateRequest(req *CreatePaymentRequest) (*service.CreateSessionInput, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if req.Currency == "" {
		return nil, fmt.Errorf("currency is required")
	}
	if req.ResourceID <= 0 {
		return nil, fmt.Errorf("resource_id is required")
	}
	if req.BuyerEmail == "" {
		return nil, fmt.Errorf("buyer_email is required")
	}
	if _, err := mail.ParseAddress(req.BuyerEmail); err != nil {
		return nil, fmt.Errorf("invalid buyer_email")
	}
	if err := models.ValidateSlot(req.Date, req.StartTime); err != nil {
		return nil, err
	}

	endTime := req.EndTime
	if endTime == "" {
		start, _ := time.Parse("15:04", req.StartTime)
		endTime = start.Add(time.Hour).Format("15:04")
	} else if _, err := time.Parse("15:04", endTime); err != nil {
		return nil, fmt.Errorf("invalid end_time format; expected HH:MM")
	}

	return &service.CreateSessionInput{
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		Buyer: models.Buyer{
			Name:  req.BuyerName,
			Email: strings.ToLower(req.BuyerEmail),
			Phone: req.BuyerPhone,
		},
		ResourceID: req.ResourceID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    endTime,
	}, nil
}

// handlePaymentWebhook consumes provider callbacks. The reconciler owns all
// state changes; this handler only translates outcomes into acknowledgements.
// POST /api/payment/webhook
func (s *HTTPServer) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment_webhook")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	result, err := s.reconciler.HandleCallback(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, reconciler.ErrUnknownOrder):
			// Permanently unresolvable; acknowledge so the provider stops
			// retrying a callback that can never succeed.
			writeJSON(w, http.StatusOK, map[string]any{"received": true, "note": "unknown_order"})
		case errors.Is(err, database.ErrConflictingTerminalState):
			// Escalated to operators by the reconciler; retrying the same
			// delivery cannot change the recorded verdict.
			writeJSON(w, http.StatusOK, map[string]any{"received": true, "note": "verdict_conflict"})
		case isParseError(err):
			writeError(w, http.StatusBadRequest, "unparseable payload")
		default:
			// Storage trouble: non-2xx makes the provider retry, and every
			// reconcile step is safe to re-run.
			s.log.Error().Err(err).Msg("webhook reconcile failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handlePaymentStatus serves the short-poll order view.
// GET /api/payment/status/{order_ref}
func (s *HTTPServer) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment_status")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/payment/status/"
	orderRef := strings.TrimPrefix(r.URL.Path, prefix)
	if orderRef == "" || strings.Contains(orderRef, "/") {
		writeError(w, http.StatusBadRequest, "order_ref is required")
		return
	}

	status, err := s.payments.Status(r.Context(), orderRef)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		s.log.Error().Err(err).Str("order_ref", orderRef).Msg("status lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func isGatewayError(err error) bool {
	var gwErr *gateway.Error
	return errors.As(err, &gwErr)
}

func isParseError(err error) bool {
	return strings.Contains(err.Error(), "parse callback")
}
