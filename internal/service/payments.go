// Package service orchestrates payment-session creation: advisory
// availability check, durable intent record, provider round-trip.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Latasoft/CitySoccer-sub001/internal/availability"
	"github.com/Latasoft/CitySoccer-sub001/internal/database"
	"github.com/Latasoft/CitySoccer-sub001/internal/gateway"
	"github.com/Latasoft/CitySoccer-sub001/internal/metrics"
	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

// ErrSlotUnavailable reports an advisory conflict at creation time. The
// caller retries with a different slot.
var ErrSlotUnavailable = errors.New("slot unavailable")

// AvailabilityGuard is the advisory pre-payment check.
type AvailabilityGuard interface {
	CheckAvailable(ctx context.Context, slot models.Slot) (availability.Result, error)
}

// IntentStore is the slice of storage the service writes.
type IntentStore interface {
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	GetIntentByOrderRef(ctx context.Context, orderRef string) (*models.PaymentIntent, error)
	SetGatewaySession(ctx context.Context, orderRef, sessionID string) error
}

// ReservationReader resolves the reservation an order produced.
type ReservationReader interface {
	GetReservationByOrderRef(ctx context.Context, orderRef string) (*models.Reservation, error)
}

// CheckoutGateway opens provider checkout sessions.
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, intent *models.PaymentIntent) (*gateway.Session, error)
}

// PaymentService creates payment sessions and serves order status.
type PaymentService struct {
	guard        AvailabilityGuard
	intents      IntentStore
	reservations ReservationReader
	gateway      CheckoutGateway
	log          *zerolog.Logger
}

// NewPaymentService wires the service.
func NewPaymentService(guard AvailabilityGuard, intents IntentStore, reservations ReservationReader, gw CheckoutGateway, logger *zerolog.Logger) *PaymentService {
	return &PaymentService{
		guard:        guard,
		intents:      intents,
		reservations: reservations,
		gateway:      gw,
		log:          logger,
	}
}

// CreateSessionInput carries a validated payment-create request.
type CreateSessionInput struct {
	Amount     int64
	Currency   string
	Buyer      models.Buyer
	ResourceID int64
	Date       string
	StartTime  string
	EndTime    string
}

// CreateSessionOutput is what the client needs to proceed to checkout.
type CreateSessionOutput struct {
	OrderRef    string `json:"order_ref"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateSession runs the create-payment flow. The availability check is
// advisory only: no lock is held between it and the provider call, and the
// webhook reconciler re-validates at commit time.
func (s *PaymentService) CreateSession(ctx context.Context, in CreateSessionInput) (*CreateSessionOutput, error) {
	slot := models.Slot{ResourceID: in.ResourceID, Date: in.Date, StartTime: in.StartTime}

	check, err := s.guard.CheckAvailable(ctx, slot)
	if err != nil {
		// "Cannot proceed", never "available".
		metrics.IncIntentCreated("guard_error")
		return nil, fmt.Errorf("availability check: %w", err)
	}
	if !check.Available {
		metrics.IncIntentCreated("slot_unavailable")
		return nil, fmt.Errorf("%w: %s", ErrSlotUnavailable, slot)
	}

	intent := &models.PaymentIntent{
		OrderRef:   models.NewOrderRef(time.Now()),
		Amount:     in.Amount,
		Currency:   in.Currency,
		Buyer:      in.Buyer,
		ResourceID: in.ResourceID,
		Date:       in.Date,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
	}
	if err := s.intents.CreateIntent(ctx, intent); err != nil {
		metrics.IncIntentCreated("store_error")
		return nil, fmt.Errorf("create intent: %w", err)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, intent)
	if err != nil {
		// On timeout the intent stays PENDING: the provider side may still
		// complete the payment, and either a webhook or the expiry sweep
		// resolves it.
		metrics.IncIntentCreated("gateway_error")
		s.log.Error().Err(err).Str("order_ref", intent.OrderRef).Msg("checkout session failed")
		return nil, err
	}

	// Persist the session id before returning: a pending intent without a
	// gateway reference would make manual reconciliation impossible if the
	// round-trip is interrupted.
	if err := s.intents.SetGatewaySession(ctx, intent.OrderRef, session.GatewaySessionID); err != nil {
		metrics.IncIntentCreated("store_error")
		return nil, fmt.Errorf("persist gateway session: %w", err)
	}

	metrics.IncIntentCreated("created")
	s.log.Info().
		Str("order_ref", intent.OrderRef).
		Int64("resource_id", in.ResourceID).
		Str("date", in.Date).
		Str("start_time", in.StartTime).
		Int64("amount", in.Amount).
		Msg("payment session created")

	return &CreateSessionOutput{OrderRef: intent.OrderRef, CheckoutURL: session.CheckoutURL}, nil
}

// OrderStatus is the short-poll view of an order. Reads only; nothing here
// ever creates state, the webhook path stays authoritative.
type OrderStatus struct {
	OrderRef      string `json:"order_ref"`
	State         string `json:"state"`
	ReservationID int64  `json:"reservation_id,omitempty"`
	RefundPending bool   `json:"refund_pending,omitempty"`
}

// Status reports where an order stands. An approved intent without a
// reservation is a refund-pending conflict; the payer must never see an
// ambiguous "payment succeeded" with no further information.
func (s *PaymentService) Status(ctx context.Context, orderRef string) (*OrderStatus, error) {
	intent, err := s.intents.GetIntentByOrderRef(ctx, orderRef)
	if err != nil {
		return nil, err
	}

	status := &OrderStatus{OrderRef: orderRef, State: intent.State}
	if intent.State != models.IntentApproved {
		return status, nil
	}

	reservation, err := s.reservations.GetReservationByOrderRef(ctx, orderRef)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			status.RefundPending = true
			return status, nil
		}
		return nil, err
	}
	status.ReservationID = reservation.ID
	return status, nil
}
