// Package reconciler turns payment-provider callbacks into reservation
// state. It is the only code path that creates reservations.
//
// Callbacks may arrive more than once, out of order, and arbitrarily
// delayed. Every step is either idempotent or guarded by a compare-and-set
// or unique constraint, so a delivery can be retried from any point.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Latasoft/CitySoccer-sub001/internal/database"
	"github.com/Latasoft/CitySoccer-sub001/internal/gateway"
	"github.com/Latasoft/CitySoccer-sub001/internal/metrics"
	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

// ErrUnknownOrder marks a callback for an order this engine never created.
// Permanently unresolvable; the HTTP layer still acknowledges it so the
// provider stops retrying.
var ErrUnknownOrder = errors.New("unknown order")

// IntentStore is the slice of storage holding payment intents.
type IntentStore interface {
	GetIntentByOrderRef(ctx context.Context, orderRef string) (*models.PaymentIntent, error)
	TransitionTerminal(ctx context.Context, orderRef, newState, gatewayMetadata string) (bool, *models.PaymentIntent, error)
}

// SlotLedger is the slice of storage holding reservations.
type SlotLedger interface {
	InsertConfirmedReservation(ctx context.Context, r *models.Reservation) error
	GetReservationByOrderRef(ctx context.Context, orderRef string) (*models.Reservation, error)
}

// CustomerStore resolves buyers into customer records.
type CustomerStore interface {
	GetOrCreateCustomer(ctx context.Context, buyer models.Buyer) (*models.Customer, error)
}

// Notifier raises post-commit signals.
type Notifier interface {
	NotifyConflict(ctx context.Context, intent *models.PaymentIntent, reason string) error
	NotifyConfirmed(intent *models.PaymentIntent, reservation *models.Reservation)
	NotifyVerdictConflict(intent *models.PaymentIntent, reported string)
}

// CacheInvalidator drops advisory availability caches after a commit.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, slot models.Slot)
}

// Callback is the parsed provider payload.
type Callback struct {
	OrderRef string          `json:"order_ref"`
	Status   string          `json:"status"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Result reports what a delivery did.
type Result struct {
	Received      bool  `json:"received"`
	Duplicate     bool  `json:"duplicate,omitempty"`
	Committed     bool  `json:"committed,omitempty"`
	SlotTaken     bool  `json:"slot_taken,omitempty"`
	ReservationID int64 `json:"reservation_id,omitempty"`
}

// Reconciler is the webhook state machine.
type Reconciler struct {
	intents   IntentStore
	ledger    SlotLedger
	customers CustomerStore
	notifier  Notifier
	cache     CacheInvalidator
	log       *zerolog.Logger
}

// New constructs a reconciler. cache may be nil.
func New(intents IntentStore, ledger SlotLedger, customers CustomerStore, notifier Notifier, cache CacheInvalidator, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{
		intents:   intents,
		ledger:    ledger,
		customers: customers,
		notifier:  notifier,
		cache:     cache,
		log:       logger,
	}
}

// HandleCallback consumes one provider delivery.
func (rc *Reconciler) HandleCallback(ctx context.Context, payload []byte) (Result, error) {
	var cb Callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return Result{}, fmt.Errorf("parse callback: %w", err)
	}

	// A callback without an order_ref is a provider test or ping. Acknowledge
	// so the provider does not retry indefinitely; change nothing.
	if cb.OrderRef == "" {
		rc.log.Info().Msg("non-actionable callback without order_ref")
		metrics.IncWebhookProcessed("non_actionable")
		return Result{Received: true}, nil
	}

	intent, err := rc.intents.GetIntentByOrderRef(ctx, cb.OrderRef)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rc.log.Warn().Str("order_ref", cb.OrderRef).Msg("callback for unknown order")
			metrics.IncWebhookProcessed("unknown_order")
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownOrder, cb.OrderRef)
		}
		return Result{}, fmt.Errorf("lookup intent: %w", err)
	}

	newState, terminal := gateway.MapProviderStatus(cb.Status)
	if !terminal {
		// Unknown or in-flight provider status carries no verdict. Never
		// guess approval; acknowledge and wait for a terminal callback.
		rc.log.Info().
			Str("order_ref", cb.OrderRef).
			Str("status", cb.Status).
			Msg("non-terminal provider status, no transition")
		metrics.IncWebhookProcessed("non_terminal")
		return Result{Received: true}, nil
	}

	// Idempotent replay short-circuit.
	if intent.IsTerminal() && intent.WebhookReceivedAt != nil && intent.State == newState {
		metrics.IncWebhookProcessed("duplicate")
		rc.log.Info().Str("order_ref", cb.OrderRef).Str("state", newState).Msg("duplicate webhook delivery")
		return rc.replay(ctx, intent)
	}

	applied, intent, err := rc.intents.TransitionTerminal(ctx, cb.OrderRef, newState, string(cb.Metadata))
	if err != nil {
		if errors.Is(err, database.ErrConflictingTerminalState) {
			// Two different provider verdicts for one order. Data-integrity
			// anomaly: surface, never overwrite the first verdict.
			rc.notifier.NotifyVerdictConflict(intent, newState)
			metrics.IncWebhookProcessed("verdict_conflict")
			rc.log.Error().
				Str("order_ref", cb.OrderRef).
				Str("recorded", intent.State).
				Str("reported", newState).
				Msg("conflicting terminal verdicts")
			return Result{}, err
		}
		return Result{}, err
	}
	if !applied {
		// Another delivery won the CAS between our lookup and the update.
		metrics.IncWebhookProcessed("duplicate")
		return rc.replay(ctx, intent)
	}

	if newState != models.IntentApproved {
		// Rejected and expired payments never produce a reservation.
		metrics.IncWebhookProcessed(newState)
		rc.log.Info().Str("order_ref", cb.OrderRef).Str("state", newState).Msg("payment not approved")
		return Result{Received: true}, nil
	}

	return rc.commit(ctx, intent, false)
}

// replay re-runs the commit for an already-terminal approved intent. A
// crash between the state transition and the reservation insert leaves an
// approved intent without a reservation; the provider's retry must be able
// to finish the job. All commit steps are guarded, so a completed delivery
// replays as a pure no-op.
func (rc *Reconciler) replay(ctx context.Context, intent *models.PaymentIntent) (Result, error) {
	if intent.State != models.IntentApproved {
		return Result{Received: true, Duplicate: true}, nil
	}
	res, err := rc.commit(ctx, intent, true)
	if err != nil {
		return res, err
	}
	res.Duplicate = true
	return res, nil
}

// commit converts an approved intent into a confirmed reservation. The
// insert itself enforces slot uniqueness through the partial unique index;
// the earlier availability check was advisory and time has passed.
func (rc *Reconciler) commit(ctx context.Context, intent *models.PaymentIntent, isReplay bool) (Result, error) {
	customer, err := rc.customers.GetOrCreateCustomer(ctx, intent.Buyer)
	if err != nil {
		return Result{}, fmt.Errorf("resolve customer: %w", err)
	}

	reservation := &models.Reservation{
		ResourceID: intent.ResourceID,
		CustomerID: customer.ID,
		Date:       intent.Date,
		StartTime:  intent.StartTime,
		EndTime:    intent.EndTime,
		OrderRef:   intent.OrderRef,
	}

	err = rc.ledger.InsertConfirmedReservation(ctx, reservation)
	switch {
	case err == nil:
		if rc.cache != nil {
			rc.cache.Invalidate(ctx, reservation.Slot())
		}
		rc.notifier.NotifyConfirmed(intent, reservation)
		metrics.IncReservationCommitted()
		if !isReplay {
			metrics.IncWebhookProcessed("committed")
		}
		rc.log.Info().
			Str("order_ref", intent.OrderRef).
			Int64("reservation_id", reservation.ID).
			Int64("resource_id", intent.ResourceID).
			Str("date", intent.Date).
			Str("start_time", intent.StartTime).
			Msg("reservation committed")
		return Result{Received: true, Committed: true, ReservationID: reservation.ID}, nil

	case errors.Is(err, database.ErrDuplicateOrderRef):
		// This order already holds its reservation; nothing left to do.
		existing, lookupErr := rc.ledger.GetReservationByOrderRef(ctx, intent.OrderRef)
		if lookupErr != nil {
			return Result{}, fmt.Errorf("lookup existing reservation: %w", lookupErr)
		}
		return Result{Received: true, Committed: true, ReservationID: existing.ID}, nil

	case errors.Is(err, database.ErrSlotTaken):
		// Payment succeeded but the goods are gone: money was taken and no
		// reservation exists. Flag for compensation; never drop silently.
		metrics.IncSlotTakenConflict()
		if notifyErr := rc.notifier.NotifyConflict(ctx, intent, "slot taken at commit"); notifyErr != nil {
			// The durable refund flag could not be written. Fail the delivery
			// so the provider retries; NotifyConflict is idempotent.
			return Result{}, notifyErr
		}
		if !isReplay {
			metrics.IncWebhookProcessed("slot_taken")
		}
		return Result{Received: true, SlotTaken: true}, nil

	default:
		return Result{}, fmt.Errorf("insert reservation: %w", err)
	}
}
