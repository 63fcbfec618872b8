// Package notify raises the signals that follow a reconcile outcome:
// confirmation events for downstream collaborators and the refund-required
// flag when payment succeeded but the slot could not be delivered.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Latasoft/CitySoccer-sub001/internal/events"
	"github.com/Latasoft/CitySoccer-sub001/internal/metrics"
	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

// RefundLedger is the slice of storage holding the compensation trail.
type RefundLedger interface {
	RecordRefundRequired(ctx context.Context, intent *models.PaymentIntent, reason string) (bool, error)
}

// EventPublisher fans domain events out to subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Alerter pushes a message to the operator channel.
type Alerter interface {
	Alert(text string)
}

// Notifier records compensation flags and emits domain events. Event and
// alert delivery is fire-and-forget; only the durable refund record is part
// of the engine's correctness contract.
type Notifier struct {
	ledger  RefundLedger
	bus     EventPublisher
	alerter Alerter
	log     *zerolog.Logger
}

// New constructs a notifier. alerter may be nil when no operator channel is
// configured.
func New(ledger RefundLedger, bus EventPublisher, alerter Alerter, logger *zerolog.Logger) *Notifier {
	return &Notifier{ledger: ledger, bus: bus, alerter: alerter, log: logger}
}

// ConflictPayload is the refund-required event body.
type ConflictPayload struct {
	OrderRef   string      `json:"order_ref"`
	Amount     int64       `json:"amount"`
	Currency   string      `json:"currency"`
	BuyerEmail string      `json:"buyer_email"`
	Slot       models.Slot `json:"slot"`
	Reason     string      `json:"reason"`
}

// ConfirmedPayload is the booking-confirmed event body.
type ConfirmedPayload struct {
	OrderRef      string      `json:"order_ref"`
	ReservationID int64       `json:"reservation_id"`
	BuyerEmail    string      `json:"buyer_email"`
	Slot          models.Slot `json:"slot"`
}

// NotifyConflict flags a payment whose slot was lost at commit time. The
// refund record is durable and must never be dropped: a write failure is
// returned so the provider retries the webhook. Replays of an already
// recorded conflict are no-ops.
func (n *Notifier) NotifyConflict(ctx context.Context, intent *models.PaymentIntent, reason string) error {
	created, err := n.ledger.RecordRefundRequired(ctx, intent, reason)
	if err != nil {
		return fmt.Errorf("record refund required: %w", err)
	}
	if !created {
		n.log.Info().Str("order_ref", intent.OrderRef).Msg("refund already flagged, skipping notification")
		return nil
	}

	payload := ConflictPayload{
		OrderRef:   intent.OrderRef,
		Amount:     intent.Amount,
		Currency:   intent.Currency,
		BuyerEmail: intent.Buyer.Email,
		Slot:       intent.Slot(),
		Reason:     reason,
	}
	if err := n.bus.PublishJSON(events.TypeRefundRequired, payload); err != nil {
		n.log.Error().Err(err).Str("order_ref", intent.OrderRef).Msg("publish refund_required failed")
		metrics.IncNotifierSend("event_bus", "error")
	} else {
		metrics.IncNotifierSend("event_bus", "ok")
	}

	if n.alerter != nil {
		n.alerter.Alert(fmt.Sprintf(
			"⚠️ *Refund required*\nOrder: `%s`\nAmount: %d %s\nBuyer: %s\nSlot: court %d, %s %s\nReason: %s",
			intent.OrderRef, intent.Amount, intent.Currency, intent.Buyer.Email,
			intent.ResourceID, intent.Date, intent.StartTime, reason,
		))
		metrics.IncNotifierSend("telegram", "ok")
	}

	n.log.Error().
		Str("order_ref", intent.OrderRef).
		Int64("amount", intent.Amount).
		Str("buyer_email", intent.Buyer.Email).
		Int64("resource_id", intent.ResourceID).
		Str("date", intent.Date).
		Str("start_time", intent.StartTime).
		Msg("payment approved but slot taken; refund flagged")
	return nil
}

// NotifyConfirmed announces a committed reservation. Failures are logged
// only; downstream delivery must not roll back the reservation.
func (n *Notifier) NotifyConfirmed(intent *models.PaymentIntent, reservation *models.Reservation) {
	payload := ConfirmedPayload{
		OrderRef:      intent.OrderRef,
		ReservationID: reservation.ID,
		BuyerEmail:    intent.Buyer.Email,
		Slot:          reservation.Slot(),
	}
	if err := n.bus.PublishJSON(events.TypePaymentConfirmed, payload); err != nil {
		n.log.Error().Err(err).Str("order_ref", intent.OrderRef).Msg("publish payment.confirmed failed")
		metrics.IncNotifierSend("event_bus", "error")
	} else {
		metrics.IncNotifierSend("event_bus", "ok")
	}

	if n.alerter != nil {
		n.alerter.Alert(fmt.Sprintf(
			"✅ *Booking confirmed*\nOrder: `%s`\nBuyer: %s\nSlot: court %d, %s %s",
			intent.OrderRef, intent.Buyer.Email,
			reservation.ResourceID, reservation.Date, reservation.StartTime,
		))
		metrics.IncNotifierSend("telegram", "ok")
	}
}

// NotifyVerdictConflict escalates two diverging provider verdicts for one
// order. Never auto-resolved; an operator has to look.
func (n *Notifier) NotifyVerdictConflict(intent *models.PaymentIntent, reported string) {
	if n.alerter != nil {
		n.alerter.Alert(fmt.Sprintf(
			"🚨 *Conflicting payment verdicts*\nOrder: `%s`\nRecorded: %s\nProvider now reports: %s",
			intent.OrderRef, intent.State, reported,
		))
		metrics.IncNotifierSend("telegram", "ok")
	}
	_ = n.bus.PublishJSON(events.TypeVerdictConflict, map[string]string{
		"order_ref": intent.OrderRef,
		"recorded":  intent.State,
		"reported":  reported,
	})
}
