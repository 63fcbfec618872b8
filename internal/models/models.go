package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentIntent states. PENDING has exactly three successors; all of them
// are terminal and accept no further transition except idempotent replay.
const (
	IntentPending  = "pending"
	IntentApproved = "approved"
	IntentRejected = "rejected"
	IntentExpired  = "expired"
)

// Reservation states.
const (
	ReservationConfirmed = "confirmed"
	ReservationCancelled = "cancelled"
)

// Slot identifies one unit of bookable capacity: a court at a date and
// start time. Slots are not stored as rows; a slot is occupied when a
// non-cancelled reservation references it.
type Slot struct {
	ResourceID int64  `json:"resource_id"`
	Date       string `json:"date"`       // YYYY-MM-DD
	StartTime  string `json:"start_time"` // HH:MM
}

func (s Slot) String() string {
	return fmt.Sprintf("%d/%s/%s", s.ResourceID, s.Date, s.StartTime)
}

// Buyer is the contact data captured at payment-session creation.
// A Customer row is only materialized from it after payment approval.
type Buyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// PaymentIntent is the durable record of one payment attempt, independent
// of whether it ever resolves to a booking.
type PaymentIntent struct {
	OrderRef          string     `json:"order_ref"`
	Amount            int64      `json:"amount"` // minor units
	Currency          string     `json:"currency"`
	Buyer             Buyer      `json:"buyer"`
	ResourceID        int64      `json:"resource_id"`
	Date              string     `json:"date"`
	StartTime         string     `json:"start_time"`
	EndTime           string     `json:"end_time"`
	State             string     `json:"state"`
	GatewaySessionID  string     `json:"gateway_session_id,omitempty"`
	GatewayMetadata   string     `json:"gateway_metadata,omitempty"`
	WebhookReceivedAt *time.Time `json:"webhook_received_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Slot returns the slot this intent targets.
func (p *PaymentIntent) Slot() Slot {
	return Slot{ResourceID: p.ResourceID, Date: p.Date, StartTime: p.StartTime}
}

// IsTerminal reports whether the intent has left PENDING.
func (p *PaymentIntent) IsTerminal() bool {
	return IsTerminalState(p.State)
}

// IsTerminalState reports whether state is one of the terminal intent states.
func IsTerminalState(state string) bool {
	switch state {
	case IntentApproved, IntentRejected, IntentExpired:
		return true
	}
	return false
}

// Reservation represents a confirmed booking occupying a slot. Created only
// by the webhook reconciler upon payment approval, never speculatively.
type Reservation struct {
	ID         int64     `json:"id"`
	ResourceID int64     `json:"resource_id"`
	CustomerID int64     `json:"customer_id"`
	Date       string    `json:"date"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	OrderRef   string    `json:"order_ref"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Slot returns the slot this reservation occupies.
func (r *Reservation) Slot() Slot {
	return Slot{ResourceID: r.ResourceID, Date: r.Date, StartTime: r.StartTime}
}

// IsActive reports whether the reservation still occupies its slot.
func (r *Reservation) IsActive() bool {
	return r.Status != ReservationCancelled
}

// Customer is identified by contact email, looked up or created on the
// first approved payment for that email.
type Customer struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOrderRef generates a caller-side order reference. The millisecond
// timestamp keeps refs roughly monotonic; the uuid fragment makes
// collisions under concurrent creates practically impossible.
func NewOrderRef(now time.Time) string {
	return fmt.Sprintf("CS-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// ValidateSlot checks the wire formats of a slot's date and start time.
func ValidateSlot(date, startTime string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}
	if _, err := time.Parse("15:04", startTime); err != nil {
		return fmt.Errorf("invalid start_time format; expected HH:MM")
	}
	return nil
}
