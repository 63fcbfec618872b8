package notify

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Latasoft/CitySoccer-sub001/internal/events"
	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

type fakeLedger struct {
	created bool
	err     error
	calls   int
}

func (f *fakeLedger) RecordRefundRequired(_ context.Context, _ *models.PaymentIntent, _ string) (bool, error) {
	f.calls++
	return f.created, f.err
}

type fakeBus struct {
	published []string
	err       error
}

func (f *fakeBus) PublishJSON(eventType string, _ any) error {
	f.published = append(f.published, eventType)
	return f.err
}

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) Alert(text string) {
	f.alerts = append(f.alerts, text)
}

func testIntent() *models.PaymentIntent {
	return &models.PaymentIntent{
		OrderRef:   "CS-1-test",
		Amount:     30000,
		Currency:   "CLP",
		Buyer:      models.Buyer{Name: "Ana Rojas", Email: "ana@example.com"},
		ResourceID: 5,
		Date:       "2025-03-01",
		StartTime:  "18:00",
		EndTime:    "19:00",
		State:      models.IntentApproved,
	}
}

func newTestNotifier(ledger *fakeLedger, bus *fakeBus, alerter Alerter) *Notifier {
	logger := zerolog.New(io.Discard)
	return New(ledger, bus, alerter, &logger)
}

func TestNotifyConflict(t *testing.T) {
	ledger := &fakeLedger{created: true}
	bus := &fakeBus{}
	alerter := &fakeAlerter{}
	n := newTestNotifier(ledger, bus, alerter)

	require.NoError(t, n.NotifyConflict(context.Background(), testIntent(), "slot taken at commit"))

	assert.Equal(t, []string{events.TypeRefundRequired}, bus.published)
	require.Len(t, alerter.alerts, 1)
	assert.Contains(t, alerter.alerts[0], "CS-1-test")
	assert.Contains(t, alerter.alerts[0], "Refund required")
}

func TestNotifyConflict_AlreadyFlaggedSkipsSignals(t *testing.T) {
	ledger := &fakeLedger{created: false}
	bus := &fakeBus{}
	alerter := &fakeAlerter{}
	n := newTestNotifier(ledger, bus, alerter)

	require.NoError(t, n.NotifyConflict(context.Background(), testIntent(), "slot taken at commit"))

	assert.Empty(t, bus.published)
	assert.Empty(t, alerter.alerts)
}

func TestNotifyConflict_LedgerFailurePropagates(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("disk full")}
	bus := &fakeBus{}
	n := newTestNotifier(ledger, bus, nil)

	err := n.NotifyConflict(context.Background(), testIntent(), "slot taken at commit")
	require.Error(t, err)
	// Nothing may be announced while the durable flag is missing.
	assert.Empty(t, bus.published)
}

func TestNotifyConflict_BusFailureDoesNotFail(t *testing.T) {
	ledger := &fakeLedger{created: true}
	bus := &fakeBus{err: errors.New("broker down")}
	n := newTestNotifier(ledger, bus, nil)

	assert.NoError(t, n.NotifyConflict(context.Background(), testIntent(), "slot taken at commit"))
}

func TestNotifyConfirmed(t *testing.T) {
	bus := &fakeBus{}
	alerter := &fakeAlerter{}
	n := newTestNotifier(&fakeLedger{}, bus, alerter)

	n.NotifyConfirmed(testIntent(), &models.Reservation{ID: 42, ResourceID: 5, Date: "2025-03-01", StartTime: "18:00"})

	assert.Equal(t, []string{events.TypePaymentConfirmed}, bus.published)
	require.Len(t, alerter.alerts, 1)
	assert.Contains(t, alerter.alerts[0], "Booking confirmed")
}

func TestNotifyVerdictConflict(t *testing.T) {
	bus := &fakeBus{}
	alerter := &fakeAlerter{}
	n := newTestNotifier(&fakeLedger{}, bus, alerter)

	n.NotifyVerdictConflict(testIntent(), models.IntentRejected)

	assert.Equal(t, []string{events.TypeVerdictConflict}, bus.published)
	require.Len(t, alerter.alerts, 1)
	assert.Contains(t, alerter.alerts[0], "Conflicting payment verdicts")
}
