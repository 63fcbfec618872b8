package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testIntent(orderRef string) *models.PaymentIntent {
	return &models.PaymentIntent{
		OrderRef:   orderRef,
		Amount:     30000,
		Currency:   "CLP",
		Buyer:      models.Buyer{Name: "Ana Rojas", Email: "ana@example.com", Phone: "+56911112222"},
		ResourceID: 5,
		Date:       "2025-03-01",
		StartTime:  "18:00",
		EndTime:    "19:00",
	}
}

func TestCreateIntent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	intent := testIntent("CS-100-aaaa")
	require.NoError(t, db.CreateIntent(ctx, intent))
	assert.Equal(t, models.IntentPending, intent.State)

	got, err := db.GetIntentByOrderRef(ctx, "CS-100-aaaa")
	require.NoError(t, err)
	assert.Equal(t, models.IntentPending, got.State)
	assert.Equal(t, int64(30000), got.Amount)
	assert.Equal(t, "ana@example.com", got.Buyer.Email)
	assert.Nil(t, got.WebhookReceivedAt)
}

func TestCreateIntent_DuplicateOrderRef(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateIntent(ctx, testIntent("CS-100-aaaa")))
	err := db.CreateIntent(ctx, testIntent("CS-100-aaaa"))
	assert.ErrorIs(t, err, ErrDuplicateOrderRef)
}

func TestGetIntentByOrderRef_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetIntentByOrderRef(context.Background(), "CS-999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetGatewaySession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateIntent(ctx, testIntent("CS-100-aaaa")))
	require.NoError(t, db.SetGatewaySession(ctx, "CS-100-aaaa", "sess_123"))

	got, err := db.GetIntentByOrderRef(ctx, "CS-100-aaaa")
	require.NoError(t, err)
	assert.Equal(t, "sess_123", got.GatewaySessionID)

	assert.ErrorIs(t, db.SetGatewaySession(ctx, "CS-missing", "sess_x"), ErrNotFound)
}

func TestTransitionTerminal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateIntent(ctx, testIntent("CS-100-aaaa")))

	applied, intent, err := db.TransitionTerminal(ctx, "CS-100-aaaa", models.IntentApproved, `{"auth":"ok"}`)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.IntentApproved, intent.State)
	require.NotNil(t, intent.WebhookReceivedAt)
	assert.Equal(t, `{"auth":"ok"}`, intent.GatewayMetadata)
}

func TestTransitionTerminal_ReplaySameState(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateIntent(ctx, testIntent("CS-100-aaaa")))
	_, _, err := db.TransitionTerminal(ctx, "CS-100-aaaa", models.IntentApproved, "")
	require.NoError(t, err)

	applied, intent, err := db.TransitionTerminal(ctx, "CS-100-aaaa", models.IntentApproved, "")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.IntentApproved, intent.State)
}

func TestTransitionTerminal_ConflictingVerdicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateIntent(ctx, testIntent("CS-100-aaaa")))
	_, _, err := db.TransitionTerminal(ctx, "CS-100-aaaa", models.IntentApproved, "")
	require.NoError(t, err)

	applied, intent, err := db.TransitionTerminal(ctx, "CS-100-aaaa", models.IntentRejected, "")
	assert.ErrorIs(t, err, ErrConflictingTerminalState)
	assert.False(t, applied)
	// The first verdict stays.
	assert.Equal(t, models.IntentApproved, intent.State)
}

func TestTransitionTerminal_RejectsNonTerminalTarget(t *testing.T) {
	db := newTestDB(t)
	_, _, err := db.TransitionTerminal(context.Background(), "CS-100-aaaa", models.IntentPending, "")
	assert.Error(t, err)
}

func TestExpirePendingIntentsBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := testIntent("CS-1-old")
	require.NoError(t, db.CreateIntent(ctx, old))

	approved := testIntent("CS-2-approved")
	approved.StartTime = "19:00"
	require.NoError(t, db.CreateIntent(ctx, approved))
	_, _, err := db.TransitionTerminal(ctx, "CS-2-approved", models.IntentApproved, "")
	require.NoError(t, err)

	n, err := db.ExpirePendingIntentsBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetIntentByOrderRef(ctx, "CS-1-old")
	require.NoError(t, err)
	assert.Equal(t, models.IntentExpired, got.State)

	// The sweep never touches a terminal intent.
	got, err = db.GetIntentByOrderRef(ctx, "CS-2-approved")
	require.NoError(t, err)
	assert.Equal(t, models.IntentApproved, got.State)
}

func TestExpirePendingIntentsBefore_KeepsRecentPending(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateIntent(ctx, testIntent("CS-1-fresh")))

	n, err := db.ExpirePendingIntentsBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func mustCustomer(t *testing.T, db *DB, email string) *models.Customer {
	t.Helper()
	c, err := db.GetOrCreateCustomer(context.Background(), models.Buyer{Name: "Test", Email: email})
	require.NoError(t, err)
	return c
}

func TestInsertConfirmedReservation_SlotTaken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	customer := mustCustomer(t, db, "ana@example.com")

	first := &models.Reservation{
		ResourceID: 5, CustomerID: customer.ID,
		Date: "2025-03-01", StartTime: "18:00", EndTime: "19:00",
		OrderRef: "CS-1-first",
	}
	require.NoError(t, db.InsertConfirmedReservation(ctx, first))
	assert.NotZero(t, first.ID)

	second := &models.Reservation{
		ResourceID: 5, CustomerID: customer.ID,
		Date: "2025-03-01", StartTime: "18:00", EndTime: "19:00",
		OrderRef: "CS-2-second",
	}
	assert.ErrorIs(t, db.InsertConfirmedReservation(ctx, second), ErrSlotTaken)
}

func TestInsertConfirmedReservation_DuplicateOrderRef(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	customer := mustCustomer(t, db, "ana@example.com")

	r := &models.Reservation{
		ResourceID: 5, CustomerID: customer.ID,
		Date: "2025-03-01", StartTime: "18:00", EndTime: "19:00",
		OrderRef: "CS-1-first",
	}
	require.NoError(t, db.InsertConfirmedReservation(ctx, r))

	// Same order, different slot: the order_ref constraint fires, not the
	// slot index.
	replay := &models.Reservation{
		ResourceID: 5, CustomerID: customer.ID,
		Date: "2025-03-01", StartTime: "20:00", EndTime: "21:00",
		OrderRef: "CS-1-first",
	}
	assert.ErrorIs(t, db.InsertConfirmedReservation(ctx, replay), ErrDuplicateOrderRef)
}

func TestInsertConfirmedReservation_CancelledFreesSlot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	customer := mustCustomer(t, db, "ana@example.com")

	first := &models.Reservation{
		ResourceID: 5, CustomerID: customer.ID,
		Date: "2025-03-01", StartTime: "18:00", EndTime: "19:00",
		OrderRef: "CS-1-first",
	}
	require.NoError(t, db.InsertConfirmedReservation(ctx, first))
	require.NoError(t, db.CancelReservation(ctx, first.ID))

	second := &models.Reservation{
		ResourceID: 5, CustomerID: customer.ID,
		Date: "2025-03-01", StartTime: "18:00", EndTime: "19:00",
		OrderRef: "CS-2-second",
	}
	assert.NoError(t, db.InsertConfirmedReservation(ctx, second))
}

func TestInsertConfirmedReservation_ConcurrentRace(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	customer := mustCustomer(t, db, "ana@example.com")

	const writers = 2
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := &models.Reservation{
				ResourceID: 5, CustomerID: customer.ID,
				Date: "2025-03-01", StartTime: "18:00", EndTime: "19:00",
				OrderRef: models.NewOrderRef(time.Now()),
			}
			errs[i] = db.InsertConfirmedReservation(ctx, r)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case assert.ErrorIs(t, err, ErrSlotTaken):
			lost++
		}
	}
	assert.Equal(t, 1, won, "exactly one writer must win the slot")
	assert.Equal(t, writers-1, lost)
}

func TestFindActiveReservation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	customer := mustCustomer(t, db, "ana@example.com")

	slot := models.Slot{ResourceID: 5, Date: "2025-03-01", StartTime: "18:00"}
	_, err := db.FindActiveReservation(ctx, slot)
	assert.ErrorIs(t, err, ErrNotFound)

	r := &models.Reservation{
		ResourceID: 5, CustomerID: customer.ID,
		Date: "2025-03-01", StartTime: "18:00", EndTime: "19:00",
		OrderRef: "CS-1-first",
	}
	require.NoError(t, db.InsertConfirmedReservation(ctx, r))

	found, err := db.FindActiveReservation(ctx, slot)
	require.NoError(t, err)
	assert.Equal(t, r.ID, found.ID)

	require.NoError(t, db.CancelReservation(ctx, r.ID))
	_, err = db.FindActiveReservation(ctx, slot)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrCreateCustomer_Upsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.GetOrCreateCustomer(ctx, models.Buyer{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)

	second, err := db.GetOrCreateCustomer(ctx, models.Buyer{Name: "Ana Rojas", Email: "ana@example.com", Phone: "+56911112222"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ana Rojas", second.Name)
	assert.Equal(t, "+56911112222", second.Phone)
}

func TestRecordRefundRequired_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	intent := testIntent("CS-1-conflict")

	created, err := db.RecordRefundRequired(ctx, intent, "slot taken at commit")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = db.RecordRefundRequired(ctx, intent, "slot taken at commit")
	require.NoError(t, err)
	assert.False(t, created)

	records, err := db.ListUnresolvedRefunds(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CS-1-conflict", records[0].OrderRef)
	assert.Equal(t, int64(30000), records[0].Amount)
}

func TestResolveRefund(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.RecordRefundRequired(ctx, testIntent("CS-1-conflict"), "slot taken at commit")
	require.NoError(t, err)

	require.NoError(t, db.ResolveRefund(ctx, "CS-1-conflict"))

	records, err := db.ListUnresolvedRefunds(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.ErrorIs(t, db.ResolveRefund(ctx, "CS-missing"), ErrNotFound)
}
