package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

// CreateIntent records a pending payment attempt. Fails with
// ErrDuplicateOrderRef if the order_ref is already taken.
func (db *DB) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO payment_intents (
			order_ref, amount, currency, buyer_name, buyer_email, buyer_phone,
			resource_id, date, start_time, end_time, state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.OrderRef, intent.Amount, intent.Currency,
		intent.Buyer.Name, intent.Buyer.Email, intent.Buyer.Phone,
		intent.ResourceID, intent.Date, intent.StartTime, intent.EndTime,
		models.IntentPending, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrderRef
		}
		return fmt.Errorf("create intent: %w", err)
	}
	intent.State = models.IntentPending
	intent.CreatedAt = now
	intent.UpdatedAt = now
	return nil
}

// GetIntentByOrderRef returns the intent for order_ref or ErrNotFound.
func (db *DB) GetIntentByOrderRef(ctx context.Context, orderRef string) (*models.PaymentIntent, error) {
	row := db.QueryRowContext(ctx, `
		SELECT order_ref, amount, currency, buyer_name, buyer_email, buyer_phone,
		       resource_id, date, start_time, end_time, state,
		       gateway_session_id, gateway_metadata, webhook_received_at,
		       created_at, updated_at
		FROM payment_intents
		WHERE order_ref = ?`, orderRef)
	return scanIntent(row)
}

// SetGatewaySession persists the provider session id onto a pending intent.
// Called before CreateCheckoutSession returns, so an intent is never left
// pending without a gateway reference.
func (db *DB) SetGatewaySession(ctx context.Context, orderRef, sessionID string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE payment_intents
		SET gateway_session_id = ?, updated_at = ?
		WHERE order_ref = ?`,
		sessionID, time.Now(), orderRef,
	)
	if err != nil {
		return fmt.Errorf("set gateway session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionTerminal moves an intent out of PENDING with an atomic
// compare-and-set. Returns applied=false without error when the intent is
// already in newState (idempotent replay). A terminal intent in a different
// state fails with ErrConflictingTerminalState; two diverging provider
// verdicts for one order must be surfaced, never overwritten.
func (db *DB) TransitionTerminal(ctx context.Context, orderRef, newState, gatewayMetadata string) (bool, *models.PaymentIntent, error) {
	if !models.IsTerminalState(newState) {
		return false, nil, fmt.Errorf("transition to non-terminal state %q", newState)
	}

	now := time.Now()
	res, err := db.ExecContext(ctx, `
		UPDATE payment_intents
		SET state = ?, gateway_metadata = ?, webhook_received_at = ?, updated_at = ?
		WHERE order_ref = ? AND state = ?`,
		newState, gatewayMetadata, now, now, orderRef, models.IntentPending,
	)
	if err != nil {
		return false, nil, fmt.Errorf("transition terminal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil, err
	}

	intent, err := db.GetIntentByOrderRef(ctx, orderRef)
	if err != nil {
		return false, nil, err
	}

	if n == 1 {
		return true, intent, nil
	}
	if intent.State == newState {
		// Replay of an already-applied verdict.
		return false, intent, nil
	}
	return false, intent, fmt.Errorf("%w: intent %s is %s, provider reported %s",
		ErrConflictingTerminalState, orderRef, intent.State, newState)
}

// ExpirePendingIntentsBefore marks intents still pending since before the
// cutoff as expired, via the same CAS the webhook path uses. A webhook that
// already flipped the intent wins; the sweep skips it quietly.
func (db *DB) ExpirePendingIntentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		UPDATE payment_intents
		SET state = ?, updated_at = ?
		WHERE state = ? AND created_at < ?`,
		models.IntentExpired, now, models.IntentPending, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("expire pending intents: %w", err)
	}
	return res.RowsAffected()
}

// ListIntentsByState returns the most recent intents in the given state.
func (db *DB) ListIntentsByState(ctx context.Context, state string, limit int) ([]models.PaymentIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT order_ref, amount, currency, buyer_name, buyer_email, buyer_phone,
		       resource_id, date, start_time, end_time, state,
		       gateway_session_id, gateway_metadata, webhook_received_at,
		       created_at, updated_at
		FROM payment_intents
		WHERE state = ?
		ORDER BY created_at DESC
		LIMIT ?`, state, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []models.PaymentIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *intent)
	}
	return intents, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*models.PaymentIntent, error) {
	var p models.PaymentIntent
	var phone, sessionID, metadata sql.NullString
	var webhookAt sql.NullTime
	err := row.Scan(
		&p.OrderRef, &p.Amount, &p.Currency,
		&p.Buyer.Name, &p.Buyer.Email, &phone,
		&p.ResourceID, &p.Date, &p.StartTime, &p.EndTime, &p.State,
		&sessionID, &metadata, &webhookAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if phone.Valid {
		p.Buyer.Phone = phone.String
	}
	if sessionID.Valid {
		p.GatewaySessionID = sessionID.String
	}
	if metadata.Valid {
		p.GatewayMetadata = metadata.String
	}
	if webhookAt.Valid {
		t := webhookAt.Time
		p.WebhookReceivedAt = &t
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
