package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

// RefundRecord is one row of the compensation ledger: money received for a
// slot that could not be delivered.
type RefundRecord struct {
	ID         int64     `json:"id"`
	OrderRef   string    `json:"order_ref"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	BuyerEmail string    `json:"buyer_email"`
	ResourceID int64     `json:"resource_id"`
	Date       string    `json:"date"`
	StartTime  string    `json:"start_time"`
	Reason     string    `json:"reason"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordRefundRequired writes the refund-required row for an intent that
// lost the slot race. Returns created=false when the row already exists,
// so a replayed conflict is flagged exactly once.
func (db *DB) RecordRefundRequired(ctx context.Context, intent *models.PaymentIntent, reason string) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO refund_required (
			order_ref, amount, currency, buyer_email,
			resource_id, date, start_time, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_ref) DO NOTHING`,
		intent.OrderRef, intent.Amount, intent.Currency, intent.Buyer.Email,
		intent.ResourceID, intent.Date, intent.StartTime, reason, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("record refund required: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListUnresolvedRefunds returns refund-required rows awaiting operator
// action, oldest first.
func (db *DB) ListUnresolvedRefunds(ctx context.Context) ([]RefundRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, order_ref, amount, currency, buyer_email,
		       resource_id, date, start_time, reason, resolved, created_at
		FROM refund_required
		WHERE resolved = 0
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RefundRecord
	for rows.Next() {
		var r RefundRecord
		if err := rows.Scan(
			&r.ID, &r.OrderRef, &r.Amount, &r.Currency, &r.BuyerEmail,
			&r.ResourceID, &r.Date, &r.StartTime, &r.Reason, &r.Resolved, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ResolveRefund marks a refund-required row handled by an operator.
func (db *DB) ResolveRefund(ctx context.Context, orderRef string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE refund_required SET resolved = 1 WHERE order_ref = ?", orderRef)
	if err != nil {
		return fmt.Errorf("resolve refund: %w", err)
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
