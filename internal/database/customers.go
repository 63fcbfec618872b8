package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

// GetOrCreateCustomer looks up a customer by email, creating the row on
// first approved payment. The upsert keeps replays and concurrent approvals
// for the same buyer from producing duplicate rows.
func (db *DB) GetOrCreateCustomer(ctx context.Context, buyer models.Buyer) (*models.Customer, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO customers (email, name, phone, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone`,
		buyer.Email, buyer.Name, buyer.Phone, time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}
	return db.GetCustomerByEmail(ctx, buyer.Email)
}

// GetCustomerByEmail returns the customer for email or ErrNotFound.
func (db *DB) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var c models.Customer
	var name, phone sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, email, name, phone, created_at
		FROM customers
		WHERE email = ?`, email,
	).Scan(&c.ID, &c.Email, &name, &phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if name.Valid {
		c.Name = name.String
	}
	if phone.Valid {
		c.Phone = phone.String
	}
	return &c, nil
}
