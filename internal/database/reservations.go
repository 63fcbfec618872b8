package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

// InsertConfirmedReservation commits a reservation for an approved payment.
// The partial unique index on (resource_id, date, start_time) among
// non-cancelled rows enforces the at-most-one-booking-per-slot invariant;
// there is no separate check-then-insert. Two concurrent approved intents
// for the same slot race here and exactly one wins, the other gets
// ErrSlotTaken.
func (db *DB) InsertConfirmedReservation(ctx context.Context, r *models.Reservation) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO reservations (
			resource_id, customer_id, date, start_time, end_time,
			order_ref, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ResourceID, r.CustomerID, r.Date, r.StartTime, r.EndTime,
		r.OrderRef, models.ReservationConfirmed, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "order_ref") {
				return ErrDuplicateOrderRef
			}
			return ErrSlotTaken
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	r.Status = models.ReservationConfirmed
	r.CreatedAt = now
	return nil
}

// FindActiveReservation returns the non-cancelled reservation occupying a
// slot, or ErrNotFound when the slot is free.
func (db *DB) FindActiveReservation(ctx context.Context, slot models.Slot) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, resource_id, customer_id, date, start_time, end_time,
		       order_ref, status, created_at
		FROM reservations
		WHERE resource_id = ? AND date = ? AND start_time = ?
		AND status != ?
		LIMIT 1`,
		slot.ResourceID, slot.Date, slot.StartTime, models.ReservationCancelled)
	return scanReservation(row)
}

// GetReservationByOrderRef returns the reservation produced by an order.
func (db *DB) GetReservationByOrderRef(ctx context.Context, orderRef string) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, resource_id, customer_id, date, start_time, end_time,
		       order_ref, status, created_at
		FROM reservations
		WHERE order_ref = ?`, orderRef)
	return scanReservation(row)
}

// ListActiveReservationsOnDate returns non-cancelled reservations for a
// resource and date, ordered by start time. Backs the availability listing.
func (db *DB) ListActiveReservationsOnDate(ctx context.Context, resourceID int64, date string) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, resource_id, customer_id, date, start_time, end_time,
		       order_ref, status, created_at
		FROM reservations
		WHERE resource_id = ? AND date = ? AND status != ?
		ORDER BY start_time`,
		resourceID, date, models.ReservationCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

// CancelReservation marks a reservation cancelled. One way only; a
// cancelled reservation frees its slot and is never reactivated.
func (db *DB) CancelReservation(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE reservations SET status = ? WHERE id = ? AND status != ?`,
		models.ReservationCancelled, id, models.ReservationCancelled,
	)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
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

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	err := row.Scan(
		&r.ID, &r.ResourceID, &r.CustomerID, &r.Date, &r.StartTime, &r.EndTime,
		&r.OrderRef, &r.Status, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}
