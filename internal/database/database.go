package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Storage errors surfaced to the engine.
var (
	ErrNotFound                 = errors.New("not found")
	ErrDuplicateOrderRef        = errors.New("order_ref already exists")
	ErrSlotTaken                = errors.New("slot already reserved")
	ErrConflictingTerminalState = errors.New("conflicting terminal state")
)

// DB wraps sql.DB for the reservation engine.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations. WAL mode and a
// busy timeout let concurrent webhook deliveries serialize on the slot
// uniqueness index instead of failing with SQLITE_BUSY.
func NewDB(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Payment intents, keyed by caller-generated order_ref
		`CREATE TABLE IF NOT EXISTS payment_intents (
			order_ref TEXT PRIMARY KEY,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			buyer_name TEXT NOT NULL,
			buyer_email TEXT NOT NULL,
			buyer_phone TEXT,
			resource_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'pending',
			gateway_session_id TEXT,
			gateway_metadata TEXT,
			webhook_received_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Customers, materialized on first approved payment only
		`CREATE TABLE IF NOT EXISTS customers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			name TEXT,
			phone TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Reservations; the partial unique index below is the single
		// serialization point for the whole system
		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id INTEGER NOT NULL,
			customer_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			order_ref TEXT UNIQUE NOT NULL,
			status TEXT NOT NULL DEFAULT 'confirmed',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (customer_id) REFERENCES customers(id)
		)`,

		// Refund-required ledger, written when payment succeeded but the
		// slot was lost; unique on order_ref so a conflict is flagged once
		`CREATE TABLE IF NOT EXISTS refund_required (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_ref TEXT UNIQUE NOT NULL,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			buyer_email TEXT NOT NULL,
			resource_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			reason TEXT NOT NULL,
			resolved BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_slot
			ON reservations(resource_id, date, start_time)
			WHERE status != 'cancelled'`,
		`CREATE INDEX IF NOT EXISTS idx_intents_state ON payment_intents(state)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_slot ON payment_intents(resource_id, date, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_refunds_unresolved ON refund_required(resolved)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
