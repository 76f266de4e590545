// Package ledgrstore provides the durable local store for expenses and the
// pending-commit queue, backed by SQLite.
//
// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package ledgrstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/popand/ledgr"
)

// Store wraps a SQLite database holding the expense records and the pending
// commit queue. All write methods are safe for use from the single queue
// worker plus the CLI entry points; SQLite serializes the rest.
type Store struct {
	DB     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the ledgr database at path and bootstraps
// the schema. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway, and each ":memory:" connection is its
	// own database, so the pool must stay at one connection.
	db.SetMaxOpenConns(1)
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{DB: db, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) initialize() error {
	if _, err := s.DB.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.DB.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS expenses (
			id               TEXT PRIMARY KEY,
			merchant         TEXT NOT NULL,
			transaction_date TEXT NOT NULL,
			amount           REAL NOT NULL,
			currency         TEXT NOT NULL,
			line_items       TEXT,              -- JSON array
			payment_method   TEXT NOT NULL DEFAULT '',
			category         TEXT NOT NULL,
			notes            TEXT NOT NULL DEFAULT '',
			local_image_path TEXT NOT NULL DEFAULT '',
			drive_file_id    TEXT NOT NULL DEFAULT '',
			drive_file_url   TEXT NOT NULL DEFAULT '',
			sheets_row_id    INTEGER NOT NULL DEFAULT 0,
			sync_status      TEXT NOT NULL CHECK (sync_status IN ('pending','committing','complete','failed')),
			created_at       TEXT NOT NULL
		)`,

		// Durable upload queue. Rows survive process restarts; terminal
		// successes are deleted, terminal failures are retained until the
		// user retries or dismisses them.
		`CREATE TABLE IF NOT EXISTS pending_commits (
			id          TEXT PRIMARY KEY,
			expense_id  TEXT NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
			image       BLOB NOT NULL,
			status      TEXT NOT NULL CHECK (status IN ('pending','committing','permanently_failed')),
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error  TEXT NOT NULL DEFAULT '',
			queued_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	}
	for _, table := range tables {
		if _, err := s.DB.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// SaveExpense inserts or replaces an expense record.
func (s *Store) SaveExpense(ctx context.Context, e *ledgr.Expense) error {
	lineItems, err := json.Marshal(e.LineItems)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO expenses (
			id, merchant, transaction_date, amount, currency, line_items,
			payment_method, category, notes, local_image_path,
			drive_file_id, drive_file_url, sheets_row_id, sync_status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			merchant = excluded.merchant,
			transaction_date = excluded.transaction_date,
			amount = excluded.amount,
			currency = excluded.currency,
			line_items = excluded.line_items,
			payment_method = excluded.payment_method,
			category = excluded.category,
			notes = excluded.notes,
			local_image_path = excluded.local_image_path,
			drive_file_id = excluded.drive_file_id,
			drive_file_url = excluded.drive_file_url,
			sheets_row_id = excluded.sheets_row_id,
			sync_status = excluded.sync_status
	`,
		e.ID.String(), e.Merchant, e.Date.UTC().Format(time.RFC3339), e.Amount,
		e.Currency, string(lineItems), e.PaymentMethod, string(e.Category),
		e.Notes, e.LocalImagePath, e.DriveFileID, e.DriveFileURL,
		e.SheetsRowID, string(e.SyncStatus), e.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save expense: %w", err)
	}
	return nil
}

// GetExpense loads one expense by id, returning ledgr.ErrNotFound if absent.
func (s *Store) GetExpense(ctx context.Context, id uuid.UUID) (*ledgr.Expense, error) {
	row := s.DB.QueryRowContext(ctx, expenseColumns+` FROM expenses WHERE id = ?`, id.String())
	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("expense %s: %w", id, ledgr.ErrNotFound)
	}
	return e, err
}

// ListExpenses returns expenses newest-first, up to limit (0 means all).
func (s *Store) ListExpenses(ctx context.Context, limit int) ([]*ledgr.Expense, error) {
	query := expenseColumns + ` FROM expenses ORDER BY transaction_date DESC, created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var out []*ledgr.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteExpense removes an expense (and, via the FK cascade, any queued
// commit for it).
func (s *Store) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", id, ledgr.ErrNotFound)
	}
	return nil
}

// UpdateDriveRefs records the uploaded receipt's file id and shareable link.
// This runs as soon as the upload step succeeds so partial progress survives
// a later append failure.
func (s *Store) UpdateDriveRefs(ctx context.Context, id uuid.UUID, fileID, fileURL string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE expenses SET drive_file_id = ?, drive_file_url = ? WHERE id = ?
	`, fileID, fileURL, id.String())
	if err != nil {
		return fmt.Errorf("failed to update drive refs: %w", err)
	}
	return nil
}

// SetExpenseSyncStatus updates just the sync status column.
func (s *Store) SetExpenseSyncStatus(ctx context.Context, id uuid.UUID, status ledgr.SyncStatus) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE expenses SET sync_status = ? WHERE id = ?
	`, string(status), id.String())
	if err != nil {
		return fmt.Errorf("failed to set sync status: %w", err)
	}
	return nil
}

// MarkExpenseComplete atomically records the appended row id and flips the
// sync status to complete, preserving the invariant that the row id is set
// iff the record is complete.
func (s *Store) MarkExpenseComplete(ctx context.Context, id uuid.UUID, rowID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE expenses SET sheets_row_id = ?, sync_status = ? WHERE id = ?
	`, rowID, string(ledgr.SyncComplete), id.String())
	if err != nil {
		return fmt.Errorf("failed to mark expense complete: %w", err)
	}
	return nil
}

const expenseColumns = `SELECT id, merchant, transaction_date, amount, currency, line_items,
	payment_method, category, notes, local_image_path,
	drive_file_id, drive_file_url, sheets_row_id, sync_status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*ledgr.Expense, error) {
	var (
		idStr, dateStr, createdStr string
		lineItems                  sql.NullString
		category, status           string
		e                          ledgr.Expense
	)
	err := row.Scan(&idStr, &e.Merchant, &dateStr, &e.Amount, &e.Currency,
		&lineItems, &e.PaymentMethod, &category, &e.Notes, &e.LocalImagePath,
		&e.DriveFileID, &e.DriveFileURL, &e.SheetsRowID, &status, &createdStr)
	if err != nil {
		return nil, err
	}
	e.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expense id: %w", err)
	}
	e.Date, err = time.Parse(time.RFC3339, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction date: %w", err)
	}
	e.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if lineItems.Valid && lineItems.String != "" && lineItems.String != "null" {
		if err := json.Unmarshal([]byte(lineItems.String), &e.LineItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal line items: %w", err)
		}
	}
	e.Category = ledgr.Category(category)
	e.SyncStatus = ledgr.SyncStatus(status)
	return &e, nil
}
