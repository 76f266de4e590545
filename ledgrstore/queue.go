// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package ledgrstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/popand/ledgr"
)

// EnqueueCommit appends a pending commit to the durable queue. The wrapped
// expense must already be saved.
func (s *Store) EnqueueCommit(ctx context.Context, c *ledgr.PendingCommit) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO pending_commits (id, expense_id, image, status, retry_count, last_error, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID.String(), c.Expense.ID.String(), c.Image, string(c.Status),
		c.RetryCount, c.LastError, c.QueuedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to enqueue commit: %w", err)
	}
	return nil
}

// NextPendingCommit returns the oldest commit still in pending state, with its
// expense loaded, or (nil, nil) when the queue has no eligible items.
func (s *Store) NextPendingCommit(ctx context.Context) (*ledgr.PendingCommit, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, expense_id, image, status, retry_count, last_error, queued_at
		FROM pending_commits
		WHERE status = 'pending'
		ORDER BY queued_at
		LIMIT 1
	`)
	c, err := s.scanCommit(ctx, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetCommit loads one pending commit by id.
func (s *Store) GetCommit(ctx context.Context, id uuid.UUID) (*ledgr.PendingCommit, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, expense_id, image, status, retry_count, last_error, queued_at
		FROM pending_commits WHERE id = ?
	`, id.String())
	c, err := s.scanCommit(ctx, row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("commit %s: %w", id, ledgr.ErrNotFound)
	}
	return c, err
}

// MarkCommitInFlight transitions a commit to the committing state.
func (s *Store) MarkCommitInFlight(ctx context.Context, id uuid.UUID) error {
	return s.setCommitStatus(ctx, id, ledgr.CommitInFlight)
}

// CompleteCommit removes a successfully committed item from the queue.
func (s *Store) CompleteCommit(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM pending_commits WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to complete commit: %w", err)
	}
	return nil
}

// FailCommit records one failed attempt. Terminal failures are retained with
// their last error for operator action; retryable ones return to pending.
func (s *Store) FailCommit(ctx context.Context, id uuid.UUID, retryCount int, lastError string, terminal bool) error {
	status := ledgr.CommitPending
	if terminal {
		status = ledgr.CommitFailed
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE pending_commits SET status = ?, retry_count = ?, last_error = ? WHERE id = ?
	`, string(status), retryCount, lastError, id.String())
	if err != nil {
		return fmt.Errorf("failed to record commit failure: %w", err)
	}
	return nil
}

// ResetCommit returns a permanently-failed commit to the pending state with a
// zeroed retry count. Returns ledgr.ErrNotFound if the commit is missing or
// not in the failed state.
func (s *Store) ResetCommit(ctx context.Context, id uuid.UUID) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE pending_commits
		SET status = 'pending', retry_count = 0, last_error = ''
		WHERE id = ? AND status = 'permanently_failed'
	`, id.String())
	if err != nil {
		return fmt.Errorf("failed to reset commit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed commit %s: %w", id, ledgr.ErrNotFound)
	}
	return nil
}

// DismissCommit removes a permanently-failed commit without further action.
// Returns ledgr.ErrNotFound if the commit is missing or not terminal.
func (s *Store) DismissCommit(ctx context.Context, id uuid.UUID) error {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM pending_commits WHERE id = ? AND status = 'permanently_failed'
	`, id.String())
	if err != nil {
		return fmt.Errorf("failed to dismiss commit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed commit %s: %w", id, ledgr.ErrNotFound)
	}
	return nil
}

// PendingCommitCount counts items waiting for or undergoing upload.
func (s *Store) PendingCommitCount(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_commits WHERE status IN ('pending','committing')
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending commits: %w", err)
	}
	return n, nil
}

// FailedCommits lists permanently-failed commits, oldest first.
func (s *Store) FailedCommits(ctx context.Context) ([]*ledgr.PendingCommit, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, expense_id, image, status, retry_count, last_error, queued_at
		FROM pending_commits
		WHERE status = 'permanently_failed'
		ORDER BY queued_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed commits: %w", err)
	}
	defer rows.Close()

	var out []*ledgr.PendingCommit
	for rows.Next() {
		c, err := s.scanCommit(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecoverInFlightCommits demotes commits left in the committing state by a
// crashed process back to pending so the next drain re-runs them. Returns the
// number of recovered commits.
func (s *Store) RecoverInFlightCommits(ctx context.Context) (int, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE pending_commits SET status = 'pending' WHERE status = 'committing'
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to recover in-flight commits: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("recovered in-flight commits from previous run", "count", n)
	}
	return int(n), nil
}

func (s *Store) setCommitStatus(ctx context.Context, id uuid.UUID, status ledgr.CommitStatus) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE pending_commits SET status = ? WHERE id = ?
	`, string(status), id.String())
	if err != nil {
		return fmt.Errorf("failed to set commit status: %w", err)
	}
	return nil
}

func (s *Store) scanCommit(ctx context.Context, row rowScanner) (*ledgr.PendingCommit, error) {
	var (
		idStr, expenseIDStr, status, queuedStr string
		c                                      ledgr.PendingCommit
	)
	err := row.Scan(&idStr, &expenseIDStr, &c.Image, &status, &c.RetryCount, &c.LastError, &queuedStr)
	if err != nil {
		return nil, err
	}
	c.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse commit id: %w", err)
	}
	expenseID, err := uuid.Parse(expenseIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse commit expense id: %w", err)
	}
	c.QueuedAt, err = time.Parse(time.RFC3339Nano, queuedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse queued_at: %w", err)
	}
	c.Status = ledgr.CommitStatus(status)
	c.Expense, err = s.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit expense: %w", err)
	}
	return &c, nil
}
