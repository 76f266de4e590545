// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package ledgrstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/popand/ledgr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testExpense() *ledgr.Expense {
	e := ledgr.NewExpense("Blue Bottle Coffee", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), 12.50, "CAD")
	e.Category = ledgr.CategoryFoodAndDining
	e.PaymentMethod = "Visa"
	e.Notes = "team coffee"
	e.LineItems = []ledgr.LineItem{
		{Description: "Latte", Amount: 6.50},
		{Description: "Croissant", Amount: 6.00},
	}
	return e
}

func TestSaveAndGetExpense(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testExpense()
	require.NoError(t, s.SaveExpense(ctx, e))

	got, err := s.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, e.Merchant, got.Merchant)
	require.Equal(t, e.Amount, got.Amount)
	require.Equal(t, ledgr.CategoryFoodAndDining, got.Category)
	require.Equal(t, ledgr.SyncPending, got.SyncStatus)
	require.Equal(t, e.LineItems, got.LineItems)
	require.True(t, got.Date.Equal(e.Date))
}

func TestGetExpense_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetExpense(context.Background(), uuid.New())
	require.ErrorIs(t, err, ledgr.ErrNotFound)
}

func TestSaveExpense_Upsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testExpense()
	require.NoError(t, s.SaveExpense(ctx, e))

	e.Merchant = "Blue Bottle"
	e.Amount = 15.00
	require.NoError(t, s.SaveExpense(ctx, e))

	got, err := s.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, "Blue Bottle", got.Merchant)
	require.Equal(t, 15.00, got.Amount)

	list, err := s.ListExpenses(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestListExpenses_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := ledgr.NewExpense("Old", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 1, "CAD")
	newer := ledgr.NewExpense("New", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 2, "CAD")
	require.NoError(t, s.SaveExpense(ctx, older))
	require.NoError(t, s.SaveExpense(ctx, newer))

	list, err := s.ListExpenses(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "New", list[0].Merchant)

	list, err = s.ListExpenses(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestUpdateDriveRefsAndMarkComplete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testExpense()
	require.NoError(t, s.SaveExpense(ctx, e))

	require.NoError(t, s.UpdateDriveRefs(ctx, e.ID, "file-1", "https://drive.example/file-1"))
	got, err := s.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, "file-1", got.DriveFileID)
	require.Equal(t, "https://drive.example/file-1", got.DriveFileURL)
	// Drive refs alone must not flip the record to complete.
	require.Equal(t, ledgr.SyncPending, got.SyncStatus)
	require.Zero(t, got.SheetsRowID)

	require.NoError(t, s.MarkExpenseComplete(ctx, e.ID, 7))
	got, err = s.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7), got.SheetsRowID)
	require.Equal(t, ledgr.SyncComplete, got.SyncStatus)
}

func TestDeleteExpense(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testExpense()
	require.NoError(t, s.SaveExpense(ctx, e))
	require.NoError(t, s.DeleteExpense(ctx, e.ID))

	_, err := s.GetExpense(ctx, e.ID)
	require.ErrorIs(t, err, ledgr.ErrNotFound)
	require.ErrorIs(t, s.DeleteExpense(ctx, e.ID), ledgr.ErrNotFound)
}

func TestDeleteExpense_CascadesToQueue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testExpense()
	require.NoError(t, s.SaveExpense(ctx, e))
	require.NoError(t, s.EnqueueCommit(ctx, ledgr.NewPendingCommit(e, []byte("img"))))

	require.NoError(t, s.DeleteExpense(ctx, e.ID))

	n, err := s.PendingCommitCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestQueueLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testExpense()
	require.NoError(t, s.SaveExpense(ctx, e))
	commit := ledgr.NewPendingCommit(e, []byte("jpeg-bytes"))
	require.NoError(t, s.EnqueueCommit(ctx, commit))

	next, err := s.NextPendingCommit(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, commit.ID, next.ID)
	require.Equal(t, []byte("jpeg-bytes"), next.Image)
	require.Equal(t, e.ID, next.Expense.ID)

	require.NoError(t, s.MarkCommitInFlight(ctx, commit.ID))
	next, err = s.NextPendingCommit(ctx)
	require.NoError(t, err)
	require.Nil(t, next, "committing item must not be selectable")

	// Retryable failure goes back to pending.
	require.NoError(t, s.FailCommit(ctx, commit.ID, 1, "append row: HTTP 500", false))
	next, err = s.NextPendingCommit(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, 1, next.RetryCount)
	require.Equal(t, "append row: HTTP 500", next.LastError)

	// Terminal failure is retained but no longer eligible.
	require.NoError(t, s.FailCommit(ctx, commit.ID, 3, "append row: HTTP 500", true))
	next, err = s.NextPendingCommit(ctx)
	require.NoError(t, err)
	require.Nil(t, next)

	failed, err := s.FailedCommits(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, ledgr.CommitFailed, failed[0].Status)

	// Count includes pending+committing only.
	n, err := s.PendingCommitCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestQueueOrdering_OldestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := testExpense()
	second := testExpense()
	second.ID = uuid.New()
	require.NoError(t, s.SaveExpense(ctx, first))
	require.NoError(t, s.SaveExpense(ctx, second))

	c1 := ledgr.NewPendingCommit(first, []byte("a"))
	c1.QueuedAt = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	c2 := ledgr.NewPendingCommit(second, []byte("b"))
	c2.QueuedAt = time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, s.EnqueueCommit(ctx, c2))
	require.NoError(t, s.EnqueueCommit(ctx, c1))

	next, err := s.NextPendingCommit(ctx)
	require.NoError(t, err)
	require.Equal(t, c1.ID, next.ID)
}

func TestResetCommit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testExpense()
	require.NoError(t, s.SaveExpense(ctx, e))
	commit := ledgr.NewPendingCommit(e, []byte("img"))
	require.NoError(t, s.EnqueueCommit(ctx, commit))

	// Reset only applies to terminal failures.
	require.ErrorIs(t, s.ResetCommit(ctx, commit.ID), ledgr.ErrNotFound)

	require.NoError(t, s.FailCommit(ctx, commit.ID, 3, "upload image: HTTP 403", true))
	require.NoError(t, s.ResetCommit(ctx, commit.ID))

	got, err := s.GetCommit(ctx, commit.ID)
	require.NoError(t, err)
	require.Equal(t, ledgr.CommitPending, got.Status)
	require.Zero(t, got.RetryCount)
	require.Empty(t, got.LastError)
}

func TestDismissCommit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testExpense()
	require.NoError(t, s.SaveExpense(ctx, e))
	commit := ledgr.NewPendingCommit(e, []byte("img"))
	require.NoError(t, s.EnqueueCommit(ctx, commit))

	// Pending items cannot be dismissed.
	require.ErrorIs(t, s.DismissCommit(ctx, commit.ID), ledgr.ErrNotFound)

	require.NoError(t, s.FailCommit(ctx, commit.ID, 3, "boom", true))
	require.NoError(t, s.DismissCommit(ctx, commit.ID))

	_, err := s.GetCommit(ctx, commit.ID)
	require.ErrorIs(t, err, ledgr.ErrNotFound)

	// The expense record survives dismissal.
	_, err = s.GetExpense(ctx, e.ID)
	require.NoError(t, err)
}

func TestRecoverInFlightCommits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testExpense()
	require.NoError(t, s.SaveExpense(ctx, e))
	commit := ledgr.NewPendingCommit(e, []byte("img"))
	require.NoError(t, s.EnqueueCommit(ctx, commit))
	require.NoError(t, s.MarkCommitInFlight(ctx, commit.ID))

	n, err := s.RecoverInFlightCommits(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	next, err := s.NextPendingCommit(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, commit.ID, next.ID)
}

func TestSetExpenseSyncStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testExpense()
	require.NoError(t, s.SaveExpense(ctx, e))
	require.NoError(t, s.SetExpenseSyncStatus(ctx, e.ID, ledgr.SyncFailed))

	got, err := s.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, ledgr.SyncFailed, got.SyncStatus)
}

func TestErrNotFoundIsWrapped(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetCommit(context.Background(), uuid.New())
	require.Error(t, err)
	require.True(t, errors.Is(err, ledgr.ErrNotFound))
}
