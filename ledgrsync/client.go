// Package ledgrsync implements the receipt synchronization pipeline: a
// durable upload queue drained sequentially by a remote commit coordinator,
// driven by connectivity transitions and enqueue events.
//
// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package ledgrsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/popand/ledgr"
)

// Committer executes the remote commit for one queue item. *Coordinator is
// the production implementation.
type Committer interface {
	Commit(ctx context.Context, commit *ledgr.PendingCommit) error
}

// CommitStore is the durable queue the client drains, plus the expense status
// writes the queue owns. *ledgrstore.Store implements it.
type CommitStore interface {
	EnqueueCommit(ctx context.Context, c *ledgr.PendingCommit) error
	NextPendingCommit(ctx context.Context) (*ledgr.PendingCommit, error)
	MarkCommitInFlight(ctx context.Context, id uuid.UUID) error
	CompleteCommit(ctx context.Context, id uuid.UUID) error
	FailCommit(ctx context.Context, id uuid.UUID, retryCount int, lastError string, terminal bool) error
	ResetCommit(ctx context.Context, id uuid.UUID) error
	DismissCommit(ctx context.Context, id uuid.UUID) error
	PendingCommitCount(ctx context.Context) (int, error)
	FailedCommits(ctx context.Context) ([]*ledgr.PendingCommit, error)
	RecoverInFlightCommits(ctx context.Context) (int, error)
	GetCommit(ctx context.Context, id uuid.UUID) (*ledgr.PendingCommit, error)
	SetExpenseSyncStatus(ctx context.Context, id uuid.UUID, status ledgr.SyncStatus) error
}

// Config holds configuration for the sync client.
type Config struct {
	// MaxRetries is the per-commit attempt ceiling before the commit is
	// marked permanently failed and surfaced for manual action.
	MaxRetries int
	Logger     *slog.Logger
}

// DefaultConfig returns the default sync client configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries: 3,
	}
}

// Client is the upload queue and its driver. Commits are processed strictly
// sequentially: at most one remote commit is in flight at any instant, which
// bounds load on the remote APIs and keeps the coordinator's session caches
// single-writer.
type Client struct {
	store     CommitStore
	committer Committer
	monitor   *Monitor
	config    *Config
	logger    *slog.Logger

	processing int32 // single-flight guard for ProcessAll
	kick       chan struct{}
}

// NewClient creates a sync client over the given queue store, committer and
// connectivity monitor. Commits left in the committing state by a previous
// process are recovered to pending.
func NewClient(store CommitStore, committer Committer, monitor *Monitor, config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries <= 0 {
		return nil, fmt.Errorf("config.MaxRetries must be positive")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		store:     store,
		committer: committer,
		monitor:   monitor,
		config:    config,
		logger:    logger,
		kick:      make(chan struct{}, 1),
	}
	if _, err := store.RecoverInFlightCommits(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Start launches the queue driver: it reacts to enqueue and retry events and
// to offline-to-online transitions, draining the queue once per trigger. No
// timer-based polling; strictly event-driven. Returns immediately.
func (c *Client) Start(ctx context.Context) {
	c.monitor.Subscribe(func(online bool) {
		if online {
			c.trigger()
		}
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.kick:
				if err := c.ProcessAll(ctx); err != nil {
					c.logger.Error("queue drain failed", "error", err)
				}
			}
		}
	}()
	c.trigger() // pick up commits recovered from a previous run
}

// trigger requests a drain; overlapping triggers collapse into one pass.
func (c *Client) trigger() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Online reports the current connectivity state for UI indication.
func (c *Client) Online() bool {
	return c.monitor.Online()
}

// Enqueue durably appends a commit for the expense and its receipt image,
// then triggers processing if currently online. The expense must already be
// saved locally.
func (c *Client) Enqueue(ctx context.Context, e *ledgr.Expense, image []byte) (*ledgr.PendingCommit, error) {
	commit := ledgr.NewPendingCommit(e, image)
	if err := c.store.EnqueueCommit(ctx, commit); err != nil {
		return nil, err
	}
	c.logger.Debug("commit enqueued", "commit", commit.ID, "expense", e.ID)
	if c.monitor.Online() {
		c.trigger()
	}
	return commit, nil
}

// ProcessAll drains the queue: while online, it repeatedly takes the oldest
// pending commit and runs it through the committer, until the pending set is
// exhausted or connectivity drops. Overlapping calls collapse; only one drain
// runs at a time.
//
// A failed commit returns to pending with its retry count incremented and is
// picked up again within the same pass; once the count reaches the ceiling it
// becomes permanently failed and is skipped until the user retries it.
func (c *Client) ProcessAll(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&c.processing, 0)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.monitor.Online() {
			return nil
		}

		commit, err := c.store.NextPendingCommit(ctx)
		if err != nil {
			return fmt.Errorf("failed to select next commit: %w", err)
		}
		if commit == nil {
			return nil
		}

		if err := c.store.MarkCommitInFlight(ctx, commit.ID); err != nil {
			return err
		}
		if err := c.store.SetExpenseSyncStatus(ctx, commit.Expense.ID, ledgr.SyncCommitting); err != nil {
			return err
		}

		err = c.committer.Commit(ctx, commit)
		if err == nil {
			if err := c.store.CompleteCommit(ctx, commit.ID); err != nil {
				return err
			}
			continue
		}

		commit.RetryCount++
		commit.LastError = err.Error()
		terminal := commit.RetryCount >= c.config.MaxRetries
		if ferr := c.store.FailCommit(ctx, commit.ID, commit.RetryCount, commit.LastError, terminal); ferr != nil {
			return ferr
		}
		if terminal {
			if serr := c.store.SetExpenseSyncStatus(ctx, commit.Expense.ID, ledgr.SyncFailed); serr != nil {
				return serr
			}
			c.logger.Warn("commit permanently failed",
				"commit", commit.ID, "expense", commit.Expense.ID,
				"retries", commit.RetryCount, "error", err)
		} else {
			if serr := c.store.SetExpenseSyncStatus(ctx, commit.Expense.ID, ledgr.SyncPending); serr != nil {
				return serr
			}
			c.logger.Debug("commit attempt failed, will retry",
				"commit", commit.ID, "attempt", commit.RetryCount, "error", err)
		}
	}
}

// Retry resets a permanently-failed commit to pending with a zeroed retry
// count and re-triggers processing.
func (c *Client) Retry(ctx context.Context, id uuid.UUID) error {
	if err := c.store.ResetCommit(ctx, id); err != nil {
		return err
	}
	commit, err := c.store.GetCommit(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.SetExpenseSyncStatus(ctx, commit.Expense.ID, ledgr.SyncPending); err != nil {
		return err
	}
	if c.monitor.Online() {
		c.trigger()
	}
	return nil
}

// Dismiss removes a permanently-failed commit without further action. The
// expense record stays, with its sync status left failed; data loss beyond
// that is explicit and user-initiated only.
func (c *Client) Dismiss(ctx context.Context, id uuid.UUID) error {
	return c.store.DismissCommit(ctx, id)
}

// PendingCount reports how many commits are waiting for or undergoing upload.
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	return c.store.PendingCommitCount(ctx)
}

// FailedCommits lists permanently-failed commits with their last errors.
func (c *Client) FailedCommits(ctx context.Context) ([]*ledgr.PendingCommit, error) {
	return c.store.FailedCommits(ctx)
}
