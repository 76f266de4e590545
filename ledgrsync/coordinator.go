// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package ledgrsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/popand/ledgr"
)

// TokenSource supplies a bearer token for remote calls. The coordinator
// fetches a fresh token at the top of every attempt; any caching across
// attempts is the source's own business.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// BlobStore uploads and deletes receipt images under a logical folder.
type BlobStore interface {
	EnsureFolder(ctx context.Context, token string) (string, error)
	UploadReceipt(ctx context.Context, image []byte, name, folderID, token string) (fileID, webLink string, err error)
	DeleteFile(ctx context.Context, fileID, token string) error
}

// TabularStore appends and deletes expense rows in a remote table, creating
// the table (with its header row) on first use.
type TabularStore interface {
	EnsureSpreadsheet(ctx context.Context, token string) (string, error)
	AppendExpense(ctx context.Context, e *ledgr.Expense, receiptLink, spreadsheetID, token string) (rowID int64, err error)
	DeleteExpenseRow(ctx context.Context, e *ledgr.Expense, spreadsheetID, token string) error
}

// RecordStore is the slice of local storage the coordinator writes remote
// progress back to.
type RecordStore interface {
	UpdateDriveRefs(ctx context.Context, id uuid.UUID, fileID, fileURL string) error
	MarkExpenseComplete(ctx context.Context, id uuid.UUID, rowID int64) error
	SetExpenseSyncStatus(ctx context.Context, id uuid.UUID, status ledgr.SyncStatus) error
}

// CommitStep identifies which part of the remote commit protocol failed.
type CommitStep string

const (
	StepFetchToken   CommitStep = "fetch token"
	StepEnsureFolder CommitStep = "ensure folder"
	StepUploadImage  CommitStep = "upload image"
	StepEnsureSheet  CommitStep = "ensure spreadsheet"
	StepAppendRow    CommitStep = "append row"
)

// StepError wraps a commit step failure with the step that produced it.
type StepError struct {
	Step CommitStep
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Coordinator executes the ordered remote commit for one pending commit:
// ensure folder, upload image, ensure spreadsheet, append row. Both the
// immediate "save and upload" path and the deferred queue path run through
// here; the queue is just a coordinator invocation deferred and retried.
//
// The folder and spreadsheet ids are session caches resolved lazily on first
// use. They are read and written only by the single queue worker, so they
// need no locking under the sequential processing model.
type Coordinator struct {
	tokens  TokenSource
	blobs   BlobStore
	sheets  TabularStore
	records RecordStore
	logger  *slog.Logger

	folderID      string
	spreadsheetID string
}

// NewCoordinator wires a coordinator to its collaborators.
func NewCoordinator(tokens TokenSource, blobs BlobStore, sheets TabularStore, records RecordStore, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		tokens:  tokens,
		blobs:   blobs,
		sheets:  sheets,
		records: records,
		logger:  logger,
	}
}

// Commit runs the four-step protocol for one pending commit. Any step's
// failure aborts the remaining steps and is returned wrapped in a StepError;
// partial progress (an uploaded image) is preserved on the record, not rolled
// back, and a retried attempt skips the upload when the record already
// carries a file id from a prior attempt.
func (co *Coordinator) Commit(ctx context.Context, commit *ledgr.PendingCommit) error {
	e := commit.Expense

	token, err := co.tokens.Token(ctx)
	if err != nil {
		return &StepError{Step: StepFetchToken, Err: err}
	}

	if co.folderID == "" {
		folderID, err := co.blobs.EnsureFolder(ctx, token)
		if err != nil {
			return &StepError{Step: StepEnsureFolder, Err: err}
		}
		co.folderID = folderID
	}

	if e.DriveFileID == "" {
		name := ReceiptFileName(e.Date, e.Merchant, e.Amount)
		fileID, webLink, err := co.blobs.UploadReceipt(ctx, commit.Image, name, co.folderID, token)
		if err != nil {
			return &StepError{Step: StepUploadImage, Err: err}
		}
		e.DriveFileID = fileID
		e.DriveFileURL = webLink
		if err := co.records.UpdateDriveRefs(ctx, e.ID, fileID, webLink); err != nil {
			return &StepError{Step: StepUploadImage, Err: err}
		}
		co.logger.Debug("receipt uploaded", "expense", e.ID, "file", fileID)
	} else {
		co.logger.Debug("receipt already uploaded, skipping upload step",
			"expense", e.ID, "file", e.DriveFileID)
	}

	if co.spreadsheetID == "" {
		spreadsheetID, err := co.sheets.EnsureSpreadsheet(ctx, token)
		if err != nil {
			return &StepError{Step: StepEnsureSheet, Err: err}
		}
		co.spreadsheetID = spreadsheetID
	}

	rowID, err := co.sheets.AppendExpense(ctx, e, e.DriveFileURL, co.spreadsheetID, token)
	if err != nil {
		return &StepError{Step: StepAppendRow, Err: err}
	}
	e.SheetsRowID = rowID
	e.SyncStatus = ledgr.SyncComplete
	if err := co.records.MarkExpenseComplete(ctx, e.ID, rowID); err != nil {
		return &StepError{Step: StepAppendRow, Err: err}
	}

	co.logger.Info("expense committed", "expense", e.ID, "merchant", e.Merchant, "row", rowID)
	return nil
}

// Delete removes an expense's remote footprint: its spreadsheet row, then its
// receipt file. Missing remote state is not an error for the caller to act
// on, so failures here are reported but the local delete should proceed.
func (co *Coordinator) Delete(ctx context.Context, e *ledgr.Expense) error {
	token, err := co.tokens.Token(ctx)
	if err != nil {
		return &StepError{Step: StepFetchToken, Err: err}
	}

	if e.SheetsRowID > 0 {
		if co.spreadsheetID == "" {
			spreadsheetID, err := co.sheets.EnsureSpreadsheet(ctx, token)
			if err != nil {
				return &StepError{Step: StepEnsureSheet, Err: err}
			}
			co.spreadsheetID = spreadsheetID
		}
		if err := co.sheets.DeleteExpenseRow(ctx, e, co.spreadsheetID, token); err != nil {
			return fmt.Errorf("delete row: %w", err)
		}
	}

	if e.DriveFileID != "" {
		if err := co.blobs.DeleteFile(ctx, e.DriveFileID, token); err != nil {
			return fmt.Errorf("delete receipt: %w", err)
		}
	}
	return nil
}
