// Package ledgr defines the expense domain model shared by the capture,
// storage and sync packages.
//
// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package ledgr

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is one of the fixed expense categories. The raw values are written
// verbatim to the spreadsheet, so they must not change between versions.
type Category string

const (
	CategoryFoodAndDining  Category = "Food & Dining"
	CategoryTravel         Category = "Travel"
	CategoryOfficeSupplies Category = "Office Supplies"
	CategoryEntertainment  Category = "Entertainment"
	CategoryUtilities      Category = "Utilities"
	CategoryHealth         Category = "Health"
	CategoryShopping       Category = "Shopping"
	CategoryOther          Category = "Other"
)

// Categories returns all known categories in display order.
func Categories() []Category {
	return []Category{
		CategoryFoodAndDining,
		CategoryTravel,
		CategoryOfficeSupplies,
		CategoryEntertainment,
		CategoryUtilities,
		CategoryHealth,
		CategoryShopping,
		CategoryOther,
	}
}

// ParseCategory matches a free-form category string case-insensitively,
// falling back to CategoryOther for anything unrecognized.
func ParseCategory(s string) Category {
	for _, c := range Categories() {
		if strings.EqualFold(string(c), s) {
			return c
		}
	}
	return CategoryOther
}

// SyncStatus tracks how far an expense has progressed through the remote
// commit pipeline.
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncCommitting SyncStatus = "committing"
	SyncComplete   SyncStatus = "complete"
	SyncFailed     SyncStatus = "failed"
)

// LineItem is a single line on a receipt.
type LineItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// Expense is the unit of work for the sync pipeline. The local store owns the
// durable copy; the pipeline holds a working copy during a commit attempt and
// writes remote identifiers back as steps complete.
//
// DriveFileID and DriveFileURL are populated as soon as the receipt upload
// succeeds, even if the later row append fails, so a retried commit does not
// re-upload the image. SheetsRowID is set only when the row append succeeds,
// at which point SyncStatus becomes SyncComplete.
type Expense struct {
	ID             uuid.UUID  `json:"id"`
	Merchant       string     `json:"merchant"`
	Date           time.Time  `json:"date"`
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	LineItems      []LineItem `json:"line_items,omitempty"`
	PaymentMethod  string     `json:"payment_method,omitempty"`
	Category       Category   `json:"category"`
	Notes          string     `json:"notes,omitempty"`
	LocalImagePath string     `json:"local_image_path,omitempty"`
	DriveFileID    string     `json:"drive_file_id,omitempty"`
	DriveFileURL   string     `json:"drive_file_url,omitempty"`
	SheetsRowID    int64      `json:"sheets_row_id,omitempty"`
	SyncStatus     SyncStatus `json:"sync_status"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewExpense returns an expense with a fresh ID, pending sync status and the
// given required fields.
func NewExpense(merchant string, date time.Time, amount float64, currency string) *Expense {
	return &Expense{
		ID:         uuid.New(),
		Merchant:   merchant,
		Date:       date,
		Amount:     amount,
		Currency:   currency,
		Category:   CategoryOther,
		SyncStatus: SyncPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// CommitStatus is the queue-local state of a pending commit. It drives, but is
// distinct from, the expense's SyncStatus.
type CommitStatus string

const (
	CommitPending  CommitStatus = "pending"
	CommitInFlight CommitStatus = "committing"
	CommitComplete CommitStatus = "complete"
	CommitFailed   CommitStatus = "permanently_failed"
)

// PendingCommit wraps one expense plus its raw receipt image for the upload
// queue. Commits are persisted so a restart resumes instead of dropping them.
type PendingCommit struct {
	ID         uuid.UUID
	Expense    *Expense
	Image      []byte
	Status     CommitStatus
	RetryCount int
	LastError  string
	QueuedAt   time.Time
}

// NewPendingCommit creates a pending commit for the given expense and image.
func NewPendingCommit(e *Expense, image []byte) *PendingCommit {
	return &PendingCommit{
		ID:       uuid.New(),
		Expense:  e,
		Image:    image,
		Status:   CommitPending,
		QueuedAt: time.Now().UTC(),
	}
}
