// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package gsheets

import (
	"fmt"
	"strings"
	"time"

	"github.com/popand/ledgr"
)

// Row renders an expense as the 10 spreadsheet cells, in header order. The
// receipt link is rendered as a clickable HYPERLINK formula; addedAt is the
// wall-clock time the row was written, not the transaction date.
func Row(e *ledgr.Expense, receiptLink string, addedAt time.Time) []any {
	return []any{
		e.Date.Format("2006-01-02"),
		e.Merchant,
		string(e.Category),
		e.Amount,
		e.Currency,
		e.PaymentMethod,
		lineItemsSummary(e.LineItems),
		e.Notes,
		receiptFormula(receiptLink),
		addedAt.UTC().Format(time.RFC3339),
	}
}

func lineItemsSummary(items []ledgr.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s: $%.2f", item.Description, item.Amount))
	}
	return strings.Join(parts, "; ")
}

func receiptFormula(link string) string {
	if link == "" {
		return ""
	}
	return fmt.Sprintf("=HYPERLINK(%q,%q)", link, "View Receipt")
}
