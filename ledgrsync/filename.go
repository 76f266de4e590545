// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package ledgrsync

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ReceiptFileName derives the deterministic upload name for a receipt image
// from its transaction date, merchant and amount, e.g.
// "2025-03-14_Blue_Bottle_Coffee_12.50.jpg". Identical triples produce the
// same name; receipts are not deduplicated.
func ReceiptFileName(date time.Time, merchant string, amount float64) string {
	var b strings.Builder
	for _, r := range merchant {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	sanitized := b.String()
	if runes := []rune(sanitized); len(runes) > 50 {
		sanitized = string(runes[:50])
	}
	return fmt.Sprintf("%s_%s_%.2f.jpg", date.Format("2006-01-02"), sanitized, amount)
}
