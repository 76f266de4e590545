// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/popand/ledgr"
)

// NewAddCommand saves a confirmed expense locally and enqueues its remote
// commit. Fields come either from a reviewed draft (--json, as produced by
// capture) or from flags.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	var (
		jsonPath string
		merchant string
		dateStr  string
		amount   float64
		currency string
		payment  string
		category string
		notes    string
	)

	cmd := &cobra.Command{
		Use:   "add <image.jpg>",
		Short: "Save a confirmed expense and queue its upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			var e *ledgr.Expense
			if jsonPath != "" {
				data, err := os.ReadFile(jsonPath)
				if err != nil {
					return fmt.Errorf("failed to read draft: %w", err)
				}
				e, err = parseDraft(data)
				if err != nil {
					return err
				}
			} else {
				if merchant == "" || amount == 0 {
					return fmt.Errorf("either --json or --merchant and --amount are required")
				}
				date := time.Now()
				if dateStr != "" {
					date, err = time.Parse("2006-01-02", dateStr)
					if err != nil {
						return fmt.Errorf("invalid --date (want YYYY-MM-DD): %w", err)
					}
				}
				e = ledgr.NewExpense(merchant, date, amount, currency)
				e.PaymentMethod = payment
				e.Category = ledgr.ParseCategory(category)
				e.Notes = notes
			}
			e.LocalImagePath = args[0]

			ctx := cmd.Context()
			if err := app.Store.SaveExpense(ctx, e); err != nil {
				return err
			}
			commit, err := app.Sync.Enqueue(ctx, e, image)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expense %s saved, commit %s queued\n", e.ID, commit.ID)

			if app.Monitor.Online() {
				if err := app.Sync.ProcessAll(ctx); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "offline; upload deferred until connectivity returns")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jsonPath, "json", "", "reviewed draft JSON from capture")
	cmd.Flags().StringVar(&merchant, "merchant", "", "merchant name")
	cmd.Flags().StringVar(&dateStr, "date", "", "transaction date (YYYY-MM-DD, default today)")
	cmd.Flags().Float64Var(&amount, "amount", 0, "total amount")
	cmd.Flags().StringVar(&currency, "currency", "CAD", "ISO 4217 currency")
	cmd.Flags().StringVar(&payment, "payment", "", "payment method")
	cmd.Flags().StringVar(&category, "category", "Other", "expense category")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	return cmd
}

// parseDraft decodes a reviewed capture draft, minting a fresh id when the
// draft carries none and resetting it to the pending state.
func parseDraft(data []byte) (*ledgr.Expense, error) {
	e := &ledgr.Expense{}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("failed to parse draft: %w", err)
	}
	if e.ID == uuid.Nil {
		fresh := ledgr.NewExpense(e.Merchant, e.Date, e.Amount, e.Currency)
		fresh.LineItems = e.LineItems
		fresh.PaymentMethod = e.PaymentMethod
		fresh.Category = e.Category
		fresh.Notes = e.Notes
		e = fresh
	}
	e.SyncStatus = ledgr.SyncPending
	return e, nil
}
