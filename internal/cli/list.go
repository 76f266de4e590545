// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewListCommand prints recent expenses with their sync state.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			expenses, err := app.Store.ListExpenses(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range expenses {
				fmt.Fprintf(out, "%s  %s  %-25s %8.2f %s  [%s]\n",
					e.ID, e.Date.Format("2006-01-02"), e.Merchant, e.Amount, e.Currency, e.SyncStatus)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum expenses to list (0 for all)")
	return cmd
}
