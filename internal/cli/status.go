// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCommand reports queue state: the aggregate pending count plus each
// permanently-failed commit with its last error.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show upload queue state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			pending, err := app.Sync.PendingCount(ctx)
			if err != nil {
				return err
			}
			failed, err := app.Sync.FailedCommits(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			state := "online"
			if !app.Monitor.Online() {
				state = "offline"
			}
			fmt.Fprintf(out, "%s, %d uploading\n", state, pending)
			if len(failed) == 0 {
				return nil
			}
			fmt.Fprintf(out, "failed uploads:\n")
			for _, c := range failed {
				fmt.Fprintf(out, "  %s  %s  $%.2f  (%d attempts)\n    %s\n",
					c.ID, c.Expense.Merchant, c.Expense.Amount, c.RetryCount, c.LastError)
			}
			return nil
		},
	}
}
