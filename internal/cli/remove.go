// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/popand/ledgr"
)

// NewRemoveCommand deletes an expense locally and, for committed expenses,
// best-effort removes its spreadsheet row and receipt file. Remote cleanup
// failures are reported but do not block the local delete.
func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <expense-id>",
		Short: "Delete an expense locally and remotely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid expense id: %w", err)
			}

			app, err := opts.NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			e, err := app.Store.GetExpense(ctx, id)
			if err != nil {
				return err
			}

			if e.SyncStatus == ledgr.SyncComplete && app.Monitor.Online() {
				if err := app.Coordinator().Delete(ctx, e); err != nil {
					app.Logger.Warn("remote cleanup failed", "expense", e.ID, "error", err)
					fmt.Fprintf(cmd.OutOrStdout(), "warning: remote cleanup failed: %v\n", err)
				}
			}

			if err := app.Store.DeleteExpense(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expense %s removed\n", id)
			return nil
		},
	}
}
