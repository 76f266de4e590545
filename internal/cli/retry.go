// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewRetryCommand resets a permanently-failed commit and re-runs the queue.
func NewRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <commit-id>",
		Short: "Retry a permanently failed upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid commit id: %w", err)
			}

			app, err := opts.NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			if err := app.Sync.Retry(ctx, id); err != nil {
				return err
			}
			if app.Monitor.Online() {
				if err := app.Sync.ProcessAll(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "commit %s requeued\n", id)
			return nil
		},
	}
}
