// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCommand drains the upload queue once.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload all queued expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			if !app.Monitor.Online() {
				fmt.Fprintln(cmd.OutOrStdout(), "offline; nothing uploaded")
				return nil
			}
			if err := app.Sync.ProcessAll(ctx); err != nil {
				return err
			}

			pending, err := app.Sync.PendingCount(ctx)
			if err != nil {
				return err
			}
			failed, err := app.Sync.FailedCommits(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "done: %d pending, %d failed\n", pending, len(failed))
			return nil
		},
	}
}
