// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewDismissCommand drops a permanently-failed commit from the queue. The
// expense record itself is kept.
func NewDismissCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <commit-id>",
		Short: "Drop a permanently failed upload from the queue",
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

			if err := app.Sync.Dismiss(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "commit %s dismissed\n", id)
			return nil
		},
	}
}
