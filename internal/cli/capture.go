// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewCaptureCommand extracts a draft expense from a receipt image and prints
// it as JSON for review. Nothing is saved; pipe the edited draft back into
// `ledgr add --json`.
func NewCaptureCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "capture <image.jpg>",
		Short: "Extract a draft expense from a receipt image",
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

			extracted, err := app.Extractor.ExtractExpense(cmd.Context(), image)
			if err != nil {
				return err
			}

			draft := extracted.ToExpense()
			draft.LocalImagePath = args[0]
			out, err := json.MarshalIndent(draft, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
