// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFileConfig_MissingFileUsesDefaults(t *testing.T) {
	config, err := LoadFileConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	require.Equal(t, "Ledgr/Receipts", config.DriveFolderName)
	require.Equal(t, "Ledgr Expenses", config.SpreadsheetTitle)
	require.Equal(t, 3, config.MaxRetries)
}

func TestLoadFileConfig_MissingFileRequired(t *testing.T) {
	_, err := LoadFileConfig(filepath.Join(t.TempDir(), "absent.yaml"), true)
	require.Error(t, err)
}

func TestLoadFileConfig_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgr.yaml")
	content := "database_path: /tmp/x.db\nspreadsheet_title: Team Expenses\nmax_retries: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := LoadFileConfig(path, true)
	require.NoError(t, err)
	require.Equal(t, "/tmp/x.db", config.DatabasePath)
	require.Equal(t, "Team Expenses", config.SpreadsheetTitle)
	require.Equal(t, 5, config.MaxRetries)
	// Unset keys keep their defaults.
	require.Equal(t, "Ledgr/Receipts", config.DriveFolderName)
}

func TestLoadFileConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))

	_, err := LoadFileConfig(path, true)
	require.Error(t, err)
}

func TestLoadFileConfig_NonPositiveRetriesCorrected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries: -1\n"), 0o600))

	config, err := LoadFileConfig(path, true)
	require.NoError(t, err)
	require.Equal(t, 3, config.MaxRetries)
}
