// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/popand/ledgr/gdrive"
	"github.com/popand/ledgr/gsheets"
)

// FileConfig is the YAML configuration file for the CLI. Secrets (the
// extraction API key) come from the environment, not from this file.
type FileConfig struct {
	DatabasePath     string `yaml:"database_path"`
	CredentialsFile  string `yaml:"credentials_file"`
	DriveFolderName  string `yaml:"drive_folder_name"`
	SpreadsheetTitle string `yaml:"spreadsheet_title"`
	ExtractEndpoint  string `yaml:"extract_endpoint"`
	ExtractModel     string `yaml:"extract_model"`
	ProbeAddr        string `yaml:"probe_addr"`
	MaxRetries       int    `yaml:"max_retries"`
}

// ExtractAPIKeyEnv is the environment variable the extraction API key is
// read from (loadable via a .env file).
const ExtractAPIKeyEnv = "ANTHROPIC_API_KEY"

// DefaultFileConfig returns the configuration used when no file is present.
func DefaultFileConfig() *FileConfig {
	home, _ := os.UserHomeDir()
	return &FileConfig{
		DatabasePath:     filepath.Join(home, ".ledgr", "ledgr.db"),
		DriveFolderName:  gdrive.DefaultFolderName,
		SpreadsheetTitle: gsheets.DefaultTitle,
		ProbeAddr:        "1.1.1.1:443",
		MaxRetries:       3,
	}
}

// LoadFileConfig reads the YAML config at path, layering it over the
// defaults. A missing file is not an error when path is the default
// location.
func LoadFileConfig(path string, required bool) (*FileConfig, error) {
	config := DefaultFileConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	return config, nil
}
