// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/popand/ledgr/extract"
	"github.com/popand/ledgr/gdrive"
	"github.com/popand/ledgr/googleauth"
	"github.com/popand/ledgr/gsheets"
	"github.com/popand/ledgr/ledgrstore"
	"github.com/popand/ledgr/ledgrsync"
)

// App wires the store, remote clients and sync pipeline together for the CLI
// commands.
type App struct {
	Config    *FileConfig
	Logger    *slog.Logger
	Store     *ledgrstore.Store
	Monitor   *ledgrsync.Monitor
	Sync      *ledgrsync.Client
	Extractor *extract.Client

	coordinator *ledgrsync.Coordinator
}

// NewApp builds the application from the file config. Missing service-account
// credentials are not fatal: records can still be captured and queued, they
// just cannot commit until credentials appear.
func (o *RootOptions) NewApp() (*App, error) {
	config, err := LoadFileConfig(o.ConfigPath, o.configExplicit)
	if err != nil {
		return nil, err
	}
	logger := o.Logger

	if dir := filepath.Dir(config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	store, err := ledgrstore.Open(config.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	var creds *googleauth.Credentials
	if config.CredentialsFile != "" {
		creds, err = googleauth.LoadCredentials(config.CredentialsFile)
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	tokens, err := googleauth.NewTokenSource(&googleauth.Config{Credentials: creds})
	if err != nil {
		store.Close()
		return nil, err
	}

	drive := gdrive.NewClient(&gdrive.Config{
		FolderName: config.DriveFolderName,
		Logger:     logger,
	})
	sheets := gsheets.NewClient(&gsheets.Config{
		Title:  config.SpreadsheetTitle,
		Logger: logger,
	})

	monitor := ledgrsync.NewMonitor(&ledgrsync.MonitorConfig{
		Probe:         ledgrsync.DialProbe(config.ProbeAddr, 5*time.Second),
		Interval:      15 * time.Second,
		InitialOnline: true,
		Logger:        logger,
	})
	// One synchronous probe so commands see settled connectivity state.
	monitor.Start(context.Background())

	coordinator := ledgrsync.NewCoordinator(tokens, drive, sheets, store, logger)
	syncClient, err := ledgrsync.NewClient(store, coordinator, monitor, &ledgrsync.Config{
		MaxRetries: config.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	extractor := extract.NewClient(&extract.Config{
		Endpoint: config.ExtractEndpoint,
		Model:    config.ExtractModel,
		APIKey:   os.Getenv(ExtractAPIKeyEnv),
		Logger:   logger,
	})

	return &App{
		Config:      config,
		Logger:      logger,
		Store:       store,
		Monitor:     monitor,
		Sync:        syncClient,
		Extractor:   extractor,
		coordinator: coordinator,
	}, nil
}

// Coordinator exposes the commit coordinator for commands that bypass the
// queue (remote cleanup on delete).
func (a *App) Coordinator() *ledgrsync.Coordinator {
	return a.coordinator
}

// Close releases the app's resources.
func (a *App) Close() error {
	return a.Store.Close()
}
