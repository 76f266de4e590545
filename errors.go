// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package ledgr

import (
	"errors"
	"fmt"
)

var (
	// ErrNetworkUnavailable reports that the device is offline. Going
	// offline is not a commit failure; the queue simply halts until
	// reachability returns.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrInvalidResponse reports a malformed payload from a remote call.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrNotFound reports a missing expense or pending commit.
	ErrNotFound = errors.New("not found")
)

// AuthReason classifies credential failures.
type AuthReason string

const (
	// AuthNotConfigured means no service-account credentials are present.
	AuthNotConfigured AuthReason = "not_configured"
	// AuthNoToken means the token endpoint answered without a usable token.
	AuthNoToken AuthReason = "no_token"
	// AuthRefreshFailed means the token exchange itself failed.
	AuthRefreshFailed AuthReason = "refresh_failed"
)

// AuthError reports a credential-provider failure.
type AuthError struct {
	Reason  AuthReason
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("google auth failed (%s): %s", e.Reason, e.Message)
}

// DriveError reports a failed Drive API call.
type DriveError struct {
	Op         string // "folder search", "file upload", ...
	StatusCode int
	Body       string
}

func (e *DriveError) Error() string {
	return fmt.Sprintf("drive %s failed (HTTP %d): %s", e.Op, e.StatusCode, e.Body)
}

// SheetsError reports a failed Sheets API call.
type SheetsError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *SheetsError) Error() string {
	return fmt.Sprintf("sheets %s failed (HTTP %d): %s", e.Op, e.StatusCode, e.Body)
}

// ExtractError reports a failed receipt extraction call.
type ExtractError struct {
	StatusCode int
	Message    string
}

func (e *ExtractError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("receipt extraction failed (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("receipt extraction failed: %s", e.Message)
}
