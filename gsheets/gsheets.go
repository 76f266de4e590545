// Package gsheets is the tabular-store client: it appends expense rows to a
// Google Sheets spreadsheet, creating it with a fixed header row on first
// use.
//
// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package gsheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/popand/ledgr"
)

const (
	defaultBaseURL  = "https://sheets.googleapis.com/v4/spreadsheets"
	defaultDriveURL = "https://www.googleapis.com/drive/v3"
	appendRange     = "Sheet1!A:J"
	headerRange     = "Sheet1!A1:J1"

	spreadsheetMIMEType = "application/vnd.google-apps.spreadsheet"

	// DefaultTitle is the spreadsheet title used unless configured.
	DefaultTitle = "Ledgr Expenses"
)

// Headers is the fixed header row. Order and labels are a versionless
// contract with any spreadsheet populated by a prior version; changing them
// breaks those sheets.
var Headers = []string{
	"Date",
	"Merchant",
	"Category",
	"Amount",
	"Currency",
	"Payment Method",
	"Line Items",
	"Notes",
	"Receipt Link",
	"Added At",
}

// Config holds configuration for the Sheets client.
type Config struct {
	Title   string
	BaseURL string
	// DriveURL is the Drive API endpoint used to resolve the spreadsheet by
	// title; the Sheets API itself cannot list spreadsheets.
	DriveURL string
	HTTP     *http.Client
	Logger   *slog.Logger
}

// DefaultConfig returns a Sheets client configuration with the production
// endpoints.
func DefaultConfig() *Config {
	return &Config{
		Title:    DefaultTitle,
		BaseURL:  defaultBaseURL,
		DriveURL: defaultDriveURL,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Client talks to the Sheets v4 API. Like the Drive client it holds no
// spreadsheet-id state; the coordinator caches the resolved id per session.
type Client struct {
	title    string
	baseURL  string
	driveURL string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a Sheets client (nil config means defaults).
func NewClient(config *Config) *Client {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	c := &Client{
		title:    config.Title,
		baseURL:  config.BaseURL,
		driveURL: config.DriveURL,
		http:     config.HTTP,
		logger:   config.Logger,
	}
	if c.title == "" {
		c.title = defaults.Title
	}
	if c.baseURL == "" {
		c.baseURL = defaults.BaseURL
	}
	if c.driveURL == "" {
		c.driveURL = defaults.DriveURL
	}
	if c.http == nil {
		c.http = defaults.HTTP
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// EnsureSpreadsheet resolves the configured spreadsheet by title, creating it
// when absent, and returns its id with the header row guaranteed to exist.
// Each CLI invocation is a fresh process, so resolution must go through Drive
// rather than any in-process cache; repeating this never creates a duplicate.
func (c *Client) EnsureSpreadsheet(ctx context.Context, token string) (string, error) {
	spreadsheetID, err := c.findSpreadsheet(ctx, token)
	if err != nil {
		return "", err
	}
	if spreadsheetID == "" {
		spreadsheetID, err = c.createSpreadsheet(ctx, token)
		if err != nil {
			return "", err
		}
	}
	// A previous run may have created the spreadsheet and died before the
	// header write; repair that here so the resolved id is always usable.
	if err := c.ensureHeader(ctx, spreadsheetID, token); err != nil {
		return "", err
	}
	return spreadsheetID, nil
}

func (c *Client) findSpreadsheet(ctx context.Context, token string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false",
		escapeQueryTerm(c.title), spreadsheetMIMEType)
	reqURL := fmt.Sprintf("%s/files?q=%s&fields=files(id)", c.driveURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create spreadsheet search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := c.do(req, "spreadsheet search")
	if err != nil {
		return "", err
	}

	var result struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("spreadsheet search: %w: %v", ledgr.ErrInvalidResponse, err)
	}
	if len(result.Files) == 0 {
		return "", nil
	}
	return result.Files[0].ID, nil
}

func (c *Client) createSpreadsheet(ctx context.Context, token string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"properties": map[string]any{"title": c.title},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal spreadsheet metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create spreadsheet request: %w", err)
	}
	c.setHeaders(req, token)

	body, err := c.do(req, "spreadsheet creation")
	if err != nil {
		return "", err
	}

	var result struct {
		SpreadsheetID string `json:"spreadsheetId"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.SpreadsheetID == "" {
		return "", fmt.Errorf("spreadsheet creation: %w: missing spreadsheetId", ledgr.ErrInvalidResponse)
	}
	c.logger.Info("created spreadsheet", "title", c.title, "id", result.SpreadsheetID)
	return result.SpreadsheetID, nil
}

// ensureHeader writes the header row if the first row is still empty.
func (c *Client) ensureHeader(ctx context.Context, spreadsheetID, token string) error {
	reqURL := fmt.Sprintf("%s/%s/values/%s", c.baseURL, spreadsheetID, url.PathEscape(headerRange))
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create header check request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := c.do(req, "header check")
	if err != nil {
		return err
	}
	var result struct {
		Values [][]any `json:"values"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("header check: %w: %v", ledgr.ErrInvalidResponse, err)
	}
	if len(result.Values) > 0 {
		return nil
	}

	headerRow := make([]any, len(Headers))
	for i, h := range Headers {
		headerRow[i] = h
	}
	_, err = c.appendRow(ctx, headerRow, spreadsheetID, token)
	return err
}

// AppendExpense appends one expense row and returns the 1-based row index the
// values landed on.
func (c *Client) AppendExpense(ctx context.Context, e *ledgr.Expense, receiptLink, spreadsheetID, token string) (int64, error) {
	return c.appendRow(ctx, Row(e, receiptLink, time.Now()), spreadsheetID, token)
}

// DeleteExpenseRow removes the expense's row, located by matching the date,
// merchant and amount cells at delete time. Row indices shift whenever any
// row is deleted, so the index recorded at append time cannot be trusted
// here; only a fresh content lookup targets the right row.
func (c *Client) DeleteExpenseRow(ctx context.Context, e *ledgr.Expense, spreadsheetID, token string) error {
	reqURL := fmt.Sprintf("%s/%s/values/%s", c.baseURL, spreadsheetID, url.PathEscape(appendRange))
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create row lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := c.do(req, "row lookup")
	if err != nil {
		return err
	}
	var result struct {
		Values [][]any `json:"values"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("row lookup: %w: %v", ledgr.ErrInvalidResponse, err)
	}

	rowIndex := findExpenseRow(result.Values, e)
	if rowIndex == 0 {
		return fmt.Errorf("no row matching expense %s: %w", e.ID, ledgr.ErrNotFound)
	}

	payload, err := json.Marshal(map[string]any{
		"requests": []any{
			map[string]any{
				"deleteDimension": map[string]any{
					"range": map[string]any{
						"sheetId":    0,
						"dimension":  "ROWS",
						"startIndex": rowIndex - 1,
						"endIndex":   rowIndex,
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal delete request: %w", err)
	}

	reqURL = fmt.Sprintf("%s/%s:batchUpdate", c.baseURL, spreadsheetID)
	req, err = http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create row delete request: %w", err)
	}
	c.setHeaders(req, token)

	_, err = c.do(req, "row delete")
	return err
}

// findExpenseRow returns the 1-based index of the first data row whose date,
// merchant and amount cells match the expense, or 0 when no row matches.
func findExpenseRow(rows [][]any, e *ledgr.Expense) int64 {
	date := e.Date.Format("2006-01-02")
	for i, row := range rows {
		if len(row) < 4 {
			continue
		}
		if cellString(row[0]) != date || cellString(row[1]) != e.Merchant {
			continue
		}
		if amount, ok := cellAmount(row[3]); ok && math.Abs(amount-e.Amount) < 0.005 {
			return int64(i + 1)
		}
	}
	return 0
}

func cellString(v any) string {
	s, _ := v.(string)
	return s
}

// cellAmount tolerates both raw numbers and formatted strings ("$12.50").
func cellAmount(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(x), "$")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// escapeQueryTerm escapes a string for interpolation into a Drive search
// query, where values are single-quoted and backslash-escaped.
func escapeQueryTerm(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (c *Client) appendRow(ctx context.Context, values []any, spreadsheetID, token string) (int64, error) {
	payload, err := json.Marshal(map[string]any{
		"values": [][]any{values},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal row values: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=USER_ENTERED",
		c.baseURL, spreadsheetID, url.PathEscape(appendRange))
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create row append request: %w", err)
	}
	c.setHeaders(req, token)

	body, err := c.do(req, "row append")
	if err != nil {
		return 0, err
	}

	var result struct {
		Updates struct {
			UpdatedRange string `json:"updatedRange"`
		} `json:"updates"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("row append: %w: %v", ledgr.ErrInvalidResponse, err)
	}
	rowID, err := parseUpdatedRange(result.Updates.UpdatedRange)
	if err != nil {
		return 0, fmt.Errorf("row append: %w: %v", ledgr.ErrInvalidResponse, err)
	}
	return rowID, nil
}

// parseUpdatedRange extracts the row index from an updatedRange such as
// "Sheet1!A7:J7". The sheet name before '!' may itself contain digits, so
// only the first cell reference is parsed.
func parseUpdatedRange(r string) (int64, error) {
	if i := strings.IndexByte(r, '!'); i >= 0 {
		r = r[i+1:]
	}
	if i := strings.IndexByte(r, ':'); i >= 0 {
		r = r[:i]
	}
	var rowID int64
	for _, ch := range r {
		if ch >= '0' && ch <= '9' {
			rowID = rowID*10 + int64(ch-'0')
		}
	}
	if rowID == 0 {
		return 0, fmt.Errorf("no row index in updatedRange %q", r)
	}
	return rowID, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ledgr.SheetsError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
