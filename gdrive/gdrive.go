// Package gdrive is the blob-store client: it uploads receipt images to
// Google Drive under a named folder and returns their shareable links.
//
// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/popand/ledgr"
)

const (
	defaultBaseURL   = "https://www.googleapis.com/drive/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3/files"
	folderMIMEType   = "application/vnd.google-apps.folder"

	// DefaultFolderName is the Drive folder receipts land in unless
	// configured otherwise.
	DefaultFolderName = "Ledgr/Receipts"
)

// Config holds configuration for the Drive client.
type Config struct {
	FolderName string
	// BaseURL and UploadURL override the API endpoints (tests).
	BaseURL   string
	UploadURL string
	HTTP      *http.Client
	Logger    *slog.Logger
}

// DefaultConfig returns a Drive client configuration with production
// endpoints and a timeout sized for image uploads over mobile links.
func DefaultConfig() *Config {
	return &Config{
		FolderName: DefaultFolderName,
		BaseURL:    defaultBaseURL,
		UploadURL:  defaultUploadURL,
		HTTP:       &http.Client{Timeout: 120 * time.Second},
	}
}

// Client talks to the Drive v3 API. It holds no folder-id state; session
// caching of the resolved folder belongs to the commit coordinator.
type Client struct {
	folderName string
	baseURL    string
	uploadURL  string
	http       *http.Client
	logger     *slog.Logger
}

// NewClient creates a Drive client (nil config means defaults).
func NewClient(config *Config) *Client {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	c := &Client{
		folderName: config.FolderName,
		baseURL:    config.BaseURL,
		uploadURL:  config.UploadURL,
		http:       config.HTTP,
		logger:     config.Logger,
	}
	if c.folderName == "" {
		c.folderName = defaults.FolderName
	}
	if c.baseURL == "" {
		c.baseURL = defaults.BaseURL
	}
	if c.uploadURL == "" {
		c.uploadURL = defaults.UploadURL
	}
	if c.http == nil {
		c.http = defaults.HTTP
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// EnsureFolder resolves the configured folder, creating it if absent, and
// returns its id. Safe to repeat.
func (c *Client) EnsureFolder(ctx context.Context, token string) (string, error) {
	folderID, err := c.findFolder(ctx, token)
	if err != nil {
		return "", err
	}
	if folderID != "" {
		return folderID, nil
	}
	return c.createFolder(ctx, token)
}

func (c *Client) findFolder(ctx context.Context, token string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQueryTerm(c.folderName), folderMIMEType)
	reqURL := fmt.Sprintf("%s/files?q=%s&fields=files(id)", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create folder search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := c.do(req, "folder search")
	if err != nil {
		return "", err
	}

	var result struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("folder search: %w: %v", ledgr.ErrInvalidResponse, err)
	}
	if len(result.Files) == 0 {
		return "", nil
	}
	return result.Files[0].ID, nil
}

func (c *Client) createFolder(ctx context.Context, token string) (string, error) {
	metadata := map[string]any{
		"name":     c.folderName,
		"mimeType": folderMIMEType,
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal folder metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/files", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create folder creation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "folder creation")
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.ID == "" {
		return "", fmt.Errorf("folder creation: %w: missing folder id", ledgr.ErrInvalidResponse)
	}
	c.logger.Info("created drive folder", "name", c.folderName, "id", result.ID)
	return result.ID, nil
}

// UploadReceipt uploads the image under the given name into folderID and
// returns the new file's id and webViewLink.
func (c *Client) UploadReceipt(ctx context.Context, image []byte, name, folderID, token string) (string, string, error) {
	fileID, err := c.multipartUpload(ctx, image, name, folderID, token)
	if err != nil {
		return "", "", err
	}
	webLink, err := c.webViewLink(ctx, fileID, token)
	if err != nil {
		return "", "", err
	}
	return fileID, webLink, nil
}

func (c *Client) multipartUpload(ctx context.Context, image []byte, name, folderID, token string) (string, error) {
	metadata := map[string]any{
		"name":     name,
		"parents":  []string{folderID},
		"mimeType": "image/jpeg",
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal upload metadata: %w", err)
	}

	boundary := uuid.NewString()
	var body bytes.Buffer
	fmt.Fprintf(&body, "--%s\r\n", boundary)
	body.WriteString("Content-Type: application/json; charset=UTF-8\r\n\r\n")
	body.Write(metadataJSON)
	fmt.Fprintf(&body, "\r\n--%s\r\n", boundary)
	body.WriteString("Content-Type: image/jpeg\r\n\r\n")
	body.Write(image)
	fmt.Fprintf(&body, "\r\n--%s--\r\n", boundary)

	reqURL := c.uploadURL + "?uploadType=multipart&fields=id"
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+boundary)

	respBody, err := c.do(req, "file upload")
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || result.ID == "" {
		return "", fmt.Errorf("file upload: %w: missing file id", ledgr.ErrInvalidResponse)
	}
	return result.ID, nil
}

func (c *Client) webViewLink(ctx context.Context, fileID, token string) (string, error) {
	reqURL := fmt.Sprintf("%s/files/%s?fields=webViewLink", c.baseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create file metadata request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := c.do(req, "link retrieval")
	if err != nil {
		return "", err
	}

	var result struct {
		WebViewLink string `json:"webViewLink"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.WebViewLink == "" {
		return "", fmt.Errorf("link retrieval: %w: missing webViewLink", ledgr.ErrInvalidResponse)
	}
	return result.WebViewLink, nil
}

// DeleteFile removes a previously uploaded receipt.
func (c *Client) DeleteFile(ctx context.Context, fileID, token string) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", c.baseURL+"/files/"+fileID, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return &ledgr.DriveError{Op: "file delete", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// escapeQueryTerm escapes a string for interpolation into a Drive search
// query, where values are single-quoted and backslash-escaped.
func escapeQueryTerm(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// do sends the request and returns the response body, converting non-2xx
// responses into DriveErrors carrying the status and body.
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
		return nil, &ledgr.DriveError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
