// Package googleauth implements the credential provider for the Drive and
// Sheets clients using the Google service-account JWT-bearer flow: an RS256
// assertion signed with the account's private key is exchanged at the token
// endpoint for a short-lived access token.
//
// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package googleauth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/popand/ledgr"
)

// OAuth scopes required by the pipeline.
const (
	ScopeDriveFile    = "https://www.googleapis.com/auth/drive.file"
	ScopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	grantJWTBearer  = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// Tokens within this window of expiry are treated as expired, since a
	// multi-step commit must not outlive its token mid-protocol.
	expirySkew = 60 * time.Second
)

// Credentials is the subset of a Google service-account key file the token
// source needs.
type Credentials struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// LoadCredentials reads and parses a service-account JSON key file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, fmt.Errorf("credentials file missing client_email or private_key")
	}
	return &creds, nil
}

// Config holds configuration for the token source.
type Config struct {
	// Credentials may be nil, in which case Token reports AuthNotConfigured.
	Credentials *Credentials
	Scopes      []string
	// TokenURL overrides the token endpoint (defaults to the credentials'
	// token_uri, then to the public Google endpoint).
	TokenURL string
	HTTP     *http.Client
}

// TokenSource exchanges signed assertions for access tokens, caching each
// token until shortly before its expiry. It is safe for concurrent use.
type TokenSource struct {
	creds    *Credentials
	key      *rsa.PrivateKey
	scopes   []string
	tokenURL string
	http     *http.Client
	now      func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenSource creates a token source. A nil-credentials config is valid
// and yields a source whose Token always reports AuthNotConfigured, so the
// rest of the pipeline needs no capability flag.
func NewTokenSource(config *Config) (*TokenSource, error) {
	if config == nil {
		config = &Config{}
	}
	ts := &TokenSource{
		creds:    config.Credentials,
		scopes:   config.Scopes,
		tokenURL: config.TokenURL,
		http:     config.HTTP,
		now:      time.Now,
	}
	if len(ts.scopes) == 0 {
		ts.scopes = []string{ScopeDriveFile, ScopeSpreadsheets}
	}
	if ts.http == nil {
		ts.http = &http.Client{Timeout: 30 * time.Second}
	}
	if ts.creds != nil {
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(ts.creds.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse service account private key: %w", err)
		}
		ts.key = key
		if ts.tokenURL == "" {
			ts.tokenURL = ts.creds.TokenURI
		}
	}
	if ts.tokenURL == "" {
		ts.tokenURL = defaultTokenURL
	}
	return ts, nil
}

// Token returns a valid bearer token, fetching a fresh one when the cached
// token is missing or within the expiry skew.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	if ts == nil || ts.creds == nil {
		return "", &ledgr.AuthError{
			Reason:  ledgr.AuthNotConfigured,
			Message: "no service account credentials configured",
		}
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && ts.now().Before(ts.expiry.Add(-expirySkew)) {
		return ts.token, nil
	}

	token, expiresIn, err := ts.fetch(ctx)
	if err != nil {
		return "", err
	}
	ts.token = token
	ts.expiry = ts.now().Add(expiresIn)
	return token, nil
}

func (ts *TokenSource) fetch(ctx context.Context) (string, time.Duration, error) {
	assertion, err := ts.signAssertion()
	if err != nil {
		return "", 0, &ledgr.AuthError{Reason: ledgr.AuthRefreshFailed, Message: err.Error()}
	}

	form := url.Values{}
	form.Set("grant_type", grantJWTBearer)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, "POST", ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, &ledgr.AuthError{Reason: ledgr.AuthRefreshFailed, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.http.Do(req)
	if err != nil {
		return "", 0, &ledgr.AuthError{Reason: ledgr.AuthRefreshFailed, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", 0, &ledgr.AuthError{
			Reason:  ledgr.AuthRefreshFailed,
			Message: fmt.Sprintf("token endpoint returned HTTP %d: %s", resp.StatusCode, body),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", 0, &ledgr.AuthError{
			Reason:  ledgr.AuthRefreshFailed,
			Message: fmt.Sprintf("failed to decode token response: %v", err),
		}
	}
	if tokenResp.AccessToken == "" {
		return "", 0, &ledgr.AuthError{Reason: ledgr.AuthNoToken, Message: "token endpoint returned no access token"}
	}

	expiresIn := time.Duration(tokenResp.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	return tokenResp.AccessToken, expiresIn, nil
}

func (ts *TokenSource) signAssertion() (string, error) {
	now := ts.now()
	claims := jwt.MapClaims{
		"iss":   ts.creds.ClientEmail,
		"scope": strings.Join(ts.scopes, " "),
		"aud":   ts.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}
