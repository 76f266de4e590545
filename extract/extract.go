// Package extract turns a receipt photo into a structured candidate expense
// by calling a vision-capable LLM endpoint. Only the candidate shape matters
// to the sync pipeline; extraction quality is the model's problem.
//
// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/popand/ledgr"
)

const (
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
	apiVersion       = "2023-06-01"
)

const systemPrompt = "You are an expense tracking assistant. Analyze the receipt image and extract all " +
	"relevant expense information. Return ONLY a valid JSON object with fields: " +
	"merchant_name, transaction_date (ISO 8601), total_amount (float), currency (ISO 4217), " +
	"line_items (array of {description, amount}), payment_method, " +
	"category (one of: Food & Dining, Travel, Office Supplies, Entertainment, Utilities, " +
	"Health, Shopping, Other), and notes (brief description of the expense)."

// Config holds configuration for the extraction client.
type Config struct {
	Endpoint  string
	Model     string
	APIKey    string
	MaxTokens int
	HTTP      *http.Client
	Logger    *slog.Logger
}

// DefaultConfig returns an extraction configuration pointing at the
// production endpoint; the API key must be supplied by the caller.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:  defaultEndpoint,
		Model:     defaultModel,
		MaxTokens: defaultMaxTokens,
		HTTP:      &http.Client{Timeout: 60 * time.Second},
	}
}

// Client calls the extraction endpoint.
type Client struct {
	endpoint  string
	model     string
	apiKey    string
	maxTokens int
	http      *http.Client
	logger    *slog.Logger
}

// NewClient creates an extraction client (nil config means defaults, which
// still need an API key before ExtractExpense can succeed).
func NewClient(config *Config) *Client {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	c := &Client{
		endpoint:  config.Endpoint,
		model:     config.Model,
		apiKey:    config.APIKey,
		maxTokens: config.MaxTokens,
		http:      config.HTTP,
		logger:    config.Logger,
	}
	if c.endpoint == "" {
		c.endpoint = defaults.Endpoint
	}
	if c.model == "" {
		c.model = defaults.Model
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaults.MaxTokens
	}
	if c.http == nil {
		c.http = defaults.HTTP
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// ExtractedExpense is the candidate record produced by extraction. All fields
// are best-effort; ToExpense fills defaults for anything missing.
type ExtractedExpense struct {
	MerchantName    string              `json:"merchant_name"`
	TransactionDate string              `json:"transaction_date"`
	TotalAmount     float64             `json:"total_amount"`
	Currency        string              `json:"currency"`
	LineItems       []ExtractedLineItem `json:"line_items"`
	PaymentMethod   string              `json:"payment_method"`
	Category        string              `json:"category"`
	Notes           string              `json:"notes"`
}

// ExtractedLineItem is one candidate receipt line.
type ExtractedLineItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// ToExpense converts the candidate into a draft expense with defaults applied
// for missing fields. The draft is pending and carries no remote state.
func (x *ExtractedExpense) ToExpense() *ledgr.Expense {
	date := time.Now().UTC()
	if x.TransactionDate != "" {
		if parsed, err := time.Parse(time.RFC3339, x.TransactionDate); err == nil {
			date = parsed
		} else if parsed, err := time.Parse("2006-01-02", x.TransactionDate); err == nil {
			date = parsed
		}
	}

	merchant := x.MerchantName
	if merchant == "" {
		merchant = "Unknown Merchant"
	}
	currency := x.Currency
	if currency == "" {
		currency = "CAD"
	}

	e := ledgr.NewExpense(merchant, date, x.TotalAmount, currency)
	e.Category = ledgr.ParseCategory(x.Category)
	e.PaymentMethod = x.PaymentMethod
	e.Notes = x.Notes
	for _, item := range x.LineItems {
		desc := item.Description
		if desc == "" {
			desc = "Unknown item"
		}
		e.LineItems = append(e.LineItems, ledgr.LineItem{Description: desc, Amount: item.Amount})
	}
	return e
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ExtractExpense sends the receipt image for analysis and returns the
// candidate record. An unparseable model reply degrades to a mostly-empty
// candidate with an explanatory note rather than an error, so the user can
// still fill the form in manually.
func (c *Client) ExtractExpense(ctx context.Context, image []byte) (*ExtractedExpense, error) {
	if c.apiKey == "" {
		return nil, &ledgr.ExtractError{Message: "no API key configured"}
	}

	reqBody := messageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: "image/jpeg",
						Data:      base64.StdEncoding.EncodeToString(image),
					},
				},
				{
					Type: "text",
					Text: "Extract the expense data from this receipt.",
				},
			},
		}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send extraction request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ledgr.ExtractError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var msgResp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &msgResp); err != nil || len(msgResp.Content) == 0 {
		return nil, fmt.Errorf("extraction: %w: no content block in reply", ledgr.ErrInvalidResponse)
	}

	jsonText := extractJSON(msgResp.Content[0].Text)
	var extracted ExtractedExpense
	if err := json.Unmarshal([]byte(jsonText), &extracted); err != nil {
		c.logger.Warn("failed to parse extraction reply, returning fallback", "error", err)
		return &ExtractedExpense{
			Notes: "Failed to parse receipt automatically. Please fill in manually.",
		}, nil
	}
	return &extracted, nil
}

// extractJSON trims markdown code fences and any prose surrounding the JSON
// object in a model reply.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
