// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm provides the HTTP client for the model completion backend.
//
// The backend is an opaque remote call: given room context and a model
// name it returns the full response text or fails with a classifiable
// reason. Streaming transport is not used; the typewriter reveal is a
// local presentation concern.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/parley/internal/message"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the completion backend.
type ClientError struct {
	Status  int // HTTP status, 0 when the request never completed
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// StatusCode exposes the HTTP status for failure classification.
func (e *ClientError) StatusCode() int {
	return e.Status
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the completion client.
type Config struct {
	// BaseURL is the backend base URL (default: http://127.0.0.1:8080)
	BaseURL string

	// Timeout for completion requests (default: 60s)
	Timeout time.Duration

	// DefaultModel to use when a room has none selected
	// (default: "gpt-3.5-turbo")
	DefaultModel string

	// RequestsPerSecond throttles outgoing calls (default: 2)
	RequestsPerSecond float64

	// Burst is the limiter burst size (default: 4)
	Burst int
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "http://127.0.0.1:8080",
		Timeout:           60 * time.Second,
		DefaultModel:      "gpt-3.5-turbo",
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client calls the completion backend. Thread-safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client, filling in defaults for zero values.
func NewClientWithConfig(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8080"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-3.5-turbo"
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 2
	}
	if config.Burst <= 0 {
		config.Burst = 4
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}
}

// DefaultModel returns the configured fallback model name.
func (c *Client) DefaultModel() string {
	return c.config.DefaultModel
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is one turn of room context sent to the backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FromHistory converts room history into wire messages.
func FromHistory(msgs []*message.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// =============================================================================
// COMPLETION
// =============================================================================

// Complete sends the room context to the backend and returns the full
// response text. Failures carry a classifiable reason: connectivity
// problems wrap the transport error, HTTP failures carry the status code.
func (c *Client) Complete(ctx context.Context, model string, history []ChatMessage) (string, error) {
	if model == "" {
		model = c.config.DefaultModel
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", &ClientError{Message: "request cancelled while rate limited", Cause: err}
	}

	body, err := json.Marshal(completionRequest{Model: model, Messages: history})
	if err != nil {
		return "", &ClientError{Message: "failed to encode request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &ClientError{Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ClientError{Message: "completion request failed", Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", &ClientError{Status: resp.StatusCode, Message: "failed to read response", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("backend returned status %d", resp.StatusCode)
		var parsed completionResponse
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", &ClientError{Status: resp.StatusCode, Message: msg}
	}

	var parsed completionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &ClientError{Status: resp.StatusCode, Message: "invalid response body", Cause: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &ClientError{Status: resp.StatusCode, Message: "response contained no choices"}
	}
	return parsed.Choices[0].Message.Content, nil
}
