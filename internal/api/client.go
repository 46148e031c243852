// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the copilot server: session,
// message, tool-call, and run reads, plus the stream URL builder used by the
// streaming pipeline.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

const (
	// DefaultTimeout bounds non-streaming API requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps list response bodies to keep a misbehaving
	// server from exhausting memory.
	MaxResponseSize = 10 * 1024 * 1024

	// requestsPerSecond is the client-side politeness limit for refetch
	// bursts after a stream completes.
	requestsPerSecond = 20
)

// sharedHTTPClient pools connections for all non-streaming requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotConfigured indicates the client has no server URL.
var ErrNotConfigured = errors.New("copilot server URL not configured")

// APIError is a non-2xx response from the copilot server.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("copilot API error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("copilot API error (%d)", e.Status)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the copilot server's REST surface.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client for the given base URL (e.g.
// "http://localhost:8000/api").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    sharedHTTPClient,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// WithHTTPClient overrides the underlying HTTP client. Used in tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// IsConfigured reports whether a server URL is set.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// StreamURL returns the chat stream endpoint for a session.
func (c *Client) StreamURL(sessionID string) string {
	return fmt.Sprintf("%s/sessions/%s/chat/stream", c.baseURL, url.PathEscape(sessionID))
}

// do executes one API request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorDetail(raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorDetail extracts a human-readable detail from an error body.
func errorDetail(raw []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	if payload.Detail != "" {
		return payload.Detail
	}
	return payload.Message
}

// =============================================================================
// SESSIONS
// =============================================================================

// ListSessions returns a page of sessions, most recently updated first.
func (c *Client) ListSessions(ctx context.Context, offset, limit int) ([]Session, error) {
	query := url.Values{}
	if offset > 0 {
		query.Set("offset", fmt.Sprint(offset))
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}
	var out sessionListResponse
	if err := c.do(ctx, http.MethodGet, "/sessions", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateSession creates a session with the given title.
func (c *Client) CreateSession(ctx context.Context, title string) (Session, error) {
	var out Session
	body := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPost, "/sessions", nil, body, &out); err != nil {
		return Session{}, err
	}
	return out, nil
}

// RenameSession updates a session title.
func (c *Client) RenameSession(ctx context.Context, sessionID, title string) error {
	body := map[string]string{"title": title}
	path := "/sessions/" + url.PathEscape(sessionID)
	return c.do(ctx, http.MethodPatch, path, nil, body, nil)
}

// DeleteSession removes a session and its messages.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	path := "/sessions/" + url.PathEscape(sessionID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// =============================================================================
// MESSAGES, TOOL CALLS, RUNS
// =============================================================================

// ListMessages returns the persisted messages for a session ordered by
// creation time.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	query := url.Values{}
	query.Set("session_id", sessionID)
	var out messageListResponse
	if err := c.do(ctx, http.MethodGet, "/messages", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ListToolCalls returns tool-call records for the given run ids. With no run
// ids it falls back to querying by session.
func (c *Client) ListToolCalls(ctx context.Context, sessionID string, runIDs []string) ([]ToolCall, error) {
	query := url.Values{}
	if len(runIDs) > 0 {
		query.Set("run_ids", strings.Join(runIDs, ","))
	} else if sessionID != "" {
		query.Set("session_id", sessionID)
	}
	var out toolCallListResponse
	if err := c.do(ctx, http.MethodGet, "/tool-calls", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ListRuns returns the runs for a session, newest first, together with the
// session-level metrics rollup.
func (c *Client) ListRuns(ctx context.Context, sessionID string) (RunsResult, error) {
	query := url.Values{}
	query.Set("session_id", sessionID)
	var out runListResponse
	if err := c.do(ctx, http.MethodGet, "/runs", query, nil, &out); err != nil {
		return RunsResult{}, err
	}
	result := RunsResult{Items: out.Items}
	if out.SessionMetrics != nil {
		result.SessionMetrics = *out.SessionMetrics
	}
	return result, nil
}
