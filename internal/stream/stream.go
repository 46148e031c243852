// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrIncompleteStream indicates the stream closed before any terminal
	// event arrived. The run's outcome is unknown; callers must never treat
	// this as success.
	ErrIncompleteStream = errors.New("stream ended before a terminal event")

	// ErrFrameTooLarge indicates a single frame exceeded MaxFrameSize.
	ErrFrameTooLarge = errors.New("stream frame too large")
)

// HTTPError is a transport failure carrying the numeric response status.
type HTTPError struct {
	Status int
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("stream failed (%d)", e.Status)
}

// attemptError wraps a failed attempt together with how many events had
// already been delivered to the handler. The count drives the retry rule:
// once any event has reached the handler, a retry risks duplicate effects.
type attemptError struct {
	eventCount int
	cause      error
}

func (e *attemptError) Error() string {
	return fmt.Sprintf("stream attempt failed after %d events: %v", e.eventCount, e.cause)
}

func (e *attemptError) Unwrap() error {
	return e.cause
}

// =============================================================================
// RETRY POLICY
// =============================================================================

// Default retry configuration.
const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = 400 * time.Millisecond
)

// Handler receives each decoded event in arrival order.
type Handler func(Event)

// RetryConfig controls reconnection behaviour for Submit.
type RetryConfig struct {
	// MaxRetries is the number of reconnect attempts after the first try.
	MaxRetries int

	// BaseDelay is multiplied by the attempt number for linear backoff.
	BaseDelay time.Duration

	// OnRetry, if set, is called with the attempt number (1-based) and the
	// failure that triggered the retry, before the backoff delay. The UI
	// uses this to show a reconnecting indicator.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the stock retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultRetryDelay,
	}
}

// Result reports the outcome of a completed Submit call.
type Result struct {
	// TerminalReceived is true when a terminal event was observed.
	TerminalReceived bool

	// Attempts is how many connection attempts were made.
	Attempts int
}

// isRetriableStatus reports whether an HTTP status permits a reconnect.
func isRetriableStatus(status int) bool {
	if status >= 500 {
		return true
	}
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

// isRetriable classifies an attempt failure. HTTP errors retry only on
// selected statuses; any other transport failure is retriable by default.
func isRetriable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return isRetriableStatus(httpErr.Status)
	}
	return true
}

// =============================================================================
// STREAM CLIENT
// =============================================================================

// streamingClient has no overall timeout: stream lifetime is controlled via
// context, and the server holds the connection open for the whole run.
var streamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// chatRequest is the JSON body posted to open a stream.
type chatRequest struct {
	Message string `json:"message"`
}

// Submit opens the chat stream at url, feeds every decoded event to onEvent,
// and reconnects on failure within the retry policy.
//
// A failed attempt is retried only when all of the following hold: attempts
// so far are below cfg.MaxRetries, the failed attempt delivered zero events
// to onEvent, and the failure is classified retriable. Each retry starts
// with a clean decoder; no partial frame state survives across attempts.
//
// When the stream ends cleanly without a terminal event, Submit returns the
// Result together with ErrIncompleteStream.
func Submit(ctx context.Context, url, message string, onEvent Handler, cfg RetryConfig) (Result, error) {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryDelay
	}

	attempt := 0
	for {
		terminal, eventCount, err := runAttempt(ctx, url, message, onEvent)
		if err == nil {
			result := Result{TerminalReceived: terminal, Attempts: attempt + 1}
			if !terminal {
				return result, ErrIncompleteStream
			}
			return result, nil
		}

		attErr := &attemptError{eventCount: eventCount, cause: err}

		canRetryByAttempt := attempt < cfg.MaxRetries
		canRetryByProgress := attErr.eventCount == 0
		canRetryByError := isRetriable(attErr.cause)
		if !(canRetryByAttempt && canRetryByProgress && canRetryByError) {
			return Result{Attempts: attempt + 1}, attErr.cause
		}

		attempt++
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, attErr.cause)
		}

		delay := cfg.BaseDelay * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return Result{Attempts: attempt}, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runAttempt executes one network attempt: open the connection, decode
// frames, deliver each event to onEvent. It returns whether a terminal event
// was seen and how many events reached the handler before any failure.
func runAttempt(ctx context.Context, url, message string, onEvent Handler) (terminal bool, eventCount int, err error) {
	body, err := json.Marshal(chatRequest{Message: message})
	if err != nil {
		return false, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := streamingClient.Do(req)
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return false, 0, &HTTPError{Status: resp.StatusCode}
	}

	decoder := NewDecoder(resp.Body)
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			return terminal, eventCount, nil
		}
		if err != nil {
			return terminal, eventCount, err
		}

		var event Event
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			// Malformed payloads are fatal for the attempt, not skipped:
			// silently dropping an event could lose a terminal outcome.
			return terminal, eventCount, fmt.Errorf("decode event: %w", err)
		}
		if frame.Event != "" {
			event.Type = frame.Event
		}

		eventCount++
		if event.Terminal() {
			terminal = true
		}
		onEvent(event)
	}
}
