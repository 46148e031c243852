// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// writeFrame writes one wire frame to w and flushes it.
func writeFrame(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func testConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}
}

func TestSubmit_TerminalEventReceived(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		writeFrame(w, "agent_run.started", `{"type":"agent_run.started","agent_run_id":"r1","payload":{}}`)
		writeFrame(w, "answer.completed", `{"type":"answer.completed","payload":{"message":"done"}}`)
		writeFrame(w, "agent_run.completed", `{"type":"agent_run.completed","agent_run_id":"r1","payload":{}}`)
	}))
	defer server.Close()

	var events []Event
	result, err := Submit(context.Background(), server.URL, "hi", func(ev Event) {
		events = append(events, ev)
	}, testConfig())

	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !result.TerminalReceived {
		t.Error("TerminalReceived = false, want true")
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[1].PayloadString("message") != "done" {
		t.Errorf("payload message = %q, want %q", events[1].PayloadString("message"), "done")
	}
}

func TestSubmit_FrameEventNameOverridesPayloadType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrame(w, "agent_run.completed", `{"type":"something.else","payload":{}}`)
	}))
	defer server.Close()

	var got Event
	result, err := Submit(context.Background(), server.URL, "hi", func(ev Event) {
		got = ev
	}, testConfig())

	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got.Type != "agent_run.completed" {
		t.Errorf("Type = %q, want frame event name", got.Type)
	}
	if !result.TerminalReceived {
		t.Error("TerminalReceived = false, want true")
	}
}

func TestSubmit_IncompleteStreamIsNotSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrame(w, "planner.started", `{"type":"planner.started","payload":{}}`)
		// Stream ends cleanly with no terminal event.
	}))
	defer server.Close()

	result, err := Submit(context.Background(), server.URL, "hi", func(Event) {}, testConfig())

	if !errors.Is(err, ErrIncompleteStream) {
		t.Fatalf("err = %v, want ErrIncompleteStream", err)
	}
	if result.TerminalReceived {
		t.Error("TerminalReceived = true, want false")
	}
}

func TestSubmit_BackoffGrowsLinearly(t *testing.T) {
	var mu sync.Mutex
	var arrivals []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	base := 40 * time.Millisecond
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: base}

	start := time.Now()
	_, err := Submit(context.Background(), server.URL, "hi", func(Event) {}, cfg)
	elapsed := time.Since(start)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want HTTPError after retries exhausted", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(arrivals) != 3 {
		t.Fatalf("server saw %d attempts, want 3", len(arrivals))
	}

	// Delay before attempt n+1 is base multiplied by the retry number:
	// base before the second attempt, 2*base before the third.
	gap1 := arrivals[1].Sub(arrivals[0])
	gap2 := arrivals[2].Sub(arrivals[1])
	if gap1 < base {
		t.Errorf("first backoff = %v, want >= %v", gap1, base)
	}
	if gap2 < 2*base {
		t.Errorf("second backoff = %v, want >= %v", gap2, 2*base)
	}
	if gap2 <= gap1 {
		t.Errorf("backoff did not grow: first %v, second %v", gap1, gap2)
	}
	if elapsed > 10*(base*3) {
		t.Errorf("retries took %v, far beyond the scheduled %v", elapsed, base*3)
	}
}

func TestSubmit_RetriesServerErrorsBeforeProgress(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeFrame(w, "agent_run.completed", `{"type":"agent_run.completed","payload":{}}`)
	}))
	defer server.Close()

	var retries []int
	cfg := testConfig()
	cfg.OnRetry = func(attempt int, err error) {
		retries = append(retries, attempt)
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || httpErr.Status != http.StatusServiceUnavailable {
			t.Errorf("retry cause = %v, want 503 HTTPError", err)
		}
	}

	result, err := Submit(context.Background(), server.URL, "hi", func(Event) {}, cfg)

	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("retry attempts = %v, want [1 2]", retries)
	}
}

func TestSubmit_ExhaustsRetries(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := Submit(context.Background(), server.URL, "hi", func(Event) {}, testConfig())

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want HTTPError", err)
	}
	if httpErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", httpErr.Status)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3 (1 try + 2 retries)", got)
	}
}

func TestSubmit_ClientErrorsNeverRetry(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := Submit(context.Background(), server.URL, "hi", func(Event) {}, testConfig())

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 HTTPError", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestSubmit_RetriableStatuses(t *testing.T) {
	tests := []struct {
		status    int
		retriable bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusConflict, false},
	}
	for _, tt := range tests {
		if got := isRetriableStatus(tt.status); got != tt.retriable {
			t.Errorf("isRetriableStatus(%d) = %v, want %v", tt.status, got, tt.retriable)
		}
	}
}

func TestSubmit_NoRetryAfterProgress(t *testing.T) {
	// The server delivers one event and then severs the connection
	// mid-body. The attempt fails, but because an event already reached
	// the handler a retry is forbidden.
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack failed: %v", err)
			return
		}
		defer conn.Close()
		frame := "event: assistant.token.delta\ndata: {\"type\":\"assistant.token.delta\",\"payload\":{\"text\":\"hi\"}}\n\n"
		// Promise more bytes than are sent so the client sees an
		// unexpected EOF instead of a clean stream end.
		fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nContent-Length: %d\r\n\r\n", len(frame)+512)
		buf.WriteString(frame)
		buf.Flush()
	}))
	defer server.Close()

	var events int
	_, err := Submit(context.Background(), server.URL, "hi", func(Event) {
		events++
	}, testConfig())

	if err == nil {
		t.Fatal("expected error from severed stream")
	}
	if errors.Is(err, ErrIncompleteStream) {
		t.Fatalf("err = %v, want transport error, not incomplete-stream", err)
	}
	if events != 1 {
		t.Errorf("events = %d, want 1", events)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1 (no retry after progress)", got)
	}
}

func TestSubmit_ConnectionRefusedRetries(t *testing.T) {
	// A non-HTTP transport error before progress is retriable by default.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var retries int
	cfg := RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, OnRetry: func(int, error) {
		retries++
	}}

	_, err := Submit(context.Background(), url, "hi", func(Event) {}, cfg)

	if err == nil {
		t.Fatal("expected connection error")
	}
	if retries != 1 {
		t.Errorf("retries = %d, want 1", retries)
	}
}

func TestSubmit_MalformedPayloadFailsAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrame(w, "answer.completed", "not json at all")
	}))
	defer server.Close()

	cfg := RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond}
	_, err := Submit(context.Background(), server.URL, "hi", func(Event) {}, cfg)

	if err == nil || !strings.Contains(err.Error(), "decode event") {
		t.Fatalf("err = %v, want decode failure", err)
	}
}

func TestSubmit_ContextCancelDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, OnRetry: func(int, error) {
		cancel()
	}}

	_, err := Submit(ctx, server.URL, "hi", func(Event) {}, cfg)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestEvent_Terminal(t *testing.T) {
	tests := []struct {
		eventType string
		terminal  bool
	}{
		{EventAgentRunCompleted, true},
		{EventAgentRunFailed, true},
		{EventError, true},
		{EventTokenDelta, false},
		{EventAnswerCompleted, false},
		{"planner.started", false},
	}
	for _, tt := range tests {
		ev := Event{Type: tt.eventType}
		if ev.Terminal() != tt.terminal {
			t.Errorf("Terminal(%s) = %v, want %v", tt.eventType, ev.Terminal(), tt.terminal)
		}
	}
}

func TestEvent_SourceDefaultsToAnswer(t *testing.T) {
	tests := []struct {
		payload map[string]any
		want    string
	}{
		{map[string]any{}, "answer"},
		{map[string]any{"source": ""}, "answer"},
		{map[string]any{"source": "   "}, "answer"},
		{map[string]any{"source": "researcher"}, "researcher"},
		{map[string]any{"source": 7}, "answer"},
	}
	for _, tt := range tests {
		ev := Event{Payload: tt.payload}
		if got := ev.Source(); got != tt.want {
			t.Errorf("Source(%v) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}
