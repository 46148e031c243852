// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/opsdeck-tui/internal/stream"
)

// =============================================================================
// STREAM PLUMBING
// =============================================================================

// streamSession owns one in-flight submission: the goroutine running the
// stream and the channel carrying its messages into the Bubble Tea loop.
type streamSession struct {
	streamID string
	events   chan tea.Msg
	cancel   context.CancelFunc
}

// startStream launches the submission goroutine and returns the session
// handle plus the first wait command. Events, retry notices, and the final
// result all arrive as messages on the channel; the channel is closed when
// the stream ends.
func startStream(client streamSubmitter, url, streamID, message string, cfg stream.RetryConfig) (*streamSession, tea.Cmd) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &streamSession{
		streamID: streamID,
		events:   make(chan tea.Msg, 32),
		cancel:   cancel,
	}

	cfg.OnRetry = func(attempt int, err error) {
		s.events <- StreamRetryMsg{StreamID: streamID, Attempt: attempt}
	}

	go func() {
		defer close(s.events)
		result, err := client.Submit(ctx, url, message, func(ev stream.Event) {
			s.events <- StreamEventMsg{StreamID: streamID, Event: ev}
		}, cfg)
		s.events <- StreamDoneMsg{StreamID: streamID, Result: result, Err: err}
	}()

	return s, waitForStream(s)
}

// streamSubmitter is the slice of the stream package the chat model needs.
// Narrowed to an interface so tests can substitute a fake.
type streamSubmitter interface {
	Submit(ctx context.Context, url, message string, onEvent stream.Handler, cfg stream.RetryConfig) (stream.Result, error)
}

// submitterFunc adapts a function to streamSubmitter.
type submitterFunc func(ctx context.Context, url, message string, onEvent stream.Handler, cfg stream.RetryConfig) (stream.Result, error)

func (f submitterFunc) Submit(ctx context.Context, url, message string, onEvent stream.Handler, cfg stream.RetryConfig) (stream.Result, error) {
	return f(ctx, url, message, onEvent, cfg)
}

// defaultSubmitter routes to the package-level streaming client.
var defaultSubmitter streamSubmitter = submitterFunc(stream.Submit)

// waitForStream returns a command that delivers the next message from the
// stream channel, or nil when the channel is closed.
func waitForStream(s *streamSession) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-s.events
		if !ok {
			return nil
		}
		return msg
	}
}

// stop cancels the in-flight stream. The goroutine drains through the
// channel close, so pending sends cannot leak.
func (s *streamSession) stop() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}
