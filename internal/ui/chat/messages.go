// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view for the TUI: the transcript viewport,
// the composer, the live stage indicator, and the streaming plumbing that
// feeds agent events into the Bubble Tea loop.
package chat

import (
	"github.com/jeranaias/opsdeck-tui/internal/api"
	"github.com/jeranaias/opsdeck-tui/internal/config"
	"github.com/jeranaias/opsdeck-tui/internal/stream"
	"github.com/jeranaias/opsdeck-tui/internal/transcript"
)

// =============================================================================
// MESSAGES
// =============================================================================

// StreamEventMsg carries one agent event from the streaming goroutine.
type StreamEventMsg struct {
	StreamID string
	Event    stream.Event
}

// StreamRetryMsg signals that the stream lost its connection before any
// event arrived and is about to retry.
type StreamRetryMsg struct {
	StreamID string
	Attempt  int
}

// StreamDoneMsg signals the end of a submission, successful or not.
type StreamDoneMsg struct {
	StreamID string
	Result   stream.Result
	Err      error
}

// SessionsLoadedMsg carries the session list from the server.
type SessionsLoadedMsg struct {
	Sessions []api.Session
	Err      error
}

// SessionCreatedMsg carries a freshly created session.
type SessionCreatedMsg struct {
	Session api.Session
	Err     error
}

// TranscriptLoadedMsg carries the persisted transcript inputs for the
// active session.
type TranscriptLoadedMsg struct {
	SessionID string
	Messages  []api.Message
	ToolCalls []api.ToolCall
	FromCache bool
	Err       error
}

// ConfigReloadedMsg delivers a fresh configuration after the config file
// changed on disk. Stream and markdown settings apply immediately; a theme
// change takes effect on the next start.
type ConfigReloadedMsg struct {
	Cfg *config.Config
}

// MetricsLoadedMsg carries run accounting for the status bar.
type MetricsLoadedMsg struct {
	SessionID string
	Runs      api.RunsResult
	Err       error
}

// persistedRefreshMsg asks the model to refetch messages and tool calls
// after a run completes, replacing the live fragments.
type persistedRefreshMsg struct {
	SessionID string
}

// liveSnapshot is the interpreter output applied to the viewport.
type liveSnapshot struct {
	messages []transcript.RenderMessage
	stage    *transcript.Stage
	errText  string
}
