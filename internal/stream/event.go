// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"strings"
)

// =============================================================================
// CHAT EVENTS
// =============================================================================

// Terminal event types signal that a run's outcome is final.
const (
	EventAgentRunStarted   = "agent_run.started"
	EventAgentRunCompleted = "agent_run.completed"
	EventAgentRunFailed    = "agent_run.failed"
	EventTokenDelta        = "assistant.token.delta"
	EventAnswerCompleted   = "answer.completed"
	EventToolLogsAvailable = "tool.logs.available"
	EventError             = "error"
)

// terminalEventTypes is the set of event types after which no further
// progress is expected from the stream.
var terminalEventTypes = map[string]bool{
	EventAgentRunCompleted: true,
	EventAgentRunFailed:    true,
	EventError:             true,
}

// Event is one decoded application event from the chat stream.
// Events are immutable once decoded.
type Event struct {
	Type       string         `json:"type"`
	Timestamp  string         `json:"timestamp"`
	SessionID  string         `json:"session_id"`
	AgentRunID string         `json:"agent_run_id"`
	Payload    map[string]any `json:"payload"`
}

// Terminal reports whether the event type signals a final run outcome.
func (e Event) Terminal() bool {
	return terminalEventTypes[e.Type]
}

// PayloadString extracts a string field from the payload verbatim.
// Returns "" when the field is absent or not a string. Token delta text is
// whitespace-significant, so no trimming happens here.
func (e Event) PayloadString(key string) string {
	value, ok := e.Payload[key]
	if !ok {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return s
}

// Source returns the payload "source" field, defaulting to "answer" when
// absent or blank. Token deltas from concurrent sub-agents carry distinct
// sources so their fragments never interleave.
func (e Event) Source() string {
	if source := strings.TrimSpace(e.PayloadString("source")); source != "" {
		return source
	}
	return "answer"
}
