// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import "fmt"

// =============================================================================
// RENDER MESSAGES
// =============================================================================

// Role classifies a render message for display.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleLog       Role = "log"
)

// RenderMessage is one displayable transcript entry. Assistant messages are
// mutable while their stream is in flight; once superseded by a persisted
// message they are immutable.
type RenderMessage struct {
	ID   string
	Role Role
	Text string
}

// StageState is the display state of the live stage indicator.
type StageState string

const (
	StageRunning StageState = "running"
	StageDone    StageState = "done"
)

// Stage is the live indicator for the agent phase currently reported by the
// stream. At most one stage is visible at a time.
type Stage struct {
	ID    string
	Label string
	State StageState
}

// stageLabels maps known stage names to display labels. Unknown stages are
// shown verbatim.
var stageLabels = map[string]string{
	"agent_run":   "Run",
	"scope_check": "Scope check",
	"planner":     "Planning",
	"clarifier":   "Clarification",
	"answer":      "Answering",
}

// StageLabel returns the display label for a stage name.
func StageLabel(stage string) string {
	if label, ok := stageLabels[stage]; ok {
		return label
	}
	return stage
}

// =============================================================================
// MESSAGE IDENTITY
// =============================================================================

// Message ids are assembled in one place so the merge engine's dedup logic
// stays correct: live-stream ids, persisted-log ids, and orphan ids must
// never collide.

// userMessageID identifies the optimistic user message for a submission.
func userMessageID(streamID string) string {
	return fmt.Sprintf("temp-user-%s", streamID)
}

// assistantMessageID identifies the in-progress assistant fragment for a
// (submission, source) pair.
func assistantMessageID(streamID, source string) string {
	return fmt.Sprintf("temp-assistant-%s-%s", streamID, source)
}

// liveLogID identifies a log line delivered over the stream. Derived purely
// from run id, step id, and item index so replays dedup cleanly.
func liveLogID(runID, stepID string, index int) string {
	return fmt.Sprintf("log-%s-%s-%d", runID, stepID, index)
}

// persistedLogID namespaces a stored tool-call record id away from
// live-stream log ids.
func persistedLogID(recordID string) string {
	return fmt.Sprintf("persisted-log-%s", recordID)
}

// orphanLogID marks a log whose run matched no visible assistant message.
func orphanLogID(id string) string {
	return id + "-orphan"
}
