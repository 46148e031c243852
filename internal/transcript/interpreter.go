// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"strings"

	"github.com/jeranaias/opsdeck-tui/internal/stream"
)

// =============================================================================
// EVENT INTERPRETER
// =============================================================================

// LogToolName is the tool whose output is rendered as log messages.
const LogToolName = "k8s.get_pod_logs"

// truncationMarker is appended to log text the server flagged as truncated.
const truncationMarker = "\n\n[truncated]"

// Interpreter folds chat stream events into live render state: the
// accumulated stream messages for the active session, the current stage
// indicator, and a per-run buffer of deferred log lines.
//
// Logs are deferred rather than inserted on arrival because they typically
// reach the client interleaved with the assistant's partial text, but must
// visually follow the final answer line. They are flushed after the answer
// message on answer.completed, and any stragglers are flushed on
// agent_run.completed so no log is lost under reordering.
//
// All state transitions happen synchronously inside Apply; the caller
// invokes it from a single goroutine per the frame arrival order.
type Interpreter struct {
	streamID    string
	messages    []RenderMessage
	activeRunID string
	pendingLogs map[string][]RenderMessage
	stage       *Stage
	errText     string
}

// NewInterpreter creates an empty live transcript for one session.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		pendingLogs: make(map[string][]RenderMessage),
	}
}

// Begin starts a new submission: it records the stream id, appends the
// optimistic user message, and clears any stale stage or error from the
// previous submission. Messages from earlier submissions in the same
// session are kept until the session switches.
func (it *Interpreter) Begin(streamID, userText string) {
	it.streamID = streamID
	it.stage = nil
	it.errText = ""
	it.messages = append(it.messages, RenderMessage{
		ID:   userMessageID(streamID),
		Role: RoleUser,
		Text: userText,
	})
}

// Reset drops all live state. Called when the active session changes.
func (it *Interpreter) Reset() {
	it.streamID = ""
	it.messages = nil
	it.activeRunID = ""
	it.pendingLogs = make(map[string][]RenderMessage)
	it.stage = nil
	it.errText = ""
}

// Messages returns a copy of the live render messages in display order.
func (it *Interpreter) Messages() []RenderMessage {
	out := make([]RenderMessage, len(it.messages))
	copy(out, it.messages)
	return out
}

// Stage returns the live stage indicator, or nil when none is active.
func (it *Interpreter) Stage() *Stage {
	if it.stage == nil {
		return nil
	}
	s := *it.stage
	return &s
}

// Err returns the user-visible error surfaced by the stream, or "".
func (it *Interpreter) Err() string {
	return it.errText
}

// Apply folds one event into the live state. Unknown event types are
// ignored so future vocabulary additions cannot crash the client.
func (it *Interpreter) Apply(ev stream.Event) {
	if ev.Type == stream.EventTokenDelta {
		it.applyDelta(ev)
		return
	}

	if stage, state, ok := stageFromEventType(ev.Type); ok {
		it.stage = &Stage{ID: stage, Label: StageLabel(stage), State: state}
	}

	switch ev.Type {
	case stream.EventAgentRunStarted:
		it.activeRunID = ev.AgentRunID

	case stream.EventToolLogsAvailable:
		it.bufferLogs(ev)

	case stream.EventAnswerCompleted:
		it.applyAnswer(ev)

	case stream.EventAgentRunCompleted:
		// Logs that arrived after answer.completed are flushed here so
		// they still land directly after the run's answer message.
		it.flushLogs(it.runIDFor(ev))
		it.activeRunID = ""
		it.stage = nil

	case stream.EventAgentRunFailed:
		it.activeRunID = ""
		it.stage = nil
		if reason := strings.TrimSpace(ev.PayloadString("reason")); reason != "" {
			it.errText = reason
		}

	case stream.EventError:
		if message := strings.TrimSpace(ev.PayloadString("message")); message != "" {
			it.errText = message
		}
		it.activeRunID = ""
		it.stage = nil
	}
}

// stageFromEventType maps ".started"/".completed" suffixed event types to a
// stage name and indicator state.
func stageFromEventType(eventType string) (string, StageState, bool) {
	if stage, ok := strings.CutSuffix(eventType, ".started"); ok {
		return stage, StageRunning, true
	}
	if stage, ok := strings.CutSuffix(eventType, ".completed"); ok {
		return stage, StageDone, true
	}
	return "", "", false
}

// runIDFor resolves the run an event belongs to, preferring the run id on
// the event itself over the tracked active run.
func (it *Interpreter) runIDFor(ev stream.Event) string {
	if ev.AgentRunID != "" {
		return ev.AgentRunID
	}
	return it.activeRunID
}

// applyDelta appends a token delta to the fragment keyed by
// (stream id, source), creating the fragment on first sight.
func (it *Interpreter) applyDelta(ev stream.Event) {
	text := ev.PayloadString("text")
	id := assistantMessageID(it.streamID, ev.Source())
	if i := it.findMessage(id); i >= 0 {
		it.messages[i].Text += text
		return
	}
	it.messages = append(it.messages, RenderMessage{ID: id, Role: RoleAssistant, Text: text})
}

// applyAnswer overwrites the "answer" fragment with the final message text,
// then flushes the run's buffered logs in behind it. Overwrite, not append:
// the final text supersedes any delta-assembled content.
func (it *Interpreter) applyAnswer(ev stream.Event) {
	final := ev.PayloadString("message")
	if strings.TrimSpace(final) != "" {
		id := assistantMessageID(it.streamID, "answer")
		if i := it.findMessage(id); i >= 0 {
			it.messages[i].Text = final
		} else {
			it.messages = append(it.messages, RenderMessage{ID: id, Role: RoleAssistant, Text: final})
		}
	}
	it.flushLogs(it.runIDFor(ev))
}

// bufferLogs converts matching payload items into log render messages and
// defers them under the owning run id.
func (it *Interpreter) bufferLogs(ev stream.Event) {
	items, ok := ev.Payload["items"].([]any)
	if !ok {
		return
	}
	runID := it.runIDFor(ev)
	for index, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		toolName, _ := item["tool_name"].(string)
		if toolName != LogToolName {
			continue
		}
		text, _ := item["text"].(string)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if truncated, _ := item["truncated"].(bool); truncated {
			text += truncationMarker
		}
		stepID, _ := item["step_id"].(string)
		it.pendingLogs[runID] = append(it.pendingLogs[runID], RenderMessage{
			ID:   liveLogID(runID, stepID, index),
			Role: RoleLog,
			Text: text,
		})
	}
}

// flushLogs inserts the run's buffered logs directly after the answer
// message, deduplicated by id, and clears the buffer entry. When no answer
// message exists yet the logs go to the tail so they are never dropped.
func (it *Interpreter) flushLogs(runID string) {
	logs := it.pendingLogs[runID]
	if len(logs) == 0 {
		return
	}
	delete(it.pendingLogs, runID)

	fresh := logs[:0]
	for _, log := range logs {
		if it.findMessage(log.ID) < 0 {
			fresh = append(fresh, log)
		}
	}
	if len(fresh) == 0 {
		return
	}

	anchor := it.findMessage(assistantMessageID(it.streamID, "answer"))
	if anchor < 0 {
		it.messages = append(it.messages, fresh...)
		return
	}
	tail := make([]RenderMessage, len(it.messages[anchor+1:]))
	copy(tail, it.messages[anchor+1:])
	it.messages = append(it.messages[:anchor+1], append(fresh, tail...)...)
}

// findMessage returns the index of the message with the given id, or -1.
func (it *Interpreter) findMessage(id string) int {
	for i := range it.messages {
		if it.messages[i].ID == id {
			return i
		}
	}
	return -1
}
