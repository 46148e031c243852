// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"testing"

	"github.com/jeranaias/opsdeck-tui/internal/stream"
)

func deltaEvent(source, text string) stream.Event {
	payload := map[string]any{"text": text}
	if source != "" {
		payload["source"] = source
	}
	return stream.Event{Type: stream.EventTokenDelta, Payload: payload}
}

func logsEvent(runID string, items ...map[string]any) stream.Event {
	converted := make([]any, len(items))
	for i, item := range items {
		converted[i] = item
	}
	return stream.Event{
		Type:       stream.EventToolLogsAvailable,
		AgentRunID: runID,
		Payload:    map[string]any{"items": converted},
	}
}

func logItem(stepID, text string, truncated bool) map[string]any {
	return map[string]any{
		"step_id":   stepID,
		"tool_name": LogToolName,
		"text":      text,
		"truncated": truncated,
	}
}

func TestInterpreter_DeltaConcatenation(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "check the pods")

	it.Apply(deltaEvent("", "The pod "))
	it.Apply(deltaEvent("", "is "))
	it.Apply(deltaEvent("", "ready."))

	messages := it.Messages()
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2 (user + assistant)", len(messages))
	}
	if messages[0].Role != RoleUser || messages[0].Text != "check the pods" {
		t.Errorf("user message = %+v", messages[0])
	}
	if messages[1].Role != RoleAssistant {
		t.Errorf("Role = %q, want assistant", messages[1].Role)
	}
	if messages[1].Text != "The pod is ready." {
		t.Errorf("Text = %q, want concatenated deltas", messages[1].Text)
	}
}

func TestInterpreter_ConcurrentSourcesDoNotInterleave(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(deltaEvent("", "main "))
	it.Apply(deltaEvent("researcher", "side "))
	it.Apply(deltaEvent("", "answer"))
	it.Apply(deltaEvent("researcher", "note"))

	messages := it.Messages()
	if len(messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(messages))
	}
	if messages[1].Text != "main answer" {
		t.Errorf("answer fragment = %q, want %q", messages[1].Text, "main answer")
	}
	if messages[2].Text != "side note" {
		t.Errorf("researcher fragment = %q, want %q", messages[2].Text, "side note")
	}
}

func TestInterpreter_AnswerCompletedOverwritesDeltas(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(deltaEvent("", "partial garbage"))
	it.Apply(stream.Event{
		Type:    stream.EventAnswerCompleted,
		Payload: map[string]any{"message": "final answer"},
	})

	messages := it.Messages()
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if messages[1].Text != "final answer" {
		t.Errorf("Text = %q, want overwrite, not append", messages[1].Text)
	}
}

func TestInterpreter_AnswerCompletedWithoutDeltas(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(stream.Event{
		Type:    stream.EventAnswerCompleted,
		Payload: map[string]any{"message": "straight to final"},
	})

	messages := it.Messages()
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if messages[1].Role != RoleAssistant || messages[1].Text != "straight to final" {
		t.Errorf("assistant message = %+v", messages[1])
	}
}

func TestInterpreter_BlankAnswerKeepsDeltaText(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(deltaEvent("", "assembled text"))
	it.Apply(stream.Event{
		Type:    stream.EventAnswerCompleted,
		Payload: map[string]any{"message": "   "},
	})

	messages := it.Messages()
	if messages[1].Text != "assembled text" {
		t.Errorf("Text = %q, blank final message must not clobber deltas", messages[1].Text)
	}
}

func TestInterpreter_StageTransitions(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(stream.Event{Type: "planner.started", Payload: map[string]any{}})
	stage := it.Stage()
	if stage == nil {
		t.Fatal("Stage = nil, want running planner")
	}
	if stage.ID != "planner" || stage.Label != "Planning" || stage.State != StageRunning {
		t.Errorf("stage = %+v", stage)
	}

	it.Apply(stream.Event{Type: "planner.completed", Payload: map[string]any{}})
	stage = it.Stage()
	if stage == nil || stage.State != StageDone {
		t.Errorf("stage after completed = %+v, want done", stage)
	}

	// A new .started replaces the previous indicator.
	it.Apply(stream.Event{Type: "answer.started", Payload: map[string]any{}})
	stage = it.Stage()
	if stage == nil || stage.ID != "answer" || stage.Label != "Answering" {
		t.Errorf("stage = %+v, want answering", stage)
	}
}

func TestInterpreter_UnknownStageDisplaysVerbatim(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(stream.Event{Type: "retriever.started", Payload: map[string]any{}})
	stage := it.Stage()
	if stage == nil || stage.Label != "retriever" {
		t.Errorf("stage = %+v, want verbatim label", stage)
	}
}

func TestInterpreter_LogsDeferredUntilAnswer(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(stream.Event{Type: stream.EventAgentRunStarted, AgentRunID: "r1", Payload: map[string]any{}})
	it.Apply(deltaEvent("", "thinking"))
	it.Apply(logsEvent("r1",
		logItem("step-1", "pod ready", false),
		map[string]any{"step_id": "step-2", "tool_name": "k8s.describe_pod", "text": "wrong tool", "truncated": false},
		logItem("step-3", "   ", false),
		logItem("step-4", "tail of log", true),
	))

	// Logs must not appear before the answer is final.
	for _, m := range it.Messages() {
		if m.Role == RoleLog {
			t.Fatalf("log rendered before answer.completed: %+v", m)
		}
	}

	it.Apply(stream.Event{
		Type:       stream.EventAnswerCompleted,
		AgentRunID: "r1",
		Payload:    map[string]any{"message": "all good"},
	})

	messages := it.Messages()
	if len(messages) != 4 {
		t.Fatalf("messages = %d, want user+answer+2 logs", len(messages))
	}
	if messages[1].Text != "all good" {
		t.Errorf("answer = %q", messages[1].Text)
	}
	if messages[2].Role != RoleLog || messages[2].Text != "pod ready" {
		t.Errorf("first log = %+v", messages[2])
	}
	if messages[3].Text != "tail of log\n\n[truncated]" {
		t.Errorf("truncated log = %q, want marker appended", messages[3].Text)
	}
}

func TestInterpreter_LateLogsFlushedOnRunCompleted(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(stream.Event{Type: stream.EventAgentRunStarted, AgentRunID: "r1", Payload: map[string]any{}})
	it.Apply(stream.Event{
		Type:       stream.EventAnswerCompleted,
		AgentRunID: "r1",
		Payload:    map[string]any{"message": "answer first"},
	})
	// Logs arrive after answer.completed already flushed.
	it.Apply(logsEvent("r1", logItem("step-1", "late log", false)))
	it.Apply(stream.Event{Type: stream.EventAgentRunCompleted, AgentRunID: "r1", Payload: map[string]any{}})

	messages := it.Messages()
	if len(messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(messages))
	}
	if messages[1].Text != "answer first" || messages[2].Text != "late log" {
		t.Errorf("order = [%q %q], want answer then log", messages[1].Text, messages[2].Text)
	}
	if it.Stage() != nil {
		t.Error("Stage should clear on agent_run.completed")
	}
}

func TestInterpreter_LogsNeverDuplicated(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(stream.Event{Type: stream.EventAgentRunStarted, AgentRunID: "r1", Payload: map[string]any{}})
	it.Apply(logsEvent("r1", logItem("step-1", "pod ready", false)))
	it.Apply(stream.Event{
		Type:       stream.EventAnswerCompleted,
		AgentRunID: "r1",
		Payload:    map[string]any{"message": "ok"},
	})
	// The same log item is redelivered before the run completes.
	it.Apply(logsEvent("r1", logItem("step-1", "pod ready", false)))
	it.Apply(stream.Event{Type: stream.EventAgentRunCompleted, AgentRunID: "r1", Payload: map[string]any{}})

	logCount := 0
	for _, m := range it.Messages() {
		if m.Role == RoleLog {
			logCount++
		}
	}
	if logCount != 1 {
		t.Errorf("log messages = %d, want exactly 1", logCount)
	}
}

func TestInterpreter_RunFailedSurfacesReason(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(stream.Event{Type: stream.EventAgentRunStarted, AgentRunID: "r1", Payload: map[string]any{}})
	it.Apply(stream.Event{
		Type:    stream.EventAgentRunFailed,
		Payload: map[string]any{"reason": "budget exceeded"},
	})

	if it.Err() != "budget exceeded" {
		t.Errorf("Err = %q, want reason surfaced", it.Err())
	}
	if it.Stage() != nil {
		t.Error("Stage should clear on agent_run.failed")
	}
}

func TestInterpreter_ErrorEventSurfacesMessage(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(stream.Event{
		Type:    stream.EventError,
		Payload: map[string]any{"message": "runtime unavailable"},
	})

	if it.Err() != "runtime unavailable" {
		t.Errorf("Err = %q", it.Err())
	}
}

func TestInterpreter_BlankReasonNotSurfaced(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	it.Apply(stream.Event{
		Type:    stream.EventAgentRunFailed,
		Payload: map[string]any{"reason": "  "},
	})

	if it.Err() != "" {
		t.Errorf("Err = %q, want empty for blank reason", it.Err())
	}
}

func TestInterpreter_UnknownEventsIgnored(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")

	before := len(it.Messages())
	it.Apply(stream.Event{Type: "telemetry.heartbeat", Payload: map[string]any{"x": 1}})
	it.Apply(stream.Event{Type: "message", Payload: map[string]any{}})

	if len(it.Messages()) != before {
		t.Error("unknown events must not change messages")
	}
	if it.Stage() != nil || it.Err() != "" {
		t.Error("unknown events must not touch stage or error")
	}
}

func TestInterpreter_MessagesAccumulateAcrossSubmissions(t *testing.T) {
	it := NewInterpreter()

	it.Begin("s1", "first question")
	it.Apply(stream.Event{
		Type:    stream.EventAnswerCompleted,
		Payload: map[string]any{"message": "first answer"},
	})

	it.Begin("s2", "second question")
	it.Apply(stream.Event{
		Type:    stream.EventAnswerCompleted,
		Payload: map[string]any{"message": "second answer"},
	})

	messages := it.Messages()
	if len(messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(messages))
	}
	if messages[0].ID == messages[2].ID || messages[1].ID == messages[3].ID {
		t.Error("submission ids must not collide across Begin calls")
	}
}

func TestInterpreter_ResetClearsEverything(t *testing.T) {
	it := NewInterpreter()
	it.Begin("s1", "q")
	it.Apply(stream.Event{Type: stream.EventAgentRunStarted, AgentRunID: "r1", Payload: map[string]any{}})
	it.Apply(logsEvent("r1", logItem("step-1", "buffered", false)))
	it.Apply(stream.Event{Type: "planner.started", Payload: map[string]any{}})

	it.Reset()

	if len(it.Messages()) != 0 {
		t.Error("Reset must clear messages")
	}
	if it.Stage() != nil {
		t.Error("Reset must clear stage")
	}

	// A run completing after reset must not resurrect buffered logs.
	it.Begin("s3", "next")
	it.Apply(stream.Event{Type: stream.EventAgentRunCompleted, AgentRunID: "r1", Payload: map[string]any{}})
	for _, m := range it.Messages() {
		if m.Role == RoleLog {
			t.Errorf("stale log leaked across Reset: %+v", m)
		}
	}
}
