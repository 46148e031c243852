// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"strings"

	"github.com/jeranaias/opsdeck-tui/internal/api"
)

// =============================================================================
// TRANSCRIPT MERGE
// =============================================================================

// taggedMessage is a render message carrying its owning run id during the
// merge walk.
type taggedMessage struct {
	RenderMessage
	runID string
}

// Build combines persisted messages (ordered by creation time), persisted
// tool-call records, and the live stream messages into one causally ordered
// transcript: each assistant message is followed by its run's logs, orphan
// logs land at the tail, and live messages are appended unchanged.
//
// Build is pure and deterministic: for fixed inputs the output sequence and
// every id are fully determined. Ids derive only from source record ids, so
// re-running it on stable inputs is idempotent.
func Build(persisted []api.Message, toolCalls []api.ToolCall, live []RenderMessage) []RenderMessage {
	messages := normalizeRunIDs(mapPersisted(persisted))
	logsByRun, runOrder := persistedLogs(toolCalls)

	merged := make([]RenderMessage, 0, len(messages)+len(toolCalls)+len(live))
	for _, message := range messages {
		merged = append(merged, message.RenderMessage)
		if message.Role != RoleAssistant || message.runID == "" {
			continue
		}
		for _, log := range logsByRun[message.runID] {
			merged = append(merged, log.RenderMessage)
		}
		delete(logsByRun, message.runID)
	}

	// Logs whose run id matched no visible assistant message stay visible
	// near the end instead of being silently dropped.
	for _, runID := range runOrder {
		for _, log := range logsByRun[runID] {
			orphan := log.RenderMessage
			orphan.ID = orphanLogID(orphan.ID)
			merged = append(merged, orphan)
		}
	}

	return append(merged, live...)
}

// mapPersisted converts stored messages to render messages tagged with the
// run id from their metadata.
func mapPersisted(persisted []api.Message) []taggedMessage {
	out := make([]taggedMessage, 0, len(persisted))
	for _, message := range persisted {
		role := RoleAssistant
		if message.Role == "user" {
			role = RoleUser
		}
		out = append(out, taggedMessage{
			RenderMessage: RenderMessage{ID: message.ID, Role: role, Text: message.Content},
			runID:         message.RunID(),
		})
	}
	return out
}

// normalizeRunIDs propagates run attribution: an assistant message without
// its own run id inherits the run id of the most recent user message, and
// that pending value is consumed exactly once. Two assistant messages in
// direct succession without their own run ids cannot both claim it.
func normalizeRunIDs(messages []taggedMessage) []taggedMessage {
	out := make([]taggedMessage, 0, len(messages))
	pendingUserRunID := ""
	for _, message := range messages {
		if message.Role == RoleUser {
			pendingUserRunID = message.runID
			out = append(out, message)
			continue
		}
		if message.Role == RoleAssistant && message.runID == "" && pendingUserRunID != "" {
			message.runID = pendingUserRunID
			pendingUserRunID = ""
			out = append(out, message)
			continue
		}
		out = append(out, message)
		if message.Role == RoleAssistant {
			pendingUserRunID = ""
		}
	}
	return out
}

// persistedLogs builds the run id -> ordered log messages multimap from
// stored tool-call records, keeping only log-producing tool output with
// non-blank text. runOrder preserves first-appearance order so the orphan
// walk stays deterministic.
func persistedLogs(toolCalls []api.ToolCall) (map[string][]taggedMessage, []string) {
	logsByRun := make(map[string][]taggedMessage)
	runOrder := make([]string, 0)
	for _, record := range toolCalls {
		if record.ToolName != LogToolName {
			continue
		}
		if strings.TrimSpace(record.LogText) == "" {
			continue
		}
		if record.AgentRunID == "" {
			continue
		}
		text := record.LogText
		if record.Truncated {
			text += truncationMarker
		}
		if _, seen := logsByRun[record.AgentRunID]; !seen {
			runOrder = append(runOrder, record.AgentRunID)
		}
		logsByRun[record.AgentRunID] = append(logsByRun[record.AgentRunID], taggedMessage{
			RenderMessage: RenderMessage{
				ID:   persistedLogID(record.ID),
				Role: RoleLog,
				Text: text,
			},
			runID: record.AgentRunID,
		})
	}
	return logsByRun, runOrder
}
