// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"sort"
	"time"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Session is one conversation container on the server.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a persisted conversation message. Metadata optionally carries
// the "run_id" that produced an assistant message.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata_json"`
}

// RunID returns the run id recorded in the message metadata, or "".
func (m Message) RunID() string {
	if m.Metadata == nil {
		return ""
	}
	if id, ok := m.Metadata["run_id"].(string); ok {
		return id
	}
	return ""
}

// ToolCall is a persisted record of one tool invocation within a run.
// LogText is populated only for log-producing tools.
type ToolCall struct {
	ID            string    `json:"id"`
	AgentRunID    string    `json:"agent_run_id"`
	ToolName      string    `json:"tool_name"`
	Status        string    `json:"status"`
	LatencyMs     int       `json:"latency_ms"`
	BytesReturned int       `json:"bytes_returned"`
	Truncated     bool      `json:"truncated"`
	ErrorMessage  string    `json:"error_message"`
	CreatedAt     time.Time `json:"created_at"`
	LogText       string    `json:"log_text"`
}

// NodeUsage is token and cost accounting for one agent node within a run.
type NodeUsage struct {
	AgentNode    string  `json:"agent_node"`
	TokensInput  int     `json:"tokens_input"`
	TokensOutput int     `json:"tokens_output"`
	TokensTotal  int     `json:"tokens_total"`
	CostUSD      float64 `json:"cost_usd"`
	LLMCallCount int     `json:"llm_call_count"`
}

// Usage is aggregate token and cost accounting.
type Usage struct {
	TokensInput  int     `json:"tokens_input"`
	TokensOutput int     `json:"tokens_output"`
	TokensTotal  int     `json:"tokens_total"`
	CostUSD      float64 `json:"cost_usd"`
	LLMCallCount int     `json:"llm_call_count"`
}

// RunMetrics is the per-run accounting block.
type RunMetrics struct {
	Usage     Usage       `json:"usage"`
	NodeUsage []NodeUsage `json:"node_usage"`
}

// Run is one agent execution in response to a single user submission.
type Run struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	Status    string     `json:"status"`
	Metrics   RunMetrics `json:"metrics"`
}

// SessionMetrics is the session-level rollup returned alongside runs.
type SessionMetrics struct {
	Usage    Usage `json:"usage"`
	RunCount int   `json:"run_count"`
}

// List response envelopes. Every collection endpoint wraps its records in
// an "items" array.
type (
	sessionListResponse struct {
		Items []Session `json:"items"`
	}
	messageListResponse struct {
		Items []Message `json:"items"`
	}
	toolCallListResponse struct {
		Items []ToolCall `json:"items"`
	}
	runListResponse struct {
		Items          []Run           `json:"items"`
		SessionMetrics *SessionMetrics `json:"session_metrics"`
	}
)

// RunsResult is the typed result of ListRuns.
type RunsResult struct {
	Items          []Run
	SessionMetrics SessionMetrics
}

// AggregateNodeUsage merges per-node usage across runs, summing counters
// for nodes that appear in more than one run. The result is sorted by cost,
// highest first.
func AggregateNodeUsage(runs []Run) []NodeUsage {
	merged := make(map[string]NodeUsage)
	order := make([]string, 0)
	for _, run := range runs {
		for _, node := range run.Metrics.NodeUsage {
			existing, ok := merged[node.AgentNode]
			if !ok {
				merged[node.AgentNode] = node
				order = append(order, node.AgentNode)
				continue
			}
			existing.TokensInput += node.TokensInput
			existing.TokensOutput += node.TokensOutput
			existing.TokensTotal += node.TokensTotal
			existing.CostUSD += node.CostUSD
			existing.LLMCallCount += node.LLMCallCount
			merged[node.AgentNode] = existing
		}
	}

	out := make([]NodeUsage, 0, len(merged))
	for _, name := range order {
		out = append(out, merged[name])
	}
	// Highest spend first; stable for equal costs.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CostUSD > out[j].CostUSD
	})
	return out
}
