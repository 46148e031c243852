// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides a local sqlite mirror of fetched transcripts so
// sessions remain readable when the copilot server is unreachable.
package cache

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1
)

// SQLite schema for the transcript cache
const Schema = `
-- Metadata table for schema version
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- Sessions mirrored from the server
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL, -- Unix timestamp
    updated_at INTEGER NOT NULL
);

-- Persisted messages per session, in creation order
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    metadata_json TEXT,           -- Raw metadata blob, carries run_id
    position INTEGER NOT NULL     -- Preserves server ordering
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, position);

-- Tool-call records per run
CREATE TABLE IF NOT EXISTS tool_calls (
    id TEXT PRIMARY KEY,
    agent_run_id TEXT NOT NULL,
    tool_name TEXT NOT NULL,
    truncated INTEGER NOT NULL,
    log_text TEXT,
    session_id TEXT NOT NULL,
    position INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tool_calls_run ON tool_calls(agent_run_id, position);
CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id, position);
`
