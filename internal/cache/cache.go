// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/opsdeck-tui/internal/api"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed = errors.New("cache is closed")
)

// =============================================================================
// TRANSCRIPT CACHE
// =============================================================================

// Store mirrors server transcripts in a local sqlite database. Writes are
// replace-on-refresh: each successful fetch overwrites the cached copy for
// that session, so the cache never diverges forward of the server.
type Store struct {
	db *sql.DB
}

// Open creates or opens the cache database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// modernc sqlite serializes access internally; a single connection
	// avoids table-lock contention between readers and the refresh writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(
		`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(SchemaVersion),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("record schema version: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// =============================================================================
// SESSIONS
// =============================================================================

// ReplaceSessions overwrites the cached session list.
func (s *Store) ReplaceSessions(ctx context.Context, sessions []api.Session) error {
	if s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return err
	}
	for _, session := range sessions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			session.ID, session.Title, session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Sessions returns the cached sessions, most recently updated first.
func (s *Store) Sessions(ctx context.Context) ([]api.Session, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.Session
	for rows.Next() {
		var session api.Session
		var created, updated int64
		if err := rows.Scan(&session.ID, &session.Title, &created, &updated); err != nil {
			return nil, err
		}
		session.CreatedAt = time.Unix(created, 0).UTC()
		session.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, session)
	}
	return out, rows.Err()
}

// =============================================================================
// MESSAGES
// =============================================================================

// ReplaceMessages overwrites the cached messages for one session.
func (s *Store) ReplaceMessages(ctx context.Context, sessionID string, messages []api.Message) error {
	if s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	for position, message := range messages {
		metadata, err := encodeMetadata(message.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (id, session_id, role, content, created_at, metadata_json, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			message.ID, sessionID, message.Role, message.Content,
			message.CreatedAt.Unix(), metadata, position,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Messages returns the cached messages for a session in server order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]api.Message, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at, metadata_json FROM messages
		 WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.Message
	for rows.Next() {
		var message api.Message
		var created int64
		var metadata sql.NullString
		if err := rows.Scan(&message.ID, &message.Role, &message.Content, &created, &metadata); err != nil {
			return nil, err
		}
		message.SessionID = sessionID
		message.CreatedAt = time.Unix(created, 0).UTC()
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &message.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", message.ID, err)
			}
		}
		out = append(out, message)
	}
	return out, rows.Err()
}

// =============================================================================
// TOOL CALLS
// =============================================================================

// ReplaceToolCalls overwrites the cached tool calls for one session.
func (s *Store) ReplaceToolCalls(ctx context.Context, sessionID string, toolCalls []api.ToolCall) error {
	if s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_calls WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	for position, record := range toolCalls {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tool_calls (id, agent_run_id, tool_name, truncated, log_text, session_id, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			record.ID, record.AgentRunID, record.ToolName,
			boolToInt(record.Truncated), record.LogText, sessionID, position,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ToolCalls returns the cached tool calls for a session in server order.
func (s *Store) ToolCalls(ctx context.Context, sessionID string) ([]api.ToolCall, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_run_id, tool_name, truncated, log_text FROM tool_calls
		 WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.ToolCall
	for rows.Next() {
		var record api.ToolCall
		var truncated int
		var logText sql.NullString
		if err := rows.Scan(&record.ID, &record.AgentRunID, &record.ToolName, &truncated, &logText); err != nil {
			return nil, err
		}
		record.Truncated = truncated != 0
		record.LogText = logText.String
		out = append(out, record)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func encodeMetadata(metadata map[string]any) (sql.NullString, error) {
	if metadata == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode metadata: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
