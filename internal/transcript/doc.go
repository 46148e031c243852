// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript turns the chat event stream and the persisted record
// stores into one ordered conversation for display.
//
// The Interpreter is a folding state machine over live events: it assembles
// assistant text from token deltas keyed by (submission, source), tracks
// the single live stage indicator, and defers tool log lines per run so
// they render after the answer they belong to.
//
// Build reconciles persisted history, persisted tool-call records, and the
// live messages into a single deterministic sequence. A log record is shown
// exactly once: attached to the assistant message of its owning run, or at
// the tail marked as an orphan when that run produced no visible assistant
// message. It is never silently dropped and never duplicated.
package transcript
