// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream implements the chat event stream transport: a frame
// decoder for the blank-line delimited wire format, typed chat events, and
// a reconnecting submit loop.
//
// The retry rule is progress-based: an attempt that has delivered at least
// one event to the handler is never retried, because the transport cannot
// guarantee exactly-once delivery across reconnects. Only attempts that
// failed before any event reached the handler may reconnect, with linear
// backoff, and only for retriable failures (HTTP 5xx, 408, 429, or plain
// transport errors).
package stream
