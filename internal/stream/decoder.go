// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"bytes"
	"io"
)

// =============================================================================
// FRAME DECODER
// =============================================================================

// MaxFrameSize is the maximum allowed size for a single streamed frame (64KB).
const MaxFrameSize = 64 * 1024

// DefaultEventName is assigned to frames that carry no "event:" line.
const DefaultEventName = "message"

// Frame is one decoded unit of the streaming transport: an event name plus
// the concatenated data payload.
type Frame struct {
	Event string
	Data  []byte
}

// Decoder parses the chat stream framing from a raw byte stream.
//
// Frames are separated by a blank line. Each frame consists of an optional
// "event:" line followed by one or more "data:" lines; multiple data lines
// are joined with a newline. Unknown field lines are ignored. A frame whose
// data is empty after parsing is discarded without being emitted.
//
// A Decoder is valid for exactly one connection attempt. Retries must start
// with a fresh Decoder so no partial buffer leaks across attempts.
type Decoder struct {
	reader *bufio.Reader
	done   bool
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next returns the next complete frame from the stream.
//
// Input may arrive in arbitrary chunks; a trailing partial frame is buffered
// until its terminating blank line (or end of stream) arrives. A final
// well-formed frame left in the buffer when the stream ends without a
// trailing delimiter is still emitted. Returns io.EOF once the stream is
// exhausted.
func (d *Decoder) Next() (Frame, error) {
	if d.done {
		return Frame{}, io.EOF
	}

	event := DefaultEventName
	var dataLines [][]byte
	size := 0

	for {
		line, err := d.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				d.done = true
				// Flush a trailing frame that lacked its final delimiter.
				line = bytes.TrimRight(line, "\r\n")
				d.parseField(line, &event, &dataLines)
				if len(dataLines) > 0 {
					return Frame{Event: event, Data: bytes.Join(dataLines, []byte("\n"))}, nil
				}
				return Frame{}, io.EOF
			}
			return Frame{}, err
		}

		size += len(line)
		if size > MaxFrameSize {
			return Frame{}, ErrFrameTooLarge
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line terminates the frame.
		if len(line) == 0 {
			if len(dataLines) == 0 {
				// Empty frame, keep reading.
				event = DefaultEventName
				size = 0
				continue
			}
			return Frame{Event: event, Data: bytes.Join(dataLines, []byte("\n"))}, nil
		}

		d.parseField(line, &event, &dataLines)
	}
}

// parseField interprets one non-blank line of a frame.
func (d *Decoder) parseField(line []byte, event *string, dataLines *[][]byte) {
	switch {
	case bytes.HasPrefix(line, []byte("event:")):
		name := string(bytes.TrimSpace(line[len("event:"):]))
		if name != "" {
			*event = name
		}
	case bytes.HasPrefix(line, []byte("data:")):
		data := bytes.TrimLeft(line[len("data:"):], " \t")
		*dataLines = append(*dataLines, data)
	}
	// Other fields (id:, retry:, comments) are ignored.
}
