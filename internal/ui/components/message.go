// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/opsdeck-tui/internal/transcript"
	"github.com/jeranaias/opsdeck-tui/internal/ui/styles"
)

// =============================================================================
// TRANSCRIPT RENDERER
// =============================================================================

// truncatedSuffix is the marker appended to shortened log output.
const truncatedSuffix = "\n\n[truncated]"

// MessageRenderer turns transcript messages into styled terminal output.
type MessageRenderer struct {
	theme    *styles.Theme
	markdown *glamour.TermRenderer
	width    int
}

// NewMessageRenderer creates a renderer. When markdown is enabled assistant
// messages go through glamour; glamour setup failure silently falls back to
// plain text with highlighted code fences.
func NewMessageRenderer(theme *styles.Theme, markdown bool, width int) *MessageRenderer {
	r := &MessageRenderer{theme: theme, width: width}
	if markdown {
		style := glamour.WithStandardStyle("dark")
		if !theme.IsDark {
			style = glamour.WithStandardStyle("light")
		}
		md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width-4))
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

// SetWidth updates the wrap width for subsequent renders.
func (r *MessageRenderer) SetWidth(width int) {
	r.width = width
	if r.markdown != nil {
		style := glamour.WithStandardStyle("dark")
		if !r.theme.IsDark {
			style = glamour.WithStandardStyle("light")
		}
		if md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width-4)); err == nil {
			r.markdown = md
		}
	}
}

// Render renders the full transcript, one block per message.
func (r *MessageRenderer) Render(messages []transcript.RenderMessage) string {
	var blocks []string
	for _, msg := range messages {
		blocks = append(blocks, r.renderMessage(msg))
	}
	return strings.Join(blocks, "\n\n")
}

func (r *MessageRenderer) renderMessage(msg transcript.RenderMessage) string {
	switch msg.Role {
	case transcript.RoleUser:
		return r.theme.UserLabel.Render("you") + "\n" +
			r.theme.UserMessage.Render(msg.Text)
	case transcript.RoleLog:
		return r.renderLog(msg)
	default:
		return r.theme.AssistantLabel.Render("copilot") + "\n" +
			r.theme.AssistantMessage.Render(r.renderAssistantText(msg.Text))
	}
}

// renderAssistantText applies markdown or code-fence highlighting.
func (r *MessageRenderer) renderAssistantText(text string) string {
	if r.markdown != nil {
		if out, err := r.markdown.Render(text); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return ParseCodeBlocks(text, r.width)
}

// renderLog renders a tool log block. The truncation marker, when present,
// is lifted out of the body and styled as a notice.
func (r *MessageRenderer) renderLog(msg transcript.RenderMessage) string {
	body := msg.Text
	truncated := strings.HasSuffix(body, truncatedSuffix)
	if truncated {
		body = strings.TrimSuffix(body, truncatedSuffix)
	}

	out := r.theme.LogLabel.Render("pod logs") + "\n" +
		r.theme.LogBlock.Render(body)
	if truncated {
		out += "\n" + r.theme.TruncationNote.Render("[truncated]")
	}
	return out
}
