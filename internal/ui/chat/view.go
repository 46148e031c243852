// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the full chat screen.
func (m Model) View() string {
	if m.quit {
		return ""
	}
	if !m.ready {
		return "starting..."
	}

	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n")

	if m.mode == modeSessions {
		b.WriteString(m.sessionListView())
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")

	if stageView := m.stage.View(); stageView != "" {
		b.WriteString(stageView)
	} else if m.errText != "" {
		b.WriteString(m.theme.StreamError.Render(m.errText))
	}
	b.WriteString("\n")

	b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.statusBar.View())
	b.WriteString("\n")
	b.WriteString(m.statusBar.ShortcutHelp())

	return b.String()
}

func (m Model) headerView() string {
	title := m.theme.HeaderTitle.Render("opsdeck")
	meta := ""
	if m.session != nil {
		meta = m.theme.HeaderMeta.Render("  " + m.session.Title)
	}
	return m.theme.Header.Width(m.width).Render(title + meta)
}

// sessionListView renders the session picker overlay.
func (m Model) sessionListView() string {
	if len(m.sessions) == 0 {
		return m.theme.SessionMeta.Render("no sessions yet (ctrl+n to create one)")
	}

	var lines []string
	for i, session := range m.sessions {
		line := session.Title
		if line == "" {
			line = session.ID
		}
		meta := "  " + session.UpdatedAt.Format("Jan 2 15:04")
		if i == m.sessionIdx {
			lines = append(lines, m.theme.SessionItemSelected.Render(line)+m.theme.SessionMeta.Render(meta))
		} else {
			lines = append(lines, m.theme.SessionItem.Render(line)+m.theme.SessionMeta.Render(meta))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
