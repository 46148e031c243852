// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/opsdeck-tui/internal/ui/styles"
	"github.com/jeranaias/opsdeck-tui/internal/util"
)

// =============================================================================
// STATUS BAR
// =============================================================================

// StatusBar renders the bottom status line: session title, run accounting,
// and keyboard shortcuts.
type StatusBar struct {
	theme *styles.Theme

	SessionTitle string
	RunCount     int
	TokensTotal  int
	CostUSD      float64
	Width        int
}

// NewStatusBar creates a status bar bound to a theme.
func NewStatusBar(theme *styles.Theme) StatusBar {
	return StatusBar{theme: theme, Width: 80}
}

// SetMetrics updates the session accounting shown on the right side.
func (b *StatusBar) SetMetrics(runCount, tokensTotal int, costUSD float64) {
	b.RunCount = runCount
	b.TokensTotal = tokensTotal
	b.CostUSD = costUSD
}

// View renders the status bar at the configured width.
func (b StatusBar) View() string {
	title := b.SessionTitle
	if title == "" {
		title = "no session"
	}
	left := b.theme.StatusValue.Render(util.TruncateWidth(title, 32))

	var parts []string
	if b.RunCount > 0 {
		parts = append(parts, b.theme.StatusKey.Render("runs ")+
			b.theme.StatusValue.Render(strconv.Itoa(b.RunCount)))
	}
	if b.TokensTotal > 0 {
		parts = append(parts, b.theme.StatusKey.Render("tokens ")+
			b.theme.StatusValue.Render(util.FormatTokens(b.TokensTotal)))
	}
	if b.CostUSD > 0 {
		parts = append(parts, b.theme.StatusValue.Render(util.FormatCost(b.CostUSD)))
	}
	right := strings.Join(parts, b.theme.StatusKey.Render(" | "))

	gap := b.Width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}

	return b.theme.StatusBar.Render(left + strings.Repeat(" ", gap) + right)
}

// ShortcutHelp renders the one-line shortcut reference shown below the
// status bar.
func (b StatusBar) ShortcutHelp() string {
	shortcuts := []struct{ key, desc string }{
		{"enter", "send"},
		{"ctrl+n", "new session"},
		{"ctrl+l", "sessions"},
		{"esc", "cancel"},
		{"ctrl+c", "quit"},
	}
	var parts []string
	for _, s := range shortcuts {
		parts = append(parts, b.theme.ShortcutKey.Render(s.key)+" "+b.theme.ShortcutDesc.Render(s.desc))
	}
	return strings.Join(parts, b.theme.ShortcutDesc.Render("  "))
}
