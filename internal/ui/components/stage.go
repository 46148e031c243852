// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides UI components for the opsdeck TUI.
package components

import (
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/opsdeck-tui/internal/ui/styles"
)

// =============================================================================
// STAGE INDICATOR
// =============================================================================

// StageIndicator shows what the agent is currently doing: a spinner, the
// active stage label, elapsed time, and a reconnect notice when the stream
// is retrying.
type StageIndicator struct {
	spinner   spinner.Model
	theme     *styles.Theme
	label     string
	startTime time.Time

	active       bool
	reconnecting bool
	attempt      int
}

// NewStageIndicator creates an indicator with the ASCII line spinner.
func NewStageIndicator(theme *styles.Theme) StageIndicator {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	return StageIndicator{
		spinner: s,
		theme:   theme,
		label:   "Working",
	}
}

// Start activates the indicator and records the start time.
func (s *StageIndicator) Start() tea.Cmd {
	s.active = true
	s.reconnecting = false
	s.attempt = 0
	s.startTime = time.Now()
	return s.spinner.Tick
}

// Stop deactivates the indicator.
func (s *StageIndicator) Stop() {
	s.active = false
	s.reconnecting = false
}

// IsActive reports whether the indicator is running.
func (s *StageIndicator) IsActive() bool {
	return s.active
}

// SetLabel updates the stage label shown next to the spinner.
func (s *StageIndicator) SetLabel(label string) {
	if label != "" {
		s.label = label
	}
}

// SetReconnecting marks the stream as retrying on the given attempt.
// Cleared automatically by Start and by the first event of a new attempt
// via ClearReconnecting.
func (s *StageIndicator) SetReconnecting(attempt int) {
	s.reconnecting = true
	s.attempt = attempt
}

// ClearReconnecting removes the reconnect notice.
func (s *StageIndicator) ClearReconnecting() {
	s.reconnecting = false
	s.attempt = 0
}

// Update advances the spinner animation.
func (s StageIndicator) Update(msg tea.Msg) (StageIndicator, tea.Cmd) {
	if !s.active {
		return s, nil
	}
	var cmd tea.Cmd
	s.spinner, cmd = s.spinner.Update(msg)
	return s, cmd
}

// View renders the indicator, or "" when inactive.
func (s StageIndicator) View() string {
	if !s.active {
		return ""
	}

	out := s.theme.Spinner.Render(s.spinner.View()) + " " +
		s.theme.StageRunning.Render(s.label+"...")

	if !s.startTime.IsZero() {
		out += s.theme.StatusKey.Render(" (" + formatElapsed(time.Since(s.startTime)) + ")")
	}

	if s.reconnecting {
		out += " " + s.theme.Reconnecting.Render(
			styles.StatusIndicators.Warning+" reconnecting (attempt "+strconv.Itoa(s.attempt)+")")
	}

	return out
}

// formatElapsed formats a duration as 42s or 2m 5s.
func formatElapsed(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 60 {
		return strconv.Itoa(seconds) + "s"
	}
	return strconv.Itoa(seconds/60) + "m " + strconv.Itoa(seconds%60) + "s"
}
