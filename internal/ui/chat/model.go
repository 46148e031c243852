// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/jeranaias/opsdeck-tui/internal/api"
	"github.com/jeranaias/opsdeck-tui/internal/cache"
	"github.com/jeranaias/opsdeck-tui/internal/config"
	"github.com/jeranaias/opsdeck-tui/internal/stream"
	"github.com/jeranaias/opsdeck-tui/internal/transcript"
	"github.com/jeranaias/opsdeck-tui/internal/ui/components"
	"github.com/jeranaias/opsdeck-tui/internal/ui/styles"
)

// =============================================================================
// MODEL
// =============================================================================

// viewMode selects what the main area shows.
type viewMode int

const (
	modeChat viewMode = iota
	modeSessions
)

// Model is the Bubble Tea model for the chat view.
type Model struct {
	cfg    *config.Config
	client *api.Client
	store  *cache.Store
	theme  *styles.Theme

	// Layout
	width  int
	height int
	ready  bool

	// Components
	viewport  viewport.Model
	input     textinput.Model
	stage     components.StageIndicator
	statusBar components.StatusBar
	renderer  *components.MessageRenderer

	// Session state
	mode        viewMode
	sessions    []api.Session
	sessionIdx  int
	session     *api.Session
	persisted   []api.Message
	toolCalls   []api.ToolCall
	interpreter *transcript.Interpreter

	// Stream state
	submitter streamSubmitter
	active    *streamSession
	streaming bool

	errText string
	quit    bool
}

// New creates the chat model. The store may be nil when caching is disabled.
func New(cfg *config.Config, client *api.Client, store *cache.Store) Model {
	theme := styles.NewTheme(cfg.UI.Theme)

	input := textinput.New()
	input.Placeholder = "Ask about your cluster..."
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	return Model{
		cfg:         cfg,
		client:      client,
		store:       store,
		theme:       theme,
		input:       input,
		stage:       components.NewStageIndicator(theme),
		statusBar:   components.NewStatusBar(theme),
		renderer:    components.NewMessageRenderer(theme, cfg.UI.Markdown, 80),
		interpreter: transcript.NewInterpreter(),
		submitter:   defaultSubmitter,
	}
}

// Init loads the session list.
func (m Model) Init() tea.Cmd {
	return m.loadSessionsCmd()
}

// =============================================================================
// COMMANDS
// =============================================================================

const requestTimeout = 30 * time.Second

func (m Model) loadSessionsCmd() tea.Cmd {
	client := m.client
	store := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		sessions, err := client.ListSessions(ctx, 0, 50)
		if err != nil {
			if store != nil {
				if cached, cacheErr := store.Sessions(ctx); cacheErr == nil && len(cached) > 0 {
					return SessionsLoadedMsg{Sessions: cached}
				}
			}
			return SessionsLoadedMsg{Err: err}
		}
		if store != nil {
			store.ReplaceSessions(ctx, sessions)
		}
		return SessionsLoadedMsg{Sessions: sessions, Err: err}
	}
}

func (m Model) createSessionCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		session, err := client.CreateSession(ctx, "New session")
		return SessionCreatedMsg{Session: session, Err: err}
	}
}

// loadTranscriptCmd fetches the persisted transcript, preferring the server
// and falling back to the local cache when offline. Fresh server data is
// written through to the cache.
func (m Model) loadTranscriptCmd(sessionID string) tea.Cmd {
	client := m.client
	store := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		messages, err := client.ListMessages(ctx, sessionID)
		if err != nil {
			if store != nil {
				cachedMsgs, cacheErr := store.Messages(ctx, sessionID)
				cachedCalls, _ := store.ToolCalls(ctx, sessionID)
				if cacheErr == nil {
					return TranscriptLoadedMsg{
						SessionID: sessionID,
						Messages:  cachedMsgs,
						ToolCalls: cachedCalls,
						FromCache: true,
					}
				}
			}
			return TranscriptLoadedMsg{SessionID: sessionID, Err: err}
		}

		toolCalls, err := client.ListToolCalls(ctx, sessionID, runIDsOf(messages))
		if err != nil {
			return TranscriptLoadedMsg{SessionID: sessionID, Messages: messages, Err: err}
		}

		if store != nil {
			store.ReplaceMessages(ctx, sessionID, messages)
			store.ReplaceToolCalls(ctx, sessionID, toolCalls)
		}

		return TranscriptLoadedMsg{
			SessionID: sessionID,
			Messages:  messages,
			ToolCalls: toolCalls,
		}
	}
}

func (m Model) loadMetricsCmd(sessionID string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		runs, err := client.ListRuns(ctx, sessionID)
		return MetricsLoadedMsg{SessionID: sessionID, Runs: runs, Err: err}
	}
}

// runIDsOf collects the distinct run ids recorded in message metadata.
func runIDsOf(messages []api.Message) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, msg := range messages {
		if id := msg.RunID(); id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		model, cmd, handled := m.handleKey(msg)
		if handled {
			return model, cmd
		}
		m = model

	case SessionsLoadedMsg:
		if msg.Err != nil {
			m.errText = msg.Err.Error()
			break
		}
		m.sessions = msg.Sessions
		if m.session == nil && len(m.sessions) > 0 {
			m.setSession(m.sessions[0])
			cmds = append(cmds,
				m.loadTranscriptCmd(m.session.ID),
				m.loadMetricsCmd(m.session.ID))
		} else if m.session == nil {
			cmds = append(cmds, m.createSessionCmd())
		}

	case SessionCreatedMsg:
		if msg.Err != nil {
			m.errText = msg.Err.Error()
			break
		}
		m.sessions = append([]api.Session{msg.Session}, m.sessions...)
		m.setSession(msg.Session)
		m.mode = modeChat
		m.refreshViewport()

	case TranscriptLoadedMsg:
		if m.session == nil || msg.SessionID != m.session.ID {
			break
		}
		if msg.Err != nil {
			m.errText = msg.Err.Error()
			break
		}
		m.persisted = msg.Messages
		m.toolCalls = msg.ToolCalls
		if msg.FromCache {
			m.errText = "offline: showing cached transcript"
		}
		// Persisted rows supersede the live fragments they duplicate.
		if !m.streaming {
			m.interpreter.Reset()
		}
		m.refreshViewport()

	case MetricsLoadedMsg:
		if msg.Err == nil && m.session != nil && msg.SessionID == m.session.ID {
			m.statusBar.SetMetrics(
				msg.Runs.SessionMetrics.RunCount,
				msg.Runs.SessionMetrics.Usage.TokensTotal,
				msg.Runs.SessionMetrics.Usage.CostUSD)
		}

	case ConfigReloadedMsg:
		if msg.Cfg != nil {
			width := m.width
			if width == 0 {
				width = 80
			}
			m.cfg = msg.Cfg
			m.renderer = components.NewMessageRenderer(m.theme, msg.Cfg.UI.Markdown, width)
			m.refreshViewport()
		}

	case StreamEventMsg:
		if m.active == nil || msg.StreamID != m.active.streamID {
			break
		}
		m.stage.ClearReconnecting()
		m.interpreter.Apply(msg.Event)
		if stage := m.interpreter.Stage(); stage != nil {
			m.stage.SetLabel(stage.Label)
		}
		if errText := m.interpreter.Err(); errText != "" {
			m.errText = errText
		}
		m.refreshViewport()
		cmds = append(cmds, waitForStream(m.active))

	case StreamRetryMsg:
		if m.active != nil && msg.StreamID == m.active.streamID {
			m.stage.SetReconnecting(msg.Attempt)
			cmds = append(cmds, waitForStream(m.active))
		}

	case StreamDoneMsg:
		if m.active == nil || msg.StreamID != m.active.streamID {
			break
		}
		m.streaming = false
		m.active = nil
		m.stage.Stop()
		if msg.Err != nil {
			m.errText = streamErrorText(msg.Err)
		}
		if m.session != nil {
			cmds = append(cmds,
				m.loadTranscriptCmd(m.session.ID),
				m.loadMetricsCmd(m.session.ID))
		}
		m.refreshViewport()

	default:
		var cmd tea.Cmd
		m.stage, cmd = m.stage.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey processes key presses. Returns handled=true when the key was a
// control action that should bypass component updates.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		m.stopStream()
		m.quit = true
		return m, tea.Quit, true

	case "esc":
		if m.streaming {
			m.stopStream()
			m.streaming = false
			m.stage.Stop()
			m.errText = "canceled"
			m.refreshViewport()
			return m, nil, true
		}
		if m.mode == modeSessions {
			m.mode = modeChat
			return m, nil, true
		}

	case "ctrl+n":
		if !m.streaming {
			return m, m.createSessionCmd(), true
		}

	case "ctrl+l":
		if m.mode == modeChat {
			m.mode = modeSessions
			m.sessionIdx = 0
			return m, m.loadSessionsCmd(), true
		}
		m.mode = modeChat
		return m, nil, true

	case "up":
		if m.mode == modeSessions {
			if m.sessionIdx > 0 {
				m.sessionIdx--
			}
			return m, nil, true
		}

	case "down":
		if m.mode == modeSessions {
			if m.sessionIdx < len(m.sessions)-1 {
				m.sessionIdx++
			}
			return m, nil, true
		}

	case "enter":
		if m.mode == modeSessions {
			if m.sessionIdx < len(m.sessions) {
				session := m.sessions[m.sessionIdx]
				m.setSession(session)
				m.mode = modeChat
				return m, tea.Batch(
					m.loadTranscriptCmd(session.ID),
					m.loadMetricsCmd(session.ID)), true
			}
			return m, nil, true
		}
		return m.submit()
	}
	return m, nil, false
}

// submit starts a new stream for the composer text.
func (m Model) submit() (Model, tea.Cmd, bool) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.streaming || m.session == nil {
		return m, nil, true
	}

	streamID := uuid.NewString()
	m.input.SetValue("")
	m.errText = ""
	m.interpreter.Begin(streamID, text)
	m.streaming = true

	cfg := stream.RetryConfig{
		MaxRetries: m.cfg.Stream.MaxRetries,
		BaseDelay:  m.cfg.Stream.RetryDelay(),
	}
	session, waitCmd := startStream(m.submitter, m.client.StreamURL(m.session.ID), streamID, text, cfg)
	m.active = session

	tickCmd := m.stage.Start()
	m.refreshViewport()
	return m, tea.Batch(waitCmd, tickCmd), true
}

// =============================================================================
// STATE HELPERS
// =============================================================================

func (m *Model) setSession(session api.Session) {
	// An in-flight stream belongs to the previous session; abandon it so
	// its remaining events can never land in the new transcript.
	m.stopStream()
	m.active = nil
	m.streaming = false
	m.stage.Stop()

	s := session
	m.session = &s
	m.statusBar.SessionTitle = s.Title
	m.persisted = nil
	m.toolCalls = nil
	m.interpreter.Reset()
	m.errText = ""
	m.refreshViewport()
}

func (m *Model) stopStream() {
	if m.active != nil {
		m.active.stop()
	}
}

// refreshViewport rebuilds the merged transcript and pushes it into the
// viewport, keeping the scroll pinned to the bottom.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	merged := transcript.Build(m.persisted, m.toolCalls, m.interpreter.Messages())
	m.viewport.SetContent(m.renderer.Render(merged))
	m.viewport.GotoBottom()
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.statusBar.Width = width
	m.renderer.SetWidth(width)

	// Header, stage line, input, status bar, shortcuts.
	viewportHeight := height - 6
	if viewportHeight < 3 {
		viewportHeight = 3
	}
	if !m.ready {
		m.viewport = viewport.New(width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = viewportHeight
	}
	m.input.Width = width - 4
	m.refreshViewport()
}

// streamErrorText maps a stream failure to a user-facing line.
func streamErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, stream.ErrIncompleteStream):
		return "stream ended before the answer completed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return err.Error()
	}
}
