// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single query command handler.
//
// Handles "opsdeck ask" which sends one question to the copilot and streams
// the answer to stdout.
//
// Examples:
//   opsdeck ask "why is payments crashlooping"
//   opsdeck ask --session 4f21 "what changed since yesterday"
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"

	"github.com/jeranaias/opsdeck-tui/internal/api"
	"github.com/jeranaias/opsdeck-tui/internal/config"
	"github.com/jeranaias/opsdeck-tui/internal/stream"
	"github.com/jeranaias/opsdeck-tui/internal/transcript"
	"github.com/jeranaias/opsdeck-tui/internal/ui/styles"
	"github.com/jeranaias/opsdeck-tui/internal/util"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer renders the final answer when stdout is a TTY.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth()),
	)
	if err != nil {
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown for terminal display, falling back to the
// raw text on failure.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// ASK COMMAND
// =============================================================================

// HandleAsk handles the "ask" command, exiting on error.
func HandleAsk(args Args) {
	if err := HandleAskCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleAskCommand runs one question through the copilot and prints the
// transcript.
func HandleAskCommand(args Args) error {
	if strings.TrimSpace(args.Query) == "" {
		return ErrMissingArgument("question", `opsdeck ask "why is payments crashlooping"`)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client := api.NewClient(cfg.Server.URL)

	ctx := context.Background()
	sessionID := args.Session
	if sessionID == "" {
		session, err := client.CreateSession(ctx, util.TruncateWidth(args.Query, 60))
		if err != nil {
			return WrapError(err, "create session")
		}
		sessionID = session.ID
		if !args.Quiet {
			fmt.Fprintf(os.Stderr, "session %s\n", sessionID)
		}
	}

	return runSubmission(cfg, client, sessionID, args.Query, args)
}

// runSubmission streams one question and prints the resulting transcript.
// Shared by ask and chat.
func runSubmission(cfg *config.Config, client *api.Client, sessionID, question string, args Args) error {
	interp := transcript.NewInterpreter()
	streamID := uuid.NewString()
	interp.Begin(streamID, question)

	interactive := isTerminal(os.Stdout)

	retryCfg := stream.RetryConfig{
		MaxRetries: cfg.Stream.MaxRetries,
		BaseDelay:  cfg.Stream.RetryDelay(),
		OnRetry: func(attempt int, err error) {
			if !args.Quiet {
				fmt.Fprintln(os.Stderr, styles.RenderWarning(
					fmt.Sprintf("connection lost, retrying (attempt %d): %v", attempt, err)))
			}
		},
	}

	var lastStage string
	result, err := stream.Submit(context.Background(), client.StreamURL(sessionID), question, func(ev stream.Event) {
		interp.Apply(ev)

		// Piped output gets raw deltas as they arrive; a TTY gets the
		// rendered transcript once the stream ends.
		if !interactive && ev.Type == stream.EventTokenDelta && ev.Source() == "answer" {
			fmt.Print(ev.PayloadString("text"))
		}

		if args.Verbose {
			if stage := interp.Stage(); stage != nil && stage.Label != lastStage {
				lastStage = stage.Label
				fmt.Fprintf(os.Stderr, "  %s...\n", stage.Label)
			}
		}
	}, retryCfg)

	if !interactive {
		fmt.Println()
	}

	if err != nil {
		if errText := interp.Err(); errText != "" {
			return fmt.Errorf("%s: %w", errText, err)
		}
		return err
	}
	if errText := interp.Err(); errText != "" {
		return fmt.Errorf("agent error: %s", errText)
	}

	if interactive {
		printTranscript(interp.Messages(), cfg.UI.Markdown)
	}
	if args.Verbose {
		fmt.Fprintf(os.Stderr, "done in %d attempt(s)\n", result.Attempts)
	}
	return nil
}

// printTranscript prints the assistant answer and any log blocks, skipping
// the echoed user message.
func printTranscript(messages []transcript.RenderMessage, markdown bool) {
	for _, msg := range messages {
		switch msg.Role {
		case transcript.RoleAssistant:
			if markdown {
				fmt.Print(renderMarkdown(msg.Text))
			} else {
				fmt.Println(msg.Text)
			}
		case transcript.RoleLog:
			fmt.Println()
			fmt.Println(styles.RenderInfo("pod logs"))
			fmt.Println(indentLog(msg.Text))
		}
	}
}

// indentLog indents log output two spaces so it reads as a block.
func indentLog(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = "  " + line
		}
	}
	return strings.Join(lines, "\n")
}
