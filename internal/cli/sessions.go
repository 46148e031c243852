// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions.go - Session management command handlers.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/opsdeck-tui/internal/api"
	"github.com/jeranaias/opsdeck-tui/internal/config"
	"github.com/jeranaias/opsdeck-tui/internal/util"
)

// HandleSessions handles the "sessions" command, exiting on error.
func HandleSessions(args Args) {
	if err := HandleSessionsCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleSessionsCommand dispatches session subcommands. The default is a
// listing, most recently updated first.
func HandleSessionsCommand(args Args) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client := api.NewClient(cfg.Server.URL)
	ctx := context.Background()

	switch args.Subcommand {
	case "", "list":
		return listSessions(ctx, client, args)
	case "rename":
		if len(args.Raw) < 3 {
			return ErrMissingArgument("session id and title", `opsdeck sessions rename 4f21 "payments incident"`)
		}
		id, title := args.Raw[1], strings.Join(args.Raw[2:], " ")
		if err := client.RenameSession(ctx, id, title); err != nil {
			return WrapError(err, "rename session")
		}
		fmt.Printf("renamed %s\n", id)
		return nil
	case "delete", "rm":
		if len(args.Raw) < 2 {
			return ErrMissingArgument("session id", "opsdeck sessions delete 4f21")
		}
		id := args.Raw[1]
		if err := client.DeleteSession(ctx, id); err != nil {
			return WrapError(err, "delete session")
		}
		fmt.Printf("deleted %s\n", id)
		return nil
	default:
		return &UsageError{
			Reason:  fmt.Sprintf("unknown sessions subcommand: %s", args.Subcommand),
			Example: "opsdeck sessions [list|rename|delete]",
		}
	}
}

// listSessions prints the session table or JSON.
func listSessions(ctx context.Context, client *api.Client, args Args) error {
	sessions, err := client.ListSessions(ctx, 0, 50)
	if err != nil {
		return WrapError(err, "list sessions")
	}

	if args.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	width := terminalWidth()
	titleWidth := width - 40
	if titleWidth < 20 {
		titleWidth = 20
	}

	fmt.Printf("%s  %s  %s\n",
		util.PadRight("ID", 12),
		util.PadRight("UPDATED", 16),
		"TITLE")
	for _, session := range sessions {
		title := session.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  %s\n",
			util.PadRight(util.TruncateWidth(session.ID, 12), 12),
			util.PadRight(session.UpdatedAt.Format("2006-01-02 15:04"), 16),
			util.TruncateWidth(title, titleWidth))
	}
	return nil
}
