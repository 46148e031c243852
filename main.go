// opsdeck - terminal client for the ops copilot.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/opsdeck-tui/internal/api"
	"github.com/jeranaias/opsdeck-tui/internal/cache"
	"github.com/jeranaias/opsdeck-tui/internal/cli"
	"github.com/jeranaias/opsdeck-tui/internal/config"
	"github.com/jeranaias/opsdeck-tui/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		runTUI(args)
	case cli.CmdAsk:
		cli.HandleAsk(args)
	case cli.CmdChat:
		cli.HandleChat(args)
	case cli.CmdSessions:
		cli.HandleSessions(args)
	case cli.CmdConfig:
		cli.HandleConfig(args)
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	default:
		runTUI(args)
	}
}

// runTUI starts the full-screen interface.
func runTUI(args cli.Args) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}

	client := api.NewClient(cfg.Server.URL)

	// The transcript cache keeps sessions readable when the server is
	// unreachable. A cache failure is not fatal.
	var store *cache.Store
	if cfg.Cache.Enabled {
		store, err = cache.Open(cfg.Cache.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: transcript cache disabled: %v\n", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	p := tea.NewProgram(
		chat.New(cfg, client, store),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	// Reload stream and rendering settings when the config file changes.
	if dir, dirErr := config.Dir(); dirErr == nil {
		watcher, watchErr := config.Watch(dir, func(next *config.Config) {
			p.Send(chat.ConfigReloadedMsg{Cfg: next})
		})
		if watchErr == nil {
			defer watcher.Close()
		}
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running opsdeck: %v\n", err)
		os.Exit(1)
	}
}
