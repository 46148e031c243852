// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for opsdeck.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdSessions
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool

	// Command-specific
	Query      string
	Session    string
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args remaining after flag parsing
	Raw []string
}

const usageText = `opsdeck - terminal client for the ops copilot

Opsdeck talks to a remote operations assistant that investigates your
Kubernetes workloads: it streams agent runs, shows tool output such as pod
logs, and keeps per-session transcripts.

Usage:
  opsdeck                    Start TUI (default)
  opsdeck ask "question"     Ask a single question and stream the answer
  opsdeck chat               Interactive chat in the current terminal
  opsdeck sessions           List sessions on the server
  opsdeck config [show|set]  Configuration
  opsdeck version            Show version
  opsdeck help               Show this help

Ask Command:
  opsdeck ask "why is payments crashlooping"
  opsdeck ask --session ID "and what changed since yesterday"
    --session ID    Continue an existing session instead of creating one

Chat Command:
  opsdeck chat                Start a REPL with input history
  opsdeck chat --session ID   Resume an existing session

Sessions Command:
  opsdeck sessions            List sessions, most recent first
    --json                    Output in JSON
  opsdeck sessions rename ID "new title"
  opsdeck sessions delete ID

Config Commands:
  opsdeck config show         Show current configuration
  opsdeck config set KEY VAL  Set a value (server.url, ui.theme,
                              stream.max_retries, stream.retry_delay_ms)

Global Flags:
  -q, --quiet     Minimal output
  -v, --verbose   Show stage transitions and retry attempts
  --json          Output in JSON where supported

Environment:
  OPSDECK_SERVER_URL       Override server.url
  OPSDECK_MAX_RETRIES      Override stream.max_retries
  OPSDECK_RETRY_DELAY_MS   Override stream.retry_delay_ms
  OPSDECK_THEME            Override ui.theme

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("opsdeck version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	args := os.Args[1:]

	remaining, parsedArgs := parseGlobalFlags(args)

	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsedArgs

	case "ask":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "chat":
		parseChatArgs(&parsedArgs, remaining)
		return CmdChat, parsedArgs

	case "session", "sessions":
		if len(remaining) > 0 {
			parsedArgs.Subcommand = remaining[0]
		}
		return CmdSessions, parsedArgs

	case "config":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "version", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Unknown command: treat the whole line as an ask query.
		parsedArgs.Query = strings.Join(append([]string{cmd}, remaining...), " ")
		return CmdAsk, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	for _, arg := range args {
		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, parsedArgs
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]
		switch {
		case arg == "-s" || arg == "--session":
			if i+1 < len(remaining) {
				i++
				args.Session = remaining[i]
			}
		case strings.HasPrefix(arg, "--session="):
			args.Session = strings.TrimPrefix(arg, "--session=")
		case !strings.HasPrefix(arg, "-"):
			query = append(query, arg)
		}
	}

	args.Query = strings.Join(query, " ")
}

// parseChatArgs parses chat command specific arguments.
func parseChatArgs(args *Args, remaining []string) {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]
		switch {
		case arg == "-s" || arg == "--session":
			if i+1 < len(remaining) {
				i++
				args.Session = remaining[i]
			}
		case strings.HasPrefix(arg, "--session="):
			args.Session = strings.TrimPrefix(arg, "--session=")
		}
	}
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) > 0 {
		args.Subcommand = remaining[0]
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			args.ConfigVal = remaining[2]
		}
	}
}
