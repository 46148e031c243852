// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Configuration command handler.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/jeranaias/opsdeck-tui/internal/config"
)

// HandleConfig handles the "config" command, exiting on error.
func HandleConfig(args Args) {
	if err := HandleConfigCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleConfigCommand shows or updates configuration.
func HandleConfigCommand(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return showConfig(args)
	case "set":
		return setConfig(args)
	default:
		return &UsageError{
			Reason:  fmt.Sprintf("unknown config subcommand %q", args.Subcommand),
			Example: "opsdeck config show",
		}
	}
}

func showConfig(args Args) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if args.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	}

	fmt.Printf("server.url            %s\n", cfg.Server.URL)
	fmt.Printf("stream.max_retries    %d\n", cfg.Stream.MaxRetries)
	fmt.Printf("stream.retry_delay_ms %d\n", cfg.Stream.RetryDelayMs)
	fmt.Printf("cache.enabled         %t\n", cfg.Cache.Enabled)
	fmt.Printf("cache.path            %s\n", cfg.Cache.Path)
	fmt.Printf("ui.theme              %s\n", cfg.UI.Theme)
	fmt.Printf("ui.markdown           %t\n", cfg.UI.Markdown)
	return nil
}

func setConfig(args Args) error {
	if args.ConfigKey == "" || args.ConfigVal == "" {
		return ErrMissingArgument("key and value", "opsdeck config set server.url http://copilot:8000/api")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch args.ConfigKey {
	case "server.url":
		cfg.Server.URL = args.ConfigVal
	case "stream.max_retries":
		n, err := strconv.Atoi(args.ConfigVal)
		if err != nil {
			return &UsageError{Reason: "stream.max_retries must be an integer"}
		}
		cfg.Stream.MaxRetries = n
	case "stream.retry_delay_ms":
		n, err := strconv.Atoi(args.ConfigVal)
		if err != nil {
			return &UsageError{Reason: "stream.retry_delay_ms must be an integer"}
		}
		cfg.Stream.RetryDelayMs = n
	case "cache.enabled":
		b, err := strconv.ParseBool(args.ConfigVal)
		if err != nil {
			return &UsageError{Reason: "cache.enabled must be true or false"}
		}
		cfg.Cache.Enabled = b
	case "ui.theme":
		cfg.UI.Theme = args.ConfigVal
	case "ui.markdown":
		b, err := strconv.ParseBool(args.ConfigVal)
		if err != nil {
			return &UsageError{Reason: "ui.markdown must be true or false"}
		}
		cfg.UI.Markdown = b
	default:
		return &UsageError{
			Reason:  fmt.Sprintf("unknown config key %q", args.ConfigKey),
			Example: "opsdeck config set ui.theme dark",
		}
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	if err := cfg.Save(dir); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", args.ConfigKey, args.ConfigVal)
	return nil
}
