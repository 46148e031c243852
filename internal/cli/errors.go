// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for CLI commands.
//
// STANDARDIZED PATTERN:
//   - ALWAYS return errors (never just print and return nil)
//   - Let the caller decide how to display errors
//   - Exit codes categorize failures for scripting
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/opsdeck-tui/internal/api"
	"github.com/jeranaias/opsdeck-tui/internal/config"
	"github.com/jeranaias/opsdeck-tui/internal/stream"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a configuration error
	ExitConfigError = 3
	// ExitNetworkError indicates a connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitIncompleteError indicates the stream ended without an answer
	ExitIncompleteError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError represents invalid command usage.
type UsageError struct {
	Reason  string
	Example string
}

func (e *UsageError) Error() string {
	msg := e.Reason
	if e.Example != "" {
		msg += "\nExample: " + e.Example
	}
	return msg
}

// ErrMissingArgument creates an error for a missing required argument.
func ErrMissingArgument(argName, example string) error {
	return &UsageError{
		Reason:  fmt.Sprintf("required argument missing: %s", argName),
		Example: example,
	}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}

	if errors.Is(err, config.ErrInvalidConfig) {
		return ExitConfigError
	}

	if errors.Is(err, stream.ErrIncompleteStream) {
		return ExitIncompleteError
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == 404 {
			return ExitNotFoundError
		}
		return ExitNetworkError
	}
	if errors.Is(err, api.ErrNotConfigured) {
		return ExitConfigError
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "connection") ||
		strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "dial") {
		return ExitNetworkError
	}

	return ExitGeneralError
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
