package internal

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/scottwilkos/openspec-flow/internal/orchestrator"
	"github.com/scottwilkos/openspec-flow/internal/swarm"
)

// Exit code constants for the CLI
const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitError indicates a general error
	ExitError = 1
	// ExitRunFailed indicates the run finished but one or more changes failed
	ExitRunFailed = 2
	// ExitTimeout indicates the operation timed out
	ExitTimeout = 3
	// ExitCancelled indicates the operation was cancelled
	ExitCancelled = 4
	// ExitConfigError indicates a configuration or plan validation error
	ExitConfigError = 10
	// ExitSwarmError indicates a swarm service error
	ExitSwarmError = 11
	// ExitHistoryError indicates a run history database error
	ExitHistoryError = 12
)

// CLIError represents a CLI-specific error with an exit code
type CLIError struct {
	Code    int
	Message string
	Cause   error
}

// Error implements the error interface
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// WrapError creates a new CLIError wrapping an existing error
func WrapError(code int, message string, err error) *CLIError {
	return &CLIError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewCLIError creates a new CLIError with the given code and message
func NewCLIError(code int, message string) *CLIError {
	return &CLIError{
		Code:    code,
		Message: message,
	}
}

// HandleError handles an error and returns the appropriate exit code.
// It also prints the error message to the command's error output.
func HandleError(cmd *cobra.Command, err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Check for context cancellation
	if errors.Is(err, context.Canceled) {
		cmd.PrintErrln("Operation cancelled")
		return ExitCancelled
	}

	// Check for context deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) {
		cmd.PrintErrln("Operation timed out")
		return ExitTimeout
	}

	// Check for CLIError
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		cmd.PrintErrln("Error:", cliErr.Message)
		if cliErr.Cause != nil {
			verboseFlag := cmd.Flag("verbose")
			if verboseFlag != nil && verboseFlag.Changed {
				cmd.PrintErrln("Cause:", cliErr.Cause)
			}
		}
		return cliErr.Code
	}

	// A plan that references changes outside the loaded set is a
	// configuration problem, not a run failure.
	var planErr *orchestrator.InvalidPlanError
	if errors.As(err, &planErr) {
		cmd.PrintErrln("Error: plan validation failed")
		for _, msg := range planErr.Errors {
			cmd.PrintErrln("  -", msg)
		}
		return ExitConfigError
	}
	if errors.Is(err, orchestrator.ErrPlanInvalid) {
		cmd.PrintErrln("Error:", err)
		return ExitConfigError
	}

	// Check for swarm operation errors
	var opErr *swarm.OpError
	if errors.As(err, &opErr) {
		cmd.PrintErrln("Error:", opErr.Error())
		return ExitSwarmError
	}

	// Generic error
	cmd.PrintErrln("Error:", err)
	return ExitError
}

// IsVerbose checks if verbose mode is enabled via environment variable or flag.
// This is used for panic recovery to determine if stack traces should be shown.
func IsVerbose() bool {
	// Check environment variable
	if os.Getenv("OPENSPEC_VERBOSE") != "" {
		return true
	}

	// Check common verbose flag patterns
	for _, arg := range os.Args {
		if arg == "-v" || arg == "--verbose" {
			return true
		}
	}

	return false
}
