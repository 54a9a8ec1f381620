package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/scottwilkos/openspec-flow/internal/orchestrator"
	"github.com/scottwilkos/openspec-flow/internal/swarm"
)

func TestCLIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CLIError
		expected string
	}{
		{
			name: "error without cause",
			err: &CLIError{
				Code:    ExitError,
				Message: "something went wrong",
			},
			expected: "something went wrong",
		},
		{
			name: "error with cause",
			err: &CLIError{
				Code:    ExitError,
				Message: "operation failed",
				Cause:   errors.New("underlying error"),
			},
			expected: "operation failed: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, tt.err.Error())
			}
		})
	}
}

func TestCLIError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &CLIError{
		Code:    ExitError,
		Message: "wrapper",
		Cause:   cause,
	}

	if err.Unwrap() != cause {
		t.Errorf("expected unwrapped error to be %v, got %v", cause, err.Unwrap())
	}

	errNoCause := &CLIError{
		Code:    ExitError,
		Message: "no cause",
	}
	if errNoCause.Unwrap() != nil {
		t.Error("expected Unwrap to return nil for error without cause")
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("original error")
	wrapped := WrapError(ExitConfigError, "config failed", cause)

	if wrapped.Code != ExitConfigError {
		t.Errorf("expected code %d, got %d", ExitConfigError, wrapped.Code)
	}
	if wrapped.Message != "config failed" {
		t.Errorf("expected message %q, got %q", "config failed", wrapped.Message)
	}
	if wrapped.Cause != cause {
		t.Errorf("expected cause %v, got %v", cause, wrapped.Cause)
	}
}

func TestNewCLIError(t *testing.T) {
	err := NewCLIError(ExitTimeout, "operation timed out")

	if err.Code != ExitTimeout {
		t.Errorf("expected code %d, got %d", ExitTimeout, err.Code)
	}
	if err.Message != "operation timed out" {
		t.Errorf("expected message %q, got %q", "operation timed out", err.Message)
	}
	if err.Cause != nil {
		t.Errorf("expected no cause, got %v", err.Cause)
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		checkOutput  func(t *testing.T, output string)
	}{
		{
			name:         "nil error",
			err:          nil,
			expectedCode: ExitSuccess,
			checkOutput:  func(t *testing.T, output string) {},
		},
		{
			name:         "context canceled",
			err:          context.Canceled,
			expectedCode: ExitCancelled,
			checkOutput: func(t *testing.T, output string) {
				if output != "Operation cancelled\n" {
					t.Errorf("expected cancellation message, got %q", output)
				}
			},
		},
		{
			name:         "wrapped context canceled",
			err:          fmt.Errorf("run aborted: %w", context.Canceled),
			expectedCode: ExitCancelled,
			checkOutput:  func(t *testing.T, output string) {},
		},
		{
			name:         "context deadline exceeded",
			err:          context.DeadlineExceeded,
			expectedCode: ExitTimeout,
			checkOutput: func(t *testing.T, output string) {
				if output != "Operation timed out\n" {
					t.Errorf("expected timeout message, got %q", output)
				}
			},
		},
		{
			name: "CLI error",
			err: &CLIError{
				Code:    ExitConfigError,
				Message: "invalid config",
			},
			expectedCode: ExitConfigError,
			checkOutput: func(t *testing.T, output string) {
				if output != "Error: invalid config\n" {
					t.Errorf("expected error message, got %q", output)
				}
			},
		},
		{
			name: "CLI error with run failed code",
			err: &CLIError{
				Code:    ExitRunFailed,
				Message: "run finished with failures",
			},
			expectedCode: ExitRunFailed,
			checkOutput:  func(t *testing.T, output string) {},
		},
		{
			name: "invalid plan error",
			err: &orchestrator.InvalidPlanError{
				Errors: []string{`change "a" depends on "ghost", which is not part of the plan`},
			},
			expectedCode: ExitConfigError,
			checkOutput: func(t *testing.T, output string) {
				if !strings.Contains(output, "plan validation failed") {
					t.Errorf("expected plan validation message, got %q", output)
				}
				if !strings.Contains(output, "ghost") {
					t.Errorf("expected dangling reference detail, got %q", output)
				}
			},
		},
		{
			name: "swarm operation error",
			err: &swarm.OpError{
				Op:      "init",
				Message: "pool initialization rejected",
			},
			expectedCode: ExitSwarmError,
			checkOutput: func(t *testing.T, output string) {
				if !strings.Contains(output, "swarm init") {
					t.Errorf("expected swarm error message, got %q", output)
				}
			},
		},
		{
			name:         "generic error",
			err:          errors.New("unknown error"),
			expectedCode: ExitError,
			checkOutput: func(t *testing.T, output string) {
				if output != "Error: unknown error\n" {
					t.Errorf("expected generic error message, got %q", output)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			cmd := &cobra.Command{}
			cmd.SetErr(buf)

			exitCode := HandleError(cmd, tt.err)
			if exitCode != tt.expectedCode {
				t.Errorf("expected exit code %d, got %d", tt.expectedCode, exitCode)
			}

			tt.checkOutput(t, buf.String())
		})
	}
}

func TestHandleError_VerboseShowsCause(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.Flags().BoolP("verbose", "v", false, "")
	if err := cmd.Flags().Set("verbose", "true"); err != nil {
		t.Fatalf("failed to set verbose flag: %v", err)
	}
	cmd.SetErr(buf)

	err := WrapError(ExitSwarmError, "submit failed", errors.New("connection refused"))
	if code := HandleError(cmd, err); code != ExitSwarmError {
		t.Errorf("expected exit code %d, got %d", ExitSwarmError, code)
	}
	if !strings.Contains(buf.String(), "connection refused") {
		t.Errorf("expected cause in verbose output, got %q", buf.String())
	}
}
