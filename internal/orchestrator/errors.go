package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPlanInvalid marks a run aborted because the plan references changes
// outside the loaded set. Matched with errors.Is.
var ErrPlanInvalid = errors.New("plan validation failed")

// InvalidPlanError reports the dangling references that made a plan
// unexecutable. The run aborts before any swarm call.
type InvalidPlanError struct {
	// Errors holds one message per dangling reference.
	Errors []string
}

// Error implements the error interface.
func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("plan validation failed: %s", strings.Join(e.Errors, "; "))
}

// Is reports whether target is ErrPlanInvalid.
func (e *InvalidPlanError) Is(target error) bool {
	return target == ErrPlanInvalid
}
