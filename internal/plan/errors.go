package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is the sentinel matched by errors.Is for any CycleError.
var ErrCycle = errors.New("dependency cycle detected")

// CycleError reports that the dependency graph could not be fully
// ordered. Remaining lists the ids caught in (or downstream of) a cycle,
// sorted for stable messages.
type CycleError struct {
	Remaining []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("cannot order changes: dependency cycle among [%s]",
		strings.Join(e.Remaining, ", "))
}

// Is matches the ErrCycle sentinel.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// ValidationResult is the outcome of checking a plan's dependency closure.
// A plan with Valid=false must not be executed.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}
