package swarm

import (
	"errors"
	"fmt"
)

// Sentinel errors for the swarm operation classes. OpError wraps one of
// these so callers can classify failures with errors.Is without parsing
// messages.
var (
	// ErrSwarmInit marks a failed swarm initialization. Fatal to a run.
	ErrSwarmInit = errors.New("swarm initialization failed")

	// ErrAgentSpawn marks a failed agent spawn. Scoped to one node.
	ErrAgentSpawn = errors.New("agent spawn failed")

	// ErrTaskSubmit marks a failed task submission. Scoped to one node.
	ErrTaskSubmit = errors.New("task submission failed")

	// ErrSwarmDestroy marks a failed teardown. Logged, never propagated.
	ErrSwarmDestroy = errors.New("swarm destroy failed")
)

// OpError is a failure of one remote swarm operation.
type OpError struct {
	// Op names the operation: init, spawn, submit, status, results,
	// cancel, destroy.
	Op string

	// Message describes the failure.
	Message string

	// NodeID is set when the failure is attributable to one node.
	NodeID string

	// Cause is the underlying transport or service error.
	Cause error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.NodeID != "" {
		if e.Cause != nil {
			return fmt.Sprintf("swarm %s [node: %s]: %s: %v", e.Op, e.NodeID, e.Message, e.Cause)
		}
		return fmt.Sprintf("swarm %s [node: %s]: %s", e.Op, e.NodeID, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("swarm %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("swarm %s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause.
func (e *OpError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel corresponding to the failed operation.
func (e *OpError) Is(target error) bool {
	switch target {
	case ErrSwarmInit:
		return e.Op == "init"
	case ErrAgentSpawn:
		return e.Op == "spawn"
	case ErrTaskSubmit:
		return e.Op == "submit"
	case ErrSwarmDestroy:
		return e.Op == "destroy"
	default:
		return false
	}
}
