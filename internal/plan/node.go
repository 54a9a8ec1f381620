package plan

import (
	"time"

	"github.com/scottwilkos/openspec-flow/internal/types"
)

// NodeStatus represents the scheduling status of an execution node.
type NodeStatus string

const (
	// NodeStatusPending indicates the node has not been considered yet.
	NodeStatusPending NodeStatus = "pending"

	// NodeStatusReady indicates every prerequisite has completed and the
	// node is about to be handed to a worker.
	NodeStatusReady NodeStatus = "ready"

	// NodeStatusInProgress indicates a task for the node is in flight.
	NodeStatusInProgress NodeStatus = "in_progress"

	// NodeStatusCompleted indicates the node's task finished successfully.
	NodeStatusCompleted NodeStatus = "completed"

	// NodeStatusFailed indicates spawn, submit, execution, or the wait
	// deadline failed for this node.
	NodeStatusFailed NodeStatus = "failed"

	// NodeStatusBlocked indicates a prerequisite failed or was itself
	// blocked, so the node was never started.
	NodeStatusBlocked NodeStatus = "blocked"
)

// String returns the string representation of the status.
func (s NodeStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status is an end state for a run.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeStatusCompleted, NodeStatusFailed, NodeStatusBlocked:
		return true
	default:
		return false
	}
}

// ExecutionNode is the runtime record of one change moving through a run.
// Nodes are created by Build and mutated only through ExecutionPlan's
// mark methods; they are never removed mid-run.
type ExecutionNode struct {
	// ID is the change slug this node executes.
	ID string `json:"id"`

	// Title is carried from the change for display.
	Title string `json:"title,omitempty"`

	// DependsOn lists prerequisite slugs. It may name ids outside the
	// plan; Validate reports those and execution refuses such plans.
	DependsOn []string `json:"depends_on,omitempty"`

	// Explicit records whether DependsOn came from frontmatter rather
	// than text extraction.
	Explicit bool `json:"explicit,omitempty"`

	// Status is the node's current scheduling status.
	Status NodeStatus `json:"status"`

	// WorkerID is the agent assigned to the node, set once spawned.
	WorkerID types.ID `json:"worker_id,omitempty"`

	// TaskID is the submitted task, set once submission succeeds.
	TaskID types.ID `json:"task_id,omitempty"`

	// StartedAt is when the node's task was submitted.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the node reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error holds the failure or blocking reason, empty otherwise.
	Error string `json:"error,omitempty"`
}
