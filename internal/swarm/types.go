// Package swarm talks to the remote agent-swarm orchestration service and
// coordinates the per-run swarm lifecycle: initialize, spawn agents,
// submit tasks, poll to a terminal status, and tear down. The service is
// consumed through the Client interface; HTTPClient is the production
// implementation and FakeClient the deterministic test double.
package swarm

import (
	"fmt"
	"time"

	"github.com/scottwilkos/openspec-flow/internal/types"
)

// Topology selects how the remote service wires spawned agents together.
type Topology string

const (
	TopologyHierarchical Topology = "hierarchical"
	TopologyMesh         Topology = "mesh"
	TopologyRing         Topology = "ring"
	TopologyStar         Topology = "star"
)

// Valid reports whether t is a recognized topology.
func (t Topology) Valid() bool {
	switch t {
	case TopologyHierarchical, TopologyMesh, TopologyRing, TopologyStar:
		return true
	default:
		return false
	}
}

// Strategy is the service-side scheduling strategy hint for a swarm or task.
type Strategy string

const (
	StrategyBalanced    Strategy = "balanced"
	StrategySpecialized Strategy = "specialized"
	StrategyAdaptive    Strategy = "adaptive"
)

// Priority orders tasks within the remote service's queues.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// SwarmStatus is the lifecycle status of the swarm owned by a run.
type SwarmStatus string

const (
	SwarmStatusInitializing SwarmStatus = "initializing"
	SwarmStatusRunning      SwarmStatus = "running"
	SwarmStatusCompleted    SwarmStatus = "completed"
	SwarmStatusFailed       SwarmStatus = "failed"
)

// WorkerStatus is the lifecycle status of a single spawned agent.
type WorkerStatus string

const (
	WorkerStatusIdle      WorkerStatus = "idle"
	WorkerStatusWorking   WorkerStatus = "working"
	WorkerStatusCompleted WorkerStatus = "completed"
	WorkerStatusFailed    WorkerStatus = "failed"
)

// TaskStatus is the remote execution status of a submitted task.
// TaskStatusTimeout is synthesized locally when the wait deadline expires;
// the service never reports it.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusTimeout    TaskStatus = "timeout"
)

// IsTerminal reports whether polling should stop at this status.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusTimeout:
		return true
	default:
		return false
	}
}

// Worker records one spawned agent and its node assignment. Workers are
// spawned per node and not reused.
type Worker struct {
	// WorkerID is the service-assigned agent id.
	WorkerID types.ID `json:"worker_id"`

	// Role is the agent role requested at spawn time.
	Role string `json:"role"`

	// NodeID is the change slug this worker executes.
	NodeID string `json:"node_id"`

	// Status tracks the worker through its single assignment.
	Status WorkerStatus `json:"status"`
}

// SwarmState is the one-per-run record of the remote swarm. The swarm id
// lives here as a typed field; nothing else carries it.
type SwarmState struct {
	// SwarmID is the service-assigned swarm id.
	SwarmID types.ID `json:"swarm_id"`

	// Topology the swarm was initialized with.
	Topology Topology `json:"topology"`

	// MaxWorkers the swarm was initialized with.
	MaxWorkers int `json:"max_workers"`

	// Workers lists every agent spawned into the swarm, in spawn order.
	Workers []Worker `json:"workers"`

	// Status is the swarm lifecycle status.
	Status SwarmStatus `json:"status"`
}

// InitRequest configures a new swarm.
type InitRequest struct {
	Topology   Topology `json:"topology"`
	MaxWorkers int      `json:"max_workers"`
	Strategy   Strategy `json:"strategy"`
}

// Validate checks an init request before it goes on the wire.
func (r InitRequest) Validate() error {
	if !r.Topology.Valid() {
		return fmt.Errorf("invalid topology %q", r.Topology)
	}
	if r.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be positive, got %d", r.MaxWorkers)
	}
	return nil
}

// AgentSpec describes one agent to spawn.
type AgentSpec struct {
	Role         string   `json:"role"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// BatchOptions tunes a batch spawn. Both fields are hints forwarded to
// the service, not guarantees.
type BatchOptions struct {
	BatchSize      int `json:"batch_size,omitempty"`
	MaxConcurrency int `json:"max_concurrency,omitempty"`
}

// TaskRequest describes one task submission.
type TaskRequest struct {
	// Ref is the caller's correlation key for the task, here always the
	// change slug the task executes.
	Ref string `json:"ref,omitempty"`

	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	Strategy    Strategy `json:"strategy"`

	// DependsOn carries the node's prerequisite slugs as advisory
	// metadata; sequencing is enforced locally by the orchestrator.
	DependsOn []string `json:"depends_on,omitempty"`
}

// WaitResult is the outcome of waiting for one task to terminate.
type WaitResult struct {
	// Success is true only for a completed task.
	Success bool `json:"success"`

	// FinalStatus is the terminal status observed, or TaskStatusTimeout
	// when the deadline expired first.
	FinalStatus TaskStatus `json:"final_status"`

	// Results is the opaque result payload fetched for completed tasks.
	Results map[string]any `json:"results,omitempty"`

	// Err carries the failure cause for non-timeout failures: a polling
	// error or context cancellation. nil on success and on plain
	// remote-reported failure.
	Err error `json:"-"`

	// Elapsed is how long the wait observed the task.
	Elapsed time.Duration `json:"elapsed"`
}
