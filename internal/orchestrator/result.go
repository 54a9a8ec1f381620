package orchestrator

import (
	"fmt"
	"time"

	"github.com/scottwilkos/openspec-flow/internal/plan"
	"github.com/scottwilkos/openspec-flow/internal/types"
)

// NodeOutcome is the final record of one node in a finished run.
type NodeOutcome struct {
	// Status is the node's terminal (or blocked) status.
	Status plan.NodeStatus `json:"status"`

	// WorkerID is the agent that served the node, when one was spawned.
	WorkerID types.ID `json:"worker_id,omitempty"`

	// TaskID is the submitted task, when submission succeeded.
	TaskID types.ID `json:"task_id,omitempty"`

	// StartedAt and CompletedAt bound the node's execution window.
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error is the failure or blocking reason, empty on success.
	Error string `json:"error,omitempty"`
}

// RunResult summarizes one orchestrated run. Completed and Failed are
// disjoint; nodes that never ran because a dependency failed appear in
// Nodes with status blocked and in neither list.
type RunResult struct {
	// RunID identifies the run.
	RunID types.ID `json:"run_id"`

	// PlanID identifies the executed plan.
	PlanID types.ID `json:"plan_id"`

	// Success is true only when every node completed.
	Success bool `json:"success"`

	// Order is the plan's topological order over all nodes.
	Order []string `json:"order"`

	// Completed lists the change ids that completed, in plan order.
	Completed []string `json:"completed"`

	// Failed lists the change ids that failed, in plan order.
	Failed []string `json:"failed"`

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed"`

	// Summary is a one-line human-readable account of the run.
	Summary string `json:"summary"`

	// Nodes records the final outcome of every node, keyed by change id.
	Nodes map[string]NodeOutcome `json:"nodes"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
}

// Blocked lists the change ids that were blocked, in no particular order.
func (r *RunResult) Blocked() []string {
	var out []string
	for id, outcome := range r.Nodes {
		if outcome.Status == plan.NodeStatusBlocked {
			out = append(out, id)
		}
	}
	return out
}

// buildResult assembles the RunResult from the plan's final state.
func buildResult(runID types.ID, p *plan.ExecutionPlan, startedAt time.Time) *RunResult {
	result := &RunResult{
		RunID:     runID,
		PlanID:    p.ID,
		Order:     append([]string(nil), p.Order...),
		Elapsed:   time.Since(startedAt),
		Nodes:     make(map[string]NodeOutcome),
		StartedAt: startedAt,
	}

	blocked := 0
	for _, node := range p.Snapshot() {
		result.Nodes[node.ID] = NodeOutcome{
			Status:      node.Status,
			WorkerID:    node.WorkerID,
			TaskID:      node.TaskID,
			StartedAt:   node.StartedAt,
			CompletedAt: node.CompletedAt,
			Error:       node.Error,
		}

		switch node.Status {
		case plan.NodeStatusCompleted:
			result.Completed = append(result.Completed, node.ID)
		case plan.NodeStatusFailed:
			result.Failed = append(result.Failed, node.ID)
		case plan.NodeStatusBlocked:
			blocked++
		}
	}

	total := len(p.Order)
	result.Success = len(result.Completed) == total
	result.Summary = fmt.Sprintf("applied %d/%d changes (%d failed, %d blocked) in %s",
		len(result.Completed), total, len(result.Failed), blocked,
		result.Elapsed.Round(time.Millisecond))

	return result
}
