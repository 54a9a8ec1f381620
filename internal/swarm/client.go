package swarm

import (
	"context"

	"github.com/scottwilkos/openspec-flow/internal/types"
)

// Client is the consumed contract of the remote orchestration service.
// All operations are remote round trips and honor context cancellation.
//
// CancelTask is part of the contract from the start so a timed-out task
// can be told to stop instead of running unobserved; callers treat cancel
// failures as best-effort.
type Client interface {
	// InitSwarm creates a swarm and returns its id.
	InitSwarm(ctx context.Context, req InitRequest) (types.ID, error)

	// SpawnAgent spawns a single agent into the swarm.
	SpawnAgent(ctx context.Context, swarmID types.ID, spec AgentSpec) (types.ID, error)

	// SpawnAgents spawns a cohort of agents in one request so the
	// service can parallelize internally. Ids are returned in spec order.
	SpawnAgents(ctx context.Context, swarmID types.ID, specs []AgentSpec, opts BatchOptions) ([]types.ID, error)

	// SubmitTask submits a task to the swarm and returns its id.
	SubmitTask(ctx context.Context, swarmID types.ID, req TaskRequest) (types.ID, error)

	// TaskStatus reads the task's current status. Side-effect free.
	TaskStatus(ctx context.Context, taskID types.ID) (TaskStatus, error)

	// TaskResults fetches the opaque result payload of a task.
	TaskResults(ctx context.Context, taskID types.ID) (map[string]any, error)

	// CancelTask asks the service to stop a running task.
	CancelTask(ctx context.Context, taskID types.ID) error

	// DestroySwarm tears the swarm down.
	DestroySwarm(ctx context.Context, swarmID types.ID) error
}
