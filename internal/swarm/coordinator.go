package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scottwilkos/openspec-flow/internal/types"
)

const (
	// DefaultPollInterval is how often WaitForCompletion polls task status.
	DefaultPollInterval = 2 * time.Second

	// DefaultWaitTimeout bounds a single task wait.
	DefaultWaitTimeout = 10 * time.Minute

	// maxConsecutivePollErrors is how many status polls may fail in a row
	// before the wait gives up on the task.
	maxConsecutivePollErrors = 3
)

// Coordinator owns the lifecycle of one remote swarm: initialization,
// agent spawning, task submission, status polling, and teardown. It does
// not sequence tasks against each other; ordering stays with the caller.
type Coordinator struct {
	client Client
	logger *slog.Logger
	tracer trace.Tracer

	pollInterval time.Duration

	// mu guards state and taskRefs.
	mu       sync.RWMutex
	state    *SwarmState
	taskRefs map[types.ID]string
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the logger for coordinator operations.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCoordinatorTracer sets the OpenTelemetry tracer for coordinator spans.
func WithCoordinatorTracer(tracer trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithPollInterval sets the status poll interval for task waits.
func WithPollInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewCoordinator creates a Coordinator over the given service client.
func NewCoordinator(client Client, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		client:       client,
		logger:       slog.Default(),
		tracer:       trace.NewNoopTracerProvider().Tracer("swarm"),
		pollInterval: DefaultPollInterval,
		taskRefs:     make(map[types.ID]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SwarmID returns the id of the initialized swarm, or the zero id before
// InitPool succeeds.
func (c *Coordinator) SwarmID() types.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return ""
	}
	return c.state.SwarmID
}

// State returns a copy of the current swarm state, or nil before InitPool.
func (c *Coordinator) State() *SwarmState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return nil
	}
	out := *c.state
	out.Workers = make([]Worker, len(c.state.Workers))
	copy(out.Workers, c.state.Workers)
	return &out
}

// InitPool initializes the remote swarm. It must succeed before any other
// coordinator operation; a failure here is fatal to the run and wraps
// ErrSwarmInit.
func (c *Coordinator) InitPool(ctx context.Context, req InitRequest) (types.ID, error) {
	ctx, span := c.tracer.Start(ctx, "swarm.InitPool")
	defer span.End()

	c.logger.InfoContext(ctx, "initializing swarm",
		"topology", req.Topology,
		"max_workers", req.MaxWorkers,
		"strategy", req.Strategy,
	)

	swarmID, err := c.client.InitSwarm(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &OpError{Op: "init", Message: "swarm initialization failed", Cause: err}
	}

	c.mu.Lock()
	c.state = &SwarmState{
		SwarmID:    swarmID,
		Topology:   req.Topology,
		MaxWorkers: req.MaxWorkers,
		Status:     SwarmStatusRunning,
	}
	c.mu.Unlock()

	span.SetAttributes(attribute.String("swarm.id", swarmID.String()))
	c.logger.InfoContext(ctx, "swarm initialized", "swarm_id", swarmID)

	return swarmID, nil
}

// SpawnResult reports the outcome of spawning one agent in a cohort.
// Err is set only on the failed entries; the rest of the cohort is
// unaffected.
type SpawnResult struct {
	Spec     AgentSpec
	WorkerID types.ID
	Err      error
}

// SpawnWorker spawns a single agent into the swarm. The spec's Name is
// the change slug the worker is assigned to.
func (c *Coordinator) SpawnWorker(ctx context.Context, spec AgentSpec) (types.ID, error) {
	ctx, span := c.tracer.Start(ctx, "swarm.SpawnWorker")
	defer span.End()
	span.SetAttributes(attribute.String("node.id", spec.Name))

	swarmID, err := c.requireSwarm()
	if err != nil {
		return "", err
	}

	workerID, err := c.client.SpawnAgent(ctx, swarmID, spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &OpError{Op: "spawn", Message: "agent spawn failed", NodeID: spec.Name, Cause: err}
	}

	c.recordWorker(spec, workerID)
	c.logger.DebugContext(ctx, "worker spawned",
		"worker_id", workerID,
		"node_id", spec.Name,
		"role", spec.Role,
	)

	return workerID, nil
}

// SpawnWorkers spawns a cohort of agents, one per spec. Cohorts larger
// than one go through the service's batch endpoint; when the batch call
// fails as a whole the coordinator falls back to individual spawns so
// failures stay attributable to single specs. The returned slice is
// aligned with specs. The error return covers whole-call problems only
// (context cancellation, uninitialized pool).
func (c *Coordinator) SpawnWorkers(ctx context.Context, specs []AgentSpec, opts BatchOptions) ([]SpawnResult, error) {
	ctx, span := c.tracer.Start(ctx, "swarm.SpawnWorkers")
	defer span.End()
	span.SetAttributes(attribute.Int("spawn.count", len(specs)))

	if len(specs) == 0 {
		return nil, nil
	}

	swarmID, err := c.requireSwarm()
	if err != nil {
		return nil, err
	}

	results := make([]SpawnResult, len(specs))
	for i := range specs {
		results[i].Spec = specs[i]
	}

	if len(specs) > 1 {
		ids, err := c.client.SpawnAgents(ctx, swarmID, specs, opts)
		if err == nil && len(ids) == len(specs) {
			for i, id := range ids {
				results[i].WorkerID = id
				c.recordWorker(specs[i], id)
			}
			c.logger.DebugContext(ctx, "workers spawned in batch",
				"swarm_id", swarmID,
				"count", len(ids),
			)
			return results, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.WarnContext(ctx, "batch spawn failed, falling back to individual spawns",
				"swarm_id", swarmID,
				"count", len(specs),
				"error", err,
			)
		}
	}

	for i := range specs {
		workerID, err := c.SpawnWorker(ctx, specs[i])
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			results[i].Err = err
			continue
		}
		results[i].WorkerID = workerID
	}

	return results, nil
}

// Submit submits one task to the swarm. The request's Ref names the
// change the task executes; failures are scoped to that change.
func (c *Coordinator) Submit(ctx context.Context, req TaskRequest) (types.ID, error) {
	ctx, span := c.tracer.Start(ctx, "swarm.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("node.id", req.Ref))

	swarmID, err := c.requireSwarm()
	if err != nil {
		return "", err
	}

	taskID, err := c.client.SubmitTask(ctx, swarmID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &OpError{Op: "submit", Message: "task submission failed", NodeID: req.Ref, Cause: err}
	}

	c.mu.Lock()
	c.taskRefs[taskID] = req.Ref
	c.markWorkerLocked(req.Ref, WorkerStatusWorking)
	c.mu.Unlock()

	span.SetAttributes(attribute.String("task.id", taskID.String()))
	c.logger.DebugContext(ctx, "task submitted",
		"task_id", taskID,
		"node_id", req.Ref,
		"priority", req.Priority,
	)

	return taskID, nil
}

// WaitForCompletion polls the task until it reaches a terminal status or
// the timeout expires. On timeout the result carries TaskStatusTimeout
// and a best-effort CancelTask is issued for the abandoned remote task.
// Poll errors are tolerated up to a small consecutive budget; context
// cancellation ends the wait immediately.
func (c *Coordinator) WaitForCompletion(ctx context.Context, taskID types.ID, timeout time.Duration) WaitResult {
	ctx, span := c.tracer.Start(ctx, "swarm.WaitForCompletion")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", taskID.String()))

	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	start := time.Now()
	deadline := start.Add(timeout)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	pollErrors := 0
	for {
		status, err := c.client.TaskStatus(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return c.finishWait(ctx, span, taskID, WaitResult{
					FinalStatus: TaskStatusFailed,
					Err:         ctx.Err(),
					Elapsed:     time.Since(start),
				})
			}
			pollErrors++
			c.logger.WarnContext(ctx, "task status poll failed",
				"task_id", taskID,
				"consecutive_errors", pollErrors,
				"error", err,
			)
			if pollErrors >= maxConsecutivePollErrors {
				return c.finishWait(ctx, span, taskID, WaitResult{
					FinalStatus: TaskStatusFailed,
					Err:         fmt.Errorf("task status polling failed %d times in a row: %w", pollErrors, err),
					Elapsed:     time.Since(start),
				})
			}
		} else {
			pollErrors = 0
			if status.IsTerminal() {
				result := WaitResult{
					Success:     status == TaskStatusCompleted,
					FinalStatus: status,
					Elapsed:     time.Since(start),
				}
				if result.Success {
					if results, rerr := c.client.TaskResults(ctx, taskID); rerr != nil {
						c.logger.WarnContext(ctx, "failed to fetch task results",
							"task_id", taskID,
							"error", rerr,
						)
					} else {
						result.Results = results
					}
				}
				return c.finishWait(ctx, span, taskID, result)
			}
			c.logger.DebugContext(ctx, "task still running",
				"task_id", taskID,
				"status", status,
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
		}

		if time.Now().After(deadline) {
			c.logger.WarnContext(ctx, "task wait timed out",
				"task_id", taskID,
				"timeout", timeout,
			)
			c.cancelTask(ctx, taskID)
			return c.finishWait(ctx, span, taskID, WaitResult{
				FinalStatus: TaskStatusTimeout,
				Elapsed:     time.Since(start),
			})
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return c.finishWait(ctx, span, taskID, WaitResult{
				FinalStatus: TaskStatusFailed,
				Err:         ctx.Err(),
				Elapsed:     time.Since(start),
			})
		}
	}
}

// Teardown destroys the remote swarm. Destruction is best-effort: a
// failure is logged and swallowed, never propagated, so teardown can run
// unconditionally on every exit path.
func (c *Coordinator) Teardown(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "swarm.Teardown")
	defer span.End()

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == nil {
		return
	}
	span.SetAttributes(attribute.String("swarm.id", state.SwarmID.String()))

	if err := c.client.DestroySwarm(ctx, state.SwarmID); err != nil {
		span.RecordError(err)
		c.logger.WarnContext(ctx, "swarm teardown failed",
			"swarm_id", state.SwarmID,
			"error", err,
		)
		return
	}

	c.mu.Lock()
	c.state.Status = SwarmStatusCompleted
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "swarm destroyed", "swarm_id", state.SwarmID)
}

// finishWait records the wait outcome on the span, the worker, and the log.
func (c *Coordinator) finishWait(ctx context.Context, span trace.Span, taskID types.ID, result WaitResult) WaitResult {
	span.SetAttributes(attribute.String("task.final_status", string(result.FinalStatus)))
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	}

	c.mu.Lock()
	ref := c.taskRefs[taskID]
	if ref != "" {
		if result.Success {
			c.markWorkerLocked(ref, WorkerStatusCompleted)
		} else {
			c.markWorkerLocked(ref, WorkerStatusFailed)
		}
	}
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "task wait finished",
		"task_id", taskID,
		"node_id", ref,
		"final_status", result.FinalStatus,
		"success", result.Success,
		"elapsed", result.Elapsed.Round(time.Millisecond),
	)

	return result
}

// cancelTask issues a best-effort cancel for a task abandoned by timeout.
func (c *Coordinator) cancelTask(ctx context.Context, taskID types.ID) {
	if err := c.client.CancelTask(ctx, taskID); err != nil {
		c.logger.WarnContext(ctx, "task cancel failed",
			"task_id", taskID,
			"error", err,
		)
		return
	}
	c.logger.DebugContext(ctx, "task cancelled", "task_id", taskID)
}

// requireSwarm returns the swarm id, or an error when InitPool has not
// succeeded yet.
func (c *Coordinator) requireSwarm() (types.ID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return "", &OpError{Op: "init", Message: "swarm not initialized"}
	}
	return c.state.SwarmID, nil
}

// recordWorker appends a freshly spawned worker to the swarm state.
func (c *Coordinator) recordWorker(spec AgentSpec, workerID types.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return
	}
	c.state.Workers = append(c.state.Workers, Worker{
		WorkerID: workerID,
		Role:     spec.Role,
		NodeID:   spec.Name,
		Status:   WorkerStatusIdle,
	})
}

// markWorkerLocked updates the status of the worker assigned to nodeID.
// Callers must hold mu.
func (c *Coordinator) markWorkerLocked(nodeID string, status WorkerStatus) {
	if c.state == nil {
		return
	}
	for i := range c.state.Workers {
		if c.state.Workers[i].NodeID == nodeID {
			c.state.Workers[i].Status = status
			return
		}
	}
}
