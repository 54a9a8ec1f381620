// Package orchestrator drives a run end to end: build and validate the
// execution plan, initialize a swarm, then execute the plan batch by
// batch with one worker and one task per change. Batches run strictly in
// sequence; nodes inside a batch fan out to goroutines. A node failure
// never fails the run, it blocks the node's dependents and lets the rest
// continue.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scottwilkos/openspec-flow/internal/change"
	"github.com/scottwilkos/openspec-flow/internal/plan"
	"github.com/scottwilkos/openspec-flow/internal/swarm"
	"github.com/scottwilkos/openspec-flow/internal/types"
)

const (
	// defaultWorkerRole is the agent role requested for change workers.
	defaultWorkerRole = "coder"

	// teardownTimeout bounds the best-effort swarm destroy that runs on
	// every exit path, including cancellation.
	teardownTimeout = 30 * time.Second
)

// HistoryStore persists finished runs. A persistence failure is logged
// and never fails the run.
type HistoryStore interface {
	Save(ctx context.Context, result *RunResult) error
}

// Orchestrator executes change plans against a swarm coordinator.
type Orchestrator struct {
	coordinator *swarm.Coordinator
	logger      *slog.Logger
	tracer      trace.Tracer
	emitter     EventEmitter
	history     HistoryStore

	topology     swarm.Topology
	strategy     swarm.Strategy
	taskPriority swarm.Priority
	workerRole   string
	maxWorkers   int
	maxParallel  int
	taskTimeout  time.Duration
	runTimeout   time.Duration
}

// Option is a functional option for configuring the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for run operations.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the OpenTelemetry tracer for run spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithEmitter sets the event emitter for run lifecycle events.
func WithEmitter(emitter EventEmitter) Option {
	return func(o *Orchestrator) {
		if emitter != nil {
			o.emitter = emitter
		}
	}
}

// WithHistory sets the store finished runs are persisted to.
func WithHistory(store HistoryStore) Option {
	return func(o *Orchestrator) {
		if store != nil {
			o.history = store
		}
	}
}

// WithTopology sets the topology requested for the swarm.
func WithTopology(topology swarm.Topology) Option {
	return func(o *Orchestrator) {
		if topology != "" {
			o.topology = topology
		}
	}
}

// WithStrategy sets the scheduling strategy for the swarm and its tasks.
func WithStrategy(strategy swarm.Strategy) Option {
	return func(o *Orchestrator) {
		if strategy != "" {
			o.strategy = strategy
		}
	}
}

// WithTaskPriority sets the priority attached to submitted tasks.
func WithTaskPriority(priority swarm.Priority) Option {
	return func(o *Orchestrator) {
		if priority != "" {
			o.taskPriority = priority
		}
	}
}

// WithWorkerRole sets the agent role requested for change workers.
func WithWorkerRole(role string) Option {
	return func(o *Orchestrator) {
		if role != "" {
			o.workerRole = role
		}
	}
}

// WithMaxWorkers sets the swarm's worker cap. When unset the cap is
// derived from the largest batch.
func WithMaxWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

// WithMaxParallel sets the maximum number of nodes executed concurrently
// within a batch. Default: 10.
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithTaskTimeout sets the per-task wait timeout. When unset the
// coordinator's default applies.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.taskTimeout = d
		}
	}
}

// WithRunTimeout sets an overall deadline for the run. Default: none.
func WithRunTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.runTimeout = d
		}
	}
}

// New creates an Orchestrator over the given coordinator.
func New(coordinator *swarm.Coordinator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		coordinator:  coordinator,
		logger:       slog.Default(),
		tracer:       trace.NewNoopTracerProvider().Tracer("orchestrator"),
		topology:     swarm.TopologyHierarchical,
		strategy:     swarm.StrategyBalanced,
		taskPriority: swarm.PriorityMedium,
		workerRole:   defaultWorkerRole,
		maxParallel:  10,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// nodeLaunch pairs a runnable node with its spawned worker.
type nodeLaunch struct {
	id       string
	workerID types.ID
}

// Execute runs the full lifecycle for the given changes: plan, validate,
// initialize the swarm, execute every batch, always tear down, and
// return the run summary.
//
// The error return covers run-scoped failures only: dependency cycles,
// plan validation, swarm initialization, and context cancellation.
// Node-scoped failures land in the RunResult, never in the error.
func (o *Orchestrator) Execute(ctx context.Context, changes []*change.Change) (*RunResult, error) {
	runID := types.NewID()
	startedAt := time.Now()

	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.Execute",
		trace.WithAttributes(
			attribute.String("run.id", runID.String()),
			attribute.Int("run.change_count", len(changes)),
		),
	)
	defer span.End()

	p, err := plan.Build(changes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("plan.id", p.ID.String()))

	if vr := plan.NewValidator().Validate(p); !vr.Valid {
		err := &InvalidPlanError{Errors: vr.Errors}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	o.logger.InfoContext(ctx, "run starting",
		"run_id", runID,
		"plan_id", p.ID,
		"changes", len(p.Order),
		"batches", len(p.Batches),
	)

	o.emit(ctx, newRunEvent(EventRunStarted, runID, "", &RunStartedPayload{
		PlanID:  p.ID,
		Order:   p.Order,
		Batches: p.Batches,
	}))

	if _, err := o.coordinator.InitPool(ctx, swarm.InitRequest{
		Topology:   o.topology,
		MaxWorkers: o.poolSize(p),
		Strategy:   o.strategy,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.emit(ctx, newRunEvent(EventRunCompleted, runID, "", &RunCompletedPayload{
			Elapsed: time.Since(startedAt),
		}))
		return nil, err
	}

	// Teardown runs on every exit path and must survive cancellation of
	// the run context.
	defer func() {
		teardownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		o.coordinator.Teardown(teardownCtx)
	}()

	var mu sync.Mutex
	completed := make(map[string]bool)

	for i, batch := range p.Batches {
		if err := ctx.Err(); err != nil {
			o.logger.WarnContext(ctx, "run cancelled",
				"run_id", runID,
				"batch", i,
				"error", err,
			)
			span.SetStatus(codes.Error, err.Error())
			o.emit(ctx, newRunEvent(EventRunCompleted, runID, "", &RunCompletedPayload{
				Elapsed: time.Since(startedAt),
			}))
			return nil, fmt.Errorf("run cancelled: %w", err)
		}

		o.emit(ctx, newRunEvent(EventBatchStarted, runID, "", &BatchPayload{
			Index: i,
			Total: len(p.Batches),
			Nodes: batch,
		}))
		o.logger.InfoContext(ctx, "batch starting",
			"run_id", runID,
			"batch", i,
			"nodes", batch,
		)

		runnable := o.gateBatch(ctx, runID, p, batch, &mu, completed)

		launches, err := o.spawnBatch(ctx, runID, p, runnable)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			o.emit(ctx, newRunEvent(EventRunCompleted, runID, "", &RunCompletedPayload{
				Elapsed: time.Since(startedAt),
			}))
			return nil, fmt.Errorf("run cancelled: %w", err)
		}

		sem := make(chan struct{}, o.maxParallel)
		var wg sync.WaitGroup
		for _, launch := range launches {
			wg.Add(1)
			sem <- struct{}{}

			go func(launch nodeLaunch) {
				defer wg.Done()
				defer func() { <-sem }()

				if o.executeNode(ctx, runID, p, launch) {
					mu.Lock()
					completed[launch.id] = true
					mu.Unlock()
				}
			}(launch)
		}
		wg.Wait()

		o.emit(ctx, newRunEvent(EventBatchCompleted, runID, "", &BatchPayload{
			Index: i,
			Total: len(p.Batches),
			Nodes: batch,
		}))
	}

	result := buildResult(runID, p, startedAt)
	span.SetAttributes(attribute.Bool("run.success", result.Success))

	o.emit(ctx, newRunEvent(EventRunCompleted, runID, "", &RunCompletedPayload{
		Success:   result.Success,
		Completed: len(result.Completed),
		Failed:    len(result.Failed),
		Blocked:   len(result.Blocked()),
		Elapsed:   result.Elapsed,
	}))

	o.logger.InfoContext(ctx, "run finished",
		"run_id", runID,
		"success", result.Success,
		"summary", result.Summary,
	)

	if o.history != nil {
		if err := o.history.Save(ctx, result); err != nil {
			o.logger.WarnContext(ctx, "failed to persist run history",
				"run_id", runID,
				"error", err,
			)
		}
	}

	return result, nil
}

// gateBatch checks every node of the batch against the completed set.
// Nodes with unmet prerequisites are marked blocked, with the blocking
// changes named; the rest are marked ready and returned.
func (o *Orchestrator) gateBatch(ctx context.Context, runID types.ID, p *plan.ExecutionPlan, batch []string, mu *sync.Mutex, completed map[string]bool) []string {
	runnable := make([]string, 0, len(batch))

	for _, id := range batch {
		mu.Lock()
		unmet := p.UnmetDeps(id, completed)
		mu.Unlock()

		if len(unmet) > 0 {
			p.MarkBlocked(id, fmt.Sprintf("blocked by %s", strings.Join(unmet, ", ")))
			o.logger.WarnContext(ctx, "node blocked",
				"run_id", runID,
				"node_id", id,
				"blockers", unmet,
			)
			o.emit(ctx, newRunEvent(EventNodeBlocked, runID, id, &NodeBlockedPayload{
				Blockers: unmet,
			}))
			continue
		}

		p.MarkReady(id)
		runnable = append(runnable, id)
	}

	return runnable
}

// spawnBatch spawns one worker per runnable node. A spawn failure marks
// the affected node failed and drops it from the launch set; the
// returned error covers whole-call failures only.
func (o *Orchestrator) spawnBatch(ctx context.Context, runID types.ID, p *plan.ExecutionPlan, runnable []string) ([]nodeLaunch, error) {
	if len(runnable) == 0 {
		return nil, nil
	}

	specs := make([]swarm.AgentSpec, len(runnable))
	for i, id := range runnable {
		specs[i] = swarm.AgentSpec{
			Role: o.workerRole,
			Name: id,
		}
	}

	results, err := o.coordinator.SpawnWorkers(ctx, specs, swarm.BatchOptions{
		BatchSize:      len(specs),
		MaxConcurrency: o.maxParallel,
	})
	if err != nil {
		return nil, err
	}

	launches := make([]nodeLaunch, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			o.failNode(ctx, runID, p, res.Spec.Name, res.Err.Error(), "")
			continue
		}
		launches = append(launches, nodeLaunch{id: res.Spec.Name, workerID: res.WorkerID})
	}

	return launches, nil
}

// executeNode submits the node's task and waits for it to terminate.
// It reports whether the node completed.
func (o *Orchestrator) executeNode(ctx context.Context, runID types.ID, p *plan.ExecutionPlan, launch nodeLaunch) bool {
	ctx, span := o.tracer.Start(ctx, "orchestrator.executeNode",
		trace.WithAttributes(attribute.String("node.id", launch.id)),
	)
	defer span.End()

	node, ok := p.Node(launch.id)
	if !ok {
		return false
	}

	o.emit(ctx, newRunEvent(EventNodeStarted, runID, launch.id, nil))

	description := fmt.Sprintf("Apply change %s", launch.id)
	if node.Title != "" {
		description = fmt.Sprintf("Apply change %s: %s", launch.id, node.Title)
	}

	taskID, err := o.coordinator.Submit(ctx, swarm.TaskRequest{
		Ref:         launch.id,
		Description: description,
		Priority:    o.taskPriority,
		Strategy:    o.strategy,
		DependsOn:   node.DependsOn,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.failNode(ctx, runID, p, launch.id, err.Error(), "")
		return false
	}
	span.SetAttributes(attribute.String("task.id", taskID.String()))

	p.MarkStarted(launch.id, launch.workerID, taskID)

	result := o.coordinator.WaitForCompletion(ctx, taskID, o.taskTimeout)
	if result.Success {
		p.MarkCompleted(launch.id)
		o.logger.InfoContext(ctx, "node completed",
			"run_id", runID,
			"node_id", launch.id,
			"elapsed", result.Elapsed.Round(time.Millisecond),
		)
		o.emit(ctx, newRunEvent(EventNodeCompleted, runID, launch.id, &NodeCompletedPayload{
			TaskID:  taskID,
			Elapsed: result.Elapsed,
			Results: result.Results,
		}))
		return true
	}

	reason := nodeFailureReason(result)
	span.SetStatus(codes.Error, reason)
	o.failNode(ctx, runID, p, launch.id, reason, result.FinalStatus)
	return false
}

// failNode marks a node failed and emits the failure event.
func (o *Orchestrator) failNode(ctx context.Context, runID types.ID, p *plan.ExecutionPlan, id, reason string, finalStatus swarm.TaskStatus) {
	p.MarkFailed(id, reason)
	o.logger.WarnContext(ctx, "node failed",
		"run_id", runID,
		"node_id", id,
		"reason", reason,
	)
	o.emit(ctx, newRunEvent(EventNodeFailed, runID, id, &NodeFailedPayload{
		Reason:      reason,
		FinalStatus: finalStatus,
	}))
}

// nodeFailureReason renders a WaitResult into a stored failure reason.
func nodeFailureReason(result swarm.WaitResult) string {
	switch {
	case result.FinalStatus == swarm.TaskStatusTimeout:
		return fmt.Sprintf("task timed out after %s", result.Elapsed.Round(time.Second))
	case result.Err != nil:
		return result.Err.Error()
	default:
		return fmt.Sprintf("task reported %s", result.FinalStatus)
	}
}

// poolSize picks the swarm worker cap: the configured maximum, or the
// largest batch when none is configured.
func (o *Orchestrator) poolSize(p *plan.ExecutionPlan) int {
	if o.maxWorkers > 0 {
		return o.maxWorkers
	}
	largest := 1
	for _, batch := range p.Batches {
		if len(batch) > largest {
			largest = len(batch)
		}
	}
	return largest
}

// emit publishes an event when an emitter is attached.
func (o *Orchestrator) emit(ctx context.Context, event RunEvent) {
	if o.emitter == nil {
		return
	}
	if err := o.emitter.Emit(ctx, event); err != nil {
		o.logger.DebugContext(ctx, "event emit failed",
			"type", event.Type,
			"error", err,
		)
	}
}
