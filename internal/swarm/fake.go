package swarm

import (
	"context"
	"sync"

	"github.com/scottwilkos/openspec-flow/internal/types"
)

// TaskOutcome scripts how the fake resolves one task, keyed by the task's
// Ref. The zero value completes on the first poll with no results.
type TaskOutcome struct {
	// PollsUntilTerminal is how many status polls report in_progress
	// before Final is returned. Zero behaves as one.
	PollsUntilTerminal int

	// Final is the terminal status to report: completed (default) or
	// failed.
	Final TaskStatus

	// Hang keeps the task in_progress forever, for timeout tests.
	Hang bool

	// Results is returned by TaskResults for this task.
	Results map[string]any

	// StatusErr makes every status poll fail with this error.
	StatusErr error
}

// Call records one operation observed by the fake.
type Call struct {
	// Op is the operation name: init, spawn, spawn_batch, submit,
	// status, results, cancel, destroy.
	Op string

	// SwarmID is set for swarm-scoped operations.
	SwarmID types.ID

	// TaskID is set for task-scoped operations.
	TaskID types.ID

	// Ref is the task correlation key for submit calls.
	Ref string

	// Name is the agent name for spawn calls.
	Name string

	// Count is the cohort size for spawn_batch calls.
	Count int
}

// fakeTask is the fake's record of one submitted task.
type fakeTask struct {
	ref       string
	polls     int
	cancelled bool
}

// FakeClient is a deterministic in-memory Client for tests and simulated
// runs. Outcomes are scripted per task Ref; every operation is recorded
// for assertions. All methods are safe for concurrent use.
type FakeClient struct {
	mu sync.Mutex

	defaultOutcome TaskOutcome
	outcomes       map[string]TaskOutcome
	tasks          map[types.ID]*fakeTask
	calls          []Call

	initErr       error
	spawnErrs     map[string]error
	spawnBatchErr error
	submitErrs    map[string]error
	destroyErr    error

	swarmID types.ID
}

// FakeOption configures a FakeClient.
type FakeOption func(*FakeClient)

// WithDefaultOutcome sets the outcome applied to unscripted tasks.
func WithDefaultOutcome(outcome TaskOutcome) FakeOption {
	return func(f *FakeClient) {
		f.defaultOutcome = outcome
	}
}

// NewFakeClient creates a fake whose unscripted tasks complete on the
// first poll.
func NewFakeClient(opts ...FakeOption) *FakeClient {
	f := &FakeClient{
		outcomes:   make(map[string]TaskOutcome),
		tasks:      make(map[types.ID]*fakeTask),
		spawnErrs:  make(map[string]error),
		submitErrs: make(map[string]error),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ScriptTask sets the outcome for tasks submitted with the given ref.
func (f *FakeClient) ScriptTask(ref string, outcome TaskOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[ref] = outcome
}

// FailInit makes InitSwarm fail.
func (f *FakeClient) FailInit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initErr = err
}

// FailSpawn makes single spawns of the named agent fail.
func (f *FakeClient) FailSpawn(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawnErrs[name] = err
}

// FailSpawnBatch makes the batch spawn endpoint fail as a whole.
func (f *FakeClient) FailSpawnBatch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawnBatchErr = err
}

// FailSubmit makes submissions with the given ref fail.
func (f *FakeClient) FailSubmit(ref string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErrs[ref] = err
}

// FailDestroy makes DestroySwarm fail.
func (f *FakeClient) FailDestroy(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyErr = err
}

// Calls returns a copy of all recorded calls, in order.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor returns the recorded calls for one operation, in order.
func (f *FakeClient) CallsFor(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, call := range f.calls {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// TaskRef resolves a task id back to the ref it was submitted with.
func (f *FakeClient) TaskRef(taskID types.ID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task, ok := f.tasks[taskID]; ok {
		return task.ref
	}
	return ""
}

// InitSwarm implements Client.
func (f *FakeClient) InitSwarm(ctx context.Context, req InitRequest) (types.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "init", Count: req.MaxWorkers})
	if f.initErr != nil {
		return "", f.initErr
	}
	f.swarmID = types.NewID()
	return f.swarmID, nil
}

// SpawnAgent implements Client.
func (f *FakeClient) SpawnAgent(ctx context.Context, swarmID types.ID, spec AgentSpec) (types.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "spawn", SwarmID: swarmID, Name: spec.Name})
	if err := f.spawnErrs[spec.Name]; err != nil {
		return "", err
	}
	return types.NewID(), nil
}

// SpawnAgents implements Client.
func (f *FakeClient) SpawnAgents(ctx context.Context, swarmID types.ID, specs []AgentSpec, opts BatchOptions) ([]types.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "spawn_batch", SwarmID: swarmID, Count: len(specs)})
	if f.spawnBatchErr != nil {
		return nil, f.spawnBatchErr
	}
	ids := make([]types.ID, len(specs))
	for i := range specs {
		ids[i] = types.NewID()
	}
	return ids, nil
}

// SubmitTask implements Client.
func (f *FakeClient) SubmitTask(ctx context.Context, swarmID types.ID, req TaskRequest) (types.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "submit", SwarmID: swarmID, Ref: req.Ref})
	if err := f.submitErrs[req.Ref]; err != nil {
		return "", err
	}
	taskID := types.NewID()
	f.tasks[taskID] = &fakeTask{ref: req.Ref}
	return taskID, nil
}

// TaskStatus implements Client. Each call advances the task's poll count
// toward its scripted terminal status.
func (f *FakeClient) TaskStatus(ctx context.Context, taskID types.ID) (TaskStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "status", TaskID: taskID})

	task, ok := f.tasks[taskID]
	if !ok {
		return "", &OpError{Op: "status", Message: "unknown task " + taskID.String()}
	}

	outcome := f.outcomeFor(task.ref)
	if outcome.StatusErr != nil {
		return "", outcome.StatusErr
	}
	if task.cancelled {
		return TaskStatusFailed, nil
	}
	if outcome.Hang {
		return TaskStatusInProgress, nil
	}

	task.polls++
	threshold := outcome.PollsUntilTerminal
	if threshold < 1 {
		threshold = 1
	}
	if task.polls < threshold {
		return TaskStatusInProgress, nil
	}

	final := outcome.Final
	if final == "" {
		final = TaskStatusCompleted
	}
	return final, nil
}

// TaskResults implements Client.
func (f *FakeClient) TaskResults(ctx context.Context, taskID types.ID) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "results", TaskID: taskID})

	task, ok := f.tasks[taskID]
	if !ok {
		return nil, &OpError{Op: "results", Message: "unknown task " + taskID.String()}
	}
	return f.outcomeFor(task.ref).Results, nil
}

// CancelTask implements Client. Cancelled tasks report failed from the
// next poll on.
func (f *FakeClient) CancelTask(ctx context.Context, taskID types.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "cancel", TaskID: taskID})

	task, ok := f.tasks[taskID]
	if !ok {
		return &OpError{Op: "cancel", Message: "unknown task " + taskID.String()}
	}
	task.cancelled = true
	return nil
}

// DestroySwarm implements Client.
func (f *FakeClient) DestroySwarm(ctx context.Context, swarmID types.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "destroy", SwarmID: swarmID})
	return f.destroyErr
}

// outcomeFor must be called with the lock held.
func (f *FakeClient) outcomeFor(ref string) TaskOutcome {
	if outcome, ok := f.outcomes[ref]; ok {
		return outcome
	}
	return f.defaultOutcome
}

// Compile-time interface check.
var _ Client = (*FakeClient)(nil)
