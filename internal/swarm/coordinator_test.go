package swarm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottwilkos/openspec-flow/internal/types"
)

func testInitRequest() InitRequest {
	return InitRequest{
		Topology:   TopologyMesh,
		MaxWorkers: 4,
		Strategy:   StrategyBalanced,
	}
}

// initCoordinator returns a coordinator with an initialized pool and a
// fast poll interval.
func initCoordinator(t *testing.T, fake *FakeClient) *Coordinator {
	t.Helper()

	coord := NewCoordinator(fake, WithPollInterval(time.Millisecond))
	_, err := coord.InitPool(context.Background(), testInitRequest())
	require.NoError(t, err)
	return coord
}

func workerByNode(t *testing.T, state *SwarmState, nodeID string) Worker {
	t.Helper()

	require.NotNil(t, state)
	for _, w := range state.Workers {
		if w.NodeID == nodeID {
			return w
		}
	}
	t.Fatalf("no worker assigned to node %q", nodeID)
	return Worker{}
}

func TestCoordinator_InitPool(t *testing.T) {
	fake := NewFakeClient()
	coord := NewCoordinator(fake)

	swarmID, err := coord.InitPool(context.Background(), testInitRequest())

	require.NoError(t, err)
	assert.False(t, swarmID.IsZero())
	assert.Equal(t, swarmID, coord.SwarmID())

	state := coord.State()
	require.NotNil(t, state)
	assert.Equal(t, SwarmStatusRunning, state.Status)
	assert.Equal(t, TopologyMesh, state.Topology)
	assert.Equal(t, 4, state.MaxWorkers)
	assert.Empty(t, state.Workers)
}

func TestCoordinator_InitPool_Failure(t *testing.T) {
	fake := NewFakeClient()
	fake.FailInit(errors.New("capacity exhausted"))
	coord := NewCoordinator(fake)

	swarmID, err := coord.InitPool(context.Background(), testInitRequest())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSwarmInit))
	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "init", opErr.Op)
	assert.True(t, swarmID.IsZero())
	assert.Nil(t, coord.State())
}

func TestCoordinator_InitPool_InvalidRequest(t *testing.T) {
	fake := NewFakeClient()
	coord := NewCoordinator(fake)

	_, err := coord.InitPool(context.Background(), InitRequest{Topology: "triangle", MaxWorkers: 2})

	require.Error(t, err)
	assert.Empty(t, fake.Calls())
}

func TestCoordinator_OperationsRequireInit(t *testing.T) {
	coord := NewCoordinator(NewFakeClient())
	ctx := context.Background()

	_, err := coord.Submit(ctx, TaskRequest{Ref: "alpha", Description: "apply alpha"})
	assert.True(t, errors.Is(err, ErrSwarmInit))

	_, err = coord.SpawnWorker(ctx, AgentSpec{Role: "implementer", Name: "alpha"})
	assert.True(t, errors.Is(err, ErrSwarmInit))

	_, err = coord.SpawnWorkers(ctx, []AgentSpec{{Name: "a"}, {Name: "b"}}, BatchOptions{})
	assert.True(t, errors.Is(err, ErrSwarmInit))
}

func TestCoordinator_SpawnWorkers_UsesBatchForCohorts(t *testing.T) {
	fake := NewFakeClient()
	coord := initCoordinator(t, fake)

	specs := []AgentSpec{
		{Role: "implementer", Name: "alpha"},
		{Role: "implementer", Name: "bravo"},
		{Role: "implementer", Name: "charlie"},
	}

	results, err := coord.SpawnWorkers(context.Background(), specs, BatchOptions{BatchSize: 3})

	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.NoError(t, res.Err)
		assert.False(t, res.WorkerID.IsZero())
		assert.Equal(t, specs[i].Name, res.Spec.Name)
	}

	assert.Len(t, fake.CallsFor("spawn_batch"), 1)
	assert.Empty(t, fake.CallsFor("spawn"))

	state := coord.State()
	require.Len(t, state.Workers, 3)
	assert.Equal(t, WorkerStatusIdle, workerByNode(t, state, "bravo").Status)
}

func TestCoordinator_SpawnWorkers_SingleSpecSkipsBatch(t *testing.T) {
	fake := NewFakeClient()
	coord := initCoordinator(t, fake)

	results, err := coord.SpawnWorkers(context.Background(),
		[]AgentSpec{{Role: "implementer", Name: "alpha"}}, BatchOptions{})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Len(t, fake.CallsFor("spawn"), 1)
	assert.Empty(t, fake.CallsFor("spawn_batch"))
}

func TestCoordinator_SpawnWorkers_FallsBackToSingles(t *testing.T) {
	fake := NewFakeClient()
	fake.FailSpawnBatch(errors.New("batch endpoint down"))
	fake.FailSpawn("bravo", errors.New("no capacity"))
	coord := initCoordinator(t, fake)

	specs := []AgentSpec{
		{Role: "implementer", Name: "alpha"},
		{Role: "implementer", Name: "bravo"},
		{Role: "implementer", Name: "charlie"},
	}

	results, err := coord.SpawnWorkers(context.Background(), specs, BatchOptions{})

	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.False(t, results[0].WorkerID.IsZero())

	require.Error(t, results[1].Err)
	assert.True(t, errors.Is(results[1].Err, ErrAgentSpawn))
	var opErr *OpError
	require.True(t, errors.As(results[1].Err, &opErr))
	assert.Equal(t, "bravo", opErr.NodeID)

	assert.NoError(t, results[2].Err)

	assert.Len(t, fake.CallsFor("spawn_batch"), 1)
	assert.Len(t, fake.CallsFor("spawn"), 3)

	// The failed spec never becomes a tracked worker.
	state := coord.State()
	assert.Len(t, state.Workers, 2)
}

func TestCoordinator_SpawnWorkers_Empty(t *testing.T) {
	fake := NewFakeClient()
	coord := initCoordinator(t, fake)

	results, err := coord.SpawnWorkers(context.Background(), nil, BatchOptions{})

	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestCoordinator_SubmitAndWait_Success(t *testing.T) {
	fake := NewFakeClient()
	fake.ScriptTask("alpha", TaskOutcome{
		PollsUntilTerminal: 2,
		Results:            map[string]any{"files_changed": float64(3)},
	})
	coord := initCoordinator(t, fake)

	_, err := coord.SpawnWorker(context.Background(), AgentSpec{Role: "implementer", Name: "alpha"})
	require.NoError(t, err)

	taskID, err := coord.Submit(context.Background(), TaskRequest{
		Ref:         "alpha",
		Description: "apply change alpha",
		Priority:    PriorityMedium,
	})
	require.NoError(t, err)
	assert.False(t, taskID.IsZero())
	assert.Equal(t, WorkerStatusWorking, workerByNode(t, coord.State(), "alpha").Status)

	result := coord.WaitForCompletion(context.Background(), taskID, time.Second)

	assert.True(t, result.Success)
	assert.Equal(t, TaskStatusCompleted, result.FinalStatus)
	assert.NoError(t, result.Err)
	assert.Equal(t, map[string]any{"files_changed": float64(3)}, result.Results)
	assert.Greater(t, result.Elapsed, time.Duration(0))
	assert.Equal(t, WorkerStatusCompleted, workerByNode(t, coord.State(), "alpha").Status)
}

func TestCoordinator_Wait_RemoteFailure(t *testing.T) {
	fake := NewFakeClient()
	fake.ScriptTask("alpha", TaskOutcome{Final: TaskStatusFailed})
	coord := initCoordinator(t, fake)

	_, err := coord.SpawnWorker(context.Background(), AgentSpec{Name: "alpha"})
	require.NoError(t, err)
	taskID, err := coord.Submit(context.Background(), TaskRequest{Ref: "alpha"})
	require.NoError(t, err)

	result := coord.WaitForCompletion(context.Background(), taskID, time.Second)

	assert.False(t, result.Success)
	assert.Equal(t, TaskStatusFailed, result.FinalStatus)
	assert.NoError(t, result.Err)
	assert.Equal(t, WorkerStatusFailed, workerByNode(t, coord.State(), "alpha").Status)
}

func TestCoordinator_Wait_TimeoutCancelsTask(t *testing.T) {
	fake := NewFakeClient()
	fake.ScriptTask("alpha", TaskOutcome{Hang: true})
	coord := initCoordinator(t, fake)

	taskID, err := coord.Submit(context.Background(), TaskRequest{Ref: "alpha"})
	require.NoError(t, err)

	result := coord.WaitForCompletion(context.Background(), taskID, 25*time.Millisecond)

	assert.False(t, result.Success)
	assert.Equal(t, TaskStatusTimeout, result.FinalStatus)
	assert.NoError(t, result.Err)

	cancels := fake.CallsFor("cancel")
	require.Len(t, cancels, 1)
	assert.Equal(t, taskID, cancels[0].TaskID)
}

func TestCoordinator_Wait_PollErrorBudget(t *testing.T) {
	fake := NewFakeClient()
	fake.ScriptTask("alpha", TaskOutcome{StatusErr: errors.New("status endpoint down")})
	coord := initCoordinator(t, fake)

	taskID, err := coord.Submit(context.Background(), TaskRequest{Ref: "alpha"})
	require.NoError(t, err)

	result := coord.WaitForCompletion(context.Background(), taskID, time.Second)

	assert.False(t, result.Success)
	assert.Equal(t, TaskStatusFailed, result.FinalStatus)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "status endpoint down")
	assert.Len(t, fake.CallsFor("status"), maxConsecutivePollErrors)
}

func TestCoordinator_Wait_ContextCancelled(t *testing.T) {
	fake := NewFakeClient()
	fake.ScriptTask("alpha", TaskOutcome{Hang: true})
	coord := initCoordinator(t, fake)

	taskID, err := coord.Submit(context.Background(), TaskRequest{Ref: "alpha"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(10*time.Millisecond, cancel)
	defer timer.Stop()

	result := coord.WaitForCompletion(ctx, taskID, time.Minute)

	assert.False(t, result.Success)
	require.Error(t, result.Err)
	assert.True(t, errors.Is(result.Err, context.Canceled))
	// Cancellation is not a timeout; no remote cancel is attempted.
	assert.Empty(t, fake.CallsFor("cancel"))
}

func TestCoordinator_Teardown(t *testing.T) {
	fake := NewFakeClient()
	coord := initCoordinator(t, fake)

	coord.Teardown(context.Background())

	assert.Len(t, fake.CallsFor("destroy"), 1)
	assert.Equal(t, SwarmStatusCompleted, coord.State().Status)
}

func TestCoordinator_Teardown_FailureIsSwallowed(t *testing.T) {
	fake := NewFakeClient()
	fake.FailDestroy(errors.New("destroy rejected"))
	coord := initCoordinator(t, fake)

	coord.Teardown(context.Background())

	assert.Len(t, fake.CallsFor("destroy"), 1)
	// The swarm is still considered live; only a successful destroy
	// completes it.
	assert.Equal(t, SwarmStatusRunning, coord.State().Status)
}

func TestCoordinator_Teardown_BeforeInitIsNoop(t *testing.T) {
	fake := NewFakeClient()
	coord := NewCoordinator(fake)

	coord.Teardown(context.Background())

	assert.Empty(t, fake.CallsFor("destroy"))
}

func TestFakeClient_TaskRef(t *testing.T) {
	fake := NewFakeClient()
	swarmID, err := fake.InitSwarm(context.Background(), testInitRequest())
	require.NoError(t, err)

	taskID, err := fake.SubmitTask(context.Background(), swarmID, TaskRequest{Ref: "alpha"})
	require.NoError(t, err)

	assert.Equal(t, "alpha", fake.TaskRef(taskID))
	assert.Empty(t, fake.TaskRef(types.NewID()))
}

func TestFakeClient_CancelFlipsStatus(t *testing.T) {
	fake := NewFakeClient()
	fake.ScriptTask("alpha", TaskOutcome{Hang: true})
	ctx := context.Background()

	swarmID, err := fake.InitSwarm(ctx, testInitRequest())
	require.NoError(t, err)
	taskID, err := fake.SubmitTask(ctx, swarmID, TaskRequest{Ref: "alpha"})
	require.NoError(t, err)

	status, err := fake.TaskStatus(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusInProgress, status)

	require.NoError(t, fake.CancelTask(ctx, taskID))

	status, err = fake.TaskStatus(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFailed, status)
}
