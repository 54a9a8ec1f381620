package plan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottwilkos/openspec-flow/internal/change"
	"github.com/scottwilkos/openspec-flow/internal/types"
)

func buildTestPlan(t *testing.T) *ExecutionPlan {
	t.Helper()
	p, err := Build([]*change.Change{
		explicit("base", []string{}, ""),
		explicit("mid", []string{"base"}, ""),
		explicit("top", []string{"mid"}, ""),
	})
	require.NoError(t, err)
	return p
}

func TestExecutionPlan_markTransitions(t *testing.T) {
	p := buildTestPlan(t)

	workerID := types.NewID()
	taskID := types.NewID()

	p.MarkReady("base")
	assert.Equal(t, NodeStatusReady, p.Status("base"))

	p.MarkStarted("base", workerID, taskID)
	node, ok := p.Node("base")
	require.True(t, ok)
	assert.Equal(t, NodeStatusInProgress, node.Status)
	assert.Equal(t, workerID, node.WorkerID)
	assert.Equal(t, taskID, node.TaskID)
	require.NotNil(t, node.StartedAt)
	assert.Nil(t, node.CompletedAt)

	p.MarkCompleted("base")
	node, _ = p.Node("base")
	assert.Equal(t, NodeStatusCompleted, node.Status)
	require.NotNil(t, node.CompletedAt)

	p.MarkFailed("mid", "worker crashed")
	node, _ = p.Node("mid")
	assert.Equal(t, NodeStatusFailed, node.Status)
	assert.Equal(t, "worker crashed", node.Error)
	require.NotNil(t, node.CompletedAt)

	p.MarkBlocked("top", "dependency mid failed")
	node, _ = p.Node("top")
	assert.Equal(t, NodeStatusBlocked, node.Status)
	assert.Equal(t, "dependency mid failed", node.Error)
	assert.Nil(t, node.StartedAt, "blocked nodes never start")
}

func TestExecutionPlan_unknownIDsAreNoOps(t *testing.T) {
	p := buildTestPlan(t)

	p.MarkCompleted("nope")
	p.MarkFailed("nope", "x")
	assert.Equal(t, NodeStatus(""), p.Status("nope"))

	_, ok := p.Node("nope")
	assert.False(t, ok)
	assert.Nil(t, p.UnmetDeps("nope", nil))
}

func TestExecutionPlan_UnmetDeps(t *testing.T) {
	p := buildTestPlan(t)

	assert.Empty(t, p.UnmetDeps("base", map[string]bool{}))
	assert.Equal(t, []string{"base"}, p.UnmetDeps("mid", map[string]bool{}))
	assert.Empty(t, p.UnmetDeps("mid", map[string]bool{"base": true}))
	assert.Equal(t, []string{"mid"}, p.UnmetDeps("top", map[string]bool{"base": true}))
}

func TestExecutionPlan_SnapshotAndCounts(t *testing.T) {
	p := buildTestPlan(t)

	p.MarkCompleted("base")
	p.MarkFailed("mid", "boom")
	p.MarkBlocked("top", "mid failed")

	snapshot := p.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "base", snapshot[0].ID, "snapshot follows topological order")

	counts := p.StatusCounts()
	assert.Equal(t, 1, counts[NodeStatusCompleted])
	assert.Equal(t, 1, counts[NodeStatusFailed])
	assert.Equal(t, 1, counts[NodeStatusBlocked])

	assert.True(t, p.IsComplete())
}

func TestExecutionPlan_IsCompleteWithPendingNodes(t *testing.T) {
	p := buildTestPlan(t)
	p.MarkCompleted("base")
	assert.False(t, p.IsComplete())
}

func TestExecutionPlan_concurrentMarks(t *testing.T) {
	changes := make([]*change.Change, 0, 32)
	for _, id := range []string{
		"a", "b", "c", "d", "e", "f", "g", "h",
	} {
		changes = append(changes, explicit(id, []string{}, ""))
	}
	p, err := Build(changes)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range p.Order {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			p.MarkStarted(id, types.NewID(), types.NewID())
			p.MarkCompleted(id)
		}(id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Snapshot()
			p.StatusCounts()
		}()
	}
	wg.Wait()

	assert.True(t, p.IsComplete())
	assert.Equal(t, 8, p.StatusCounts()[NodeStatusCompleted])
}

func TestNodeStatus_IsTerminal(t *testing.T) {
	terminal := []NodeStatus{NodeStatusCompleted, NodeStatusFailed, NodeStatusBlocked}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
	}

	open := []NodeStatus{NodeStatusPending, NodeStatusReady, NodeStatusInProgress}
	for _, s := range open {
		assert.False(t, s.IsTerminal(), s)
	}
}
