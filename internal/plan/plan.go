// Package plan builds and tracks execution plans for a set of change
// proposals: dependency graph construction, cycle-safe topological
// ordering, greedy partitioning into parallel batches, and validation of
// the plan's dependency closure.
package plan

import (
	"sync"
	"time"

	"github.com/scottwilkos/openspec-flow/internal/types"
)

// ExecutionPlan is a validated topological order over a set of nodes plus
// a parallel-batch partition of that order. The graph is immutable after
// Build; node statuses mutate during execution through the mark methods,
// which serialize access for the orchestrator's concurrent node goroutines.
type ExecutionPlan struct {
	// ID uniquely identifies this plan.
	ID types.ID `json:"id"`

	// Nodes holds the execution record for every change, by slug.
	Nodes map[string]*ExecutionNode `json:"nodes"`

	// Order is a topological linearization of the dependency graph.
	Order []string `json:"order"`

	// Batches partitions Order into groups safe to run concurrently:
	// no batch contains two nodes related by a direct dependency.
	Batches [][]string `json:"batches"`

	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`

	mu sync.RWMutex
}

// Node returns a copy of the node's current record. The second return is
// false when the id is not part of the plan.
func (p *ExecutionPlan) Node(id string) (ExecutionNode, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	node, ok := p.Nodes[id]
	if !ok {
		return ExecutionNode{}, false
	}
	return *node, true
}

// Status returns the node's current status, or "" for unknown ids.
func (p *ExecutionPlan) Status(id string) NodeStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if node, ok := p.Nodes[id]; ok {
		return node.Status
	}
	return ""
}

// Snapshot returns copies of all nodes in topological order.
func (p *ExecutionPlan) Snapshot() []ExecutionNode {
	p.mu.RLock()
	defer p.mu.RUnlock()

	nodes := make([]ExecutionNode, 0, len(p.Order))
	for _, id := range p.Order {
		if node, ok := p.Nodes[id]; ok {
			nodes = append(nodes, *node)
		}
	}
	return nodes
}

// UnmetDeps returns the prerequisites of id that are not in the completed
// set, in DependsOn order. An empty result means the node may start.
func (p *ExecutionPlan) UnmetDeps(id string, completed map[string]bool) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	node, ok := p.Nodes[id]
	if !ok {
		return nil
	}

	var unmet []string
	for _, dep := range node.DependsOn {
		if !completed[dep] {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// MarkReady transitions a node to ready.
func (p *ExecutionPlan) MarkReady(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if node, ok := p.Nodes[id]; ok {
		node.Status = NodeStatusReady
	}
}

// MarkStarted transitions a node to in_progress, recording the worker and
// task assignment and the start timestamp.
func (p *ExecutionPlan) MarkStarted(id string, workerID, taskID types.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if node, ok := p.Nodes[id]; ok {
		node.Status = NodeStatusInProgress
		node.WorkerID = workerID
		node.TaskID = taskID
		now := time.Now()
		node.StartedAt = &now
	}
}

// MarkCompleted transitions a node to completed.
func (p *ExecutionPlan) MarkCompleted(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if node, ok := p.Nodes[id]; ok {
		node.Status = NodeStatusCompleted
		now := time.Now()
		node.CompletedAt = &now
	}
}

// MarkFailed transitions a node to failed, recording the reason.
func (p *ExecutionPlan) MarkFailed(id string, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if node, ok := p.Nodes[id]; ok {
		node.Status = NodeStatusFailed
		node.Error = reason
		now := time.Now()
		node.CompletedAt = &now
	}
}

// MarkBlocked transitions a node to blocked, recording which dependency
// kept it from starting. Blocked nodes never ran, so StartedAt stays nil.
func (p *ExecutionPlan) MarkBlocked(id string, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if node, ok := p.Nodes[id]; ok {
		node.Status = NodeStatusBlocked
		node.Error = reason
		now := time.Now()
		node.CompletedAt = &now
	}
}

// StatusCounts tallies nodes by status.
func (p *ExecutionPlan) StatusCounts() map[NodeStatus]int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	counts := make(map[NodeStatus]int)
	for _, node := range p.Nodes {
		counts[node.Status]++
	}
	return counts
}

// IsComplete reports whether every node has reached a terminal status.
func (p *ExecutionPlan) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, node := range p.Nodes {
		if !node.Status.IsTerminal() {
			return false
		}
	}
	return true
}
