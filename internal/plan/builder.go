package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/scottwilkos/openspec-flow/internal/change"
	"github.com/scottwilkos/openspec-flow/internal/extract"
	"github.com/scottwilkos/openspec-flow/internal/types"
)

// Build constructs an execution plan for the given changes: it resolves
// each node's prerequisites, computes a topological order with Kahn's
// algorithm, and partitions the order into parallel batches.
//
// Prerequisites come from the change's explicit depends_on frontmatter
// when present (taken wholesale, even when empty); otherwise they are
// extracted from the proposal text. An extracted "followed by" reference
// contributes to the referenced change's prerequisites unless that change
// declared its own.
//
// Dangling references (explicit prerequisites naming ids outside the
// set) do not fail Build. They are kept on the node so Validate can
// report them, and are ignored for ordering and batching.
//
// A dependency cycle fails the build with *CycleError; no partial plan is
// returned.
func Build(changes []*change.Change) (*ExecutionPlan, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("cannot build a plan from zero changes")
	}

	known := make(map[string]bool, len(changes))
	for _, c := range changes {
		if c.ID == "" {
			return nil, fmt.Errorf("change ID cannot be empty")
		}
		if known[c.ID] {
			return nil, fmt.Errorf("duplicate change ID: %s", c.ID)
		}
		known[c.ID] = true
	}

	deps := resolveDeps(changes, known)

	order, err := topologicalOrder(deps, known)
	if err != nil {
		return nil, err
	}

	batches := partitionBatches(order, deps, known)

	p := &ExecutionPlan{
		ID:        types.NewID(),
		Nodes:     make(map[string]*ExecutionNode, len(changes)),
		Order:     order,
		Batches:   batches,
		CreatedAt: time.Now(),
	}
	for _, c := range changes {
		p.Nodes[c.ID] = &ExecutionNode{
			ID:        c.ID,
			Title:     c.Title,
			DependsOn: deps[c.ID].list,
			Explicit:  c.HasExplicitDeps(),
			Status:    NodeStatusPending,
		}
	}

	return p, nil
}

// depSet tracks one node's prerequisites with both set and insertion-order
// views.
type depSet struct {
	has  map[string]bool
	list []string
}

func (d *depSet) add(id string) {
	if d.has == nil {
		d.has = make(map[string]bool)
	}
	if d.has[id] {
		return
	}
	d.has[id] = true
	d.list = append(d.list, id)
}

// resolveDeps computes the prerequisite set for every change. Explicit
// frontmatter wins wholesale for the declaring node; extraction runs only
// for nodes without it and never adds to an explicit node's set.
func resolveDeps(changes []*change.Change, known map[string]bool) map[string]*depSet {
	explicit := make(map[string]bool, len(changes))
	deps := make(map[string]*depSet, len(changes))
	for _, c := range changes {
		deps[c.ID] = &depSet{}
		if c.HasExplicitDeps() {
			explicit[c.ID] = true
			for _, dep := range c.DependsOn {
				deps[c.ID].add(dep)
			}
		}
	}

	for _, c := range changes {
		if explicit[c.ID] {
			continue
		}
		for _, edge := range extract.Dependencies(c, known) {
			// A "followed by" edge targets another node; respect that
			// node's explicit declaration.
			if explicit[edge.To] {
				continue
			}
			if target, ok := deps[edge.To]; ok {
				target.add(edge.From)
			}
		}
	}

	return deps
}

// topologicalOrder runs Kahn's algorithm over the in-plan edges. The
// ready queue is kept lexicographically sorted so the order is
// deterministic for a given input; callers must still not rely on the
// relative order of independent nodes.
func topologicalOrder(deps map[string]*depSet, known map[string]bool) ([]string, error) {
	inDegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string)

	for id := range deps {
		inDegree[id] = 0
	}
	for id, set := range deps {
		for _, dep := range set.list {
			if !known[dep] {
				// Dangling reference: Validate reports it, ordering
				// ignores it.
				continue
			}
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	queue := make([]string, 0, len(inDegree))
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(inDegree))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = insertSorted(queue, dependent)
			}
		}
	}

	if len(order) != len(inDegree) {
		var remaining []string
		ordered := make(map[string]bool, len(order))
		for _, id := range order {
			ordered[id] = true
		}
		for id := range inDegree {
			if !ordered[id] {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}

	return order, nil
}

// insertSorted inserts id into the sorted queue, keeping it sorted.
func insertSorted(queue []string, id string) []string {
	i := sort.SearchStrings(queue, id)
	queue = append(queue, "")
	copy(queue[i+1:], queue[i:])
	queue[i] = id
	return queue
}

// partitionBatches greedily packs the topological order into parallel
// batches. A candidate joins the first batch that has no direct
// dependency relation with it in either direction and whose preceding
// batches already hold all of the candidate's in-plan prerequisites;
// otherwise it opens a new batch. The placement rule keeps batch
// concatenation consistent with the topological order, so a node's
// prerequisites always resolve in strictly earlier batches.
func partitionBatches(order []string, deps map[string]*depSet, known map[string]bool) [][]string {
	var batches [][]string
	placedIn := make(map[string]int, len(order))

	for _, id := range order {
		placed := false
		for i, batch := range batches {
			if conflicts(id, batch, deps) {
				continue
			}
			if !depsPlacedBefore(id, i, deps, placedIn, known) {
				continue
			}
			batches[i] = append(batches[i], id)
			placedIn[id] = i
			placed = true
			break
		}
		if !placed {
			batches = append(batches, []string{id})
			placedIn[id] = len(batches) - 1
		}
	}

	return batches
}

// conflicts reports whether id has a direct dependency relation with any
// member of the batch, in either direction.
func conflicts(id string, batch []string, deps map[string]*depSet) bool {
	for _, member := range batch {
		if deps[id].has[member] || deps[member].has[id] {
			return true
		}
	}
	return false
}

// depsPlacedBefore reports whether every in-plan prerequisite of id sits
// in a batch strictly before index. Dangling references are skipped; they
// never execute, so they cannot gate placement.
func depsPlacedBefore(id string, index int, deps map[string]*depSet, placedIn map[string]int, known map[string]bool) bool {
	for _, dep := range deps[id].list {
		if !known[dep] {
			continue
		}
		at, ok := placedIn[dep]
		if !ok || at >= index {
			return false
		}
	}
	return true
}
