package schedule

import (
	"container/heap"
	"sort"

	"vowline/internal/domain"
)

// Resolve validates the dependency edge set and returns a topological
// ordering of task IDs consistent with every edge direction.
//
// Ties between unconstrained tasks break by planned start time ascending,
// then by task ID, so repeated runs over the same snapshot produce the same
// ordering. A cycle yields a CycleError naming one cycle as a witness.
func Resolve(tasks []domain.VendorTask, edges []domain.DependencyEdge) ([]string, error) {
	index := make(map[string]int, len(tasks))
	ordered := make([]domain.VendorTask, len(tasks))
	copy(ordered, tasks)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})
	for i, t := range ordered {
		index[t.ID] = i
	}

	type edgePair struct{ from, to int }
	seen := make(map[edgePair]struct{}, len(edges))
	outgoing := make([][]int, len(ordered))
	indeg := make([]int, len(ordered))
	for _, e := range edges {
		from, okFrom := index[e.FromTaskID]
		to, okTo := index[e.ToTaskID]
		if !okFrom {
			return nil, invalidf([]string{e.FromTaskID}, "edge references unknown task")
		}
		if !okTo {
			return nil, invalidf([]string{e.ToTaskID}, "edge references unknown task")
		}
		if from == to {
			return nil, invalidf([]string{e.FromTaskID}, "self-dependency")
		}
		if !e.Kind.Valid() {
			return nil, invalidf([]string{e.FromTaskID, e.ToTaskID}, "unknown edge kind %q", e.Kind)
		}
		pair := edgePair{from: from, to: to}
		if _, dup := seen[pair]; dup {
			return nil, invalidf([]string{e.FromTaskID, e.ToTaskID}, "duplicate dependency edge")
		}
		seen[pair] = struct{}{}
		outgoing[from] = append(outgoing[from], to)
		indeg[to]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}

	// Kahn's algorithm; the ready queue is a min-heap over the canonical
	// (start, id) order, which is what makes the output deterministic.
	remaining := make([]int, len(indeg))
	copy(remaining, indeg)
	ready := &intMinHeap{}
	heap.Init(ready)
	for i, d := range remaining {
		if d == 0 {
			heap.Push(ready, i)
		}
	}
	out := make([]string, 0, len(ordered))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, ordered[n].ID)
		for _, m := range outgoing[n] {
			remaining[m]--
			if remaining[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	if len(out) != len(ordered) {
		ids := make([]string, len(ordered))
		for i, t := range ordered {
			ids[i] = t.ID
		}
		return nil, &CycleError{Cycle: findCycle(ids, outgoing)}
	}
	return out, nil
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// findCycle extracts one cycle path via deterministic DFS over canonical
// indices. It returns a single stable witness, closed on the entry node.
func findCycle(ids []string, outgoing [][]int) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(ids))
	parent := make([]int, len(ids))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range outgoing[u] {
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				// Back-edge u -> v closes the cycle v ... u -> v.
				cycle = append(cycle, v)
				cur := u
				for cur != -1 && cur != v {
					cycle = append(cycle, cur)
					cur = parent[cur]
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}
	for i := range ids {
		if color[i] != white {
			continue
		}
		if dfs(i) {
			break
		}
	}
	if len(cycle) == 0 {
		return nil
	}
	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, ids[cycle[i]])
	}
	return out
}
