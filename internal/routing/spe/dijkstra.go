// Package spe implements the shortest-path engine: Dijkstra's
// algorithm over a connectivity snapshot with hop-count unit weights.
package spe

import (
	"container/heap"
	"errors"

	"github.com/up202104595/tdmamesh/internal/topology"
)

// InfinityCost marks an unreachable destination.
const InfinityCost = 255

// ErrInvalidSource is returned when src is not present in the
// snapshot's NodeIDs.
var ErrInvalidSource = errors.New("spe: source node not present in connectivity snapshot")

// Result is the routing outcome for a single destination.
type Result struct {
	NextHop   uint8
	Distance  uint8
	Reachable bool
}

// Compute runs Dijkstra from src over snap with unit edge weights
// (hop-count metric) and returns, for every node in snap.NodeIDs, the
// first intermediate node on the recovered path src -> ... -> d (for
// d == src, NextHop == src), the hop distance capped at 254, and
// whether d is reachable at all. Ties between equal-cost paths are
// broken by lowest position index, matching the spanning-tree
// builder's tie-break rule.
func Compute(src uint8, snap topology.Snapshot) ([]Result, error) {
	srcIdx, ok := snap.IndexOf(src)
	if !ok {
		return nil, ErrInvalidSource
	}

	n := snap.NumNodes
	const unreached = InfinityCost
	dist := make([]int, n)
	prev := make([]int, n)
	visited := make([]bool, n)
	for i := range dist {
		dist[i] = unreached
		prev[i] = -1
	}
	dist[srcIdx] = 0

	pq := &nodePQ{}
	heap.Init(pq)
	heap.Push(pq, &nodeItem{idx: srcIdx, dist: 0})

	for pq.Len() > 0 {
		u := heap.Pop(pq).(*nodeItem)
		if visited[u.idx] {
			continue
		}
		visited[u.idx] = true

		for v := 0; v < n; v++ {
			if !snap.Connected(u.idx, v) || visited[v] {
				continue
			}
			nd := dist[u.idx] + 1
			if nd < dist[v] {
				dist[v] = nd
				prev[v] = u.idx
				heap.Push(pq, &nodeItem{idx: v, dist: nd})
			}
		}
	}

	results := make([]Result, n)
	for d := 0; d < n; d++ {
		if d == srcIdx {
			results[d] = Result{NextHop: snap.NodeIDs[srcIdx], Distance: 0, Reachable: true}
			continue
		}
		if dist[d] >= unreached || prev[d] == -1 {
			results[d] = Result{NextHop: InfinityCost, Distance: InfinityCost, Reachable: false}
			continue
		}
		results[d] = Result{
			NextHop:   snap.NodeIDs[firstHop(prev, srcIdx, d)],
			Distance:  uint8(dist[d]),
			Reachable: true,
		}
	}
	return results, nil
}

// firstHop walks the prev[] chain back from dst to src and returns
// the first intermediate node visited on the way out of src — i.e.
// the node immediately after src on the path.
func firstHop(prev []int, src, dst int) int {
	cur := dst
	for prev[cur] != src {
		cur = prev[cur]
	}
	return cur
}

type nodeItem struct {
	idx  int
	dist int
}

// nodePQ implements heap.Interface ordered by (dist, idx) so that,
// among equal-cost frontier nodes, the lowest index is always
// processed first — the deterministic tie-break the spanning-tree
// builder also uses.
type nodePQ []*nodeItem

func (pq nodePQ) Len() int { return len(pq) }
func (pq nodePQ) Less(i, j int) bool {
	if pq[i].dist != pq[j].dist {
		return pq[i].dist < pq[j].dist
	}
	return pq[i].idx < pq[j].idx
}
func (pq nodePQ) Swap(i, j int)      { pq[i], pq[j] = pq[j], pq[i] }
func (pq *nodePQ) Push(x interface{}) { *pq = append(*pq, x.(*nodeItem)) }
func (pq *nodePQ) Pop() interface{} {
	old := *pq
	n := len(old)
	it := old[n-1]
	*pq = old[:n-1]
	return it
}
