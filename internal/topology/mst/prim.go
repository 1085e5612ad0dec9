// Package mst computes a minimum spanning tree over a connectivity
// snapshot using Prim's algorithm.
package mst

import (
	"fmt"
	"strings"

	"github.com/up202104595/tdmamesh/internal/topology"
)

// Tree is the result of a Compute call: for each position i in the
// snapshot's NodeIDs, Parent[i] is the position of i's parent in the
// tree, or -1 if i is the root or unreached (disconnected component).
type Tree struct {
	NodeIDs []uint8
	Parent  []int
	InTree  []bool
}

// Connected reports whether positions i and j are joined by a tree
// edge (parent-child in either direction).
func (t Tree) Connected(i, j int) bool {
	if i < 0 || j < 0 || i >= len(t.Parent) || j >= len(t.Parent) {
		return false
	}
	return t.Parent[i] == j || t.Parent[j] == i
}

// Compute builds a minimum spanning tree of snap using Prim's
// algorithm starting at position 0. Edge weight is the snapshot's
// matrix[u][v] value when nonzero; ties are broken by lowest peer
// index, matching the reference scheduler's array-based Prim (an
// O(N^2) scan is deliberately used here over a heap, since N is
// bounded by topology.MaxNodes and the scan is what makes the
// lowest-index tie-break exact). On a disconnected graph the result
// is a spanning forest of the component containing position 0; nodes
// outside that component are left with Parent[i] == -1 and
// InTree[i] == false.
func Compute(snap topology.Snapshot) Tree {
	n := snap.NumNodes
	tree := Tree{
		NodeIDs: append([]uint8(nil), snap.NodeIDs...),
		Parent:  make([]int, n),
		InTree:  make([]bool, n),
	}
	for i := range tree.Parent {
		tree.Parent[i] = -1
	}
	if n == 0 {
		return tree
	}

	const inf = 1<<8 - 1 // matches topology's uint8 weight range
	key := make([]int, n)
	for i := range key {
		key[i] = inf
	}
	key[0] = 0

	for count := 0; count < n; count++ {
		u := -1
		best := inf + 1
		for v := 0; v < n; v++ {
			if !tree.InTree[v] && key[v] < best {
				best = key[v]
				u = v
			}
		}
		if u == -1 {
			// remaining nodes are unreachable from position 0
			break
		}
		tree.InTree[u] = true

		for v := 0; v < n; v++ {
			w := int(snap.Matrix[u][v])
			if w > 0 && !tree.InTree[v] && w < key[v] {
				key[v] = w
				tree.Parent[v] = u
			}
		}
	}
	return tree
}

// Print renders the tree as an adjacency grid, mirroring the
// original's spanning_tree_print.
func (t Tree) Print() string {
	n := len(t.NodeIDs)
	var b strings.Builder
	fmt.Fprint(&b, "=== Spanning Tree ===\n    ")
	for _, id := range t.NodeIDs {
		fmt.Fprintf(&b, "%3d ", id)
	}
	fmt.Fprintln(&b)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%3d ", t.NodeIDs[i])
		for j := 0; j < n; j++ {
			edge := 0
			if t.Connected(i, j) {
				edge = 1
			}
			fmt.Fprintf(&b, "%3d ", edge)
		}
		fmt.Fprintln(&b)
	}
	return b.String()
}
