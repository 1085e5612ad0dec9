package mst

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/up202104595/tdmamesh/internal/topology"
)

func lineSnapshot() topology.Snapshot {
	// 1-2-3-4 line, positions 0..3
	var m [topology.MaxNodes][topology.MaxNodes]uint8
	edges := [][2]int{{0, 1}, {1, 2}, {2, 3}}
	for _, e := range edges {
		m[e[0]][e[1]] = 1
		m[e[1]][e[0]] = 1
	}
	return topology.Snapshot{NodeIDs: []uint8{1, 2, 3, 4}, Matrix: m, NumNodes: 4}
}

func TestCompute_LineTopology(t *testing.T) {
	tree := Compute(lineSnapshot())
	require.Equal(t, -1, tree.Parent[0])
	assert.Equal(t, 0, tree.Parent[1])
	assert.Equal(t, 1, tree.Parent[2])
	assert.Equal(t, 2, tree.Parent[3])
}

func TestCompute_DisconnectedGraph_LeavesForest(t *testing.T) {
	var m [topology.MaxNodes][topology.MaxNodes]uint8
	m[0][1] = 1
	m[1][0] = 1
	// position 2,3 form their own disconnected island
	m[2][3] = 1
	m[3][2] = 1
	snap := topology.Snapshot{NodeIDs: []uint8{1, 2, 3, 4}, Matrix: m, NumNodes: 4}

	tree := Compute(snap)
	assert.True(t, tree.InTree[0])
	assert.True(t, tree.InTree[1])
	assert.False(t, tree.InTree[2], "island disconnected from position 0 must stay out of the tree")
	assert.False(t, tree.InTree[3])
	assert.Equal(t, -1, tree.Parent[2])
	assert.Equal(t, -1, tree.Parent[3])
}

func TestCompute_TieBreaksByLowestIndex(t *testing.T) {
	// Diamond: 1-2, 1-3, 2-4, 3-4 (positions 0..3). From position 0,
	// both position 1 and 2 offer an equal-weight edge to position 3;
	// the lower index (1) must win the parent slot.
	var m [topology.MaxNodes][topology.MaxNodes]uint8
	edges := [][2]int{{0, 1}, {0, 2}, {1, 3}, {2, 3}}
	for _, e := range edges {
		m[e[0]][e[1]] = 1
		m[e[1]][e[0]] = 1
	}
	snap := topology.Snapshot{NodeIDs: []uint8{1, 2, 3, 4}, Matrix: m, NumNodes: 4}

	tree := Compute(snap)
	assert.Equal(t, 1, tree.Parent[3])
}

func TestTree_Connected(t *testing.T) {
	tree := Compute(lineSnapshot())
	assert.True(t, tree.Connected(0, 1))
	assert.True(t, tree.Connected(1, 0))
	assert.False(t, tree.Connected(0, 3))
}
