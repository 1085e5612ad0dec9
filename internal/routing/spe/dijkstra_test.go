package spe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/up202104595/tdmamesh/internal/topology"
)

func snapFromEdges(nodeIDs []uint8, edges [][2]int) topology.Snapshot {
	var m [topology.MaxNodes][topology.MaxNodes]uint8
	for _, e := range edges {
		m[e[0]][e[1]] = 1
		m[e[1]][e[0]] = 1
	}
	return topology.Snapshot{NodeIDs: nodeIDs, Matrix: m, NumNodes: len(nodeIDs)}
}

// Scenario A — line topology 1-2-3-4, Dijkstra from node 1.
func TestCompute_ScenarioA_Line(t *testing.T) {
	snap := snapFromEdges([]uint8{1, 2, 3, 4}, [][2]int{{0, 1}, {1, 2}, {2, 3}})
	results, err := Compute(1, snap)
	require.NoError(t, err)

	assert.Equal(t, Result{NextHop: 2, Distance: 1, Reachable: true}, results[1])
	assert.Equal(t, Result{NextHop: 2, Distance: 2, Reachable: true}, results[2])
	assert.Equal(t, Result{NextHop: 2, Distance: 3, Reachable: true}, results[3])
}

// Scenario B — diamond {1-2,1-3,2-4,3-4}, Dijkstra from 1: tie on dst=4
// broken toward the lowest index (2).
func TestCompute_ScenarioB_DiamondTieBreak(t *testing.T) {
	snap := snapFromEdges([]uint8{1, 2, 3, 4}, [][2]int{{0, 1}, {0, 2}, {1, 3}, {2, 3}})
	results, err := Compute(1, snap)
	require.NoError(t, err)

	assert.Equal(t, uint8(2), results[3].Distance)
	assert.True(t, results[3].Reachable)
	assert.Equal(t, uint8(2), results[3].NextHop)
}

// Scenario C — diamond, then break link 1-2: dst=4 now routes via 3.
func TestCompute_ScenarioC_DiamondAfterLinkBreak(t *testing.T) {
	snap := snapFromEdges([]uint8{1, 2, 3, 4}, [][2]int{{0, 2}, {1, 3}, {2, 3}})
	results, err := Compute(1, snap)
	require.NoError(t, err)

	assert.Equal(t, uint8(3), results[3].NextHop)
	assert.Equal(t, uint8(2), results[3].Distance)
}

// Scenario D — two disjoint islands {1-2} and {3-4}, Dijkstra from 1.
func TestCompute_ScenarioD_DisjointIslands(t *testing.T) {
	snap := snapFromEdges([]uint8{1, 2, 3, 4}, [][2]int{{0, 1}, {2, 3}})
	results, err := Compute(1, snap)
	require.NoError(t, err)

	assert.True(t, results[1].Reachable)
	assert.Equal(t, uint8(1), results[1].Distance)
	assert.False(t, results[2].Reachable)
	assert.False(t, results[3].Reachable)
	assert.Equal(t, uint8(InfinityCost), results[2].Distance)
}

func TestCompute_SelfRouteIsTrivial(t *testing.T) {
	snap := snapFromEdges([]uint8{1, 2}, [][2]int{{0, 1}})
	results, err := Compute(1, snap)
	require.NoError(t, err)
	assert.Equal(t, Result{NextHop: 1, Distance: 0, Reachable: true}, results[0])
}

func TestCompute_InvalidSource(t *testing.T) {
	snap := snapFromEdges([]uint8{1, 2}, [][2]int{{0, 1}})
	_, err := Compute(99, snap)
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestCompute_IsDeterministic(t *testing.T) {
	snap := snapFromEdges([]uint8{1, 2, 3, 4}, [][2]int{{0, 1}, {0, 2}, {1, 3}, {2, 3}})
	r1, err := Compute(1, snap)
	require.NoError(t, err)
	r2, err := Compute(1, snap)
	require.NoError(t, err)
	assert.Equal(t, r1, r2, "running Dijkstra twice on the same snapshot must produce identical results")
}
