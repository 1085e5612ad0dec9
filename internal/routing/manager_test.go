package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/up202104595/tdmamesh/internal/topology"
)

func diamondSnapshot() topology.Snapshot {
	var m [topology.MaxNodes][topology.MaxNodes]uint8
	edges := [][2]int{{0, 1}, {0, 2}, {1, 3}, {2, 3}}
	for _, e := range edges {
		m[e[0]][e[1]] = 1
		m[e[1]][e[0]] = 1
	}
	return topology.Snapshot{NodeIDs: []uint8{1, 2, 3, 4}, Matrix: m, NumNodes: 4}
}

func TestManager_UpdateTopology_DetectsChangeAndVersions(t *testing.T) {
	m := NewManager(1, StrategyDijkstra)
	ctx := context.Background()

	changed := m.UpdateTopology(ctx, diamondSnapshot())
	require.True(t, changed)
	assert.Equal(t, uint64(1), m.TopologyVersion())

	changed = m.UpdateTopology(ctx, diamondSnapshot())
	assert.False(t, changed, "re-applying the same snapshot must report no change")
	assert.Equal(t, uint64(1), m.TopologyVersion(), "version must not bump when nothing changed")

	snap2 := diamondSnapshot()
	snap2.Matrix[0][1] = 0
	snap2.Matrix[1][0] = 0
	changed = m.UpdateTopology(ctx, snap2)
	assert.True(t, changed)
	assert.Equal(t, uint64(2), m.TopologyVersion())
}

// Scenario B — diamond, Dijkstra strategy: tie on dst=4 resolves to
// next hop 2.
func TestManager_Dijkstra_ScenarioB(t *testing.T) {
	m := NewManager(1, StrategyDijkstra)
	m.UpdateTopology(context.Background(), diamondSnapshot())

	assert.Equal(t, uint8(2), m.GetNextHop(4))
}

// Scenario C — diamond, then break link 1-2: next hop for dst=4
// becomes 3, and topology_version increments exactly once.
func TestManager_Dijkstra_ScenarioC(t *testing.T) {
	m := NewManager(1, StrategyDijkstra)
	ctx := context.Background()
	m.UpdateTopology(ctx, diamondSnapshot())
	before := m.TopologyVersion()

	broken := diamondSnapshot()
	broken.Matrix[0][1] = 0
	broken.Matrix[1][0] = 0
	m.UpdateTopology(ctx, broken)

	assert.Equal(t, uint8(3), m.GetNextHop(4))
	assert.Equal(t, before+1, m.TopologyVersion())
}

func TestManager_GetNextHop_UnknownDestination(t *testing.T) {
	m := NewManager(1, StrategyDijkstra)
	assert.Equal(t, uint8(UnreachableHop), m.GetNextHop(200))
}

func TestManager_RouteChanged_TracksLastRecompute(t *testing.T) {
	m := NewManager(1, StrategyDijkstra)
	ctx := context.Background()
	m.UpdateTopology(ctx, diamondSnapshot())
	assert.True(t, m.RouteChanged(4), "first recompute always reports a change from the empty table")

	m.ForceRecompute(ctx)
	assert.False(t, m.RouteChanged(4), "identical recompute should report no change for an unaffected entry")

	broken := diamondSnapshot()
	broken.Matrix[0][1] = 0
	broken.Matrix[1][0] = 0
	m.UpdateTopology(ctx, broken)
	assert.True(t, m.RouteChanged(4))
}

func TestManager_MSTStrategy_LineTopology(t *testing.T) {
	var line [topology.MaxNodes][topology.MaxNodes]uint8
	line[0][1], line[1][0] = 1, 1
	line[1][2], line[2][1] = 1, 1
	line[2][3], line[3][2] = 1, 1
	snap := topology.Snapshot{NodeIDs: []uint8{1, 2, 3, 4}, Matrix: line, NumNodes: 4}

	m := NewManager(1, StrategyMST)
	m.UpdateTopology(context.Background(), snap)

	assert.Equal(t, uint8(2), m.GetNextHop(2))
	assert.Equal(t, uint8(2), m.GetNextHop(3))
	assert.Equal(t, uint8(2), m.GetNextHop(4))
}

func TestManager_HybridStrategy_FallsBackOnUnreachable(t *testing.T) {
	var m2 [topology.MaxNodes][topology.MaxNodes]uint8
	m2[0][1], m2[1][0] = 1, 1 // only 1-2 connected; 3,4 isolated
	snap := topology.Snapshot{NodeIDs: []uint8{1, 2, 3, 4}, Matrix: m2, NumNodes: 4}

	mgr := NewManager(1, StrategyHybrid)
	mgr.UpdateTopology(context.Background(), snap)

	e, ok := mgr.Entry(3)
	require.True(t, ok)
	assert.False(t, e.Valid)
	assert.Equal(t, StateUnreachable, e.State)
}

func TestManager_ForceRecompute_IsIdempotent(t *testing.T) {
	m := NewManager(1, StrategyDijkstra)
	ctx := context.Background()
	m.UpdateTopology(ctx, diamondSnapshot())
	first := m.GetNextHop(4)

	m.ForceRecompute(ctx)
	second := m.GetNextHop(4)
	assert.Equal(t, first, second)
}
