// Package routing implements the routing manager: it owns the
// current connectivity snapshot, detects topology changes, recomputes
// routes under a pluggable strategy, and exposes next-hop lookups.
package routing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/up202104595/tdmamesh/internal/logger"
	"github.com/up202104595/tdmamesh/internal/routing/spe"
	"github.com/up202104595/tdmamesh/internal/topology"
	"github.com/up202104595/tdmamesh/internal/topology/mst"
)

var tracer = otel.Tracer("tdmamesh/routing")

// Manager recomputes and serves routing entries. Every read or write
// of its state takes its internal lock, but a recompute releases the
// lock while its strategy runs, so recomputes started from different
// goroutines are not serialized with each other; readers (GetNextHop)
// acquire the same lock briefly. Recomputation cannot fail — a disconnected
// destination yields StateUnreachable rather than an error.
type Manager struct {
	mu sync.Mutex

	myID     uint8
	strategy Strategy

	snapshot        topology.Snapshot
	haveSnapshot    bool
	topologyVersion uint64
	linkFailures    uint64

	table map[uint8]Entry

	overallTiming  TimingStats
	dijkstraTiming TimingStats
	mstTiming      TimingStats

	lastChanged map[uint8]bool

	lgr     logger.Logger
	metrics *Metrics
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithMetrics registers a Prometheus-backed Metrics instance.
func WithMetrics(m *Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithLogger overrides the manager's logger (defaults to a no-op).
func WithLogger(lgr logger.Logger) Option {
	return func(mgr *Manager) { mgr.lgr = lgr }
}

// NewManager constructs a routing manager for myID using strategy.
func NewManager(myID uint8, strategy Strategy, opts ...Option) *Manager {
	m := &Manager{
		myID:           myID,
		strategy:       strategy,
		table:          make(map[uint8]Entry),
		lastChanged:    make(map[uint8]bool),
		overallTiming:  newTimingStats(),
		dijkstraTiming: newTimingStats(),
		mstTiming:      newTimingStats(),
		lgr:            &logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UpdateTopology compares snap field-wise against the stored
// snapshot; if any (i,j) bit flips or the node count differs, it
// adopts the new snapshot, bumps topologyVersion, bumps
// linkFailuresDetected, and recomputes. No change means no work and
// no version bump.
func (m *Manager) UpdateTopology(ctx context.Context, snap topology.Snapshot) bool {
	m.mu.Lock()
	changed := !m.haveSnapshot || !snapshotsEqual(m.snapshot, snap)
	if !changed {
		m.mu.Unlock()
		return false
	}
	m.snapshot = snap
	m.haveSnapshot = true
	m.topologyVersion++
	m.linkFailures++
	m.mu.Unlock()

	m.metrics.incTopologyVersion()
	m.metrics.incLinkFailures()
	m.recompute(ctx)
	return true
}

// ForceRecompute recomputes unconditionally using the current
// snapshot.
func (m *Manager) ForceRecompute(ctx context.Context) {
	m.recompute(ctx)
}

// GetNextHop returns the stored entry's NextHop if valid, else
// UnreachableHop.
func (m *Manager) GetNextHop(dest uint8) uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.table[dest]
	if !ok || !e.Valid {
		return UnreachableHop
	}
	return e.NextHop
}

// Entry returns a copy of the stored routing entry for dest.
func (m *Manager) Entry(dest uint8) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.table[dest]
	return e, ok
}

// RouteChanged reports whether the last recompute altered the entry
// for dest, comparing (NextHop, Distance, Valid) against the entry
// that stood immediately before that recompute.
func (m *Manager) RouteChanged(dest uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastChanged[dest]
}

// TopologyVersion returns the current monotonic topology version.
func (m *Manager) TopologyVersion() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topologyVersion
}

// TimingSnapshot returns a copy of the accumulated timing stats.
func (m *Manager) TimingSnapshot() (overall, dijkstra, mstStats TimingStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overallTiming, m.dijkstraTiming, m.mstTiming
}

func snapshotsEqual(a, b topology.Snapshot) bool {
	if a.NumNodes != b.NumNodes {
		return false
	}
	for i, id := range a.NodeIDs {
		if b.NodeIDs[i] != id {
			return false
		}
	}
	for i := 0; i < a.NumNodes; i++ {
		for j := 0; j < a.NumNodes; j++ {
			if a.Matrix[i][j] != b.Matrix[i][j] {
				return false
			}
		}
	}
	return true
}

func (m *Manager) recompute(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "routing.recompute", trace.WithAttributes(
		attribute.String("strategy", m.strategy.String()),
	))
	defer span.End()

	start := time.Now()

	m.mu.Lock()
	snap := m.snapshot
	prior := m.table
	myIdx, ok := snap.IndexOf(m.myID)
	m.mu.Unlock()

	if !ok {
		m.lgr.Warn("recompute skipped: self not present in snapshot", logger.F("myId", m.myID))
		return
	}

	var newTable map[uint8]Entry
	switch m.strategy {
	case StrategyDijkstra:
		newTable = m.recomputeDijkstra(ctx, myIdx, snap)
	case StrategyMST:
		newTable = m.recomputeMST(ctx, myIdx, snap)
	case StrategyHybrid:
		newTable = m.recomputeHybrid(ctx, myIdx, snap)
	default:
		newTable = m.recomputeDijkstra(ctx, myIdx, snap)
	}

	elapsed := time.Since(start)

	m.mu.Lock()
	m.table = newTable
	m.overallTiming.observe(elapsed)
	lastChanged := make(map[uint8]bool, len(newTable))
	for dest, e := range newTable {
		p, existed := prior[dest]
		lastChanged[dest] = !existed || p.NextHop != e.NextHop || p.Distance != e.Distance || p.Valid != e.Valid
	}
	m.lastChanged = lastChanged
	m.mu.Unlock()

	m.metrics.observePhase("overall", uint64(elapsed.Microseconds()))
	m.lgr.Debug("routes recomputed",
		logger.F("strategy", m.strategy.String()),
		logger.F("elapsedUs", elapsed.Microseconds()),
		logger.F("topologyVersion", m.TopologyVersion()),
	)
}

func (m *Manager) recomputeDijkstra(ctx context.Context, myIdx int, snap topology.Snapshot) map[uint8]Entry {
	_, span := tracer.Start(ctx, "routing.recompute.dijkstra")
	defer span.End()

	start := time.Now()
	results, err := spe.Compute(m.myID, snap)
	elapsed := time.Since(start)

	m.mu.Lock()
	m.dijkstraTiming.observe(elapsed)
	m.mu.Unlock()
	m.metrics.observePhase("dijkstra", uint64(elapsed.Microseconds()))

	table := make(map[uint8]Entry, snap.NumNodes)
	if err != nil {
		m.lgr.Error("dijkstra recompute failed", logger.F("error", err.Error()))
		return table
	}
	for i, id := range snap.NodeIDs {
		r := results[i]
		e := Entry{Destination: id, NextHop: r.NextHop, Distance: r.Distance}
		if r.Reachable {
			e.State = StateOptimal
			e.Valid = true
		} else {
			e.State = StateUnreachable
			e.Valid = false
		}
		table[id] = e
	}
	_ = myIdx
	return table
}

func (m *Manager) recomputeMST(ctx context.Context, myIdx int, snap topology.Snapshot) map[uint8]Entry {
	_, span := tracer.Start(ctx, "routing.recompute.mst")
	defer span.End()

	start := time.Now()
	tree := mst.Compute(snap)
	elapsed := time.Since(start)

	m.mu.Lock()
	m.mstTiming.observe(elapsed)
	m.mu.Unlock()
	m.metrics.observePhase("mst", uint64(elapsed.Microseconds()))

	bfsParent, depth := bfsFromTree(tree, myIdx)

	table := make(map[uint8]Entry, snap.NumNodes)
	for i, id := range snap.NodeIDs {
		if i == myIdx {
			table[id] = Entry{Destination: id, NextHop: id, Distance: 0, State: StateOptimal, Valid: true}
			continue
		}
		if bfsParent[i] == -1 && i != myIdx {
			table[id] = Entry{Destination: id, NextHop: UnreachableHop, Distance: spe.InfinityCost, State: StateUnreachable, Valid: false}
			continue
		}
		nextHopIdx := firstHopInTree(bfsParent, myIdx, i)
		table[id] = Entry{
			Destination: id,
			NextHop:     snap.NodeIDs[nextHopIdx],
			Distance:    uint8(depth[i]),
			State:       StateFallback,
			Valid:       true,
		}
	}
	return table
}

func (m *Manager) recomputeHybrid(ctx context.Context, myIdx int, snap topology.Snapshot) map[uint8]Entry {
	table := m.recomputeDijkstra(ctx, myIdx, snap)

	needsFallback := false
	for _, e := range table {
		if !e.Valid {
			needsFallback = true
			break
		}
	}
	if !needsFallback {
		return table
	}

	mstTable := m.recomputeMST(ctx, myIdx, snap)
	for dest, e := range table {
		if !e.Valid {
			if alt, ok := mstTable[dest]; ok {
				table[dest] = alt
			}
		}
	}
	return table
}

// bfsFromTree walks the undirected MST tree starting at root,
// recording each node's BFS parent (-1 if unreached) and hop depth.
func bfsFromTree(tree mst.Tree, root int) (parent []int, depth []int) {
	n := len(tree.Parent)
	parent = make([]int, n)
	depth = make([]int, n)
	visited := make([]bool, n)
	for i := range parent {
		parent[i] = -1
	}
	if n == 0 {
		return
	}

	queue := []int{root}
	visited[root] = true
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for v := 0; v < n; v++ {
			if visited[v] || !tree.Connected(u, v) {
				continue
			}
			visited[v] = true
			parent[v] = u
			depth[v] = depth[u] + 1
			queue = append(queue, v)
		}
	}
	return
}

// firstHopInTree walks the BFS-parent chain back from dst to root and
// returns the index of the first node after root on that path — the
// child of root the packet must be forwarded to. Bounded by n
// iterations since the tree has no cycles.
func firstHopInTree(bfsParent []int, root, dst int) int {
	cur := dst
	for bfsParent[cur] != root {
		cur = bfsParent[cur]
	}
	return cur
}
