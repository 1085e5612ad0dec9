// Package topology implements the connectivity matrix: the
// process-wide, single-writer-many-reader registry of which mesh
// nodes can currently hear each other.
package topology

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/up202104595/tdmamesh/internal/logger"
)

// MaxNodes bounds the mesh size the matrix can represent.
const MaxNodes = 20

// Snapshot is an immutable, consistent copy of the connectivity
// matrix at a point in time. Entries are indexed by position in
// NodeIDs, not by raw node ID value, so a mesh of non-contiguous IDs
// is represented just as well as a contiguous one.
type Snapshot struct {
	NodeIDs     []uint8
	Matrix      [MaxNodes][MaxNodes]uint8
	NumNodes    int
	TimestampMs int64
}

// IndexOf returns the position of nodeID within the snapshot's
// NodeIDs, or false if it is not present.
func (s Snapshot) IndexOf(nodeID uint8) (int, bool) {
	for i, id := range s.NodeIDs {
		if id == nodeID {
			return i, true
		}
	}
	return 0, false
}

// Connected reports whether positions i and j are marked adjacent.
func (s Snapshot) Connected(i, j int) bool {
	if i < 0 || j < 0 || i >= s.NumNodes || j >= s.NumNodes {
		return false
	}
	return s.Matrix[i][j] != 0
}

// Weight returns the edge weight between positions i and j (0 if not
// adjacent).
func (s Snapshot) Weight(i, j int) uint8 {
	if i < 0 || j < 0 || i >= s.NumNodes || j >= s.NumNodes {
		return 0
	}
	return s.Matrix[i][j]
}

// Registry is the single process-wide connectivity matrix instance.
// All mutation goes through Set, which overwrites the full snapshot
// atomically under an internal lock and stamps the timestamp; Get
// returns a consistent copy so readers never observe half-updated
// state. Operations cannot fail.
type Registry struct {
	mu       sync.RWMutex
	snapshot Snapshot
	lgr      logger.Logger
}

// NewRegistry creates an empty registry (zero nodes, zero-valued
// matrix) stamped with the current time.
func NewRegistry(lgr logger.Logger) *Registry {
	r := &Registry{lgr: lgr}
	r.snapshot.TimestampMs = time.Now().UnixMilli()
	return r
}

// Set overwrites the full topology snapshot. matrix and nodeIDs are
// copied in; the caller's slices/arrays may be reused afterwards.
// matrix[i][j] must already be symmetric — Set does not itself
// enforce symmetry, it is a property the caller's construction
// (heartbeat-driven update_connectivity, or a test fixture) upholds.
func (r *Registry) Set(matrix [MaxNodes][MaxNodes]uint8, nodeIDs []uint8) {
	r.mu.Lock()
	r.snapshot.Matrix = matrix
	r.snapshot.NodeIDs = append(r.snapshot.NodeIDs[:0], nodeIDs...)
	r.snapshot.NumNodes = len(nodeIDs)
	r.snapshot.TimestampMs = time.Now().UnixMilli()
	r.mu.Unlock()
	r.lgr.Debug("topology updated", logger.F("numNodes", len(nodeIDs)))
}

// Get returns a consistent copy of the current snapshot.
func (r *Registry) Get() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.snapshot
	out.NodeIDs = append([]uint8(nil), r.snapshot.NodeIDs...)
	return out
}

// SetLink updates a single symmetric edge (i,j) under the lock,
// leaving the rest of the matrix untouched, and returns whether the
// edge actually changed — unlike Set, which replaces the whole
// topology at once. The node supervisor does not call it: it keeps its
// own local matrix and pushes the whole of it through Set.
func (r *Registry) SetLink(a, b uint8, connected bool) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ia, ok := r.snapshot.IndexOf(a)
	if !ok {
		return false
	}
	ib, ok := r.snapshot.IndexOf(b)
	if !ok {
		return false
	}

	var want uint8
	if connected {
		want = 1
	}
	if r.snapshot.Matrix[ia][ib] == want {
		return false
	}
	r.snapshot.Matrix[ia][ib] = want
	r.snapshot.Matrix[ib][ia] = want
	r.snapshot.TimestampMs = time.Now().UnixMilli()
	return true
}

// Print renders the matrix as a human-readable grid, mirroring the
// original daemon's diagnostic dump.
func (r *Registry) Print() string {
	s := r.Get()
	var b strings.Builder
	fmt.Fprintf(&b, "=== Connectivity Matrix ===\nNodes: %d %v\n\n", s.NumNodes, s.NodeIDs)
	fmt.Fprint(&b, "    ")
	for _, id := range s.NodeIDs {
		fmt.Fprintf(&b, "%3d ", id)
	}
	fmt.Fprintln(&b)
	for i := 0; i < s.NumNodes; i++ {
		fmt.Fprintf(&b, "%3d ", s.NodeIDs[i])
		for j := 0; j < s.NumNodes; j++ {
			fmt.Fprintf(&b, "%3d ", s.Matrix[i][j])
		}
		fmt.Fprintln(&b)
	}
	return b.String()
}
