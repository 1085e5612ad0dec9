// Package bootstrap computes the initial connectivity-matrix snapshot
// a node seeds itself with before any heartbeat has been exchanged,
// replacing the original DHT's peer-address discovery with a
// mesh-topology assumption appropriate to a fixed-size TDMA network.
package bootstrap

import (
	"fmt"

	"github.com/up202104595/tdmamesh/internal/config"
	"github.com/up202104595/tdmamesh/internal/topology"
	"github.com/up202104595/tdmamesh/internal/topology/mst"
)

// Resolver produces the connectivity-matrix snapshot a node assumes
// at startup, before the liveness table and heartbeat exchange have
// had a chance to discover the real topology. Real connectivity,
// once observed, always supersedes this initial guess.
type Resolver interface {
	Resolve(myID uint8, totalNodes int) (topology.Snapshot, error)
}

// NewResolver builds the Resolver named by cfg.Mode.
func NewResolver(cfg config.BootstrapConfig) (Resolver, error) {
	switch cfg.Mode {
	case "", "full-mesh":
		return fullMeshResolver{}, nil
	case "linear-chain":
		return linearChainResolver{}, nil
	case "mst-neighbors-only":
		return mstResolver{}, nil
	case "static":
		peers, err := parsePeerIDs(cfg.Peers)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return staticResolver{peers: peers}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown mode %q", cfg.Mode)
	}
}

func nodeIDs(totalNodes int) []uint8 {
	ids := make([]uint8, totalNodes)
	for i := range ids {
		ids[i] = uint8(i + 1)
	}
	return ids
}

// fullMeshResolver assumes every node can reach every other node,
// which is accurate for the single-broadcast-domain test networks the
// daemon is normally run on and is the safest default: heartbeats
// will promptly correct any edge that doesn't actually exist.
type fullMeshResolver struct{}

func (fullMeshResolver) Resolve(myID uint8, totalNodes int) (topology.Snapshot, error) {
	ids := nodeIDs(totalNodes)
	var m [topology.MaxNodes][topology.MaxNodes]uint8
	for i := 0; i < totalNodes; i++ {
		for j := 0; j < totalNodes; j++ {
			if i != j {
				m[i][j] = 1
			}
		}
	}
	return snapshotFrom(ids, m), nil
}

// linearChainResolver seeds a minimal topology guess — node i
// connected only to its index-adjacent neighbors — useful for
// networks laid out as a physical chain (e.g. a line of relays).
type linearChainResolver struct{}

func (linearChainResolver) Resolve(myID uint8, totalNodes int) (topology.Snapshot, error) {
	ids := nodeIDs(totalNodes)
	var m [topology.MaxNodes][topology.MaxNodes]uint8
	for i := 0; i < totalNodes-1; i++ {
		m[i][i+1] = 1
		m[i+1][i] = 1
	}
	return snapshotFrom(ids, m), nil
}

// mstResolver seeds the spanning tree of an assumed full mesh. Because
// Prim starts at position 0, breaks ties by lowest index, and only
// re-parents a node on a strictly lighter edge, a unit-weight full mesh
// gives every other node position 0 as its parent: the result is a
// star centred on the first node, not the chain linearChainResolver
// produces, whichever node is resolving.
type mstResolver struct{}

func (mstResolver) Resolve(myID uint8, totalNodes int) (topology.Snapshot, error) {
	full, err := fullMeshResolver{}.Resolve(myID, totalNodes)
	if err != nil {
		return topology.Snapshot{}, err
	}
	tree := mst.Compute(full)
	var m [topology.MaxNodes][topology.MaxNodes]uint8
	for i, parent := range tree.Parent {
		if parent < 0 {
			continue
		}
		m[i][parent] = 1
		m[parent][i] = 1
	}
	return snapshotFrom(full.NodeIDs, m), nil
}

// staticResolver connects this node only to the explicitly configured
// peer ids, making no assumption about connectivity among the rest of
// the mesh. This is the closest analogue to the original DHT's static
// bootstrap list: a caller-supplied set of addresses to start from.
type staticResolver struct {
	peers []uint8
}

func (s staticResolver) Resolve(myID uint8, totalNodes int) (topology.Snapshot, error) {
	ids := nodeIDs(totalNodes)
	myIdx := -1
	for i, id := range ids {
		if id == myID {
			myIdx = i
			break
		}
	}
	var m [topology.MaxNodes][topology.MaxNodes]uint8
	if myIdx >= 0 {
		for _, p := range s.peers {
			for j, id := range ids {
				if id == p {
					m[myIdx][j] = 1
					m[j][myIdx] = 1
				}
			}
		}
	}
	return snapshotFrom(ids, m), nil
}

func snapshotFrom(ids []uint8, m [topology.MaxNodes][topology.MaxNodes]uint8) topology.Snapshot {
	return topology.Snapshot{NodeIDs: ids, Matrix: m, NumNodes: len(ids)}
}

func parsePeerIDs(peers []string) ([]uint8, error) {
	ids := make([]uint8, 0, len(peers))
	for _, p := range peers {
		var id int
		if _, err := fmt.Sscanf(p, "%d", &id); err != nil || id < 1 || id > 255 {
			return nil, fmt.Errorf("invalid static peer id %q", p)
		}
		ids = append(ids, uint8(id))
	}
	return ids, nil
}
