// Package liveness tracks per-peer last-seen timestamps and the
// timeout sweep that drives connectivity-matrix updates when a peer
// goes silent or comes back.
package liveness

import (
	"sync"
	"time"

	"github.com/up202104595/tdmamesh/internal/logger"
)

// Table is a concurrency-safe last-seen registry, one entry per peer
// node ID.
type Table struct {
	mu       sync.RWMutex
	lastSeen map[uint8]int64 // milliseconds on the caller's clock
	lgr      logger.Logger
}

// NewTable creates an empty liveness table.
func NewTable(lgr logger.Logger) *Table {
	return &Table{
		lastSeen: make(map[uint8]int64),
		lgr:      lgr,
	}
}

// Touch records that peer was heard from at nowMs.
func (t *Table) Touch(peer uint8, nowMs int64) {
	t.mu.Lock()
	t.lastSeen[peer] = nowMs
	t.mu.Unlock()
}

// Seed records an initial last-seen time for peer, e.g. at bootstrap,
// so a freshly-started node doesn't immediately appear timed out.
func (t *Table) Seed(peer uint8, nowMs int64) {
	t.Touch(peer, nowMs)
}

// LastSeen returns the last-seen timestamp for peer and whether any
// observation has been recorded at all.
func (t *Table) LastSeen(peer uint8) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ms, ok := t.lastSeen[peer]
	return ms, ok
}

// Elapsed returns how long it has been since peer was last heard
// from, as of nowMs. A peer with no recorded observation is reported
// as elapsed = nowMs (i.e. "silent since the beginning of time"),
// which timeout-sweeps as overdue.
func (t *Table) Elapsed(peer uint8, nowMs int64) int64 {
	ms, ok := t.LastSeen(peer)
	if !ok {
		return nowMs
	}
	return nowMs - ms
}

// ConnectivityChange describes one peer's connectivity transition
// detected by a Sweep.
type ConnectivityChange struct {
	Peer      uint8
	Connected bool
}

// Sweep walks peers (every mesh node other than self) and compares
// each one's elapsed silence against timeoutMs and its last-known
// connectivity state in currentlyConnected. It returns the set of
// peers whose connectivity should flip: a peer that has gone quiet
// for longer than timeoutMs while marked connected should be marked
// disconnected, and a peer heard from within the window while marked
// disconnected should be marked connected again.
func (t *Table) Sweep(peers []uint8, nowMs int64, timeoutMs int64, currentlyConnected func(peer uint8) bool) []ConnectivityChange {
	var changes []ConnectivityChange
	for _, p := range peers {
		elapsed := t.Elapsed(p, nowMs)
		connected := currentlyConnected(p)
		switch {
		case elapsed > timeoutMs && connected:
			changes = append(changes, ConnectivityChange{Peer: p, Connected: false})
		case elapsed <= timeoutMs && !connected:
			changes = append(changes, ConnectivityChange{Peer: p, Connected: true})
		}
	}
	return changes
}

// Now is a small convenience so callers don't reach for time.Now()
// directly at every call site.
func Now() int64 {
	return time.Now().UnixMilli()
}
