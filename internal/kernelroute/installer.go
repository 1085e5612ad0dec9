// Package kernelroute pushes the routing table's next-hop decisions
// into the OS kernel routing table via `ip route`, so application
// traffic for a mesh destination actually flows through the daemon's
// chosen path instead of just being known to it.
package kernelroute

import "context"

// Route is one routing-table entry to install: reach destination by
// forwarding through gateway, at the given cost.
type Route struct {
	Destination uint8
	Gateway     uint8
	DestIP      string
	GatewayIP   string
	Metric      uint32
}

// Installer pushes and removes kernel routes. Failures are expected
// to be handled by the caller as a counted, non-fatal condition — the
// in-memory routing table stays authoritative regardless of whether
// the kernel could be updated.
type Installer interface {
	// Install replaces (or creates) the kernel route for r.Destination.
	Install(ctx context.Context, r Route) error
	// Delete removes any kernel route for destination, if one exists.
	Delete(ctx context.Context, destination uint8) error
	// Flush removes every route this Installer has installed.
	Flush(ctx context.Context) error
}
