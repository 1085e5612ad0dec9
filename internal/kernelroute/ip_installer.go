package kernelroute

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/up202104595/tdmamesh/internal/logger"
)

// IPRouteInstaller shells out to the Linux `ip route` command, the
// same way the original node's routing manager drove the kernel,
// expressed here through os/exec instead of raw netlink sockets.
type IPRouteInstaller struct {
	iface string
	lgr   logger.Logger

	mu        sync.Mutex
	installed map[uint8]Route

	routeAdds    uint64
	routeDeletes uint64
	routeErrors  uint64
}

// NewIPRouteInstaller builds an installer that routes through iface
// (e.g. "eth0").
func NewIPRouteInstaller(iface string, lgr logger.Logger) *IPRouteInstaller {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &IPRouteInstaller{
		iface:     iface,
		lgr:       lgr,
		installed: make(map[uint8]Route),
	}
}

// Install implements Installer via `ip route replace`.
func (i *IPRouteInstaller) Install(ctx context.Context, r Route) error {
	cmd := exec.CommandContext(ctx, "ip", "route", "replace",
		cidr(r.DestIP), "via", r.GatewayIP, "dev", i.iface, "metric", fmt.Sprint(r.Metric))
	if out, err := cmd.CombinedOutput(); err != nil {
		i.mu.Lock()
		i.routeErrors++
		i.mu.Unlock()
		i.lgr.Warn("ip route replace failed",
			logger.F("dest", r.Destination),
			logger.F("gateway", r.Gateway),
			logger.F("err", err),
			logger.F("output", string(out)),
		)
		return fmt.Errorf("kernelroute: ip route replace %s via %s: %w", r.DestIP, r.GatewayIP, err)
	}

	i.mu.Lock()
	if _, existed := i.installed[r.Destination]; existed {
		i.routeDeletes++ // replaced, not newly added
	} else {
		i.routeAdds++
	}
	i.installed[r.Destination] = r
	i.mu.Unlock()
	return nil
}

// Delete implements Installer via `ip route del`.
func (i *IPRouteInstaller) Delete(ctx context.Context, destination uint8) error {
	i.mu.Lock()
	r, ok := i.installed[destination]
	i.mu.Unlock()
	if !ok {
		return nil
	}

	cmd := exec.CommandContext(ctx, "ip", "route", "del", cidr(r.DestIP), "dev", i.iface)
	if out, err := cmd.CombinedOutput(); err != nil {
		i.mu.Lock()
		i.routeErrors++
		i.mu.Unlock()
		i.lgr.Warn("ip route del failed",
			logger.F("dest", destination),
			logger.F("err", err),
			logger.F("output", string(out)),
		)
		return fmt.Errorf("kernelroute: ip route del %s: %w", r.DestIP, err)
	}

	i.mu.Lock()
	delete(i.installed, destination)
	i.routeDeletes++
	i.mu.Unlock()
	return nil
}

// Flush removes every route this installer currently tracks as
// installed, e.g. on graceful shutdown.
func (i *IPRouteInstaller) Flush(ctx context.Context) error {
	i.mu.Lock()
	dests := make([]uint8, 0, len(i.installed))
	for d := range i.installed {
		dests = append(dests, d)
	}
	i.mu.Unlock()

	var firstErr error
	for _, d := range dests {
		if err := i.Delete(ctx, d); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns a point-in-time snapshot of this installer's
// add/delete/error counters, mirroring the original's route_adds /
// route_deletes / route_errors fields.
func (i *IPRouteInstaller) Stats() (adds, deletes, errs uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.routeAdds, i.routeDeletes, i.routeErrors
}

func cidr(ip string) string {
	return ip + "/32"
}

var _ Installer = (*IPRouteInstaller)(nil)
