// Package supervisor composes the connectivity matrix, routing
// manager, slot scheduler, liveness table, and transport into the
// running node: the transmitter and receiver loops, the timeout
// sweep, and the wiring that reacts to a topology change by rebuilding
// the spanning tree, recomputing routes, and pushing kernel routes.
package supervisor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/up202104595/tdmamesh/internal/bootstrap"
	"github.com/up202104595/tdmamesh/internal/kernelroute"
	"github.com/up202104595/tdmamesh/internal/liveness"
	"github.com/up202104595/tdmamesh/internal/logger"
	"github.com/up202104595/tdmamesh/internal/routing"
	"github.com/up202104595/tdmamesh/internal/slotsync"
	"github.com/up202104595/tdmamesh/internal/streaming"
	"github.com/up202104595/tdmamesh/internal/topology"
	"github.com/up202104595/tdmamesh/internal/topology/mst"
	"github.com/up202104595/tdmamesh/internal/transport"
)

// transmitPollInterval is the busy-wait granularity for CanTransmit,
// matching spec.md's 100us polling requirement.
const transmitPollInterval = 100 * time.Microsecond

// receivePollIdle is how long the receiver loop sleeps after a poll
// that found nothing to read.
const receivePollIdle = time.Millisecond

// Supervisor wires every per-node component together and owns the
// two worker loops (transmitter, receiver) plus the 1Hz housekeeping
// tick (liveness sweep, stream reassembly sweep, status log).
type Supervisor struct {
	myID       uint8
	totalNodes int
	nodeIDs    []uint8

	cm       *topology.Registry
	rm       *routing.Manager
	ss       *slotsync.Scheduler
	live     *liveness.Table
	tr       transport.Transport
	installer kernelroute.Installer
	sender     *streaming.Sender
	reassembler *streaming.Reassembler

	lgr   logger.Logger
	clock Clock

	timeoutMs     int64
	sweepInterval time.Duration

	mu        sync.Mutex
	localCM   [topology.MaxNodes][topology.MaxNodes]uint8
	lastRoutingVersion uint64

	heartbeatsSent     uint64
	heartbeatsReceived uint64
	topologyUpdates    uint64
}

// Config bundles what New needs beyond the component collaborators
// themselves: this node's identity, the mesh size, and the liveness
// timeout and sweep cadence.
type Config struct {
	MyID          uint8
	TotalNodes    int
	TimeoutMs     int64
	SweepInterval time.Duration
}

// New builds a Supervisor. Collaborators are constructed by the
// caller (cmd/tdmanode) so tests can substitute fakes for transport,
// the kernel-route installer, or the bootstrap resolver.
func New(cfg Config, cm *topology.Registry, rm *routing.Manager, ss *slotsync.Scheduler,
	live *liveness.Table, tr transport.Transport, installer kernelroute.Installer,
	sender *streaming.Sender, reassembler *streaming.Reassembler, lgr logger.Logger, opts ...Option) *Supervisor {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	nodeIDs := make([]uint8, cfg.TotalNodes)
	for i := range nodeIDs {
		nodeIDs[i] = uint8(i + 1)
	}
	s := &Supervisor{
		myID:          cfg.MyID,
		totalNodes:    cfg.TotalNodes,
		nodeIDs:       nodeIDs,
		cm:            cm,
		rm:            rm,
		ss:            ss,
		live:          live,
		tr:            tr,
		installer:     installer,
		sender:        sender,
		reassembler:   reassembler,
		lgr:           lgr,
		timeoutMs:     cfg.TimeoutMs,
		sweepInterval: cfg.SweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = newRealClock()
	}
	return s
}

// Option configures optional Supervisor collaborators.
type Option func(*Supervisor)

// WithClock overrides the supervisor's timestamp source, e.g. with a
// FakeClock in tests.
func WithClock(c Clock) Option { return func(s *Supervisor) { s.clock = c } }

// Bootstrap seeds the connectivity matrix from resolver, builds the
// initial spanning tree, and wires it into the scheduler, completing
// Node Supervisor init steps 2-3.
func (s *Supervisor) Bootstrap(resolver bootstrap.Resolver) error {
	snap, err := resolver.Resolve(s.myID, s.totalNodes)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.localCM = snap.Matrix
	s.mu.Unlock()

	s.cm.Set(snap.Matrix, snap.NodeIDs)
	tree := mst.Compute(snap)
	s.ss.SetSpanningTree(tree)
	s.rm.UpdateTopology(context.Background(), snap)
	return nil
}

// Run starts the transmitter, receiver, and housekeeping loops, and
// blocks until ctx is cancelled or a loop reports an unrecoverable
// error. On return, every loop has exited.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.transmitLoop(gctx) })
	g.Go(func() error { return s.receiveLoop(gctx) })
	g.Go(func() error { return s.housekeepingLoop(gctx) })
	return g.Wait()
}

// transmitLoop implements spec.md §4.6's transmitter loop.
func (s *Supervisor) transmitLoop(ctx context.Context) error {
	ticker := time.NewTicker(transmitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		s.pushRoutesIfChanged(ctx)

		for !s.ss.CanTransmit() {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}

		s.ss.CalculateSlotAdjustment()

		nowUs := s.clock.NowUs()
		sent := s.tr.Broadcast(transport.MsgHeartbeat, []byte{0xFF}, s.totalNodes, nowUs)
		s.mu.Lock()
		s.heartbeatsSent += uint64(sent)
		s.mu.Unlock()

		sleepUs := s.ss.TimeUntilMySlotUs()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(sleepUs) * time.Microsecond):
		}
		s.ss.OnRoundEnd()
	}
}

// receiveLoop implements spec.md §4.6's receiver loop.
func (s *Supervisor) receiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pkt, err := s.tr.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			time.Sleep(receivePollIdle)
			continue
		}

		nowUs := s.clock.NowUs()
		s.dispatch(pkt)
		s.ss.OnPacketReceived(pkt.Header.Src, pkt.Header.TxTimestampUs, nowUs)
		s.live.Touch(pkt.Header.Src, nowUs/1000)
	}
}

func (s *Supervisor) dispatch(pkt transport.Packet) {
	switch pkt.Header.Type {
	case transport.MsgHeartbeat:
		s.mu.Lock()
		s.heartbeatsReceived++
		s.mu.Unlock()
	case transport.MsgData:
		chunk, err := streaming.DecodeChunk(pkt.Payload)
		if err != nil {
			s.lgr.Debug("dropped malformed data chunk", logger.F("src", pkt.Header.Src))
			return
		}
		if _, done := s.reassembler.OnChunk(chunk); done {
			s.lgr.Debug("stream completed", logger.F("streamId", chunk.Header.StreamID))
		}
	case transport.MsgTopologyUpdate:
		s.mu.Lock()
		s.topologyUpdates++
		s.mu.Unlock()
	}
}

// housekeepingLoop runs the 1Hz timeout sweep plus periodic stream
// reassembly eviction and status logging, all on their own goroutine
// so neither the transmit nor receive loop's timing is disturbed by
// them.
func (s *Supervisor) housekeepingLoop(ctx context.Context) error {
	interval := s.sweepInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.checkTimeouts()
			s.reassembler.Sweep(int64(s.clock.NowUs()/1000), s.timeoutMs)
			s.mu.Lock()
			sent, received := s.heartbeatsSent, s.heartbeatsReceived
			s.mu.Unlock()
			s.lgr.Debug("node status",
				logger.F("round", s.ss.RoundNumber()),
				logger.F("synchronized", s.ss.IsSynchronized()),
				logger.F("topologyVersion", s.rm.TopologyVersion()),
				logger.F("heartbeatsSent", sent),
				logger.F("heartbeatsReceived", received),
			)
		}
	}
}

// checkTimeouts implements spec.md §4.6's check_timeouts.
func (s *Supervisor) checkTimeouts() {
	nowMs := int64(s.clock.NowUs() / 1000)
	peers := make([]uint8, 0, len(s.nodeIDs))
	for _, id := range s.nodeIDs {
		if id != s.myID {
			peers = append(peers, id)
		}
	}

	myIdx := s.indexOf(s.myID)
	changes := s.live.Sweep(peers, nowMs, s.timeoutMs, func(p uint8) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		pIdx := s.indexOf(p)
		return myIdx >= 0 && pIdx >= 0 && s.localCM[myIdx][pIdx] != 0
	})

	for _, c := range changes {
		s.updateConnectivity(c.Peer, c.Connected)
	}
}

// updateConnectivity implements spec.md §4.6's update_connectivity.
func (s *Supervisor) updateConnectivity(peer uint8, alive bool) {
	myIdx := s.indexOf(s.myID)
	peerIdx := s.indexOf(peer)
	if myIdx < 0 || peerIdx < 0 {
		return
	}

	s.mu.Lock()
	current := s.localCM[myIdx][peerIdx] != 0
	if current == alive {
		s.mu.Unlock()
		return
	}
	var bit uint8
	if alive {
		bit = 1
	}
	s.localCM[myIdx][peerIdx] = bit
	s.localCM[peerIdx][myIdx] = bit
	snapMatrix := s.localCM
	s.mu.Unlock()

	s.cm.Set(snapMatrix, s.nodeIDs)
	snap := s.cm.Get()

	tree := mst.Compute(snap)
	s.ss.SetSpanningTree(tree)

	s.rm.UpdateTopology(context.Background(), snap)
	s.pushRoutesIfChanged(context.Background())

	s.lgr.Info("connectivity changed",
		logger.F("peer", peer),
		logger.F("connected", alive),
	)
}

// pushRoutesIfChanged installs kernel routes for every reachable
// destination when the routing table's version has advanced since
// the last push.
func (s *Supervisor) pushRoutesIfChanged(ctx context.Context) {
	if s.installer == nil {
		return
	}
	version := s.rm.TopologyVersion()
	s.mu.Lock()
	if version == s.lastRoutingVersion {
		s.mu.Unlock()
		return
	}
	s.lastRoutingVersion = version
	s.mu.Unlock()

	addrs := transport.NewAddressBook("", 0)
	for _, id := range s.nodeIDs {
		if id == s.myID {
			continue
		}
		entry, ok := s.rm.Entry(id)
		if !ok || !entry.Valid {
			_ = s.installer.Delete(ctx, id)
			continue
		}
		route := kernelroute.Route{
			Destination: entry.Destination,
			Gateway:     entry.NextHop,
			DestIP:      addrs.IP(entry.Destination),
			GatewayIP:   addrs.IP(entry.NextHop),
			Metric:      uint32(entry.Distance),
		}
		if err := s.installer.Install(ctx, route); err != nil {
			s.lgr.Warn("kernel route install failed", logger.F("dest", id), logger.F("err", err))
		}
	}
}

func (s *Supervisor) indexOf(id uint8) int {
	for i, n := range s.nodeIDs {
		if n == id {
			return i
		}
	}
	return -1
}

// Shutdown flushes installed kernel routes and closes the transport.
// Callers should cancel Run's context first and wait for it to
// return before calling Shutdown.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if s.installer != nil {
		_ = s.installer.Flush(ctx)
	}
	return s.tr.Close()
}
