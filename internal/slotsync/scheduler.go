// Package slotsync implements RA-TDMAs+, the slot scheduler at the
// heart of the daemon: every node transmits only while its own slot
// window is open within a round, and nudges its slot start forward
// each round based on arrival-time observations of its spanning-tree
// neighbors, compensating out propagation and processing delay.
package slotsync

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/up202104595/tdmamesh/internal/logger"
	"github.com/up202104595/tdmamesh/internal/topology"
	"github.com/up202104595/tdmamesh/internal/topology/mst"
)

// DefaultRoundPeriodUs is the default round length (100ms).
const DefaultRoundPeriodUs = 100_000

// DefaultMaxSlotShiftMs bounds a single round's forward slot shift.
const DefaultMaxSlotShiftMs = 6

// syncRoundsThreshold is the number of completed rounds after which a
// node is considered synchronized. Sticky within a session.
const syncRoundsThreshold = 3

// SlotBoundary describes one node's transmit window within a round.
type SlotBoundary struct {
	NodeID             uint8
	StartOffsetUs      uint64
	DurationUs         uint32
	AccumulatedShiftUs int64
}

// delayBuffer accumulates the last observed delay per slot index
// between two calls to CalculateSlotAdjustment. Guarded by its own
// mutex so the receiver goroutine can record an observation while a
// swap is in flight.
type delayBuffer struct {
	mu     sync.Mutex
	delays [topology.MaxNodes]int64
	count  [topology.MaxNodes]uint32
}

func (b *delayBuffer) record(idx int, delay int64) {
	b.mu.Lock()
	b.delays[idx] = delay
	b.count[idx]++
	b.mu.Unlock()
}

func (b *delayBuffer) reset() {
	for i := range b.delays {
		b.delays[i] = 0
		b.count[i] = 0
	}
}

// Scheduler is the RA-TDMAs+ state machine for one node.
//
// Locking discipline: the mu lock protects slots, round bookkeeping,
// and the tree reference. The current/previous delay buffers carry
// their own locks and are always acquired current-then-previous, the
// fixed order the concurrency model requires to avoid deadlock with
// the receiver goroutine, which only ever touches current.
type Scheduler struct {
	mu sync.Mutex

	myNodeID uint8
	myIndex  int
	numSlots int

	roundPeriodUs  uint64
	maxSlotShiftUs int64

	roundStartUs    uint64
	roundNumber     uint32
	isSynchronized  bool
	syncRoundsCount uint32

	slots []SlotBoundary
	tree  *mst.Tree

	current  *delayBuffer
	previous *delayBuffer

	slotAdjustments     uint64
	totalShiftAppliedUs int64

	clock   Clock
	lgr     logger.Logger
	metrics *Metrics
}

// Option configures optional Scheduler collaborators.
type Option func(*Scheduler)

func WithClock(c Clock) Option          { return func(s *Scheduler) { s.clock = c } }
func WithLogger(l logger.Logger) Option { return func(s *Scheduler) { s.lgr = l } }
func WithMetrics(m *Metrics) Option     { return func(s *Scheduler) { s.metrics = m } }
func WithMaxSlotShiftMs(ms int) Option {
	return func(s *Scheduler) { s.maxSlotShiftUs = int64(ms) * 1000 }
}
func WithRoundPeriodUs(us uint32) Option {
	return func(s *Scheduler) { s.roundPeriodUs = uint64(us) }
}

// New partitions [0, roundPeriodUs) into len(allNodes) equal windows
// — slot i gets start_offset_us = i*period/n, duration_us =
// period/n — locates myID's slot, and marks the scheduler
// unsynchronized. allNodes must be in the same order the MST/CM use,
// since CalculateSlotAdjustment cross-references tree positions by
// index.
func New(myID uint8, allNodes []uint8, opts ...Option) *Scheduler {
	s := &Scheduler{
		myNodeID:       myID,
		numSlots:       len(allNodes),
		roundPeriodUs:  DefaultRoundPeriodUs,
		maxSlotShiftUs: DefaultMaxSlotShiftMs * 1000,
		current:        &delayBuffer{},
		previous:       &delayBuffer{},
		lgr:            &logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = newRealClock()
	}

	slotDuration := uint32(s.roundPeriodUs) / uint32(s.numSlots)
	s.slots = make([]SlotBoundary, s.numSlots)
	for i, id := range allNodes {
		s.slots[i] = SlotBoundary{
			NodeID:        id,
			StartOffsetUs: uint64(i) * uint64(slotDuration),
			DurationUs:    slotDuration,
		}
		if id == myID {
			s.myIndex = i
		}
	}
	s.roundStartUs = s.clock.NowUs()

	s.lgr.Debug("slot scheduler initialized",
		logger.F("nodeId", myID),
		logger.F("slot", s.myIndex),
		logger.F("numSlots", s.numSlots),
		logger.F("slotDurationUs", slotDuration),
	)
	return s
}

// SetSpanningTree updates the tree reference CalculateSlotAdjustment
// uses to filter which peers' observations count.
func (s *Scheduler) SetSpanningTree(tree mst.Tree) {
	s.mu.Lock()
	s.tree = &tree
	s.mu.Unlock()
}

// OnPacketReceived records sender's observed arrival delay for this
// round. Unknown senders are ignored.
func (s *Scheduler) OnPacketReceived(senderID uint8, txTimestampUs, rxTimestampUs uint64) {
	s.mu.Lock()
	senderIdx := -1
	for i, slot := range s.slots {
		if slot.NodeID == senderID {
			senderIdx = i
			break
		}
	}
	if senderIdx == -1 {
		s.mu.Unlock()
		return
	}
	senderSlotStart := s.slots[senderIdx].StartOffsetUs
	roundStart := s.roundStartUs
	period := s.roundPeriodUs
	s.mu.Unlock()

	expectedRx := roundStart + senderSlotStart + (txTimestampUs - senderSlotStart)
	rawDelay := int64(rxTimestampUs) - int64(expectedRx)

	halfPeriod := int64(period) / 2
	delay := rawDelay
	if delay > halfPeriod {
		delay -= int64(period)
	} else if delay < -halfPeriod {
		delay += int64(period)
	}

	s.current.record(senderIdx, delay)
}

// CanTransmit reports whether now falls within this node's slot
// window for the current round.
func (s *Scheduler) CanTransmit() bool {
	now := s.clock.NowUs()

	s.mu.Lock()
	defer s.mu.Unlock()
	timeInRound := (now - s.roundStartUs) % s.roundPeriodUs
	slot := s.slots[s.myIndex]
	return timeInRound >= slot.StartOffsetUs && timeInRound < slot.StartOffsetUs+uint64(slot.DurationUs)
}

// TimeUntilMySlotUs returns how long to sleep until this node's next
// transmit window opens.
func (s *Scheduler) TimeUntilMySlotUs() uint32 {
	now := s.clock.NowUs()

	s.mu.Lock()
	slotStart := s.slots[s.myIndex].StartOffsetUs
	period := s.roundPeriodUs
	roundStart := s.roundStartUs
	s.mu.Unlock()

	timeInRound := (now - roundStart) % period
	if timeInRound < slotStart {
		return uint32(slotStart - timeInRound)
	}
	return uint32((period - timeInRound) + slotStart)
}

// CalculateSlotAdjustment swaps the delay buffers, filters the
// previous round's samples to MST-connected peers, and shifts this
// node's slot start forward by the median observed delay (never
// backward — moving a slot earlier risks overlapping the preceding
// slot before its owner learns of the move), clamped to
// maxSlotShiftUs. A no-op if no spanning tree has been set yet, or no
// MST-filtered samples were observed.
func (s *Scheduler) CalculateSlotAdjustment() {
	s.mu.Lock()
	tree := s.tree
	s.mu.Unlock()
	if tree == nil {
		return
	}

	// Fixed current-then-previous acquisition order.
	s.current.mu.Lock()
	s.previous.mu.Lock()
	s.current.delays, s.previous.delays = s.previous.delays, s.current.delays
	s.current.count, s.previous.count = s.previous.count, s.current.count
	s.previous.mu.Unlock()
	s.current.reset()
	s.current.mu.Unlock()

	s.mu.Lock()
	myIdx := s.myIndex
	s.mu.Unlock()

	var filtered []int64
	s.previous.mu.Lock()
	for i := 0; i < s.numSlots; i++ {
		if s.previous.count[i] == 0 {
			continue
		}
		if !tree.Connected(myIdx, i) {
			continue
		}
		filtered = append(filtered, s.previous.delays[i])
	}
	s.previous.mu.Unlock()

	if len(filtered) == 0 {
		return
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i] < filtered[j] })
	median := filtered[len(filtered)/2]

	shift := median
	if shift < 0 {
		shift = 0
	}
	if shift > s.maxSlotShiftUs {
		shift = s.maxSlotShiftUs
	}
	if shift == 0 {
		return
	}

	s.mu.Lock()
	s.slots[myIdx].StartOffsetUs += uint64(shift)
	if s.slots[myIdx].StartOffsetUs >= s.roundPeriodUs {
		s.slots[myIdx].StartOffsetUs -= s.roundPeriodUs
	}
	s.slots[myIdx].AccumulatedShiftUs += shift
	accumulated := s.slots[myIdx].AccumulatedShiftUs
	s.slotAdjustments++
	s.totalShiftAppliedUs += shift
	s.mu.Unlock()

	s.metrics.setAccumulatedShift(accumulated)
	s.metrics.incAdjustments()
	s.lgr.Debug("slot adjusted",
		logger.F("nodeId", s.myNodeID),
		logger.F("shiftUs", shift),
		logger.F("accumulatedShiftUs", accumulated),
	)
}

// OnRoundEnd advances the round base time, increments counters, and
// transitions to synchronized once three rounds have completed.
// Synchronization is sticky: once true, it never reverts in-session.
func (s *Scheduler) OnRoundEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roundStartUs += s.roundPeriodUs
	s.roundNumber++
	s.syncRoundsCount++
	if !s.isSynchronized && s.syncRoundsCount >= syncRoundsThreshold {
		s.isSynchronized = true
	}
}

// IsSynchronized reports whether the synchronization threshold has
// been reached.
func (s *Scheduler) IsSynchronized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isSynchronized
}

// RoundNumber returns the current round counter.
func (s *Scheduler) RoundNumber() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundNumber
}

// MySlot returns a copy of this node's current slot boundary.
func (s *Scheduler) MySlot() SlotBoundary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[s.myIndex]
}

// Slots returns a copy of every slot boundary, for status printing.
func (s *Scheduler) Slots() []SlotBoundary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SlotBoundary, len(s.slots))
	copy(out, s.slots)
	return out
}

// DebugSlots renders every slot boundary as a table, marking this
// node's own slot, mirroring the original's
// ra_tdmas_print_slot_boundaries.
func (s *Scheduler) DebugSlots() string {
	s.mu.Lock()
	round := s.roundNumber
	synced := s.isSynchronized
	myIndex := s.myIndex
	slots := make([]SlotBoundary, len(s.slots))
	copy(slots, s.slots)
	s.mu.Unlock()

	status := "NO"
	if synced {
		status = "YES"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== RA-TDMAs+ Slots (Node %d) ===\n", s.myNodeID)
	fmt.Fprintf(&b, "Round: %d | Synced: %s\n", round, status)
	fmt.Fprint(&b, "\nNode | Start (us) | Duration | Shift\n")
	fmt.Fprint(&b, "-----|------------|----------|-------\n")
	for i, slot := range slots {
		marker := byte(' ')
		if i == myIndex {
			marker = '*'
		}
		fmt.Fprintf(&b, " %c%2d | %6d | %6d | %6d\n",
			marker, slot.NodeID, slot.StartOffsetUs, slot.DurationUs, slot.AccumulatedShiftUs)
	}
	return b.String()
}

// DebugDelays renders the most recently completed round's per-slot
// observed delays, mirroring the original's ra_tdmas_print_delays.
// Slots with no observations in that round are omitted.
func (s *Scheduler) DebugDelays() string {
	s.mu.Lock()
	slots := make([]SlotBoundary, len(s.slots))
	copy(slots, s.slots)
	s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "=== Delays (Node %d) ===\n", s.myNodeID)
	s.previous.mu.Lock()
	for i := 0; i < s.numSlots; i++ {
		if s.previous.count[i] > 0 {
			fmt.Fprintf(&b, "  Node %d: %d us (%d pkts)\n",
				slots[i].NodeID, s.previous.delays[i], s.previous.count[i])
		}
	}
	s.previous.mu.Unlock()
	return b.String()
}
