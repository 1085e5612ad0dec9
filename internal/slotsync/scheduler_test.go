package slotsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/up202104595/tdmamesh/internal/topology"
	"github.com/up202104595/tdmamesh/internal/topology/mst"
)

func fullyConnectedTree(n int) mst.Tree {
	var m [topology.MaxNodes][topology.MaxNodes]uint8
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				m[i][j] = 1
			}
		}
	}
	nodeIDs := make([]uint8, n)
	for i := range nodeIDs {
		nodeIDs[i] = uint8(i + 1)
	}
	snap := topology.Snapshot{NodeIDs: nodeIDs, Matrix: m, NumNodes: n}
	return mst.Compute(snap)
}

func TestNew_PartitionsRoundIntoEqualSlots(t *testing.T) {
	clock := NewFakeClock()
	s := New(1, []uint8{1, 2}, WithClock(clock), WithRoundPeriodUs(100_000))

	slots := s.Slots()
	require.Len(t, slots, 2)
	assert.Equal(t, uint64(0), slots[0].StartOffsetUs)
	assert.Equal(t, uint32(50_000), slots[0].DurationUs)
	assert.Equal(t, uint64(50_000), slots[1].StartOffsetUs)
}

func TestCanTransmit_WithinAndOutsideSlot(t *testing.T) {
	clock := NewFakeClock()
	s := New(2, []uint8{1, 2}, WithClock(clock), WithRoundPeriodUs(100_000))

	clock.Set(10_000) // within node 1's slot (0-50000), not node 2's
	assert.False(t, s.CanTransmit())

	clock.Set(60_000) // within node 2's slot (50000-100000)
	assert.True(t, s.CanTransmit())
}

func TestTimeUntilMySlotUs(t *testing.T) {
	clock := NewFakeClock()
	s := New(2, []uint8{1, 2}, WithClock(clock), WithRoundPeriodUs(100_000))

	clock.Set(10_000)
	assert.Equal(t, uint32(40_000), s.TimeUntilMySlotUs())

	clock.Set(90_000) // past this round's slot, wait for next round's
	assert.Equal(t, uint32(60_000), s.TimeUntilMySlotUs())
}

// Scenario E — five nodes, constant +1200us delay from every MST
// neighbor: after one CalculateSlotAdjustment the shift is exactly
// 1200us; after three rounds, IsSynchronized() is true.
func TestCalculateSlotAdjustment_ScenarioE_ConvergesOnConstantDelay(t *testing.T) {
	clock := NewFakeClock()
	nodes := []uint8{1, 2, 3, 4, 5}
	s := New(1, nodes, WithClock(clock), WithRoundPeriodUs(100_000))
	s.SetSpanningTree(fullyConnectedTree(5))

	before := s.MySlot().StartOffsetUs
	feedConstantDelay(s, nodes, 1200)
	s.CalculateSlotAdjustment()

	after := s.MySlot().StartOffsetUs
	assert.Equal(t, before+1200, after)
	assert.Equal(t, int64(1200), s.MySlot().AccumulatedShiftUs)

	assert.False(t, s.IsSynchronized())
	s.OnRoundEnd()
	assert.False(t, s.IsSynchronized())
	s.OnRoundEnd()
	assert.False(t, s.IsSynchronized())
	s.OnRoundEnd()
	assert.True(t, s.IsSynchronized())
}

// Scenario F — negative median suppresses the shift.
func TestCalculateSlotAdjustment_ScenarioF_NegativeMedianSuppressesShift(t *testing.T) {
	clock := NewFakeClock()
	nodes := []uint8{1, 2, 3, 4}
	s := New(1, nodes, WithClock(clock), WithRoundPeriodUs(100_000))
	s.SetSpanningTree(fullyConnectedTree(4))

	before := s.MySlot().StartOffsetUs
	delays := []int64{-500, -200, -100}
	for i, d := range delays {
		peerIdx := i + 1
		slotStart := s.slots[peerIdx].StartOffsetUs
		tx := slotStart
		rx := uint64(int64(s.roundStartUsForTest()+slotStart) + d)
		s.OnPacketReceived(nodes[peerIdx], tx, rx)
	}
	s.CalculateSlotAdjustment()

	assert.Equal(t, before, s.MySlot().StartOffsetUs, "negative median must not move the slot")
	assert.Equal(t, int64(0), s.MySlot().AccumulatedShiftUs)
}

func TestCalculateSlotAdjustment_ClearsCurrentBuffer(t *testing.T) {
	clock := NewFakeClock()
	nodes := []uint8{1, 2, 3}
	s := New(1, nodes, WithClock(clock), WithRoundPeriodUs(100_000))
	s.SetSpanningTree(fullyConnectedTree(3))

	feedConstantDelay(s, nodes, 500)
	s.CalculateSlotAdjustment()

	s.current.mu.Lock()
	for i := 0; i < s.numSlots; i++ {
		assert.Equal(t, uint32(0), s.current.count[i])
	}
	s.current.mu.Unlock()
}

func TestCalculateSlotAdjustment_ClampsToMax(t *testing.T) {
	clock := NewFakeClock()
	nodes := []uint8{1, 2}
	s := New(1, nodes, WithClock(clock), WithRoundPeriodUs(100_000), WithMaxSlotShiftMs(6))
	s.SetSpanningTree(fullyConnectedTree(2))

	feedConstantDelay(s, nodes, 50_000)
	s.CalculateSlotAdjustment()

	assert.Equal(t, int64(6_000), s.MySlot().AccumulatedShiftUs)
}

func TestIsSynchronized_IsSticky(t *testing.T) {
	clock := NewFakeClock()
	s := New(1, []uint8{1, 2}, WithClock(clock), WithRoundPeriodUs(100_000))
	for i := 0; i < 5; i++ {
		s.OnRoundEnd()
	}
	assert.True(t, s.IsSynchronized())
	s.OnRoundEnd()
	assert.True(t, s.IsSynchronized(), "synchronization must never revert within a session")
}

// feedConstantDelay drives OnPacketReceived for every peer so that the
// resulting computed delay equals delayUs exactly, using each node's
// own slot start as both tx and (shifted) rx timestamp.
func feedConstantDelay(s *Scheduler, nodes []uint8, delayUs int64) {
	for i, id := range nodes {
		if id == s.myNodeID {
			continue
		}
		slotStart := s.slots[i].StartOffsetUs
		tx := slotStart
		rx := s.roundStartUs + slotStart + uint64(delayUs)
		s.OnPacketReceived(id, tx, rx)
	}
}

func (s *Scheduler) roundStartUsForTest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundStartUs
}
