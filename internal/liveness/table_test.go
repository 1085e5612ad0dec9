package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/up202104595/tdmamesh/internal/logger"
)

func TestTable_TouchAndElapsed(t *testing.T) {
	tbl := NewTable(&logger.NopLogger{})
	tbl.Touch(2, 1000)
	assert.Equal(t, int64(500), tbl.Elapsed(2, 1500))
}

func TestTable_Elapsed_NeverSeenIsOverdue(t *testing.T) {
	tbl := NewTable(&logger.NopLogger{})
	assert.Equal(t, int64(5000), tbl.Elapsed(9, 5000))
}

func TestSweep_MarksTimedOutPeerDisconnected(t *testing.T) {
	tbl := NewTable(&logger.NopLogger{})
	tbl.Touch(2, 0)

	connected := map[uint8]bool{2: true}
	changes := tbl.Sweep([]uint8{2}, 6000, 5000, func(p uint8) bool { return connected[p] })

	assert.Equal(t, []ConnectivityChange{{Peer: 2, Connected: false}}, changes)
}

func TestSweep_MarksRecoveredPeerConnected(t *testing.T) {
	tbl := NewTable(&logger.NopLogger{})
	tbl.Touch(2, 5900)

	connected := map[uint8]bool{2: false}
	changes := tbl.Sweep([]uint8{2}, 6000, 5000, func(p uint8) bool { return connected[p] })

	assert.Equal(t, []ConnectivityChange{{Peer: 2, Connected: true}}, changes)
}

func TestSweep_NoChangeWhenStateAlreadyMatches(t *testing.T) {
	tbl := NewTable(&logger.NopLogger{})
	tbl.Touch(2, 5900)

	connected := map[uint8]bool{2: true}
	changes := tbl.Sweep([]uint8{2}, 6000, 5000, func(p uint8) bool { return connected[p] })

	assert.Empty(t, changes)
}
