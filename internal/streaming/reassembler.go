package streaming

import (
	"sync"

	"github.com/up202104595/tdmamesh/internal/logger"
)

// inFlight tracks the partial state of one stream being reassembled.
type inFlight struct {
	totalChunks int
	have        []bool
	data        [][]byte
	receivedN   int
	startedMs   int64
}

// Reassembler collects chunks keyed by stream id and reports each
// stream complete exactly once, the moment every sequence number in
// [0, total_chunks) has arrived. Chunks for an already-completed or
// never-seen stream id are accepted as the start of a fresh
// reassembly; streams are never implicitly expired here — callers
// needing eviction drive that from Sweep.
type Reassembler struct {
	mu       sync.Mutex
	inFlight map[uint32]*inFlight
	clock    Clock
	lgr      logger.Logger
	counters counters
}

// NewReassembler builds an empty Reassembler.
func NewReassembler(lgr logger.Logger) *Reassembler {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Reassembler{
		inFlight: make(map[uint32]*inFlight),
		clock:    newRealClock(),
		lgr:      lgr,
	}
}

// Completed is returned by OnChunk once a stream's final chunk
// arrives.
type Completed struct {
	StreamID uint32
	Type     Type
	Data     []byte
}

// OnChunk feeds one received chunk into reassembly. done is true and
// result populated exactly when this chunk completed its stream.
func (r *Reassembler) OnChunk(c Chunk) (result Completed, done bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := int(c.Header.TotalChunks)
	if total == 0 {
		total = 1
	}
	seq := int(c.Header.SequenceNumber)
	if seq < 0 || seq >= total {
		return Completed{}, false
	}

	st, ok := r.inFlight[c.Header.StreamID]
	if !ok {
		st = &inFlight{
			totalChunks: total,
			have:        make([]bool, total),
			data:        make([][]byte, total),
			startedMs:   int64(r.clock.NowUs() / 1000),
		}
		r.inFlight[c.Header.StreamID] = st
	}

	if !st.have[seq] {
		st.have[seq] = true
		st.data[seq] = c.Data
		st.receivedN++
		r.counters.incReceived()
		r.counters.addBytes(len(c.Data))
	}

	if st.receivedN < st.totalChunks {
		return Completed{}, false
	}

	delete(r.inFlight, c.Header.StreamID)
	size := 0
	for _, d := range st.data {
		size += len(d)
	}
	out := make([]byte, 0, size)
	for _, d := range st.data {
		out = append(out, d...)
	}
	r.lgr.Debug("stream reassembled",
		logger.F("streamId", c.Header.StreamID),
		logger.F("bytes", size),
		logger.F("chunks", st.totalChunks),
	)
	return Completed{StreamID: c.Header.StreamID, Type: c.Header.Type, Data: out}, true
}

// Sweep evicts any stream that has been incomplete for longer than
// staleMs, counting its missing chunks as lost. Mirrors the liveness
// table's timeout-sweep shape: a periodic call from the supervisor's
// housekeeping loop, not a background goroutine of its own.
func (r *Reassembler) Sweep(nowMs, staleMs int64) (evicted int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, st := range r.inFlight {
		if nowMs-st.startedMs <= staleMs {
			continue
		}
		missing := st.totalChunks - st.receivedN
		r.counters.incLost(uint32(missing))
		delete(r.inFlight, id)
		evicted++
		r.lgr.Warn("stream evicted incomplete",
			logger.F("streamId", id),
			logger.F("missingChunks", missing),
		)
	}
	return evicted
}

// Stats returns a snapshot of this reassembler's lifetime counters.
func (r *Reassembler) Stats() Stats {
	return r.counters.snapshot(0, 0, int64(r.clock.NowUs()/1000))
}
