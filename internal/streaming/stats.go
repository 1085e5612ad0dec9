package streaming

import "sync/atomic"

// Stats mirrors the original stream_stats_t, kept per-direction (one
// for sends, one for receives) on Sender and Reassembler.
type Stats struct {
	StreamID        uint32
	TotalBytes      uint64
	ChunksSent      uint64
	ChunksReceived  uint64
	ChunksLost      uint64
	StartTimeMs     int64
	EndTimeMs       int64
}

// ThroughputMbps computes send/receive throughput over the stream's
// observed wall-clock span. Zero when EndTimeMs is not later than
// StartTimeMs.
func (s Stats) ThroughputMbps() float64 {
	spanMs := s.EndTimeMs - s.StartTimeMs
	if spanMs <= 0 {
		return 0
	}
	bits := float64(s.TotalBytes) * 8
	seconds := float64(spanMs) / 1000
	return bits / seconds / 1_000_000
}

// counters is the concurrency-safe accumulator Sender and Reassembler
// update as chunks cross the wire; snapshot freezes a Stats view.
type counters struct {
	totalBytes     uint64
	chunksSent     uint64
	chunksReceived uint64
	chunksLost     uint64
}

func (c *counters) addBytes(n int)   { atomic.AddUint64(&c.totalBytes, uint64(n)) }
func (c *counters) incSent()         { atomic.AddUint64(&c.chunksSent, 1) }
func (c *counters) incReceived()     { atomic.AddUint64(&c.chunksReceived, 1) }
func (c *counters) incLost(n uint32) { atomic.AddUint64(&c.chunksLost, uint64(n)) }

func (c *counters) snapshot(streamID uint32, startMs, endMs int64) Stats {
	return Stats{
		StreamID:       streamID,
		TotalBytes:     atomic.LoadUint64(&c.totalBytes),
		ChunksSent:     atomic.LoadUint64(&c.chunksSent),
		ChunksReceived: atomic.LoadUint64(&c.chunksReceived),
		ChunksLost:     atomic.LoadUint64(&c.chunksLost),
		StartTimeMs:    startMs,
		EndTimeMs:      endMs,
	}
}
