package streaming

import (
	"fmt"
	"sync/atomic"

	"github.com/up202104595/tdmamesh/internal/logger"
	"github.com/up202104595/tdmamesh/internal/transport"
)

// Sender fragments application payloads into chunks and pushes them
// out over a transport.Transport as MsgData datagrams, one send per
// chunk, mirroring the original's per-chunk sendto loop.
type Sender struct {
	myNodeID uint8
	tr       transport.Transport
	clock    Clock
	lgr      logger.Logger

	nextStreamID uint32 // atomic
	counters     counters
}

// NewSender builds a Sender over tr.
func NewSender(myNodeID uint8, tr transport.Transport, lgr logger.Logger) *Sender {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Sender{myNodeID: myNodeID, tr: tr, clock: newRealClock(), lgr: lgr}
}

// Send splits data into MaxChunkSize pieces and sends each to dst as
// its own MsgData datagram, tagged with a freshly allocated stream
// id. Returns the stream id assigned, for correlating with receiver
// logs, and the number of chunks the stream was split into.
func (s *Sender) Send(dst uint8, data []byte, streamType Type) (streamID uint32, chunks int, err error) {
	if len(data) > MaxStreamBytes {
		return 0, 0, fmt.Errorf("streaming: payload of %d bytes exceeds max stream size %d", len(data), MaxStreamBytes)
	}

	streamID = atomic.AddUint32(&s.nextStreamID, 1)
	totalChunks := (len(data) + MaxChunkSize - 1) / MaxChunkSize
	if totalChunks == 0 {
		totalChunks = 1
	}
	startUs := s.clock.NowUs()

	for seq := 0; seq < totalChunks; seq++ {
		lo := seq * MaxChunkSize
		hi := lo + MaxChunkSize
		if hi > len(data) {
			hi = len(data)
		}
		chunk := Chunk{
			Header: Header{
				StreamID:       streamID,
				SequenceNumber: uint32(seq),
				TotalChunks:    uint32(totalChunks),
				Type:           streamType,
				TimestampUs:    startUs,
			},
			Data: data[lo:hi],
		}
		buf := chunk.Encode()
		if sendErr := s.tr.Send(dst, transport.MsgData, buf, s.clock.NowUs()); sendErr != nil {
			s.lgr.Warn("stream chunk send failed",
				logger.F("streamId", streamID),
				logger.F("seq", seq),
				logger.F("err", sendErr),
			)
			continue
		}
		s.counters.incSent()
		s.counters.addBytes(len(chunk.Data))
	}

	s.lgr.Debug("stream sent",
		logger.F("streamId", streamID),
		logger.F("dst", dst),
		logger.F("bytes", len(data)),
		logger.F("chunks", totalChunks),
	)
	return streamID, totalChunks, nil
}

// Stats returns a snapshot of this sender's lifetime counters.
func (s *Sender) Stats() Stats {
	return s.counters.snapshot(0, 0, int64(s.clock.NowUs()/1000))
}
