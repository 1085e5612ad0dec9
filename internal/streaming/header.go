// Package streaming implements the chunk-level framing the daemon
// applies on top of transport.MsgData datagrams: large application
// payloads are split into MaxChunkSize pieces, each prefixed with a
// small packed header carrying enough bookkeeping for the receiver to
// reassemble them in order and notice loss. This sits above
// transport's fixed wire header the same way the original node layers
// stream framing on top of its UDP transport.
package streaming

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the on-wire size of Header in bytes.
const HeaderSize = 23

// MaxChunkSize bounds a single chunk's data payload, chosen (as in
// the original) to stay comfortably under a 1500-byte MTU once the
// transport header and this chunk header are both accounted for.
const MaxChunkSize = 1400

// MaxStreamBytes caps how large a single stream's reassembled payload
// may grow, guarding against a malicious or corrupt total_chunks
// value inflating memory use without bound.
const MaxStreamBytes = 1024 * 1024

// Type identifies the kind of content a stream carries. Purely
// informational to the application layer; streaming treats all types
// identically.
type Type uint8

const (
	TypeVideo Type = iota + 1
	TypeAudio
	TypeData
)

// ErrMalformedChunk is returned when a chunk header is truncated or
// internally inconsistent.
var ErrMalformedChunk = errors.New("streaming: malformed chunk")

// Header prefixes every chunk:
//
//	stream_id        4 bytes, little-endian
//	sequence_number  4 bytes, little-endian
//	total_chunks     4 bytes, little-endian
//	chunk_size       2 bytes, little-endian (bytes of data in THIS chunk)
//	type             1 byte
//	timestamp_us     8 bytes, little-endian (stream start time)
type Header struct {
	StreamID       uint32
	SequenceNumber uint32
	TotalChunks    uint32
	ChunkSize      uint16
	Type           Type
	TimestampUs    uint64
}

// Encode writes h's wire representation into buf[:HeaderSize].
func (h Header) Encode(buf []byte) {
	_ = buf[HeaderSize-1]
	binary.LittleEndian.PutUint32(buf[0:4], h.StreamID)
	binary.LittleEndian.PutUint32(buf[4:8], h.SequenceNumber)
	binary.LittleEndian.PutUint32(buf[8:12], h.TotalChunks)
	binary.LittleEndian.PutUint16(buf[12:14], h.ChunkSize)
	buf[14] = uint8(h.Type)
	binary.LittleEndian.PutUint64(buf[15:23], h.TimestampUs)
}

// DecodeHeader parses a chunk header out of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrMalformedChunk
	}
	return Header{
		StreamID:       binary.LittleEndian.Uint32(buf[0:4]),
		SequenceNumber: binary.LittleEndian.Uint32(buf[4:8]),
		TotalChunks:    binary.LittleEndian.Uint32(buf[8:12]),
		ChunkSize:      binary.LittleEndian.Uint16(buf[12:14]),
		Type:           Type(buf[14]),
		TimestampUs:    binary.LittleEndian.Uint64(buf[15:23]),
	}, nil
}

// Chunk is one fragment of a stream: its header plus the data bytes
// that follow it in the datagram.
type Chunk struct {
	Header Header
	Data   []byte
}

// Encode serializes c into a single chunk buffer.
func (c Chunk) Encode() []byte {
	buf := make([]byte, HeaderSize+len(c.Data))
	h := c.Header
	h.ChunkSize = uint16(len(c.Data))
	h.Encode(buf[:HeaderSize])
	copy(buf[HeaderSize:], c.Data)
	return buf
}

// DecodeChunk parses a full chunk (header + data) out of buf.
func DecodeChunk(buf []byte) (Chunk, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Chunk{}, err
	}
	if len(buf) < HeaderSize+int(h.ChunkSize) {
		return Chunk{}, ErrMalformedChunk
	}
	data := make([]byte, h.ChunkSize)
	copy(data, buf[HeaderSize:HeaderSize+int(h.ChunkSize)])
	return Chunk{Header: h, Data: data}, nil
}
