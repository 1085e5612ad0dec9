// Package transport implements the fixed-header UDP wire protocol
// every mesh node speaks: a 16-byte packed header (matching the
// original node's udp_header_t) followed by an opaque payload, sent
// and received over a socket bound to the node's well-known port.
package transport

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the on-wire size of Header in bytes.
const HeaderSize = 16

// MaxPacketSize is the largest datagram this transport will ever send
// or accept, header included.
const MaxPacketSize = 1500

// MaxPayloadSize is the largest payload a single datagram can carry.
const MaxPayloadSize = MaxPacketSize - HeaderSize

// ProtocolVersion is the only version this implementation understands.
const ProtocolVersion = 1

// MessageType identifies the kind of payload a datagram carries.
type MessageType uint8

const (
	MsgHeartbeat MessageType = iota + 1
	MsgTopologyUpdate
	MsgData
	MsgRoutingRequest
	MsgRoutingResponse
)

func (t MessageType) String() string {
	switch t {
	case MsgHeartbeat:
		return "HEARTBEAT"
	case MsgTopologyUpdate:
		return "TOPOLOGY_UPDATE"
	case MsgData:
		return "DATA"
	case MsgRoutingRequest:
		return "ROUTING_REQUEST"
	case MsgRoutingResponse:
		return "ROUTING_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// BroadcastID is the well-known destination id meaning "every peer".
const BroadcastID uint8 = 0

// ErrMalformedPacket is returned by Decode when a buffer is too short,
// carries an unsupported version, or declares a payload_len that
// doesn't match the bytes actually present.
var ErrMalformedPacket = errors.New("transport: malformed packet")

// Header is the fixed 16-byte datagram header:
//
//	version          1 byte
//	type             1 byte
//	src              1 byte
//	dst              1 byte
//	sequence         2 bytes, little-endian
//	payload_len      2 bytes, little-endian
//	tx_timestamp_us  8 bytes, little-endian
type Header struct {
	Version        uint8
	Type           MessageType
	Src            uint8
	Dst            uint8
	Sequence       uint16
	PayloadLen     uint16
	TxTimestampUs  uint64
}

// Encode writes h's wire representation into buf[:HeaderSize]. buf
// must be at least HeaderSize bytes long.
func (h Header) Encode(buf []byte) {
	_ = buf[HeaderSize-1]
	buf[0] = h.Version
	buf[1] = uint8(h.Type)
	buf[2] = h.Src
	buf[3] = h.Dst
	binary.LittleEndian.PutUint16(buf[4:6], h.Sequence)
	binary.LittleEndian.PutUint16(buf[6:8], h.PayloadLen)
	binary.LittleEndian.PutUint64(buf[8:16], h.TxTimestampUs)
}

// DecodeHeader parses the fixed header out of buf. It does not
// validate payload_len against len(buf) — callers with the full
// datagram in hand should follow up with Validate.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrMalformedPacket
	}
	h := Header{
		Version:       buf[0],
		Type:          MessageType(buf[1]),
		Src:           buf[2],
		Dst:           buf[3],
		Sequence:      binary.LittleEndian.Uint16(buf[4:6]),
		PayloadLen:    binary.LittleEndian.Uint16(buf[6:8]),
		TxTimestampUs: binary.LittleEndian.Uint64(buf[8:16]),
	}
	if h.Version != ProtocolVersion {
		return Header{}, ErrMalformedPacket
	}
	return h, nil
}

// Validate checks h.PayloadLen against the number of payload bytes
// actually following the header in a datagram of totalLen bytes.
func (h Header) Validate(totalLen int) error {
	if totalLen != HeaderSize+int(h.PayloadLen) {
		return ErrMalformedPacket
	}
	return nil
}

// Packet is a fully decoded inbound or outbound datagram.
type Packet struct {
	Header  Header
	Payload []byte
}

// Encode serializes p into a single datagram buffer ready to send.
func (p Packet) Encode() ([]byte, error) {
	if len(p.Payload) > MaxPayloadSize {
		return nil, ErrMalformedPacket
	}
	buf := make([]byte, HeaderSize+len(p.Payload))
	h := p.Header
	h.PayloadLen = uint16(len(p.Payload))
	h.Encode(buf[:HeaderSize])
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// DecodePacket parses a full inbound datagram into a Packet.
func DecodePacket(buf []byte) (Packet, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Packet{}, err
	}
	if err := h.Validate(len(buf)); err != nil {
		return Packet{}, err
	}
	payload := make([]byte, h.PayloadLen)
	copy(payload, buf[HeaderSize:HeaderSize+int(h.PayloadLen)])
	return Packet{Header: h, Payload: payload}, nil
}
