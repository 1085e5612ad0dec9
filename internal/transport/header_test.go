package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_EncodeDecode_RoundTrips(t *testing.T) {
	h := Header{
		Version:       ProtocolVersion,
		Type:          MsgTopologyUpdate,
		Src:           3,
		Dst:           7,
		Sequence:      65535,
		TxTimestampUs: 1234567890123,
	}
	payload := []byte("topology-snapshot")
	pkt := Packet{Header: h, Payload: payload}

	buf, err := pkt.Encode()
	require.NoError(t, err)
	assert.Len(t, buf, HeaderSize+len(payload))

	got, err := DecodePacket(buf)
	require.NoError(t, err)
	assert.Equal(t, h.Version, got.Header.Version)
	assert.Equal(t, h.Type, got.Header.Type)
	assert.Equal(t, h.Src, got.Header.Src)
	assert.Equal(t, h.Dst, got.Header.Dst)
	assert.Equal(t, h.Sequence, got.Header.Sequence)
	assert.Equal(t, h.TxTimestampUs, got.Header.TxTimestampUs)
	assert.Equal(t, uint16(len(payload)), got.Header.PayloadLen)
	assert.Equal(t, payload, got.Payload)
}

func TestHeader_EncodeDecode_EmptyPayload(t *testing.T) {
	pkt := Packet{Header: Header{Version: ProtocolVersion, Type: MsgHeartbeat, Src: 1, Dst: 2}}
	buf, err := pkt.Encode()
	require.NoError(t, err)
	assert.Len(t, buf, HeaderSize)

	got, err := DecodePacket(buf)
	require.NoError(t, err)
	assert.Empty(t, got.Payload)
}

func TestDecodeHeader_RejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecodeHeader_RejectsBadVersion(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 2
	_, err := DecodeHeader(buf)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecodePacket_RejectsTruncatedPayload(t *testing.T) {
	h := Header{Version: ProtocolVersion, Type: MsgData, Src: 1, Dst: 2, PayloadLen: 10}
	buf := make([]byte, HeaderSize+3)
	h.Encode(buf[:HeaderSize])
	_, err := DecodePacket(buf)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestPacket_Encode_RejectsOversizePayload(t *testing.T) {
	pkt := Packet{Payload: make([]byte, MaxPayloadSize+1)}
	_, err := pkt.Encode()
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "HEARTBEAT", MsgHeartbeat.String())
	assert.Equal(t, "ROUTING_RESPONSE", MsgRoutingResponse.String())
	assert.Equal(t, "UNKNOWN", MessageType(99).String())
}
