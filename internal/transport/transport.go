package transport

import "context"

// Transport is the datagram send/receive boundary the rest of the
// daemon depends on, so the supervisor and its tests can swap a
// UDPTransport for an in-memory fake.
type Transport interface {
	// Send addresses, encodes, and sends one datagram to dst.
	// tx_timestamp_us is stamped by the caller so scheduler delay math
	// uses the same clock the slot scheduler does.
	Send(dst uint8, msgType MessageType, payload []byte, txTimestampUs uint64) error

	// Broadcast sends the same payload to every node in [1, numNodes]
	// other than this node, returning how many sends succeeded.
	Broadcast(msgType MessageType, payload []byte, numNodes int, txTimestampUs uint64) int

	// Receive blocks (respecting ctx) for the next inbound datagram
	// from this node's socket.
	Receive(ctx context.Context) (Packet, error)

	// Probe sends peer a header-only heartbeat (empty payload), used at startup to
	// determine whether the local interface is reachable.
	Probe(peer uint8) error

	// Stats returns a point-in-time snapshot of transport counters.
	Stats() Stats

	// Close releases the underlying socket.
	Close() error
}

// Stats mirrors the original udp_transport_t counters.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	Errors          uint64
}
