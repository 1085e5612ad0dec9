package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/up202104595/tdmamesh/internal/logger"
)

// readDeadlineSlice bounds how long a single Receive blocks on the
// socket before re-checking ctx, so cancellation is observed promptly
// without needing a second goroutine per call.
const readDeadlineSlice = 200 * time.Millisecond

// UDPTransport is the node's send/receive boundary: one UDP socket
// bound to 5000+nodeID, addressing peers through an AddressBook.
type UDPTransport struct {
	myNodeID uint8
	addrs    AddressBook
	conn     *net.UDPConn
	lgr      logger.Logger

	sequence uint32 // atomic, wraps via uint16 cast

	packetsSent     uint64
	packetsReceived uint64
	bytesSent       uint64
	bytesReceived   uint64
	errors          uint64
}

// NewUDPTransport opens and binds the socket for myNodeID.
func NewUDPTransport(myNodeID uint8, addrs AddressBook, lgr logger.Logger) (*UDPTransport, error) {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	port := addrs.Port(myNodeID)
	laddr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on :%d: %w", port, err)
	}
	lgr.Info("udp transport listening",
		logger.F("nodeId", myNodeID),
		logger.F("port", port),
		logger.F("advertisedIp", addrs.IP(myNodeID)),
	)
	return &UDPTransport{
		myNodeID: myNodeID,
		addrs:    addrs,
		conn:     conn,
		lgr:      lgr,
	}, nil
}

// Send implements Transport.
func (t *UDPTransport) Send(dst uint8, msgType MessageType, payload []byte, txTimestampUs uint64) error {
	raddr, err := t.addrs.UDPAddr(dst)
	if err != nil {
		atomic.AddUint64(&t.errors, 1)
		return fmt.Errorf("transport: resolve node %d: %w", dst, err)
	}

	seq := uint16(atomic.AddUint32(&t.sequence, 1))
	pkt := Packet{
		Header: Header{
			Version:       ProtocolVersion,
			Type:          msgType,
			Src:           t.myNodeID,
			Dst:           dst,
			Sequence:      seq,
			TxTimestampUs: txTimestampUs,
		},
		Payload: payload,
	}
	buf, err := pkt.Encode()
	if err != nil {
		atomic.AddUint64(&t.errors, 1)
		return err
	}

	n, err := t.conn.WriteToUDP(buf, raddr)
	if err != nil {
		atomic.AddUint64(&t.errors, 1)
		t.lgr.Warn("send failed", logger.F("dst", dst), logger.F("err", err))
		return err
	}
	atomic.AddUint64(&t.packetsSent, 1)
	atomic.AddUint64(&t.bytesSent, uint64(n))
	return nil
}

// Broadcast implements Transport.
func (t *UDPTransport) Broadcast(msgType MessageType, payload []byte, numNodes int, txTimestampUs uint64) int {
	sent := 0
	for i := 1; i <= numNodes; i++ {
		dst := uint8(i)
		if dst == t.myNodeID {
			continue
		}
		if err := t.Send(dst, msgType, payload, txTimestampUs); err == nil {
			sent++
		}
	}
	return sent
}

// Receive implements Transport. It polls the socket in short read
// deadlines so a cancelled ctx is noticed without a dedicated
// goroutine per caller.
func (t *UDPTransport) Receive(ctx context.Context) (Packet, error) {
	buf := make([]byte, MaxPacketSize)
	for {
		select {
		case <-ctx.Done():
			return Packet{}, ctx.Err()
		default:
		}

		if err := t.conn.SetReadDeadline(time.Now().Add(readDeadlineSlice)); err != nil {
			return Packet{}, err
		}
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			atomic.AddUint64(&t.errors, 1)
			return Packet{}, err
		}

		pkt, err := DecodePacket(buf[:n])
		if err != nil {
			atomic.AddUint64(&t.errors, 1)
			t.lgr.Debug("dropped malformed packet", logger.F("bytes", n))
			continue
		}
		atomic.AddUint64(&t.packetsReceived, 1)
		atomic.AddUint64(&t.bytesReceived, uint64(n))
		return pkt, nil
	}
}

// Probe attempts a zero-payload heartbeat send to peer, used by the
// supervisor's network-readiness check at startup.
func (t *UDPTransport) Probe(peer uint8) error {
	return t.Send(peer, MsgHeartbeat, nil, 0)
}

// Stats implements Transport.
func (t *UDPTransport) Stats() Stats {
	return Stats{
		PacketsSent:     atomic.LoadUint64(&t.packetsSent),
		PacketsReceived: atomic.LoadUint64(&t.packetsReceived),
		BytesSent:       atomic.LoadUint64(&t.bytesSent),
		BytesReceived:   atomic.LoadUint64(&t.bytesReceived),
		Errors:          atomic.LoadUint64(&t.errors),
	}
}

// Close implements Transport.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

var _ Transport = (*UDPTransport)(nil)
