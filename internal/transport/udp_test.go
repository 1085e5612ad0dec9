package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/up202104595/tdmamesh/internal/logger"
)

// loopbackAddrs binds node k to 127.0.0.1:portBase+k so transport
// tests don't depend on the 10.0.0.0/24 mesh addressing actually
// existing on the test host.
func loopbackAddrs(portBase int) AddressBook {
	return NewAddressBook("127.0.0", portBase)
}

func TestUDPTransport_SendReceive_RoundTrips(t *testing.T) {
	portBase := 17000
	addrs := loopbackAddrs(portBase)

	node1, err := NewUDPTransport(1, addrs, &logger.NopLogger{})
	require.NoError(t, err)
	defer node1.Close()

	node2, err := NewUDPTransport(2, addrs, &logger.NopLogger{})
	require.NoError(t, err)
	defer node2.Close()

	require.NoError(t, node1.Send(2, MsgData, []byte("hello"), 42))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pkt, err := node2.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), pkt.Header.Src)
	assert.Equal(t, uint8(2), pkt.Header.Dst)
	assert.Equal(t, MsgData, pkt.Header.Type)
	assert.Equal(t, uint64(42), pkt.Header.TxTimestampUs)
	assert.Equal(t, []byte("hello"), pkt.Payload)

	stats := node1.Stats()
	assert.Equal(t, uint64(1), stats.PacketsSent)
}

func TestUDPTransport_Receive_RespectsContextCancellation(t *testing.T) {
	addrs := loopbackAddrs(17100)
	node, err := NewUDPTransport(1, addrs, &logger.NopLogger{})
	require.NoError(t, err)
	defer node.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = node.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUDPTransport_Broadcast_SkipsSelf(t *testing.T) {
	addrs := loopbackAddrs(17200)
	node2, err := NewUDPTransport(2, addrs, &logger.NopLogger{})
	require.NoError(t, err)
	defer node2.Close()

	// Only node 2 is actually listening; broadcasting to a numNodes
	// range still only reports sends that succeeded at the socket
	// layer (UDP sends to non-listening ports typically still appear
	// to succeed locally), but must never attempt to send to itself.
	sent := node2.Broadcast(MsgHeartbeat, []byte{0xFF}, 3, 1)
	assert.LessOrEqual(t, sent, 2)
}

func TestWaitUntilReady_SucceedsOnFirstGoodProbe(t *testing.T) {
	addrs := loopbackAddrs(17300)
	node1, err := NewUDPTransport(1, addrs, &logger.NopLogger{})
	require.NoError(t, err)
	defer node1.Close()

	node2, err := NewUDPTransport(2, addrs, &logger.NopLogger{})
	require.NoError(t, err)
	defer node2.Close()

	err = WaitUntilReady(node1, 2, 3, time.Millisecond, &logger.NopLogger{})
	assert.NoError(t, err)
}
