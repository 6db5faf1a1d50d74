package transport

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPeer opens a loopback UDP socket standing in for the receiver.
func newPeer(t *testing.T) (net.PacketConn, string, string) {
	t.Helper()

	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	addr := peer.LocalAddr().(*net.UDPAddr)
	return peer, "127.0.0.1", strconv.Itoa(addr.Port)
}

func TestDialInvalidHost(t *testing.T) {
	_, err := Dial("invalid..host..name", "9999")
	assert.Error(t, err)
}

func TestSendReachesPeer(t *testing.T) {
	peer, host, port := newPeer(t)

	tr, err := Dial(host, port)
	require.NoError(t, err)
	defer tr.Close()

	payload := []byte("fragment bytes")
	require.NoError(t, tr.Send(payload))

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	buffer := make([]byte, 2048)
	n, _, err := peer.ReadFrom(buffer)
	require.NoError(t, err)
	assert.Equal(t, payload, buffer[:n])
}

func TestInboundDatagramReachesHandler(t *testing.T) {
	peer, host, port := newPeer(t)

	tr, err := Dial(host, port)
	require.NoError(t, err)
	defer tr.Close()

	received := make(chan []byte, 1)
	tr.SetHandler(func(data []byte) { received <- data })

	// The peer learns our address from an outbound datagram, then replies.
	require.NoError(t, tr.Send([]byte("hello")))

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	buffer := make([]byte, 2048)
	_, sender, err := peer.ReadFrom(buffer)
	require.NoError(t, err)

	reply := []byte{0, 7, 0, 0, 0, 1, 0, 2, 0, 0, 1, 44}
	_, err = peer.WriteTo(reply, sender)
	require.NoError(t, err)

	select {
	case data := <-received:
		assert.Equal(t, reply, data)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never saw the inbound datagram")
	}
}

func TestDatagramsDroppedWithoutHandler(t *testing.T) {
	peer, host, port := newPeer(t)

	tr, err := Dial(host, port)
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.Send([]byte("hello")))

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	buffer := make([]byte, 2048)
	_, sender, err := peer.ReadFrom(buffer)
	require.NoError(t, err)

	// No handler registered; the datagram is dropped without incident.
	_, err = peer.WriteTo([]byte("stray"), sender)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
}

func TestCloseStopsReceiveLoop(t *testing.T) {
	_, host, port := newPeer(t)

	tr, err := Dial(host, port)
	require.NoError(t, err)

	assert.NoError(t, tr.Close())

	// Sending on a closed socket must fail rather than hang.
	assert.Error(t, tr.Send([]byte("late")))
}
