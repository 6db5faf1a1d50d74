// Package transport implements the datagram channel for the framecast
// sender: a connected UDP socket that sends fragments to the receiver and
// dispatches inbound datagrams (acknowledgments) to a registered handler.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// readDeadline bounds each blocking read so the receive loop can observe
// shutdown promptly.
const readDeadline = 100 * time.Millisecond

// maxDatagramSize is larger than any valid fragment or ack so oversized
// datagrams surface to the handler for rejection instead of being silently
// truncated.
const maxDatagramSize = 2048

// DatagramHandler processes one inbound datagram. Handlers run on the
// transport's receive goroutine and must not block.
type DatagramHandler func(data []byte)

// UDPTransport is a connected UDP socket with a background receive loop.
//
// Outbound traffic goes to the peer given at dial time; inbound datagrams
// from any source on the local port are passed to the handler, which is
// responsible for session filtering.
type UDPTransport struct {
	conn net.Conn

	mu      sync.RWMutex
	handler DatagramHandler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial creates a transport connected to the receiver's endpoint and starts
// the receive loop.
//
// Parameters:
//   - host: Receiver host name or address
//   - port: Receiver UDP port
//
// Returns:
//   - *UDPTransport: The connected transport
//   - error: Any error from resolution or socket setup
func Dial(host, port string) (*UDPTransport, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s:%s: %w", host, port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &UDPTransport{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go t.receiveLoop()

	logrus.WithFields(logrus.Fields{
		"function":    "Dial",
		"local_addr":  conn.LocalAddr().String(),
		"remote_addr": conn.RemoteAddr().String(),
	}).Info("UDP transport connected")

	return t, nil
}

// SetHandler registers the inbound datagram handler. Datagrams arriving
// before a handler is set are dropped.
func (t *UDPTransport) SetHandler(handler DatagramHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Send transmits one datagram to the connected peer.
func (t *UDPTransport) Send(data []byte) error {
	if _, err := t.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send datagram: %w", err)
	}
	return nil
}

// Close stops the receive loop and closes the socket. Safe to call more
// than once.
func (t *UDPTransport) Close() error {
	t.cancel()
	err := t.conn.Close()
	<-t.done
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// receiveLoop reads datagrams until shutdown, dispatching each to the
// registered handler.
func (t *UDPTransport) receiveLoop() {
	defer close(t.done)

	buffer := make([]byte, maxDatagramSize)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		// Bounded read so ctx cancellation is observed even on a quiet link.
		_ = t.conn.SetReadDeadline(time.Now().Add(readDeadline))

		n, err := t.conn.Read(buffer)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if t.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "receiveLoop",
				"error":    err,
			}).Debug("Transient read error on UDP socket")
			continue
		}

		t.dispatch(buffer[:n])
	}
}

// dispatch hands one datagram to the handler, copying it out of the read
// buffer first.
func (t *UDPTransport) dispatch(data []byte) {
	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()

	if handler == nil {
		return
	}

	msg := make([]byte, len(data))
	copy(msg, data)
	handler(msg)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
