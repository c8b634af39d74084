package tcp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gridkv/gridkv/rpc/common"
	"github.com/gridkv/gridkv/rpc/transport"
	"github.com/gridkv/gridkv/rpc/transport/base"
)

// factory implements the transport.Factory interface for TCP sockets
type factory struct {
	socket common.SocketConfig

	mu     sync.Mutex
	closed bool
}

// NewFactory creates a TCP transport factory applying the given socket
// tuning to every dialed connection.
func NewFactory(socket common.SocketConfig) transport.Factory {
	return &factory{socket: socket}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.Factory)
// --------------------------------------------------------------------------

func (f *factory) Dial(endpoint string, timeout time.Duration) (transport.Conn, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, transport.ErrFactoryShutdown
	}

	nc, err := net.DialTimeout("tcp", endpoint, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", endpoint, err)
	}

	if err := UpgradeConnection(nc, f.socket); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %v", endpoint, err)
	}

	return base.NewConn(nc, endpoint), nil
}

func (f *factory) Shutdown() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// UpgradeConnection applies performance optimizations to a TCP connection
// using the configured socket options. It is shared between the dial side
// and the server's accept loop.
func UpgradeConnection(conn net.Conn, socket common.SocketConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := tcpConn.SetNoDelay(socket.TCPNoDelay); err != nil {
		return err
	}

	// Set socket write buffer size if configured
	if socket.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(socket.WriteBufferSize); err != nil {
			return err
		}
	}

	// Set socket read buffer size if configured
	if socket.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(socket.ReadBufferSize); err != nil {
			return err
		}
	}

	// Enable TCP keep-alive if configured
	if socket.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}

		keepAlivePeriod := time.Duration(socket.TCPKeepAliveSec) * time.Second
		if err := tcpConn.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
			return err
		}
	}

	// Set TCP linger option if configured
	if socket.TCPLingerSec >= 0 {
		if err := tcpConn.SetLinger(socket.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}
