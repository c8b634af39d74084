package server

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gridkv/gridkv/rpc/common"
	"github.com/gridkv/gridkv/rpc/serializer"
	"github.com/gridkv/gridkv/rpc/transport/base"
	"github.com/gridkv/gridkv/rpc/transport/tcp"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("server")

// Server serves the gridKV keyspace over framed TCP. It opens one listener
// per configured protocol; each listener decodes requests with that
// protocol's serializer, so a server can speak binary and JSON side by side
// on different ports.
type Server struct {
	config   common.ServerConfig
	keyspace Keyspace
	adapter  Adapter

	mu        sync.Mutex
	listeners map[common.Protocol]net.Listener
	conns     map[net.Conn]struct{}
	started   bool
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewServer creates an RPC server for the given keyspace.
//
// Usage:
//
//	s := server.NewServer(config, server.NewMemoryKeyspace())
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewServer(config common.ServerConfig, ks Keyspace) *Server {
	if config.BindAddress == "" {
		config.BindAddress = "0.0.0.0"
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &Server{
		config:    config,
		keyspace:  ks,
		adapter:   NewKeyspaceAdapter(),
		listeners: make(map[common.Protocol]net.Listener),
		conns:     make(map[net.Conn]struct{}),
		done:      make(chan struct{}),
	}
}

// Start binds all listeners and begins accepting connections. It returns
// once every listener is up; Serve is the blocking variant.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("server already started")
	}
	if len(s.config.Listeners) == 0 {
		return fmt.Errorf("server config declares no listeners")
	}

	for _, p := range s.config.Protocols() {
		endpoint := fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Listeners[p])
		listener, err := net.Listen("tcp", endpoint)
		if err != nil {
			for _, l := range s.listeners {
				l.Close()
			}
			return fmt.Errorf("failed to listen on %s for %s: %v", endpoint, p, err)
		}
		s.listeners[p] = listener
		Logger.Infof("Listening on %s (%s)", listener.Addr(), p)

		s.wg.Add(1)
		go s.acceptLoop(p, listener)
	}

	s.started = true
	return nil
}

// Serve starts the server and blocks until Stop is called.
func (s *Server) Serve() error {
	if err := s.Start(); err != nil {
		return err
	}
	<-s.done
	return nil
}

// Stop closes all listeners and active connections and waits for the accept
// loops to drain. Calling Stop more than once is a no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, l := range s.listeners {
		l.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	Logger.Infof("Server stopped")
}

// Addr returns the actual listen address for a protocol. Useful with port 0
// configurations where the kernel picks the port.
func (s *Server) Addr(p common.Protocol) (net.Addr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listeners[p]
	if !ok {
		return nil, false
	}
	return l.Addr(), true
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// acceptLoop accepts connections for one protocol listener.
func (s *Server) acceptLoop(p common.Protocol, listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			Logger.Errorf("Accept error on %s: %v", listener.Addr(), err)
			continue
		}

		if err := tcp.UpgradeConnection(conn, s.config.Socket); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		go s.handleConnection(p, conn)
	}
}

// handleConnection processes request frames for one connection until the
// client disconnects. Requests on a single connection are handled in order;
// the client dispatch layer holds a connection exclusively per request, so
// there is nothing to parallelize here.
func (s *Server) handleConnection(p common.Protocol, conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	ser := serializer.ForProtocol(p)
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	var buf []byte
	for {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set read deadline: %v", err)
				return
			}
		}

		frame, err := base.ReadFrame(conn, buf)
		if len(frame) > len(buf) {
			buf = frame[:cap(frame)]
		}

		// Case EOF: Connection closed by client
		if err == io.EOF {
			Logger.Debugf("Connection closed by client %s", conn.RemoteAddr())
			return
		}
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				Logger.Errorf("Error reading request from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		start := time.Now()
		resp := s.handleFrame(ser, frame)
		Logger.Debugf("Processed %s request from %s in %s", p, conn.RemoteAddr(), time.Since(start))

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}
		if err := base.WriteFrame(conn, resp); err != nil {
			Logger.Errorf("Failed to write response to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// handleFrame decodes one request, lets the adapter handle it and encodes
// the response. Decode and handler errors are returned to the client as
// error responses rather than dropping the connection.
func (s *Server) handleFrame(ser serializer.IRPCSerializer, frame []byte) []byte {
	var req common.Message
	var resp common.Message

	if err := ser.Deserialize(frame, &req); err != nil {
		resp = *common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		resp = *s.adapter.Handle(&req, s.keyspace)
	}

	out, err := ser.Serialize(resp)
	if err != nil {
		// Fall back to an error response; if even that fails the client
		// sees an empty frame and reports a decode error itself
		out, _ = ser.Serialize(*common.NewErrorResponse(
			fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return out
}
