package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Socket configuration
// --------------------------------------------------------------------------

// SocketConfig holds low-level tuning options applied to every TCP
// connection a node dials.
type SocketConfig struct {
	WriteBufferSize int  // socket write buffer in bytes, 0 leaves the OS default
	ReadBufferSize  int  // socket read buffer in bytes, 0 leaves the OS default
	TCPNoDelay      bool // disable Nagle's algorithm
	TCPKeepAliveSec int  // keep-alive interval in seconds, 0 disables
	TCPLingerSec    int  // linger time in seconds, negative leaves the OS default
}

// --------------------------------------------------------------------------
// Pool configuration
// --------------------------------------------------------------------------

// PoolConfig holds the per-protocol connection pool parameters. One pool
// exists per protocol a node supports; the endpoint is derived from the
// node's remote address plus the protocol's port.
type PoolConfig struct {
	// Port the server speaks this protocol on
	Port int
	// MinConnections are dialed at pool start and kept open
	MinConnections int
	// MaxConnections caps the pool size; Acquire beyond it is rejected
	MaxConnections int
	// ConnectTimeout bounds a single dial attempt
	ConnectTimeout time.Duration
	// IdleTimeout after which surplus idle connections are closed (0 = never)
	IdleTimeout time.Duration
	// HealthCheckInterval between probe dials while health checking
	HealthCheckInterval time.Duration
}

// Defaults for PoolConfig fields left at their zero value.
const (
	DefaultMinConnections      = 1
	DefaultMaxConnections      = 8
	DefaultConnectTimeout      = 5 * time.Second
	DefaultHealthCheckInterval = time.Second
)

// WithDefaults returns a copy of the config with zero fields replaced by
// the package defaults.
func (c PoolConfig) WithDefaults() PoolConfig {
	if c.MinConnections <= 0 {
		c.MinConnections = DefaultMinConnections
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.MaxConnections < c.MinConnections {
		c.MaxConnections = c.MinConnections
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	return c
}

// --------------------------------------------------------------------------
// Node configuration
// --------------------------------------------------------------------------

// NodeConfig is the immutable configuration value a node is built from.
// It is fully assembled before the node exists; nothing in it is shared
// or mutated afterwards.
type NodeConfig struct {
	// RemoteAddress is the host or IP of the server, without a port.
	// Ports are per protocol (see Pools).
	RemoteAddress string

	// ReadTimeout is how long to wait for a response after a request has
	// been written. Zero waits indefinitely.
	ReadTimeout time.Duration

	// Pools maps each supported protocol to its pool parameters
	Pools map[Protocol]PoolConfig

	// Socket tuning applied to every dialed connection
	Socket SocketConfig

	// Retry / timeout behaviour of the client facade
	TimeoutSecond int
	RetryCount    int

	// Logging configuration
	LogLevel string
}

// DefaultRemoteAddress is used when no remote address is configured.
const DefaultRemoteAddress = "127.0.0.1"

// --------------------------------------------------------------------------
// Server configuration
// --------------------------------------------------------------------------

// ServerConfig configures a gridKV server process. The server opens one
// listener per protocol; each speaks its own wire encoding on its own port.
type ServerConfig struct {
	// BindAddress is the local address to listen on, without a port
	BindAddress string

	// Listeners maps each served protocol to its port. Port 0 binds an
	// ephemeral port, useful for tests.
	Listeners map[Protocol]int

	// Socket tuning applied to every accepted connection
	Socket SocketConfig

	// TimeoutSecond bounds a single read or write on a connection; 0
	// disables the deadline
	TimeoutSecond int

	// Logging configuration
	LogLevel string
}

// Protocols returns the protocols this server config serves in stable order.
func (c *ServerConfig) Protocols() []Protocol {
	protos := make([]Protocol, 0, len(c.Listeners))
	for p := range c.Listeners {
		protos = append(protos, p)
	}
	sort.Slice(protos, func(i, j int) bool { return protos[i] < protos[j] })
	return protos
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Server")
	addField("Bind Address", c.BindAddress)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Listeners")
	for _, p := range c.Protocols() {
		addField(p.String(), fmt.Sprintf("port %d", c.Listeners[p]))
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// Protocols returns the protocols this config supports in stable order.
func (c *NodeConfig) Protocols() []Protocol {
	protos := make([]Protocol, 0, len(c.Pools))
	for p := range c.Pools {
		protos = append(protos, p)
	}
	sort.Slice(protos, func(i, j int) bool { return protos[i] < protos[j] })
	return protos
}

// String returns a formatted string representation of the configuration
func (c *NodeConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Node")
	addField("Remote Address", c.RemoteAddress)
	addField("Read Timeout", c.ReadTimeout.String())
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))

	addSection("Protocols")
	for _, p := range c.Protocols() {
		pc := c.Pools[p].WithDefaults()
		addField(p.String(), fmt.Sprintf("port %d, conns %d-%d",
			pc.Port, pc.MinConnections, pc.MaxConnections))
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
