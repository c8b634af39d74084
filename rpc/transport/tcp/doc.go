// Package tcp provides the TCP implementation of the transport.Factory
// contract. It dials raw TCP connections, applies the configured socket
// tuning (NoDelay, buffer sizes, keep-alive, linger) and wraps them in the
// framed connection from the base package.
package tcp
