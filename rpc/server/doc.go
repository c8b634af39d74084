// Package server implements the gridKV RPC server. It serves a Keyspace
// over framed TCP, with one listener per protocol so that binary and JSON
// clients can talk to the same keyspace on different ports.
//
// Key Components:
//
//   - Server: accepts connections, decodes request frames with the
//     listener's protocol serializer and writes the encoded responses back.
//
//   - Keyspace: the storage interface requests operate on. The package
//     ships NewMemoryKeyspace, a concurrent in-memory implementation.
//
//   - Adapter: translates wire messages into Keyspace calls and wraps
//     results and errors into response messages.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  BindAddress: "0.0.0.0",
//	  Listeners: map[common.Protocol]int{
//	    common.ProtocolBinary: 5000,
//	    common.ProtocolJSON:   5001,
//	  },
//	  TimeoutSecond: 30,
//	}
//
//	s := server.NewServer(config, server.NewMemoryKeyspace())
//	if err := s.Serve(); err != nil {
//	  panic(err)
//	}
//
// Thread Safety:
//
//	The server handles every connection on its own goroutine; the bundled
//	in-memory keyspace is safe for concurrent use.
package server
