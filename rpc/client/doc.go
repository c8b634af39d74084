// Package client implements the RPC client for the gridKV key-value store.
// It provides a Store implementation that forwards all operations to a
// remote server through the node dispatch layer.
//
// The package focuses on:
//   - Transparent RPC access to a remote keyspace
//   - Integration with the node, serializer and transport layers
//   - Error handling and conversion between RPC and domain errors
//
// Key Components:
//
//   - NewStore: Factory function that creates a client implementing the
//     Store interface. It builds and starts a node for the configured remote
//     address; every operation is encoded with the serializer of whichever
//     protocol the node selects.
//
//   - NewStoreWithNode: Variant for callers that manage the node themselves,
//     for example to share one node between several clients.
//
// Usage Example:
//
//	// Configure the client
//	config := common.NodeConfig{
//	  RemoteAddress: "localhost",
//	  Pools: map[common.Protocol]common.PoolConfig{
//	    common.ProtocolBinary: {Port: 5000, MaxConnections: 4},
//	  },
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	}
//
//	// Create the store client
//	store, _ := client.NewStore(config)
//	defer store.Close()
//
//	// Use the store
//	store.Set("mykey", []byte("myvalue"))
//	value, exists, _ := store.Get("mykey")
//
// Performance Considerations:
//
//   - For applications that issue many concurrent requests, increasing
//     MaxConnections of the pool allows more parallelism per node.
//
//   - The choice of protocol significantly affects performance. The binary
//     protocol provides the best throughput and smallest payload size; JSON
//     is easier to inspect on the wire.
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently
//	from multiple goroutines without additional synchronization.
package client
