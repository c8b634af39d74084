// Package serializer provides message serialization capabilities for the
// gridKV RPC system. It defines a common interface and multiple implementations
// for serializing and deserializing messages between client and server components.
//
// The package focuses on:
//   - Providing a consistent interface for different serialization formats
//   - Mapping each wire protocol to exactly one message encoding (ForProtocol)
//   - Supporting efficient encoding of the system's message structure
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format implementation optimized for speed
//     and space efficiency. Uses a flag-based approach to encode only present fields,
//     resulting in compact serialized data with minimal overhead. Backs ProtocolBinary.
//
//   - jsonSerializerImpl: Implementation using JSON encoding, useful for debugging
//     or interoperability with other systems. Backs ProtocolJSON.
//
//   - gobSerializerImpl: Implementation using Go's built-in gob encoding, kept for
//     comparison and tooling; not bound to a wire protocol.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
package serializer
