package client

// Store is the client-side view of a gridKV keyspace. All methods forward to
// a remote node over RPC; implementations are safe for concurrent use.
type Store interface {
	// Set stores the value under key, overwriting any previous value.
	Set(key string, value []byte) error

	// Get returns the value stored under key; loaded reports whether the
	// key existed.
	Get(key string) (value []byte, loaded bool, err error)

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(key string) error

	// Has reports whether the key exists without transferring its value.
	Has(key string) (loaded bool, err error)

	// Close shuts the underlying node down. The store is unusable
	// afterwards.
	Close() error
}
