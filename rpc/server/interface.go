package server

import (
	"github.com/gridkv/gridkv/rpc/common"
)

// Adapter translates between wire messages and keyspace operations.
// It is responsible for handling requests and building responses.
type Adapter interface {
	// Handle handles a request and returns a response.
	// If an error occurs, it is set in the response message.
	Handle(req *common.Message, ks Keyspace) (resp *common.Message)
}

// Keyspace is the server-side storage a request operates on.
type Keyspace interface {
	// Set stores the value under key, overwriting any previous value
	Set(key string, value []byte) error

	// Get returns the value stored under key; loaded reports whether the
	// key existed
	Get(key string) (value []byte, loaded bool, err error)

	// Delete removes the key; deleting a missing key is not an error
	Delete(key string) error

	// Has reports whether the key exists
	Has(key string) (loaded bool, err error)
}
