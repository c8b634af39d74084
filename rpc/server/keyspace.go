package server

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// NewMemoryKeyspace creates an in-memory Keyspace backed by a concurrent
// map. It is the storage the standalone server ships with.
func NewMemoryKeyspace() Keyspace {
	return &memoryKeyspace{
		data: xsync.NewMapOf[string, []byte](),
	}
}

type memoryKeyspace struct {
	data *xsync.MapOf[string, []byte]
}

// --------------------------------------------------------------------------
// Interface Methods (docu see interface.go)
// --------------------------------------------------------------------------

func (k *memoryKeyspace) Set(key string, value []byte) error {
	// Store a private copy, the caller's buffer may be reused
	k.data.Store(key, append([]byte(nil), value...))
	return nil
}

func (k *memoryKeyspace) Get(key string) ([]byte, bool, error) {
	value, ok := k.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (k *memoryKeyspace) Delete(key string) error {
	k.data.Delete(key)
	return nil
}

func (k *memoryKeyspace) Has(key string) (bool, error) {
	_, ok := k.data.Load(key)
	return ok, nil
}
