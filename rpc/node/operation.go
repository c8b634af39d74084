package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gridkv/gridkv/rpc/common"
)

// --------------------------------------------------------------------------
// Operation contract
// --------------------------------------------------------------------------

// Operation is a unit of client work dispatched on a node. It is created by
// the caller and resolved exactly once by the dispatcher, with either a
// response or an error. Resolving an operation twice is a programming error.
type Operation interface {
	// ProtocolPreference returns the ordered list of protocols the caller
	// is willing to use, most preferred first
	ProtocolPreference() []common.Protocol
	// Payload encodes the request for the protocol the dispatcher selected
	Payload(p common.Protocol) ([]byte, error)
	// SetLastNode records the node the operation was last dispatched on
	SetLastNode(n *Node)
	// SetResponse resolves the operation with a raw response. At most one
	// of SetResponse and SetException may be called, at most once.
	SetResponse(response []byte)
	// SetException resolves the operation with an error
	SetException(err error)
}

// --------------------------------------------------------------------------
// FutureOperation
// --------------------------------------------------------------------------

// EncodeFunc produces the wire payload of an operation for one protocol.
type EncodeFunc func(p common.Protocol) ([]byte, error)

// FutureOperation is the standard Operation implementation: callers build
// one, hand it to Execute and Await the outcome.
type FutureOperation struct {
	prefs  []common.Protocol
	encode EncodeFunc

	resolved atomic.Bool
	done     chan struct{}
	response []byte
	err      error

	mu       sync.Mutex
	lastNode *Node
}

// NewOperation creates an operation with the given protocol preference and
// payload encoder. The preference list is copied.
func NewOperation(prefs []common.Protocol, encode EncodeFunc) *FutureOperation {
	return &FutureOperation{
		prefs:  append([]common.Protocol(nil), prefs...),
		encode: encode,
		done:   make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see node.Operation)
// --------------------------------------------------------------------------

func (f *FutureOperation) ProtocolPreference() []common.Protocol {
	return f.prefs
}

func (f *FutureOperation) Payload(p common.Protocol) ([]byte, error) {
	return f.encode(p)
}

func (f *FutureOperation) SetLastNode(n *Node) {
	f.mu.Lock()
	f.lastNode = n
	f.mu.Unlock()
}

func (f *FutureOperation) SetResponse(response []byte) {
	f.resolve(response, nil)
}

func (f *FutureOperation) SetException(err error) {
	f.resolve(nil, err)
}

// --------------------------------------------------------------------------
// Caller side
// --------------------------------------------------------------------------

// Await blocks until the operation resolves or ctx is done. It returns the
// raw response or the error the operation was resolved with.
func (f *FutureOperation) Await(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.response, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolved reports whether the operation already has an outcome.
func (f *FutureOperation) Resolved() bool {
	return f.resolved.Load()
}

// LastNode returns the node this operation was last dispatched on, for
// diagnostics and retry decisions by a higher layer.
func (f *FutureOperation) LastNode() *Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastNode
}

// resolve stores the single outcome. A second resolution panics: the
// dispatcher guarantees exactly one completion per operation, so a second
// one means corrupted bookkeeping, not a runtime condition to tolerate.
func (f *FutureOperation) resolve(response []byte, err error) {
	if !f.resolved.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("operation resolved twice (second outcome: response=%v err=%v)",
			response != nil, err))
	}
	f.response = response
	f.err = err
	close(f.done)
}
