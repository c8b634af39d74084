package server

import (
	"fmt"

	"github.com/gridkv/gridkv/rpc/common"
)

// NewKeyspaceAdapter creates the adapter translating KV wire messages into
// Keyspace calls.
func NewKeyspaceAdapter() Adapter {
	return &keyspaceAdapterImpl{}
}

type keyspaceAdapterImpl struct{}

func (adapter *keyspaceAdapterImpl) Handle(req *common.Message, ks Keyspace) *common.Message {
	// Check for nil keyspace
	if ks == nil {
		return common.NewErrorResponse("handler: keyspace is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTKVSet:
		err := ks.Set(req.Key, req.Value)
		return common.NewSetResponse(err)
	case common.MsgTKVGet:
		val, ok, err := ks.Get(req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTKVDelete:
		err := ks.Delete(req.Key)
		return common.NewDeleteResponse(err)
	case common.MsgTKVHas:
		ok, err := ks.Has(req.Key)
		return common.NewHasResponse(ok, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC KeyspaceAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
