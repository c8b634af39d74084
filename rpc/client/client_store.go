package client

import (
	"github.com/gridkv/gridkv/rpc/common"
	"github.com/gridkv/gridkv/rpc/node"
)

// NewStore creates a Store client for a single remote node. It builds and
// starts the node from the configuration; Close shuts it down again.
func NewStore(config common.NodeConfig, opts ...node.Option) (Store, error) {
	n, err := node.New(config, opts...)
	if err != nil {
		return nil, err
	}
	if err := n.Start(); err != nil {
		return nil, err
	}
	return &rpcStore{newAdapter(n, config)}, nil
}

// NewStoreWithNode wraps an already started node. Close still shuts the node
// down, so the caller hands over ownership.
func NewStoreWithNode(n *node.Node, config common.NodeConfig) Store {
	return &rpcStore{newAdapter(n, config)}
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see interface.go)
// --------------------------------------------------------------------------

func (s *rpcStore) Set(key string, value []byte) (err error) {
	req := common.NewSetRequest(key, value)
	_, err = s.invokeRPCRequest(req)
	return err
}

func (s *rpcStore) Get(key string) (value []byte, loaded bool, err error) {
	req := common.NewGetRequest(key)
	resp, err := s.invokeRPCRequest(req)
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (s *rpcStore) Delete(key string) (err error) {
	req := common.NewDeleteRequest(key)
	_, err = s.invokeRPCRequest(req)
	return err
}

func (s *rpcStore) Has(key string) (loaded bool, err error) {
	req := common.NewHasRequest(key)
	resp, err := s.invokeRPCRequest(req)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (s *rpcStore) Close() error {
	return s.node.Shutdown()
}
