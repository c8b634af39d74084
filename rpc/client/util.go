package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gridkv/gridkv/rpc/common"
	"github.com/gridkv/gridkv/rpc/node"
	"github.com/gridkv/gridkv/rpc/serializer"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// retryDelay is the pause between admission retries when the node reports
// that no connection was available.
const retryDelay = 25 * time.Millisecond

// defaultTimeout applies when the configuration leaves TimeoutSecond at zero.
const defaultTimeout = 5 * time.Second

// rpcClientAdapter holds everything an RPC client needs to dispatch requests
// onto a node. Concrete clients embed it (composition pattern).
type rpcClientAdapter struct {
	node  *node.Node
	prefs []common.Protocol

	timeout    time.Duration
	retryCount int
}

func newAdapter(n *node.Node, cfg common.NodeConfig) rpcClientAdapter {
	timeout := time.Duration(cfg.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	prefs := cfg.Protocols()
	if len(prefs) == 0 {
		prefs = common.DefaultProtocolPreference
	}
	return rpcClientAdapter{
		node:       n,
		prefs:      prefs,
		timeout:    timeout,
		retryCount: cfg.RetryCount,
	}
}

// invokeRPCRequest sends one request message and waits for its response.
// The payload is encoded lazily with the serializer of whichever protocol
// the node picks; an exhausted node is retried a bounded number of times
// before the rejection is surfaced. The helper also unwraps server-side
// error responses and verifies the response type matches the request.
func (c *rpcClientAdapter) invokeRPCRequest(req *common.Message) (*common.Message, error) {
	var chosen common.Protocol
	op := node.NewOperation(c.prefs, func(p common.Protocol) ([]byte, error) {
		chosen = p
		return serializer.ForProtocol(p).Serialize(*req)
	})

	for attempt := 0; ; attempt++ {
		accepted, err := c.node.Execute(op)
		if err != nil {
			return nil, err
		}
		if accepted {
			break
		}
		if attempt >= c.retryCount {
			return nil, fmt.Errorf("node %s rejected the request after %d attempts",
				c.node.RemoteAddress(), attempt+1)
		}
		Logger.Debugf("Node %s exhausted, retrying (%d/%d)",
			c.node.RemoteAddress(), attempt+1, c.retryCount)
		time.Sleep(retryDelay)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	respBytes, err := op.Await(ctx)
	if err != nil {
		return nil, err
	}

	resp := &common.Message{}
	if err := serializer.ForProtocol(chosen).Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("RPC StoreAdapter - Error: %s", err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, fmt.Errorf("RPC StoreAdapter - Error: %s", resp.Err)
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC StoreAdapter - Unexpected message type: %s, expected %s",
			resp.MsgType, req.MsgType)
	}

	return resp, nil
}
