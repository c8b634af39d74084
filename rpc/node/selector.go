package node

import "github.com/gridkv/gridkv/rpc/common"

// chooseProtocol scans the operation's ordered preference list and returns
// the first protocol this node owns a pool for. The second return value is
// false when there is no intersection. Pure function over the supported set;
// first match wins, not first preference overall.
func chooseProtocol(prefs []common.Protocol, supported map[common.Protocol]bool) (common.Protocol, bool) {
	for _, p := range prefs {
		if supported[p] {
			return p, true
		}
	}
	return common.ProtocolUnknown, false
}
