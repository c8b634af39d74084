package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Protocol Definition
// --------------------------------------------------------------------------

// Protocol identifies one wire-encoding variant a node may speak. Every
// protocol a node supports is backed by its own connection pool and its own
// server endpoint. Operations declare an ordered preference over protocols.
type Protocol uint8

const (
	// ProtocolUnknown is the zero value and never a valid pool key
	ProtocolUnknown Protocol = iota
	// ProtocolBinary uses the custom binary message encoding
	ProtocolBinary
	// ProtocolJSON uses the json message encoding
	ProtocolJSON
)

// String returns the string representation of a Protocol.
func (p Protocol) String() string {
	switch p {
	case ProtocolBinary:
		return "binary"
	case ProtocolJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseProtocol converts a string to a Protocol.
// It returns an error for unknown protocol names.
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "binary":
		return ProtocolBinary, nil
	case "json":
		return ProtocolJSON, nil
	default:
		return ProtocolUnknown, fmt.Errorf("unknown protocol: %s", s)
	}
}

// MarshalJSON implements the json.Marshaller interface for Protocol.
// This allows Protocol to be serialized as a string in JSON.
func (p Protocol) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Protocol.
func (p *Protocol) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseProtocol(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DefaultProtocolPreference is the protocol order used by clients that do not
// configure their own: binary first, json as fallback.
var DefaultProtocolPreference = []Protocol{ProtocolBinary, ProtocolJSON}
