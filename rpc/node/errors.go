package node

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedProtocol is returned by Execute when an operation's protocol
// preference list has no intersection with the protocols this node supports.
// This is a caller configuration error; trying other nodes does not help.
var ErrUnsupportedProtocol = errors.New("node does not support any requested protocol")

// StateError reports a call made while the node was not in a state that
// permits it. It is fatal to that call, not to the node.
type StateError struct {
	Required []State
	Current  State
}

// Error implements the error interface.
func (e *StateError) Error() string {
	required := make([]string, len(e.Required))
	for i, s := range e.Required {
		required[i] = s.String()
	}
	return fmt.Sprintf("required: [%s] current: %s", strings.Join(required, " "), e.Current)
}

// IsStateError reports whether err is a node state error.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
