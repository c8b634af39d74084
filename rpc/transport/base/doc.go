// Package base implements the transport-medium independent parts of the
// gridKV connection layer: the length-prefixed frame codec and the framed
// connection with its reader goroutine, send futures and read-timeout
// watchdog. Medium-specific packages (tcp) dial raw connections and wrap
// them with NewConn.
package base
