// Package common contains the core data structures and utilities shared by
// the gridKV client packages: the Message protocol, the Protocol tags, the
// node and pool configuration values, the scheduler and logging setup.
//
// The package focuses on:
//   - Defining the wire-independent Message structure used for requests and responses
//   - Declaring the protocols a node can speak and the client's preference order
//   - Providing immutable configuration values (NodeConfig, PoolConfig, SocketConfig)
//     that are fully assembled before a node is created
//   - Supplying the shared Scheduler used for pool maintenance tasks
package common
