// File: api/consensus.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// NodeID is the application-level identity of a cluster member, distinct
// from the transport's SessionID.
type NodeID int

// StateTransition is the consensus collaborator: a pure function applying
// one vote/append message from a peer and writing the response message
// into resp. The returned status is zero on success; any non-zero status
// is fatal to this node's consensus participation.
type StateTransition func(peer NodeID, msg []byte, resp Buffer) int
