// File: fake/consensus.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"encoding/binary"

	"github.com/momentics/hioload-rpc/api"
)

// Counter is a deterministic consensus collaborator for tests: each
// message carries a little-endian uint64 delta, the transition applies it
// to a replicated counter and answers with the new value. It records the
// peer identity of every applied message.
type Counter struct {
	value uint64
	peers []api.NodeID
}

// Step is the api.StateTransition adapter.
func (c *Counter) Step(peer api.NodeID, msg []byte, resp api.Buffer) int {
	if len(msg) < 8 {
		return -1
	}
	c.value += binary.LittleEndian.Uint64(msg)
	c.peers = append(c.peers, peer)
	resp.Resize(8)
	binary.LittleEndian.PutUint64(resp.Bytes(), c.value)
	return 0
}

// Value returns the replicated counter.
func (c *Counter) Value() uint64 { return c.value }

// Peers returns the peer identity of each applied message, in order.
func (c *Counter) Peers() []api.NodeID { return append([]api.NodeID(nil), c.peers...) }

// EncodeDelta builds a counter message payload.
func EncodeDelta(delta uint64) []byte {
	msg := make([]byte, 8)
	binary.LittleEndian.PutUint64(msg, delta)
	return msg
}
