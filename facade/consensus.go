// File: facade/consensus.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Consensus collaborator adapter. Peer messages carry the sender identity
// in a fixed 8-byte little-endian header ahead of the opaque message body;
// the handler unpacks it and applies the registered state transition.

package facade

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/hioload-rpc/api"
)

// peerHeaderSize is the framed sender-identity prefix.
const peerHeaderSize = 8

// EncodePeerMessage frames a consensus message with the sender identity
// and writes it into dst.
func EncodePeerMessage(self api.NodeID, msg []byte, dst api.Buffer) {
	dst.Resize(peerHeaderSize + len(msg))
	b := dst.Bytes()
	binary.LittleEndian.PutUint64(b, uint64(self))
	copy(b[peerHeaderSize:], msg)
}

// ConsensusHandler adapts a state transition to an inbound request
// handler. The transition writes its answer into the preallocated response
// buffer; a non-zero transition status is fatal to this node's consensus
// participation and fails fast.
func ConsensusHandler(step api.StateTransition) api.ReqHandler {
	return func(_ api.CtxID, h api.RequestHandle) {
		payload := h.Req().Bytes()
		if len(payload) < peerHeaderSize {
			panic(fmt.Sprintf("facade: peer message of %d bytes, shorter than its header", len(payload)))
		}
		peer := api.NodeID(binary.LittleEndian.Uint64(payload))
		resp := h.PreResp()
		if rc := step(peer, payload[peerHeaderSize:], resp); rc != 0 {
			panic(fmt.Sprintf("facade: state transition failed with status %d", rc))
		}
		h.RespondPrealloc(resp.Size())
	}
}
