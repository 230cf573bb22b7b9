// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the public contracts of hioload-rpc: buffers and
// buffer pools, call correlation types (tags, continuations, call status),
// execution contexts, the wire-transport collaborator interface, session
// management events, and the consensus collaborator hook.
//
// The package contains no implementation code. Implementations live in
// pool/, core/, internal/ and facade/.
package api
