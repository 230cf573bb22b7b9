// File: pool/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package pool implements the payload buffer pool: preallocated
// fixed-capacity blocks reused through a free list, with geometric growth
// on exhaustion, plus a separate dynamically-sized path for payloads
// larger than the block capacity.
//
// The pool is the only resource shared across execution contexts, so
// acquire and release are mutex-serialized; a buffer acquired on one
// context may be released from another.
package pool
