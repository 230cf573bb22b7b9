// File: pool/buffer.go
// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "fmt"

// buffer is the single api.Buffer implementation. Pool-leased buffers keep
// their full block capacity across leases; dynamic buffers are sized
// exactly once and never re-enter the free list.
type buffer struct {
	data   []byte // full capacity backing region
	size   int    // logical size, size <= len(data)
	pooled bool
	leased bool
}

func (b *buffer) Bytes() []byte { return b.data[:b.size] }

func (b *buffer) Resize(n int) {
	if n < 0 || n > len(b.data) {
		panic(fmt.Sprintf("pool: resize to %d outside capacity %d", n, len(b.data)))
	}
	b.size = n
}

func (b *buffer) Size() int { return b.size }

func (b *buffer) Cap() int { return len(b.data) }

func (b *buffer) Pooled() bool { return b.pooled }
