// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package concurrency implements the cooperative execution contexts that
// drive all completion processing. A context is a FIFO lane of deferred
// tasks: issuing a call never suspends a stack, and resumption happens
// only when a later run-pending-work pass on some context executes the
// registered continuation. The foreground context is driven by the host;
// auxiliary contexts serve background handler placement and may be pinned
// to CPUs.
package concurrency
