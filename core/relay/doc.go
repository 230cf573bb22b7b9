// File: core/relay/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package relay implements the nested-request pattern: a request handler
// issues one or more derived sub-requests and defers completion of the
// original request until every sub-call has resolved. Per-request state is
// created and finalized on the same execution context, so it carries no
// lock; the coordinator asserts that invariant on every sub-resolution.
package relay
