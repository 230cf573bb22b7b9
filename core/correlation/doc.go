// File: core/correlation/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package correlation implements the tag-to-continuation registry for
// in-flight calls. Records live in an arena indexed by slot, and tags map
// to slots through an explicit table: a tag is never a reinterpreted
// pointer, and a stale tag can never reach freed memory.
//
// The registry guarantees exactly one continuation invocation per
// registered call: either Resolve (response arrived) or FailSession
// (owning session torn down or unresponsive) removes the record, and the
// engine invokes the continuation once on the call's origin context.
package correlation
