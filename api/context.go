// File: api/context.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// CtxID identifies a dispatch execution context. Context 0 is the
// foreground context driven by the host's RunPendingWork calls; higher IDs
// are auxiliary contexts for background handler placement.
type CtxID int32

// CtxForeground is the context driven directly by the host thread.
const CtxForeground CtxID = 0

// CtxNone marks an unset origin.
const CtxNone CtxID = -1
