// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-rpc.
// Peer-caused failures surface as sentinel errors or CallAborted
// completions; library-internal invariant violations fail fast instead of
// returning soft errors.

package api

import "fmt"

// Common errors used across the library.
var (
	ErrSessionDown      = fmt.Errorf("session is down")
	ErrSessionUnknown   = fmt.Errorf("session not created by this endpoint")
	ErrInvalidArgument  = fmt.Errorf("invalid argument")
	ErrNoSuchNode       = fmt.Errorf("node id not in cluster table")
	ErrHandlerExists    = fmt.Errorf("request type already registered")
	ErrEngineStopped    = fmt.Errorf("engine is stopped")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeSessionDown
	ErrCodeNotFound
	ErrCodeAlreadyExists
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
