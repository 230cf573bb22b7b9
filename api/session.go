// File: api/session.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session management event contract, delivered by the transport exactly
// once per lifecycle transition.

package api

// SessionID is the transport-assigned handle for one peer connection.
type SessionID int32

// SessionNone marks an unassigned session slot.
const SessionNone SessionID = -1

// SmEventType enumerates session lifecycle transitions.
type SmEventType uint8

const (
	SmConnected SmEventType = iota
	SmDisconnected
)

func (e SmEventType) String() string {
	switch e {
	case SmConnected:
		return "connected"
	case SmDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SmErrType qualifies a session event. Anything other than SmErrNone is
// unconditionally fatal to that session's further use.
type SmErrType uint8

const (
	SmErrNone SmErrType = iota
	SmErrRefused
	SmErrBroken
)

func (e SmErrType) String() string {
	switch e {
	case SmErrNone:
		return "none"
	case SmErrRefused:
		return "refused"
	case SmErrBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// SmHandler receives session events translated by the dispatcher.
type SmHandler func(sess SessionID, ev SmEventType, errKind SmErrType)
