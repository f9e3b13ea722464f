package types

import (
	"context"
	"time"
)

// SessionState represents the lifecycle state of one chat session
type SessionState string

const (
	SessionUninitialized SessionState = "uninitialized"
	SessionPairing       SessionState = "pairing"
	SessionReady         SessionState = "ready"
	SessionDisconnected  SessionState = "disconnected"
	SessionAuthFailed    SessionState = "auth_failed"
)

// transitions is the forward-only lifecycle table. Disconnected and
// auth_failed are terminal for a session instance; recovery requires
// re-initialization with a new instance.
var transitions = map[SessionState][]SessionState{
	SessionUninitialized: {SessionPairing, SessionReady},
	SessionPairing:       {SessionReady, SessionAuthFailed},
	SessionReady:         {SessionDisconnected},
}

// CanTransition reports whether moving to the given state is allowed
func (s SessionState) CanTransition(to SessionState) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// InboundMessage is one message received on the session. Immutable once
// constructed.
type InboundMessage struct {
	ID        string
	From      string
	Chat      string
	Text      string
	Caption   string
	MimeType  string
	HasMedia  bool
	FromMe    bool
	Timestamp time.Time
}

// MediaObject is an in-memory media payload ready to be sent through the
// session transport
type MediaObject struct {
	Data     []byte
	MimeType string
	FileName string
}

// Event is a session lifecycle or message event
type Event interface {
	event()
}

// PairingCodeEvent carries the one-time pairing artifact to be rendered and
// hosted for the account owner to scan
type PairingCodeEvent struct {
	Code string
}

// ReadyEvent signals the session is usable for send/receive
type ReadyEvent struct{}

// AuthFailureEvent signals pairing was rejected; the session stays unusable
// until the process is restarted
type AuthFailureEvent struct {
	Reason string
}

// DisconnectedEvent signals the session is usable no more
type DisconnectedEvent struct {
	Reason string
}

// SyncProgressEvent is informational transport progress
type SyncProgressEvent struct {
	Percent int
	Message string
}

// MessageEvent carries one inbound message. Download is non-nil only when
// the message has a media payload; it fetches the raw bytes from the
// session transport.
type MessageEvent struct {
	Message  InboundMessage
	Download func(ctx context.Context) ([]byte, error)
}

func (PairingCodeEvent) event()  {}
func (ReadyEvent) event()        {}
func (AuthFailureEvent) event()  {}
func (DisconnectedEvent) event() {}
func (SyncProgressEvent) event() {}
func (MessageEvent) event()      {}
