// Package session implements the handshake negotiation state machine and
// the per-peer Session record that sits above the crypto channel (spec
// §3, §4.3).
package session

import "github.com/pkg/errors"

// State is one of the five handshake FSM variants.
type State int

const (
	StateInit State = iota
	StateHelloSent
	StateHelloReceived
	StateEstablished
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateHelloSent:
		return "HelloSent"
	case StateHelloReceived:
		return "HelloReceived"
	case StateEstablished:
		return "Established"
	case StateRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// RejectReason names why a handshake landed in Rejected.
type RejectReason int

const (
	RejectReasonNone RejectReason = iota
	RejectReasonRemoteRejected
	RejectReasonInvalidTransition
)

// ErrInvalidTransition is returned whenever an event fires from a state
// that does not permit it (spec §8 invariant 8); the caller must drop the
// peer without otherwise mutating session state.
var ErrInvalidTransition = errors.New("session: invalid handshake transition")

// FSM drives the client and host sides of hello/hello-ack negotiation.
// A single type serves both roles since the event set and legal
// transitions are role-specific but mutually exclusive in practice.
type FSM struct {
	state        State
	sessionID    [16]byte
	rejectReason RejectReason
}

// NewFSM starts a fresh handshake FSM in Init.
func NewFSM() *FSM {
	return &FSM{state: StateInit}
}

// State reports the current variant.
func (f *FSM) State() State { return f.state }

// SessionID is only meaningful once State() == StateEstablished.
func (f *FSM) SessionID() [16]byte { return f.sessionID }

// RejectReason is only meaningful once State() == StateRejected.
func (f *FSM) RejectReason() RejectReason { return f.rejectReason }

// SendHello is the client event: Init -> HelloSent.
func (f *FSM) SendHello() error {
	if f.state != StateInit {
		return ErrInvalidTransition
	}
	f.state = StateHelloSent
	return nil
}

// ReceiveHello is the host event: Init -> HelloReceived.
func (f *FSM) ReceiveHello() error {
	if f.state != StateInit {
		return ErrInvalidTransition
	}
	f.state = StateHelloReceived
	return nil
}

// SendHelloAck is the host event completing negotiation: HelloReceived ->
// Established(sessionID) or Rejected, depending on accepted.
func (f *FSM) SendHelloAck(accepted bool, sessionID [16]byte) error {
	if f.state != StateHelloReceived {
		return ErrInvalidTransition
	}
	if accepted {
		f.sessionID = sessionID
		f.state = StateEstablished
	} else {
		f.rejectReason = RejectReasonRemoteRejected
		f.state = StateRejected
	}
	return nil
}

// ReceiveHelloAck is the client event completing negotiation: HelloSent ->
// Established(sessionID) or Rejected. The resulting SessionID carries the
// ack's session_id verbatim (spec §8 invariant 8).
func (f *FSM) ReceiveHelloAck(accepted bool, sessionID [16]byte) error {
	if f.state != StateHelloSent {
		return ErrInvalidTransition
	}
	if accepted {
		f.sessionID = sessionID
		f.state = StateEstablished
	} else {
		f.rejectReason = RejectReasonRemoteRejected
		f.state = StateRejected
	}
	return nil
}
