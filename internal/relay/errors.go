package relay

import "github.com/pkg/errors"

// Packet-handling error taxonomy (spec §7 "Session"/"Rate"/"Replay").
// Every one of these means: drop the packet, and count it in metrics;
// none may propagate past the forwarder's receive loop.
var (
	ErrSessionNotActive = errors.New("relay: session not active")
	ErrSessionNotFound  = errors.New("relay: session not found")
	ErrUnknownPeer      = errors.New("relay: unknown peer")
	ErrReplayDetected   = errors.New("relay: replay detected")
	ErrRateLimited      = errors.New("relay: rate limited")
	ErrInvalidPayload   = errors.New("relay: invalid payload")
	ErrInvalidSessionID = errors.New("relay: invalid session id")
	ErrUnexpectedType   = errors.New("relay: unexpected packet type")
)
