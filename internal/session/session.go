package session

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/wavry-io/wavry/internal/message"
	"github.com/wavry-io/wavry/internal/wirecrypto"
)

// Role distinguishes which side of a session a peer plays.
type Role int

const (
	RoleClient Role = iota
	RoleHost
)

// DefaultIdleTimeout is the peer eviction deadline absent a configured
// override (spec §4.3: "default 30 s").
const DefaultIdleTimeout = 30 * time.Second

// Session is the per-peer record the host/client orchestrator owns and the
// packet handler borrows mutably (spec §3 data model). Video-pipeline and
// congestion-control state (pacer, FEC builder, send history, target
// bitrate) are composed in by the orchestrator that owns this Session,
// since those concerns are independent packages.
type Session struct {
	ID    [16]byte
	Alias uint32
	Role  Role

	Channel *wirecrypto.Channel
	FSM     *FSM

	frameIDCounter uint32

	TargetBitrateKbps uint32
	SkipFrames        uint16

	NegotiatedCodec      message.Codec
	NegotiatedResolution message.Resolution
	NegotiatedFPS        uint16

	lastSeen time.Time
}

// NewSession allocates a session shell with a fresh FSM and crypto
// channel; callers drive the FSM and channel handshake before marking
// application traffic legal.
func NewSession(role Role, channel *wirecrypto.Channel) *Session {
	return &Session{
		Role:     role,
		Channel:  channel,
		FSM:      NewFSM(),
		lastSeen: time.Now(),
	}
}

// GenerateSessionID draws a 128-bit random session identity (spec §3).
func GenerateSessionID() ([16]byte, error) {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, errors.Wrap(err, "session: generate session id")
	}
	return id, nil
}

// GenerateAlias draws a non-zero 32-bit routing alias (spec §3): alias==0
// is reserved to disambiguate handshake-shaped framing headers.
func GenerateAlias() (uint32, error) {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, errors.Wrap(err, "session: generate alias")
		}
		alias := binary.BigEndian.Uint32(buf[:])
		if alias != 0 {
			return alias, nil
		}
	}
}

// Touch records activity, resetting the idle timer.
func (s *Session) Touch(now time.Time) {
	s.lastSeen = now
}

// LastSeen reports the last time Touch was called.
func (s *Session) LastSeen() time.Time {
	return s.lastSeen
}

// IdleExpired reports whether the session has exceeded timeout without
// activity (spec §4.3: idle peers are removed).
func (s *Session) IdleExpired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.lastSeen) > timeout
}

// NextFrameID allocates the next outbound video frame identifier.
func (s *Session) NextFrameID() uint32 {
	id := s.frameIDCounter
	s.frameIDCounter++
	return id
}
