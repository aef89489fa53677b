package relay

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSessionFull is returned when a session already has both peer roles
// bound and a different identity tries to bind.
var ErrSessionFull = errors.New("relay: session full")

// Peer is one bound side of a relay session (spec §3 Relay Session).
type Peer struct {
	WavryID    string
	SocketAddr net.Addr
	LastSeen   time.Time
	SeqWindow  sequenceWindow
}

// Session mirrors spec §3's Relay Session record: two peer slots, the
// lease's bandwidth limits, and per-session bandwidth accounting used by
// the hard-limit rate check in the forwarding path.
type Session struct {
	mu sync.Mutex

	ID uuid.UUID

	client *Peer
	server *Peer

	SoftLimitKbps uint32
	HardLimitKbps uint32
	LeaseExpires  time.Time

	currentBps      float64
	bytesSentWindow uint64
	lastStatsReset  time.Time
}

func newSession(id uuid.UUID, leaseDuration time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		LeaseExpires:   now.Add(leaseDuration),
		lastStatsReset: now,
	}
}

// RegisterPeer binds role to (wavryID, addr), resetting its replay window
// (spec §4.6: "resets sequence window" on a successful LeasePresent). A
// role already bound to a different wavryID refuses — the relay is
// strictly two peers per session.
func (s *Session) RegisterPeer(role PeerRole, wavryID string, addr net.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.slotFor(role)
	if *slot != nil && (*slot).WavryID != wavryID {
		return ErrSessionFull
	}
	*slot = &Peer{WavryID: wavryID, SocketAddr: addr, LastSeen: time.Now()}
	return nil
}

func (s *Session) slotFor(role PeerRole) **Peer {
	if role == PeerRoleServer {
		return &s.server
	}
	return &s.client
}

// RenewLease extends the lease by duration from now (spec §4.6
// LeaseRenew).
func (s *Session) RenewLease(duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LeaseExpires = time.Now().Add(duration)
}

// Limits returns the current soft/hard bandwidth caps and lease
// expiration under lock, for building a LeaseAck reply.
func (s *Session) Limits() (expires time.Time, soft, hard uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LeaseExpires, s.SoftLimitKbps, s.HardLimitKbps
}

// SetLimits applies lease-derived soft/hard limits, leaving either
// unchanged when the corresponding value is zero (absent from the claims).
func (s *Session) SetLimits(soft, hard uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if soft != 0 {
		s.SoftLimitKbps = soft
	}
	if hard != 0 {
		s.HardLimitKbps = hard
	}
}

// IdentifyPeer reports which role, if any, is currently bound at addr.
func (s *Session) IdentifyPeer(addr net.Addr) (PeerRole, *Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && sameAddr(s.client.SocketAddr, addr) {
		return PeerRoleClient, s.client, true
	}
	if s.server != nil && sameAddr(s.server.SocketAddr, addr) {
		return PeerRoleServer, s.server, true
	}
	return 0, nil, false
}

// IsActive reports whether both peer roles are bound.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.server != nil
}

// OtherPeer returns the peer opposite role, used to route a Forward.
func (s *Session) OtherPeer(role PeerRole) (*Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == PeerRoleClient {
		if s.server == nil {
			return nil, false
		}
		return s.server, true
	}
	if s.client == nil {
		return nil, false
	}
	return s.client, true
}

// ForwardCheck runs the full per-packet critical section of spec §5:
// sequence-window update and byte-counter update, all under the session's
// single write lock. The sender is matched by its exact stored address; a
// packet from any other address is refused with ErrUnknownPeer, so a peer
// whose address changes is re-bound only by presenting its lease again
// (RegisterPeer replaces the stored address). Returns the destination
// peer's address, or an error identifying why the packet must be dropped.
func (s *Session) ForwardCheck(senderAddr net.Addr, sequence uint64, forwardSize int) (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil || s.server == nil {
		return nil, ErrSessionNotActive
	}

	var sender, other *Peer
	var senderRole PeerRole
	switch {
	case sameAddr(s.client.SocketAddr, senderAddr):
		sender, other, senderRole = s.client, s.server, PeerRoleClient
	case sameAddr(s.server.SocketAddr, senderAddr):
		sender, other, senderRole = s.server, s.client, PeerRoleServer
	default:
		return nil, ErrUnknownPeer
	}
	_ = senderRole

	if !sender.SeqWindow.checkAndUpdate(sequence) {
		return nil, ErrReplayDetected
	}

	now := time.Now()
	elapsed := now.Sub(s.lastStatsReset).Seconds()
	if elapsed >= 1.0 {
		s.currentBps = (float64(s.bytesSentWindow) / elapsed) * 8
		s.bytesSentWindow = 0
		s.lastStatsReset = now
	}
	if s.currentBps > float64(s.HardLimitKbps)*1000 {
		return nil, ErrRateLimited
	}

	if !sameAddr(sender.SocketAddr, senderAddr) {
		sender.SocketAddr = senderAddr
	}
	sender.LastSeen = now

	s.bytesSentWindow += uint64(forwardSize)
	return other.SocketAddr, nil
}

// IdleSince reports the time since either bound peer was last seen; an
// unbound session is considered idle as of the lease start.
func (s *Session) IdleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.lastStatsReset
	if s.client != nil && s.client.LastSeen.After(last) {
		last = s.client.LastSeen
	}
	if s.server != nil && s.server.LastSeen.After(last) {
		last = s.server.LastSeen
	}
	return now.Sub(last)
}

func sameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.String() == b.String()
}

// Pool is the concurrent map of active relay sessions (spec §5: "concurrent
// map guarded by a read-write lock; per-session lock is a finer
// write-lock for the forwarding critical section").
type Pool struct {
	mu            sync.RWMutex
	sessions      map[uuid.UUID]*Session
	maxSessions   int
	idleTimeout   time.Duration
}

// NewPool returns an empty pool bounding concurrent sessions to
// maxSessions and reaping peers idle past idleTimeout.
func NewPool(maxSessions int, idleTimeout time.Duration) *Pool {
	return &Pool{
		sessions:    make(map[uuid.UUID]*Session),
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
	}
}

// GetOrCreate returns the session for id, creating one if the pool has
// room, or ErrSessionFull if it is at capacity.
func (p *Pool) GetOrCreate(id uuid.UUID, leaseDuration time.Duration) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[id]; ok {
		return s, nil
	}
	if len(p.sessions) >= p.maxSessions {
		return nil, ErrSessionFull
	}
	s := newSession(id, leaseDuration)
	p.sessions[id] = s
	return s, nil
}

// Get looks up an existing session without creating one.
func (p *Pool) Get(id uuid.UUID) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[id]
	return s, ok
}

// ActiveCount reports the number of sessions currently tracked.
func (p *Pool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Cleanup reaps sessions idle past idleTimeout (spec §4.6, §5: "reaped
// after idle_timeout of no traffic; on reap, peers are released").
func (p *Pool) Cleanup(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	reaped := 0
	for id, s := range p.sessions {
		if s.IdleSince(now) > p.idleTimeout {
			delete(p.sessions, id)
			reaped++
		}
	}
	return reaped
}
