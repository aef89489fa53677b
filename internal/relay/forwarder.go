package relay

import (
	"bytes"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/wavry-io/wavry/internal/metrics"
)

// MaxPacketSize bounds a single relay datagram (header plus forwarded
// payload), matching the teacher's style of a conservative fixed receive
// buffer (xtaci-kcptun uses a similarly fixed-size read buffer per
// listener).
const MaxPacketSize = 2048

// Config bundles the tunables the CLI surface exposes (spec §6 `relay`
// flags).
type Config struct {
	MaxSessions      int
	IdleTimeout      time.Duration
	LeaseDuration    time.Duration
	CleanupInterval  time.Duration
	IPRateLimitPPS   int
	InsecureDev      bool
}

// Forwarder is the relay's packet-handling core (spec §4.6). It owns the
// UDP socket, session pool, per-IP limiter, lease verifier, and counters;
// Serve drives the single receive loop.
type Forwarder struct {
	conn     net.PacketConn
	sessions *Pool
	ipLimit  *IPLimiter
	lease    *LeaseVerifier // nil only when InsecureDev is set
	cfg      Config
	counters *metrics.RelayCounters

	stop chan struct{}
}

// NewForwarder wires a Forwarder around an already-bound socket. lease may
// be nil only if cfg.InsecureDev is true, matching the original's refusal
// to start otherwise (spec §7, original_source's RelayServer::new).
func NewForwarder(conn net.PacketConn, cfg Config, lease *LeaseVerifier, counters *metrics.RelayCounters) (*Forwarder, error) {
	if lease == nil && !cfg.InsecureDev {
		return nil, errors.New("relay: master public key is required unless insecure dev mode is enabled")
	}
	return &Forwarder{
		conn:     conn,
		sessions: NewPool(cfg.MaxSessions, cfg.IdleTimeout),
		ipLimit:  NewIPLimiter(cfg.IPRateLimitPPS),
		lease:    lease,
		cfg:      cfg,
		counters: counters,
		stop:     make(chan struct{}),
	}, nil
}

// Stop signals Serve's loops to exit.
func (f *Forwarder) Stop() { close(f.stop) }

// Serve runs the receive loop until Stop is called or the socket errors.
// Mirrors the teacher's single-goroutine accept-loop shape (server/main.go
// checkError pattern), generalized to UDP datagram-at-a-time handling.
func (f *Forwarder) Serve() error {
	go f.cleanupLoop()

	buf := make([]byte, MaxPacketSize)
	for {
		select {
		case <-f.stop:
			return nil
		default:
		}
		n, addr, err := f.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-f.stop:
				return nil
			default:
			}
			return errors.Wrap(err, "relay: read from socket")
		}
		packet := append([]byte(nil), buf[:n]...)
		f.counters.PacketsRx.Add(1)
		f.counters.BytesRx.Add(uint64(n))
		if err := f.handlePacket(packet, addr); err != nil {
			f.recordError(err)
		}
	}
}

func (f *Forwarder) cleanupLoop() {
	ticker := time.NewTicker(f.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.sessions.Cleanup(time.Now())
			f.ipLimit.Cleanup(f.cfg.CleanupInterval * 2)
		}
	}
}

func (f *Forwarder) handlePacket(packet []byte, addr net.Addr) error {
	if !QuickCheck(packet) {
		return ErrInvalidPayload
	}
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		if !f.ipLimit.Allow(udpAddr.IP) {
			return ErrRateLimited
		}
	}
	header, err := DecodeHeader(packet)
	if err != nil {
		return errors.Wrap(err, "relay: decode header")
	}
	if header.SessionID == uuid.Nil {
		return ErrInvalidSessionID
	}
	payload := packet[HeaderSize:]

	switch header.PacketType {
	case PacketTypeLeasePresent:
		f.counters.LeasePresents.Add(1)
		return f.handleLeasePresent(header, payload, addr)
	case PacketTypeLeaseRenew:
		f.counters.LeaseRenews.Add(1)
		return f.handleLeaseRenew(header, addr)
	case PacketTypeForward:
		return f.handleForward(header, payload, addr)
	default:
		return ErrUnexpectedType
	}
}

func (f *Forwarder) handleLeasePresent(header Header, payload []byte, addr net.Addr) error {
	present, err := DecodeLeasePresentPayload(payload)
	if err != nil {
		return errors.Wrap(err, "relay: decode LeasePresent payload")
	}

	var wavryID string
	var role PeerRole
	var soft, hard uint32
	if f.lease != nil {
		claims, reason, verr := f.lease.Verify(present.LeaseToken, header.SessionID)
		if verr != nil {
			f.sendLeaseReject(header.SessionID, addr, reason)
			return errors.Wrap(verr, "relay: lease verification failed")
		}
		wavryID, role, soft, hard = claims.WavryID, claims.Role, claims.SoftLimitKbps, claims.HardLimitKbps
	} else {
		wavryID = "dev-peer-" + addr.String()
		role = present.PeerRole
	}

	session, err := f.sessions.GetOrCreate(header.SessionID, f.cfg.LeaseDuration)
	if err != nil {
		f.sendLeaseReject(header.SessionID, addr, RejectReasonSessionFull)
		return err
	}
	if err := session.RegisterPeer(role, wavryID, addr); err != nil {
		f.sendLeaseReject(header.SessionID, addr, RejectReasonSessionFull)
		return err
	}
	session.SetLimits(soft, hard)

	expires, soft, hard := session.Limits()
	f.sendLeaseAck(header.SessionID, addr, expires, soft, hard)
	return nil
}

func (f *Forwarder) handleLeaseRenew(header Header, addr net.Addr) error {
	session, ok := f.sessions.Get(header.SessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if _, _, ok := session.IdentifyPeer(addr); !ok {
		return ErrUnknownPeer
	}
	session.RenewLease(f.cfg.LeaseDuration)
	expires, soft, hard := session.Limits()
	f.sendLeaseAck(header.SessionID, addr, expires, soft, hard)
	return nil
}

func (f *Forwarder) handleForward(header Header, payload []byte, addr net.Addr) error {
	session, ok := f.sessions.Get(header.SessionID)
	if !ok {
		return ErrSessionNotFound
	}
	sequence, err := ExtractForwardSequence(payload)
	if err != nil {
		return errors.Wrap(err, "relay: extract forward sequence")
	}
	forwardSize := HeaderSize + len(payload)
	destAddr, err := session.ForwardCheck(addr, sequence, forwardSize)
	if err != nil {
		return err
	}

	out := make([]byte, HeaderSize+len(payload))
	header.Encode(out)
	copy(out[HeaderSize:], payload)
	if _, err := f.conn.WriteTo(out, destAddr); err != nil {
		return errors.Wrap(err, "relay: forward write")
	}
	f.counters.PacketsForwarded.Add(1)
	f.counters.BytesForwarded.Add(uint64(len(out)))
	return nil
}

func (f *Forwarder) sendLeaseAck(sessionID uuid.UUID, dest net.Addr, expires time.Time, soft, hard uint32) {
	payload := LeaseAckPayload{
		UnixExpiresMs: uint64(expires.UnixMilli()),
		SoftLimitKbps: soft,
		HardLimitKbps: hard,
	}.Encode()
	f.sendControl(Header{PacketType: PacketTypeLeaseAck, SessionID: sessionID}, payload, dest)
}

func (f *Forwarder) sendLeaseReject(sessionID uuid.UUID, dest net.Addr, reason RejectReason) {
	payload := LeaseRejectPayload{Reason: reason}.Encode()
	f.sendControl(Header{PacketType: PacketTypeLeaseReject, SessionID: sessionID}, payload, dest)
}

func (f *Forwarder) sendControl(header Header, payload []byte, dest net.Addr) {
	buf := make([]byte, HeaderSize+len(payload))
	header.Encode(buf)
	copy(buf[HeaderSize:], payload)
	if _, err := f.conn.WriteTo(buf, dest); err != nil {
		log.Println("relay: send control packet:", err)
	}
}

func (f *Forwarder) recordError(err error) {
	f.counters.DroppedPackets.Add(1)
	switch errors.Cause(err) {
	case ErrRateLimited:
		f.counters.RateLimited.Add(1)
	case ErrInvalidPayload, ErrInvalidSessionID, ErrUnexpectedType:
		f.counters.InvalidPackets.Add(1)
	default:
		// Session/replay/unknown-peer errors are routine operational noise
		// (spec §7: never log replay at info); only invalid-framing causes
		// are worth a counter bucket of their own today.
	}
}

// ActiveSessionCount reports the pool's current session count, for
// metrics/logging.
func (f *Forwarder) ActiveSessionCount() int {
	return f.sessions.ActiveCount()
}

// HeartbeatPayload is POSTed to the Master every interval passed to
// HeartbeatLoop, carrying relay_id and current load%. cmd/relay passes a
// fixed 30 s; the registration response is not read for an interval.
type HeartbeatPayload struct {
	RelayID  string  `json:"relay_id"`
	LoadPct  float64 `json:"load_pct"`
}

// Heartbeat posts one heartbeat to masterURL, computing load as the
// fraction of max sessions currently active.
func (f *Forwarder) Heartbeat(client *http.Client, masterURL, relayID string) error {
	load := float64(f.ActiveSessionCount()) / float64(f.cfg.MaxSessions) * 100
	body, err := json.Marshal(HeartbeatPayload{RelayID: relayID, LoadPct: load})
	if err != nil {
		return errors.Wrap(err, "relay: encode heartbeat")
	}
	resp, err := client.Post(masterURL+"/api/relay/heartbeat", "application/json", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "relay: post heartbeat")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("relay: heartbeat rejected with status %d", resp.StatusCode)
	}
	return nil
}

// HeartbeatLoop posts a heartbeat every interval until stopped.
func (f *Forwarder) HeartbeatLoop(masterURL, relayID string, interval time.Duration) {
	client := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			if err := f.Heartbeat(client, masterURL, relayID); err != nil {
				log.Println("relay: heartbeat failed:", err)
			}
		}
	}
}
