// Package host implements the host-side orchestrator (spec §4.3/§4.4/
// §4.5/§5/§6/§7): negotiate a single client session, run its cooperative
// send/receive loop, digest stats into DELTA, and drive the pacer. It
// descends from the teacher's server/main.go + server/config.go (cli.App
// construction, JSON config override, per-listener accept loop), but a
// Wavry host serves exactly one active peer at a time (spec §4.3 rule 5),
// so the teacher's per-connection goroutine fan-out collapses into a
// single dispatch loop plus one send-loop goroutine for the active peer.
package host

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wavry-io/wavry/internal/collab"
	"github.com/wavry-io/wavry/internal/framing"
	"github.com/wavry-io/wavry/internal/mdns"
	"github.com/wavry-io/wavry/internal/message"
	"github.com/wavry-io/wavry/internal/metrics"
	"github.com/wavry-io/wavry/internal/session"
	"github.com/wavry-io/wavry/internal/wirecrypto"
)

// Config mirrors the host CLI surface (spec §6): "host --listen <addr>
// [--no-encrypt] [--width W --height H --fps F --bitrate-kbps K
// --keyframe-interval-ms MS --display-id ID --max-peers N
// --peer-idle-timeout-secs S --enable-webrtc --gateway-url U
// --session-token T --disable-mdns]".
type Config struct {
	Listen             string
	NoEncrypt          bool
	Width, Height      uint16
	FPS                uint16
	BitrateKbps        uint32
	KeyframeIntervalMs uint32
	DisplayID          string
	MaxPeers           int
	PeerIdleTimeout    time.Duration
	EnableWebRTC       bool
	GatewayURL         string
	SessionToken       string
	DisableMDNS        bool

	// IncomingFiles is the directory client-initiated file transfers land
	// in (spec §4.7); defaults to "incoming" under the working directory.
	IncomingFiles string
}

// IncomingFilesDir reports where inbound file transfers are written.
func (c Config) IncomingFilesDir() string {
	if c.IncomingFiles == "" {
		return "incoming"
	}
	return c.IncomingFiles
}

// Host owns the listening socket, the identity keypair, every in-flight
// handshake, and at most one established peer (single-tenant, spec §4.3
// rule 5).
type Host struct {
	cfg        Config
	conn       net.PacketConn
	staticPriv wirecrypto.PrivateKey
	caps       session.HostCapabilities

	probe    collab.CapabilityProbe
	encoder  collab.VideoEncoder
	injector collab.InputInjector

	counters *metrics.FramingCounters

	mu          sync.Mutex
	handshaking map[string]*handshakingPeer
	active      *activePeer

	mdnsAdv *mdns.Advertiser
}

// New constructs a Host bound to conn. staticPriv is the persistent X25519
// identity key, normally loaded via a collab.KeyStore by the caller (cmd/
// host/main.go).
func New(cfg Config, conn net.PacketConn, staticPriv wirecrypto.PrivateKey, caps session.HostCapabilities, encoder collab.VideoEncoder, injector collab.InputInjector, probe collab.CapabilityProbe) *Host {
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = 8
	}
	if cfg.PeerIdleTimeout <= 0 {
		cfg.PeerIdleTimeout = session.DefaultIdleTimeout
	}
	return &Host{
		cfg:         cfg,
		conn:        conn,
		staticPriv:  staticPriv,
		caps:        caps,
		probe:       probe,
		encoder:     encoder,
		injector:    injector,
		counters:    &metrics.FramingCounters{},
		handshaking: make(map[string]*handshakingPeer),
	}
}

// Run drives the host until ctx is cancelled: the UDP receive loop, a
// periodic idle-peer sweep, and (once a peer is Established) the video
// send loop. Mirrors the teacher's per-listener accept loop generalized
// to a single cooperative session.
func (h *Host) Run(ctx context.Context) error {
	if !h.cfg.DisableMDNS {
		_, portStr, err := net.SplitHostPort(h.conn.LocalAddr().String())
		if err == nil {
			var port uint16
			fmtSscanPort(portStr, &port)
			adv, err := mdns.Advertise("wavry-host", port)
			if err != nil {
				log.Println("mdns advertise:", err)
			} else {
				h.mdnsAdv = adv
				defer adv.Close()
			}
		}
	}

	recvErrCh := make(chan error, 1)
	go h.recvLoop(ctx, recvErrCh)

	idleTicker := time.NewTicker(5 * time.Second)
	defer idleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-recvErrCh:
			return err
		case now := <-idleTicker.C:
			h.sweepIdle(now)
		}
	}
}

// fmtSscanPort parses a decimal port string without pulling in strconv at
// the call site twice; kept tiny and local to avoid import noise.
func fmtSscanPort(s string, out *uint16) {
	var v int
	for _, r := range s {
		if r < '0' || r > '9' {
			return
		}
		v = v*10 + int(r-'0')
	}
	*out = uint16(v)
}

func (h *Host) recvLoop(ctx context.Context, errCh chan<- error) {
	buf := make([]byte, 65535)
	for {
		if err := h.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			errCh <- err
			return
		}
		n, addr, err := h.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-ctx.Done():
					errCh <- nil
					return
				default:
					continue
				}
			}
			errCh <- err
			return
		}
		datagram := append([]byte(nil), buf[:n]...)
		h.handleDatagram(datagram, addr)
	}
}

func (h *Host) handleDatagram(datagram []byte, addr net.Addr) {
	pkt, err := framing.Decode(datagram)
	if err != nil {
		h.recordFramingError(err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active != nil && h.active.matches(pkt, addr) {
		h.active.lastSeen = time.Now()
		h.handleEstablished(pkt)
		return
	}

	// Any packet from an address already holding the active slot, but
	// addressed by alias before ack arrives, is handled above; everything
	// else walks the handshake path.
	h.handleHandshakeDatagram(pkt, addr)
}

func (h *Host) recordFramingError(err error) {
	switch errors.Cause(err) {
	case framing.ErrTooShort:
		h.counters.TooShort.Add(1)
	case framing.ErrInvalidMagic:
		h.counters.InvalidMagic.Add(1)
	case framing.ErrUnsupportedVer:
		h.counters.UnsupportedVer.Add(1)
	case framing.ErrChecksumMismatch:
		h.counters.ChecksumMismatch.Add(1)
	}
}

func (h *Host) sweepIdle(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for addr, hp := range h.handshaking {
		if now.Sub(hp.createdAt) > h.cfg.PeerIdleTimeout {
			delete(h.handshaking, addr)
		}
	}
	if h.active != nil && h.active.sess.IdleExpired(now, h.cfg.PeerIdleTimeout) {
		log.Println("host: peer idle timeout, freeing active slot:", h.active.addr)
		h.active.stop()
		h.active = nil
	}
}

// Counters exposes the framing error counters for a metrics CSV logger.
func (h *Host) Counters() *metrics.FramingCounters { return h.counters }

// ActivePeerAddr reports the active peer's address, or nil if the host is
// idle, for diagnostics.
func (h *Host) ActivePeerAddr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return nil
	}
	return h.active.addr
}

// handleInput decodes and applies an inbound input message via the
// InputInjector collaborator (spec §6). A malformed input event is
// dropped silently; it never tears down the session.
func (h *Host) handleInput(env message.Envelope) {
	if h.injector == nil {
		return
	}
	switch env.Type {
	case message.TypeKey:
		k, err := message.DecodeKey(env.Raw)
		if err != nil {
			return
		}
		h.injector.Key(uint16(k.Keycode), k.Pressed)
	case message.TypeMouseButton:
		m, err := message.DecodeMouseButton(env.Raw)
		if err != nil {
			return
		}
		h.injector.MouseButton(m.Button, m.Pressed)
	case message.TypeMouseMove:
		m, err := message.DecodeMouseMove(env.Raw)
		if err != nil {
			return
		}
		h.injector.MouseAbsolute(uint16(m.X), uint16(m.Y))
	}
}
