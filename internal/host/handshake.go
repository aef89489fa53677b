package host

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/wavry-io/wavry/internal/cc"
	"github.com/wavry-io/wavry/internal/framing"
	"github.com/wavry-io/wavry/internal/message"
	"github.com/wavry-io/wavry/internal/session"
	"github.com/wavry-io/wavry/internal/video"
	"github.com/wavry-io/wavry/internal/wirecrypto"
)

// handshakingPeer tracks one in-progress Noise handshake keyed by remote
// address, before a session id/alias has been negotiated. Up to
// cfg.MaxPeers may be mid-handshake concurrently even though only one can
// ever reach Established (spec §4.3 rule 5).
type handshakingPeer struct {
	channel   *wirecrypto.Channel
	createdAt time.Time

	// msg2 caches the last Noise message 2 sent, so a re-sent message 1
	// (the client retrying after message 2 was lost) gets an idempotent
	// reply instead of failing ReadMessage1's step check and tearing down
	// the in-progress handshake (spec §7).
	msg2 []byte

	// ackCache caches this peer's own negotiated HelloAck, so a re-sent
	// Hello from this same in-progress peer gets an idempotent reply
	// instead of re-running negotiation and minting a second session
	// identity (spec §7). Scoped to the handshakingPeer rather than the
	// Host: it must never be consulted for, or answer, a different
	// client's Hello.
	ackCache session.HelloAckCache
}

// handleHandshakeDatagram processes a KindHandshake (or a not-yet-matched
// KindTransport, which is never legal pre-establishment and is dropped)
// datagram from addr: either a fresh Noise message 1, a continuation of an
// in-progress handshake, or an encrypted Hello/duplicate-Hello once the
// Noise layer has completed.
func (h *Host) handleHandshakeDatagram(pkt *framing.Packet, addr net.Addr) {
	if pkt.Kind != framing.KindHandshake {
		return
	}

	key := addr.String()
	hp, exists := h.handshaking[key]

	if !exists {
		if len(h.handshaking) >= h.cfg.MaxPeers {
			return
		}
		var channel *wirecrypto.Channel
		if h.cfg.NoEncrypt {
			channel = wirecrypto.NewDisabledChannel()
		} else {
			var err error
			channel, err = wirecrypto.NewHandshakingChannel(wirecrypto.RoleResponder, h.staticPriv)
			if err != nil {
				log.Println("host: start handshake:", err)
				return
			}
		}
		hp = &handshakingPeer{channel: channel, createdAt: time.Now()}
		h.handshaking[key] = hp
	}

	hs := hp.channel.Handshake()
	if hs != nil {
		h.stepNoiseHandshake(hp, hs, pkt, addr, key)
		return
	}

	// Noise is done; this must be an encrypted Hello (or a retransmit of
	// one we already answered).
	h.handleHello(hp, pkt, addr, key)
}

func (h *Host) stepNoiseHandshake(hp *handshakingPeer, hs *wirecrypto.Handshake, pkt *framing.Packet, addr net.Addr, key string) {
	if hp.msg2 != nil {
		// A payload the size of a bare ephemeral key is a re-sent message
		// 1; anything else is message 3, completed in handleHello.
		if len(pkt.Payload) == len(wirecrypto.PublicKey{}) {
			h.sendHandshakePacket([16]byte{}, 1, hp.msg2, addr)
			return
		}
		h.handleHello(hp, pkt, addr, key)
		return
	}

	if err := hs.ReadMessage1(pkt.Payload); err != nil {
		log.Println("host: handshake message 1:", err)
		delete(h.handshaking, key)
		return
	}
	msg2, err := hs.WriteMessage2()
	if err != nil {
		log.Println("host: handshake message 2:", err)
		delete(h.handshaking, key)
		return
	}
	hp.msg2 = msg2
	h.sendHandshakePacket([16]byte{}, 1, msg2, addr)
	// Message 3 arrives as a later datagram; state lives entirely in
	// hp.channel.Handshake(), so the next call to handleHandshakeDatagram
	// for this addr resumes via ReadMessage3 in handleHello below.
}

func (h *Host) sendHandshakePacket(sessionID [16]byte, packetID uint64, payload []byte, addr net.Addr) {
	pkt := &framing.Packet{Kind: framing.KindHandshake, Version: framing.Version, SessionID: sessionID, PacketID: packetID, Payload: payload}
	h.conn.WriteTo(framing.Encode(pkt), addr)
}

// handleHello processes datagrams once the Noise handshake for addr has
// completed: either message 3 (completing the handshake), or an encrypted
// Hello/duplicate Hello riding the now-Established crypto channel.
func (h *Host) handleHello(hp *handshakingPeer, pkt *framing.Packet, addr net.Addr, key string) {
	hs := hp.channel.Handshake()
	if hs != nil {
		sess, err := hs.ReadMessage3(pkt.Payload)
		if err != nil {
			log.Println("host: handshake message 3:", err)
			delete(h.handshaking, key)
			return
		}
		hp.channel.CompleteWith(sess)
		return
	}

	plaintext, err := hp.channel.Open(pkt.PacketID, pkt.Payload)
	if err != nil {
		log.Println("host: open hello:", err)
		return
	}
	env, err := message.DecodeEnvelope(plaintext)
	if err != nil || env.Type != message.TypeHello {
		return
	}
	hello, err := message.DecodeHello(env.Raw)
	if err != nil {
		return
	}

	if cached, ok := hp.ackCache.Get(); ok {
		h.replyHelloAck(hp, cached, addr)
		return
	}

	ack, _, _, err := session.BuildHelloAck(h.caps, hello, h.active != nil, h.cfg.BitrateKbps, h.cfg.KeyframeIntervalMs, "")
	if err != nil {
		log.Println("host: build hello ack:", err)
		return
	}
	hp.ackCache.Set(ack)

	if ack.Accepted {
		sess := session.NewSession(session.RoleHost, hp.channel)
		if err := sess.FSM.ReceiveHello(); err != nil {
			log.Println("host: receive hello:", err)
			return
		}
		if err := session.ApplyHostHelloAck(sess, ack); err != nil {
			log.Println("host: apply hello ack:", err)
			return
		}
		h.promoteToActive(sess, addr, hello)
	}

	h.replyHelloAck(hp, ack, addr)
	delete(h.handshaking, key)
}

func (h *Host) replyHelloAck(hp *handshakingPeer, ack message.HelloAck, addr net.Addr) {
	envelope := message.Encode(message.ChannelControl, message.TypeHelloAck, ack.Encode())
	pid, err := hp.channel.NextSendPacketID()
	if err != nil {
		log.Println("host: next packet id:", err)
		return
	}
	sealed, err := hp.channel.Seal(pid, envelope)
	if err != nil {
		log.Println("host: seal hello ack:", err)
		return
	}
	// The header session_id stays zero: a non-zero first 4 bytes would make
	// the client decode this datagram as transport-shaped. The negotiated
	// session_id travels inside the sealed ack.
	h.sendHandshakePacket([16]byte{}, pid, sealed, addr)
}

// promoteToActive installs sess as the host's single active peer and
// starts its cooperative video send loop.
func (h *Host) promoteToActive(sess *session.Session, addr net.Addr, hello message.Hello) {
	ctx, cancel := context.WithCancel(context.Background())
	ap := &activePeer{
		host:       h,
		addr:       addr,
		sess:       sess,
		cc:         cc.New(h.cfg.BitrateKbps, 0),
		fecBuilder: video.NewFecBuilder(minFECShardsDefault),
		retransmit: video.NewRetransmitCache(),
		lastSeen:   time.Now(),
		cancel:     cancel,
	}
	h.active = ap
	ap.wg.Add(1)
	go ap.runSendLoop(ctx)
	log.Println("host: peer established:", addr, "name:", hello.ClientName)
}

const minFECShardsDefault = 4
