package client

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/wavry-io/wavry/internal/framing"
	"github.com/wavry-io/wavry/internal/message"
	"github.com/wavry-io/wavry/internal/session"
	"github.com/wavry-io/wavry/internal/wirecrypto"
)

// dialRetryInterval and dialAttempts bound how long Dial waits for each
// handshake step before resending, mirroring the teacher's dial.go
// blocking-connect shape generalized to UDP's lack of a connect handshake.
const (
	dialRetryInterval = 250 * time.Millisecond
	dialAttempts      = 20
)

// ErrHandshakeTimeout is returned when the host never answers a handshake
// step within dialAttempts retries.
var ErrHandshakeTimeout = errors.New("client: handshake timed out")

// Dial runs the full session-negotiation sequence (spec §4.2, §4.3): the
// three-message Noise handshake, then an encrypted Hello/HelloAck
// exchange, leaving c.sess Established on success.
func (c *Client) Dial(ctx context.Context) error {
	if c.cfg.NoEncrypt {
		c.channel = wirecrypto.NewDisabledChannel()
	} else {
		hs, err := wirecrypto.NewHandshake(wirecrypto.RoleInitiator, c.staticPriv)
		if err != nil {
			return errors.Wrap(err, "client: start handshake")
		}
		if err := c.runNoiseHandshake(ctx, hs); err != nil {
			return err
		}
	}

	c.sess = session.NewSession(session.RoleClient, c.channel)

	hello := message.Hello{
		ClientName:      c.cfg.Name,
		Platform:        c.cfg.Platform,
		SupportedCodecs: c.cfg.SupportedCodecs,
		MaxResolution:   c.cfg.MaxResolution,
		MaxFPS:          c.cfg.MaxFPS,
		InputCaps:       c.cfg.InputCaps,
	}
	if err := c.sess.FSM.SendHello(); err != nil {
		return errors.Wrap(err, "client: send hello")
	}

	ack, err := c.exchangeHello(ctx, hello)
	if err != nil {
		return err
	}
	if err := session.ApplyHelloAck(c.sess, ack); err != nil {
		return errors.Wrap(err, "client: apply hello ack")
	}
	if !ack.Accepted {
		return errors.New("client: host rejected hello (single-tenant, already active)")
	}
	return nil
}

// runNoiseHandshake drives WriteMessage1/ReadMessage2/WriteMessage3 over
// the UDP socket, retrying message 1 until message 2 arrives, and
// replaces c.channel's crypto state with the Established session on
// success. It operates on a throwaway Channel since Channel exposes no
// initiator-side stepping helpers of its own (only a Responder's message
// 1/2/3 are driven through Channel.Handshake() by the host side).
func (c *Client) runNoiseHandshake(ctx context.Context, hs *wirecrypto.Handshake) error {
	msg1, err := hs.WriteMessage1()
	if err != nil {
		return errors.Wrap(err, "client: write message 1")
	}

	msg2, err := c.roundTripHandshake(ctx, msg1)
	if err != nil {
		return err
	}
	if err := hs.ReadMessage2(msg2); err != nil {
		return errors.Wrap(err, "client: read message 2")
	}

	msg3, sess, err := hs.WriteMessage3()
	if err != nil {
		return errors.Wrap(err, "client: write message 3")
	}
	c.sendHandshakePacket(0, msg3)
	c.channel = &wirecrypto.Channel{}
	c.channel.CompleteWith(sess)
	return nil
}

// roundTripHandshake sends payload as a KindHandshake datagram and waits
// for the host's reply, retrying on a timer until dialAttempts is
// exhausted.
func (c *Client) roundTripHandshake(ctx context.Context, payload []byte) ([]byte, error) {
	buf := make([]byte, 65535)
	for attempt := 0; attempt < dialAttempts; attempt++ {
		c.sendHandshakePacket(0, payload)

		if err := c.conn.SetReadDeadline(time.Now().Add(dialRetryInterval)); err != nil {
			return nil, err
		}
		n, addr, err := c.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
					continue
				}
			}
			return nil, err
		}
		c.remoteAddr = addr
		pkt, err := framing.Decode(buf[:n])
		if err != nil || pkt.Kind != framing.KindHandshake {
			continue
		}
		return append([]byte(nil), pkt.Payload...), nil
	}
	return nil, ErrHandshakeTimeout
}

// exchangeHello seals hello, sends it as a KindHandshake datagram, and
// waits for the HelloAck reply (possibly several times, if the host is
// still mid-negotiation on a duplicate send).
func (c *Client) exchangeHello(ctx context.Context, hello message.Hello) (message.HelloAck, error) {
	envelope := message.Encode(message.ChannelControl, message.TypeHello, hello.Encode())
	pid, err := c.channel.NextSendPacketID()
	if err != nil {
		return message.HelloAck{}, err
	}
	sealed, err := c.channel.Seal(pid, envelope)
	if err != nil {
		return message.HelloAck{}, err
	}

	reply, err := c.roundTripHello(ctx, pid, sealed)
	if err != nil {
		return message.HelloAck{}, err
	}

	plaintext, err := c.channel.Open(reply.PacketID, reply.Payload)
	if err != nil {
		return message.HelloAck{}, errors.Wrap(err, "client: open hello ack")
	}
	env, err := message.DecodeEnvelope(plaintext)
	if err != nil || env.Type != message.TypeHelloAck {
		return message.HelloAck{}, errors.New("client: expected hello ack")
	}
	return message.DecodeHelloAck(env.Raw)
}

func (c *Client) roundTripHello(ctx context.Context, packetID uint64, sealed []byte) (*framing.Packet, error) {
	buf := make([]byte, 65535)
	for attempt := 0; attempt < dialAttempts; attempt++ {
		c.sendHandshakePacket(packetID, sealed)

		if err := c.conn.SetReadDeadline(time.Now().Add(dialRetryInterval)); err != nil {
			return nil, err
		}
		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
					continue
				}
			}
			return nil, err
		}
		pkt, err := framing.Decode(buf[:n])
		if err != nil || pkt.Kind != framing.KindHandshake {
			continue
		}
		return pkt, nil
	}
	return nil, ErrHandshakeTimeout
}

func (c *Client) sendHandshakePacket(packetID uint64, payload []byte) {
	pkt := &framing.Packet{Kind: framing.KindHandshake, Version: framing.Version, PacketID: packetID, Payload: payload}
	c.conn.WriteTo(framing.Encode(pkt), c.remoteAddr)
}
