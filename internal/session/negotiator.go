package session

import "github.com/wavry-io/wavry/internal/message"

// BuildHelloAck runs the host side of negotiation (spec §4.3 steps 1-4):
// pick codec and resolution, and assign fresh identity, unless another
// peer is already active, in which case the reply is a plain rejection
// with a zero session_id (spec §8 scenario "Rejection").
func BuildHelloAck(caps HostCapabilities, hello message.Hello, hostActive bool, defaultBitrateKbps uint32, keyframeIntervalMs uint32, publicAddr string) (message.HelloAck, [16]byte, uint32, error) {
	if hostActive {
		return message.HelloAck{Accepted: false}, [16]byte{}, 0, nil
	}

	codec := NegotiateCodec(caps, hello.SupportedCodecs)
	resolution := NegotiateResolution(caps, hello.MaxResolution)

	sessionID, err := GenerateSessionID()
	if err != nil {
		return message.HelloAck{}, [16]byte{}, 0, err
	}
	alias, err := GenerateAlias()
	if err != nil {
		return message.HelloAck{}, [16]byte{}, 0, err
	}

	fps := hello.MaxFPS
	ack := message.HelloAck{
		Accepted:           true,
		SelectedCodec:      codec,
		StreamResolution:   resolution,
		FPS:                fps,
		InitialBitrateKbps: defaultBitrateKbps,
		KeyframeIntervalMs: keyframeIntervalMs,
		SessionID:          sessionID,
		SessionAlias:       alias,
		PublicAddr:         publicAddr,
	}
	return ack, sessionID, alias, nil
}

// ApplyHelloAck drives the client FSM's ReceiveHelloAck event and, on
// acceptance, records the negotiated parameters onto the session (spec
// §8 invariant 8: Established carries the ack's session_id verbatim).
func ApplyHelloAck(s *Session, ack message.HelloAck) error {
	if err := s.FSM.ReceiveHelloAck(ack.Accepted, ack.SessionID); err != nil {
		return err
	}
	if !ack.Accepted {
		return nil
	}
	s.ID = ack.SessionID
	s.Alias = ack.SessionAlias
	s.NegotiatedCodec = ack.SelectedCodec
	s.NegotiatedResolution = ack.StreamResolution
	s.NegotiatedFPS = ack.FPS
	s.TargetBitrateKbps = ack.InitialBitrateKbps
	return nil
}

// ApplyHostHelloAck drives the host FSM's SendHelloAck event and records
// the same negotiated parameters the host just decided on.
func ApplyHostHelloAck(s *Session, ack message.HelloAck) error {
	if err := s.FSM.SendHelloAck(ack.Accepted, ack.SessionID); err != nil {
		return err
	}
	if !ack.Accepted {
		return nil
	}
	s.ID = ack.SessionID
	s.Alias = ack.SessionAlias
	s.NegotiatedCodec = ack.SelectedCodec
	s.NegotiatedResolution = ack.StreamResolution
	s.NegotiatedFPS = ack.FPS
	s.TargetBitrateKbps = ack.InitialBitrateKbps
	return nil
}

// HelloAckCache stores the most recently sent HelloAck encoding so a
// re-sent Hello during handshake produces an idempotent reply instead of
// re-running negotiation and minting a second session identity (spec §7:
// "cache the last msg2 so that a re-sent msg1 produces an idempotent msg2
// reply" — the same requirement applies one layer up, at the Hello/
// HelloAck exchange, since re-running BuildHelloAck twice would allocate
// two distinct session ids for one client).
type HelloAckCache struct {
	have bool
	ack  message.HelloAck
}

// Get returns the cached ack, if any.
func (c *HelloAckCache) Get() (message.HelloAck, bool) {
	return c.ack, c.have
}

// Set stores the ack to be replayed on a duplicate Hello.
func (c *HelloAckCache) Set(ack message.HelloAck) {
	c.ack = ack
	c.have = true
}
