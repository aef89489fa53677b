package wirecrypto

import "github.com/pkg/errors"

// ChannelState is the three-variant crypto channel state every orchestrator
// holds (spec §4.2): application traffic is forbidden outside Established.
type ChannelState int

const (
	Disabled ChannelState = iota
	Handshaking
	Established
)

// ErrNotEstablished is returned when application traffic is attempted while
// the channel is Disabled or still Handshaking.
var ErrNotEstablished = errors.New("wirecrypto: channel not established")

// Channel wraps a Handshake-in-progress and, once complete, the resulting
// Session, exposing exactly the three states spec §4.2 requires.
type Channel struct {
	state     ChannelState
	handshake *Handshake
	session   *Session

	// disabledPacketID counts outbound packet ids for a Disabled channel,
	// which has no Session to derive AEAD nonces from.
	disabledPacketID uint64
}

// NewDisabledChannel returns a channel that never encrypts — used only when
// an operator has explicitly opted into the insecure dev mode gated by the
// WAVRY_* environment variables (spec §6).
func NewDisabledChannel() *Channel {
	return &Channel{state: Disabled}
}

// NewHandshakingChannel starts a channel performing a live Noise handshake.
func NewHandshakingChannel(role Role, staticPriv PrivateKey) (*Channel, error) {
	hs, err := NewHandshake(role, staticPriv)
	if err != nil {
		return nil, err
	}
	return &Channel{state: Handshaking, handshake: hs}, nil
}

// State reports the channel's current variant.
func (c *Channel) State() ChannelState { return c.state }

// Handshake exposes the in-progress handshake, or nil outside Handshaking.
func (c *Channel) Handshake() *Handshake {
	if c.state != Handshaking {
		return nil
	}
	return c.handshake
}

// CompleteWith transitions Handshaking -> Established once a Session has
// been derived by the caller's handshake driving code.
func (c *Channel) CompleteWith(sess *Session) {
	c.session = sess
	c.handshake = nil
	c.state = Established
}

// Seal encrypts application payload. Returns ErrNotEstablished outside the
// Established state (spec §4.2: "forbid application traffic during
// Handshaking").
func (c *Channel) Seal(packetID uint64, plaintext []byte) ([]byte, error) {
	if c.state == Disabled {
		return append([]byte(nil), plaintext...), nil
	}
	if c.state != Established {
		return nil, ErrNotEstablished
	}
	return c.session.Seal(packetID, plaintext)
}

// Open decrypts application payload, or passes it through unchanged when
// the channel is explicitly Disabled.
func (c *Channel) Open(packetID uint64, ciphertext []byte) ([]byte, error) {
	if c.state == Disabled {
		return append([]byte(nil), ciphertext...), nil
	}
	if c.state != Established {
		return nil, ErrNotEstablished
	}
	return c.session.Open(packetID, ciphertext)
}

// NextSendPacketID proxies to the underlying session once established.
func (c *Channel) NextSendPacketID() (uint64, error) {
	if c.state == Disabled {
		id := c.disabledPacketID
		c.disabledPacketID++
		return id, nil
	}
	if c.state != Established {
		return 0, ErrNotEstablished
	}
	return c.session.NextSendPacketID()
}

// Session returns the established transport session, if any.
func (c *Channel) Session() *Session {
	return c.session
}
