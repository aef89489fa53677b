// Package framing implements the RIFT physical packet layer: the two-header
// datagram format shared by handshake and transport traffic, and the
// CRC-16/KERMIT checksum that guards it.
package framing

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Magic identifies a RIFT datagram ('R', 'I').
var Magic = [2]byte{0x52, 0x49}

// Version is the only RIFT wire version this codec understands.
const Version uint16 = 1

const (
	// HandshakeHeaderSize is the on-wire size of a handshake-shaped header:
	// magic(2) || version(2) || session_id(16) || packet_id(8) || checksum(2).
	HandshakeHeaderSize = 30
	// TransportHeaderSize is the on-wire size of a transport-shaped header:
	// magic(2) || version(2) || session_alias(4) || packet_id(8) || checksum(2).
	TransportHeaderSize = 18
)

// Kind distinguishes the two physical packet shapes.
type Kind int

const (
	// KindHandshake carries a full 128-bit session id and is used before a
	// session alias has been negotiated (including session_id == 0 crypto
	// handshake frames).
	KindHandshake Kind = iota
	// KindTransport carries a cheaper 32-bit session alias.
	KindTransport
)

// Packet is a decoded physical packet. Exactly one of SessionID/SessionAlias
// is meaningful, selected by Kind.
type Packet struct {
	Kind         Kind
	Version      uint16
	SessionID    [16]byte
	SessionAlias uint32
	PacketID     uint64
	Payload      []byte
}

// Error is the typed error surface for framing failures (spec §4.1, §7).
// Every value here must be handled by dropping the packet silently; callers
// must not log above debug for a peer-supplied malformed buffer.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrTooShort          = &Error{"framing: packet too short"}
	ErrInvalidMagic      = &Error{"framing: invalid magic"}
	ErrUnsupportedVer    = &Error{"framing: unsupported version"}
	ErrChecksumMismatch  = &Error{"framing: checksum mismatch"}
)

// Encode serializes p into a newly allocated buffer. The checksum field is
// computed over every header byte preceding it, matching the decoder's
// verification span exactly.
func Encode(p *Packet) []byte {
	if p.Kind == KindHandshake {
		buf := make([]byte, HandshakeHeaderSize+len(p.Payload))
		buf[0], buf[1] = Magic[0], Magic[1]
		binary.BigEndian.PutUint16(buf[2:4], p.Version)
		copy(buf[4:20], p.SessionID[:])
		binary.BigEndian.PutUint64(buf[20:28], p.PacketID)
		// checksum placeholder at buf[28:30], patched below
		copy(buf[HandshakeHeaderSize:], p.Payload)
		csum := crcKermit(buf[:28])
		binary.BigEndian.PutUint16(buf[28:30], csum)
		return buf
	}

	buf := make([]byte, TransportHeaderSize+len(p.Payload))
	buf[0], buf[1] = Magic[0], Magic[1]
	binary.BigEndian.PutUint16(buf[2:4], p.Version)
	binary.BigEndian.PutUint32(buf[4:8], p.SessionAlias)
	binary.BigEndian.PutUint64(buf[8:16], p.PacketID)
	copy(buf[TransportHeaderSize:], p.Payload)
	csum := crcKermit(buf[:16])
	binary.BigEndian.PutUint16(buf[16:18], csum)
	return buf
}

// Decode validates and parses a received datagram. The returned Packet's
// Payload aliases buf; callers that retain it past the current read loop
// iteration must copy.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < TransportHeaderSize {
		return nil, ErrTooShort
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] {
		return nil, ErrInvalidMagic
	}
	version := binary.BigEndian.Uint16(buf[2:4])
	if version != Version {
		return nil, ErrUnsupportedVer
	}

	// Disambiguate handshake vs transport shape: a transport alias of zero
	// would collide with the handshake-shaped decode, so the zero test is
	// paired with a minimum-length check per spec §3.
	aliasTest := binary.BigEndian.Uint32(buf[4:8])
	if aliasTest == 0 && len(buf) >= HandshakeHeaderSize {
		csum := binary.BigEndian.Uint16(buf[28:30])
		if crcKermit(buf[:28]) != csum {
			return nil, ErrChecksumMismatch
		}
		p := &Packet{Kind: KindHandshake, Version: version}
		copy(p.SessionID[:], buf[4:20])
		p.PacketID = binary.BigEndian.Uint64(buf[20:28])
		p.Payload = buf[HandshakeHeaderSize:]
		return p, nil
	}

	csum := binary.BigEndian.Uint16(buf[16:18])
	if crcKermit(buf[:16]) != csum {
		return nil, ErrChecksumMismatch
	}
	p := &Packet{Kind: KindTransport, Version: version}
	p.SessionAlias = aliasTest
	p.PacketID = binary.BigEndian.Uint64(buf[8:16])
	p.Payload = buf[TransportHeaderSize:]
	return p, nil
}

// QuickCheck reports whether buf is at least long enough to carry a RIFT
// magic and starts with it, without fully validating or decoding it. Used
// by collaborators (e.g. the relay forwarder) that need to distinguish a
// full physical packet from some other payload shape cheaply.
func QuickCheck(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == Magic[0] && buf[1] == Magic[1]
}

// HeaderSize returns the on-wire header length for p's shape.
func (p *Packet) HeaderSize() int {
	if p.Kind == KindHandshake {
		return HandshakeHeaderSize
	}
	return TransportHeaderSize
}

// Validate is a convenience wrapper so callers can treat any framing.Error
// uniformly without a type switch at every call site.
func Validate(err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return err
}
