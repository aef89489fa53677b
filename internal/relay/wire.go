// Package relay implements the Wavry relay forwarding plane: token-
// authenticated lease presentation, two-peer session binding, NAT
// rebinding tolerance, per-session and per-IP rate limits, and a
// sequence-replay window on forwarded traffic (spec §4.6).
package relay

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/wavry-io/wavry/internal/framing"
)

// HeaderSize is the on-wire size of a Relay Header: magic(2) ||
// version(2) || packet_type(1) || session_id(16).
const HeaderSize = 2 + 2 + 1 + 16

// PacketType enumerates the relay datagram kinds (spec §4.6).
type PacketType uint8

const (
	PacketTypeLeasePresent PacketType = iota + 1
	PacketTypeLeaseRenew
	PacketTypeLeaseAck
	PacketTypeLeaseReject
	PacketTypeForward
)

// Header is the fixed prefix on every relay datagram.
type Header struct {
	PacketType PacketType
	SessionID  uuid.UUID
}

var ErrTruncated = errors.New("relay: truncated packet")
var ErrInvalidMagic = errors.New("relay: invalid magic")
var ErrUnsupportedVersion = errors.New("relay: unsupported version")

// Encode serializes the header into a header-sized prefix of dst.
func (h Header) Encode(dst []byte) {
	dst[0], dst[1] = framing.Magic[0], framing.Magic[1]
	binary.BigEndian.PutUint16(dst[2:4], framing.Version)
	dst[4] = byte(h.PacketType)
	copy(dst[5:21], h.SessionID[:])
}

// DecodeHeader validates the magic/version and parses a Header from buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrTruncated
	}
	if buf[0] != framing.Magic[0] || buf[1] != framing.Magic[1] {
		return Header{}, ErrInvalidMagic
	}
	if binary.BigEndian.Uint16(buf[2:4]) != framing.Version {
		return Header{}, ErrUnsupportedVersion
	}
	var h Header
	h.PacketType = PacketType(buf[4])
	copy(h.SessionID[:], buf[5:21])
	return h, nil
}

// QuickCheck reports whether buf looks like a relay datagram without fully
// decoding it, mirroring the teacher-adjacent original's
// `RelayHeader::quick_check` fast-reject path.
func QuickCheck(buf []byte) bool {
	return len(buf) >= HeaderSize && buf[0] == framing.Magic[0] && buf[1] == framing.Magic[1]
}

// PeerRole distinguishes which side of a session a lease names.
type PeerRole uint8

const (
	PeerRoleClient PeerRole = iota
	PeerRoleServer
)

// LeasePresentPayload is the LeasePresent packet_type's body.
type LeasePresentPayload struct {
	PeerRole   PeerRole
	LeaseToken string
}

func (p LeasePresentPayload) Encode() []byte {
	buf := make([]byte, 1+2+len(p.LeaseToken))
	buf[0] = byte(p.PeerRole)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(p.LeaseToken)))
	copy(buf[3:], p.LeaseToken)
	return buf
}

func DecodeLeasePresentPayload(buf []byte) (LeasePresentPayload, error) {
	if len(buf) < 3 {
		return LeasePresentPayload{}, ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(buf[1:3]))
	if len(buf) < 3+n {
		return LeasePresentPayload{}, ErrTruncated
	}
	return LeasePresentPayload{
		PeerRole:   PeerRole(buf[0]),
		LeaseToken: string(buf[3 : 3+n]),
	}, nil
}

// LeaseAckPayload replies to a successful LeasePresent or LeaseRenew.
type LeaseAckPayload struct {
	UnixExpiresMs uint64
	SoftLimitKbps uint32
	HardLimitKbps uint32
}

const leaseAckPayloadSize = 8 + 4 + 4

func (p LeaseAckPayload) Encode() []byte {
	buf := make([]byte, leaseAckPayloadSize)
	binary.BigEndian.PutUint64(buf[0:8], p.UnixExpiresMs)
	binary.BigEndian.PutUint32(buf[8:12], p.SoftLimitKbps)
	binary.BigEndian.PutUint32(buf[12:16], p.HardLimitKbps)
	return buf
}

func DecodeLeaseAckPayload(buf []byte) (LeaseAckPayload, error) {
	if len(buf) < leaseAckPayloadSize {
		return LeaseAckPayload{}, ErrTruncated
	}
	return LeaseAckPayload{
		UnixExpiresMs: binary.BigEndian.Uint64(buf[0:8]),
		SoftLimitKbps: binary.BigEndian.Uint32(buf[8:12]),
		HardLimitKbps: binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}

// RejectReason names why a LeasePresent was refused (spec §4.6, §7).
type RejectReason uint8

const (
	RejectReasonInvalidSignature RejectReason = iota
	RejectReasonExpired
	RejectReasonSessionFull
	RejectReasonInvalidRole
)

func (r RejectReason) String() string {
	switch r {
	case RejectReasonInvalidSignature:
		return "InvalidSignature"
	case RejectReasonExpired:
		return "Expired"
	case RejectReasonSessionFull:
		return "SessionFull"
	case RejectReasonInvalidRole:
		return "InvalidRole"
	default:
		return "Unknown"
	}
}

// LeaseRejectPayload is the LeaseReject packet_type's body.
type LeaseRejectPayload struct {
	Reason RejectReason
}

func (p LeaseRejectPayload) Encode() []byte {
	return []byte{byte(p.Reason)}
}

func DecodeLeaseRejectPayload(buf []byte) (LeaseRejectPayload, error) {
	if len(buf) < 1 {
		return LeaseRejectPayload{}, ErrTruncated
	}
	return LeaseRejectPayload{Reason: RejectReason(buf[0])}, nil
}

// ForwardPayloadHeader prefixes a Forward payload that is not itself a full
// RIFT physical packet: a bare 64-bit sequence used for the relay's own
// replay window (spec §4.6: "payload starts with either a RIFT magic ...
// or a Forward Payload Header carrying a 64-bit sequence").
type ForwardPayloadHeader struct {
	Sequence uint64
}

const ForwardPayloadHeaderSize = 8

func (p ForwardPayloadHeader) Encode() []byte {
	buf := make([]byte, ForwardPayloadHeaderSize)
	binary.BigEndian.PutUint64(buf, p.Sequence)
	return buf
}

// ExtractForwardSequence reads the replay-window sequence number out of a
// Forward payload, whichever shape it takes: a full RIFT physical packet
// uses its packet_id, otherwise the bare ForwardPayloadHeader is read.
func ExtractForwardSequence(payload []byte) (uint64, error) {
	if framing.QuickCheck(payload) {
		p, err := framing.Decode(payload)
		if err != nil {
			return 0, errors.Wrap(err, "relay: decode embedded RIFT packet")
		}
		return p.PacketID, nil
	}
	if len(payload) < ForwardPayloadHeaderSize {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint64(payload[:ForwardPayloadHeaderSize]), nil
}
