// Package message implements the RIFT structured message codec: the
// control/input/media payloads that ride inside a framing.Packet once the
// crypto channel has decrypted it (spec §6).
package message

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Channel identifies which of the three logical channels a message belongs
// to. It travels in every envelope; the send path does not schedule or
// prioritise by it.
type Channel uint8

const (
	ChannelControl Channel = iota
	ChannelInput
	ChannelMedia
)

// Type tags the structured payload that follows the channel byte.
type Type uint8

const (
	TypeHello Type = iota + 1
	TypeHelloAck
	TypePing
	TypePong
	TypeStats
	TypeCongestion
	TypeNack
	TypeEncoderControl
	TypePoseUpdate
	TypeHandPoseUpdate
	TypeVrTiming
	TypeSelectMonitor
	TypeMonitorList
	TypeFileOffer
	TypeFileChunk
	TypeFileAck

	TypeKey
	TypeMouseButton
	TypeMouseMove
	TypeScroll
	TypeGamepad

	TypeVideoChunk
	TypeFec
	TypeAudio
)

var ErrTruncated = errors.New("message: truncated payload")

// Envelope is the decoded (channel, type, body) triple. Body encoding is
// message-type specific; callers type-assert via the Decode* helpers below.
type Envelope struct {
	Channel Channel
	Type    Type
	Raw     []byte
}

// Encode prefixes payload with its (channel, type) tag.
func Encode(ch Channel, typ Type, payload []byte) []byte {
	buf := make([]byte, 2+len(payload))
	buf[0] = byte(ch)
	buf[1] = byte(typ)
	copy(buf[2:], payload)
	return buf
}

// DecodeEnvelope splits the (channel, type) tag from the remaining bytes.
func DecodeEnvelope(buf []byte) (Envelope, error) {
	if len(buf) < 2 {
		return Envelope{}, ErrTruncated
	}
	return Envelope{Channel: Channel(buf[0]), Type: Type(buf[1]), Raw: buf[2:]}, nil
}

func putUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func putUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func getUint16(b []byte) uint16    { return binary.BigEndian.Uint16(b) }
func getUint32(b []byte) uint32    { return binary.BigEndian.Uint32(b) }
func getUint64(b []byte) uint64    { return binary.BigEndian.Uint64(b) }

// putString writes a length-delimited (uint16 length) UTF-8 string.
func putString(dst *[]byte, s string) {
	var lenBuf [2]byte
	putUint16(lenBuf[:], uint16(len(s)))
	*dst = append(*dst, lenBuf[:]...)
	*dst = append(*dst, s...)
}

func getString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, ErrTruncated
	}
	n := int(getUint16(buf))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, ErrTruncated
	}
	return string(buf[:n]), buf[n:], nil
}
