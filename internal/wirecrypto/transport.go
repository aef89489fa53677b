package wirecrypto

import (
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/pkg/errors"
)

// replayWindowBits is the width of the sliding replay bitmap (spec §4.2).
const replayWindowBits = 1024
const replayWindowWords = replayWindowBits / 64

// ErrReplay is returned when an inbound packet id has already been seen or
// lies below the sliding window (spec §7, §8 invariant 4). Callers must drop
// the packet and must not log at info level.
var ErrReplay = errors.New("wirecrypto: replay detected")

// ErrDecryptFailed signals AEAD authentication failure, including any
// single-bit ciphertext tamper (spec §8 invariant 3).
var ErrDecryptFailed = errors.New("wirecrypto: decryption failed")

// replayWindow is a sliding bitmap of the highest-seen packet ids, directly
// analogous to WireGuard's anti-replay window.
type replayWindow struct {
	highest uint64
	bits    [replayWindowWords]uint64
	seeded  bool
}

// checkAndUpdate reports whether id is new (not a replay) and, if so, marks
// it as seen. It must be evaluated before any other side effect on session
// state (spec §4.2).
func (w *replayWindow) checkAndUpdate(id uint64) bool {
	if !w.seeded {
		w.seeded = true
		w.highest = id
		w.setBit(0)
		return true
	}
	if id > w.highest {
		shift := id - w.highest
		if shift >= replayWindowBits {
			w.bits = [replayWindowWords]uint64{}
		} else {
			w.shiftLeft(shift)
		}
		w.highest = id
		w.setBit(0)
		return true
	}
	back := w.highest - id
	if back >= replayWindowBits {
		return false
	}
	if w.testBit(back) {
		return false
	}
	w.setBit(back)
	return true
}

func (w *replayWindow) shiftLeft(n uint64) {
	if n >= replayWindowBits {
		w.bits = [replayWindowWords]uint64{}
		return
	}
	wordShift := n / 64
	bitShift := n % 64
	var next [replayWindowWords]uint64
	for i := replayWindowWords - 1; i >= 0; i-- {
		srcIdx := i - int(wordShift)
		if srcIdx < 0 {
			continue
		}
		v := w.bits[srcIdx] << bitShift
		if bitShift != 0 && srcIdx-1 >= 0 {
			v |= w.bits[srcIdx-1] >> (64 - bitShift)
		}
		next[i] = v
	}
	w.bits = next
}

func (w *replayWindow) setBit(back uint64) {
	w.bits[back/64] |= 1 << (back % 64)
}

func (w *replayWindow) testBit(back uint64) bool {
	return w.bits[back/64]&(1<<(back%64)) != 0
}

// Session is the established, post-handshake AEAD transport: a send cipher
// keyed off a strictly monotonic packet-id nonce, a receive cipher guarded
// by a replay window, and the channel-binding handshake hash (spec §4.2).
type Session struct {
	sendKey      [keyLen]byte
	recvKey      [keyLen]byte
	handshakeHash [32]byte
	remoteStatic PublicKey

	nextPacketID uint64
	window       replayWindow
}

func newSession(sendKey, recvKey [keyLen]byte, hash [32]byte, remoteStatic PublicKey) *Session {
	return &Session{sendKey: sendKey, recvKey: recvKey, handshakeHash: hash, remoteStatic: remoteStatic}
}

// HandshakeHash returns the 32-byte Noise handshake hash, usable as channel
// binding material (spec §4.2, §6 glossary).
func (s *Session) HandshakeHash() [32]byte { return s.handshakeHash }

// RemoteStaticKey returns the peer's authenticated static identity key.
func (s *Session) RemoteStaticKey() PublicKey { return s.remoteStatic }

// maxPacketID guards against nonce exhaustion (spec §9): packet ids must
// never wrap, and wrapping is unreachable within any realistic session
// lifetime, so sends are refused once the id would cross this bound.
const maxPacketID = 1<<63 - 1

// NextSendPacketID allocates the next strictly monotonic packet id to use as
// both the framing header's packet_id and the AEAD nonce.
func (s *Session) NextSendPacketID() (uint64, error) {
	if s.nextPacketID > maxPacketID {
		return 0, errors.New("wirecrypto: packet id space exhausted, session must re-key")
	}
	id := s.nextPacketID
	s.nextPacketID++
	return id, nil
}

// Seal encrypts plaintext for transmission under packetID as the nonce. The
// framing header containing packetID is authenticated implicitly: a
// replayed header reuses a nonce and is rejected by the honest receiver's
// replay window (spec §4.2).
func (s *Session) Seal(packetID uint64, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(s.sendKey[:])
	if err != nil {
		return nil, err
	}
	nonce := nonceFor(packetID)
	return aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// Open decrypts an inbound ciphertext after running the replay check. The
// replay check happens first and unconditionally, per spec §4.2: it must
// run before any other side effect.
func (s *Session) Open(packetID uint64, ciphertext []byte) ([]byte, error) {
	if !s.window.checkAndUpdate(packetID) {
		return nil, ErrReplay
	}
	aead, err := chacha20poly1305.New(s.recvKey[:])
	if err != nil {
		return nil, err
	}
	nonce := nonceFor(packetID)
	pt, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return pt, nil
}
