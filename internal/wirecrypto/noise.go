// Package wirecrypto implements the RIFT crypto channel: a Noise_XX_25519_
// ChaChaPoly_BLAKE2s handshake and the packet-id-nonced AEAD transport that
// rides on top of it (spec §4.2).
//
// The handshake state machine below is a direct, from-scratch implementation
// of the Noise Protocol Framework's symmetric state (MixHash/MixKey/
// EncryptAndHash) rather than a wrapper around a third-party Noise library,
// because none of the retrieval pack's dependencies provide one; the
// HMAC-BLAKE2s KDF and ChaCha20-Poly1305 AEAD shapes are grounded in the
// WireGuard-derived transport handshake code in the pack (noisysockets).
package wirecrypto

import (
	"crypto/hmac"
	"encoding/binary"
	"hash"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// ProtocolName is the Noise handshake pattern/ciphersuite identifier.
const ProtocolName = "Noise_XX_25519_ChaChaPoly_BLAKE2s"

const (
	dhLen     = 32
	hashLen   = blake2s.Size
	keyLen    = chacha20poly1305.KeySize
	tagLen    = chacha20poly1305.Overhead
)

// PrivateKey is a 32-byte X25519 scalar.
type PrivateKey [32]byte

// PublicKey is a 32-byte X25519 point.
type PublicKey [32]byte

// GenerateKeypair produces a fresh X25519 identity keypair using the crypto/
// rand-backed curve25519 scalar base multiplication.
func GenerateKeypair(rnd func([]byte) (int, error)) (PrivateKey, PublicKey, error) {
	var priv PrivateKey
	if _, err := rnd(priv[:]); err != nil {
		return priv, PublicKey{}, err
	}
	pub, err := publicFromPrivate(priv)
	return priv, pub, err
}

func publicFromPrivate(priv PrivateKey) (PublicKey, error) {
	var pub PublicKey
	out, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], out)
	return pub, nil
}

func dh(priv PrivateKey, pub PublicKey) ([]byte, error) {
	return curve25519.X25519(priv[:], pub[:])
}

// cipherState is Noise's CipherState: a key plus a strictly increasing nonce
// counter. hasKey reports whether Encrypt/Decrypt are no-ops (pre-key).
type cipherState struct {
	key    [keyLen]byte
	hasKey bool
	n      uint64
}

func nonceFor(n uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], n)
	return nonce
}

func (cs *cipherState) encryptWithAd(ad, plaintext []byte) ([]byte, error) {
	if !cs.hasKey {
		return append([]byte(nil), plaintext...), nil
	}
	aead, err := chacha20poly1305.New(cs.key[:])
	if err != nil {
		return nil, err
	}
	nonce := nonceFor(cs.n)
	cs.n++
	return aead.Seal(nil, nonce[:], plaintext, ad), nil
}

func (cs *cipherState) decryptWithAd(ad, ciphertext []byte) ([]byte, error) {
	if !cs.hasKey {
		return append([]byte(nil), ciphertext...), nil
	}
	aead, err := chacha20poly1305.New(cs.key[:])
	if err != nil {
		return nil, err
	}
	nonce := nonceFor(cs.n)
	cs.n++
	return aead.Open(nil, nonce[:], ciphertext, ad)
}

// symmetricState tracks the running handshake hash and chaining key.
type symmetricState struct {
	cs cipherState
	ck [hashLen]byte
	h  [hashLen]byte
}

func newSymmetricState() *symmetricState {
	ss := &symmetricState{}
	name := []byte(ProtocolName)
	if len(name) <= hashLen {
		copy(ss.h[:], name)
	} else {
		ss.h = blake2s.Sum256(name)
	}
	ss.ck = ss.h
	return ss
}

func (ss *symmetricState) mixHash(data []byte) {
	h, _ := blake2s.New256(nil)
	h.Write(ss.h[:])
	h.Write(data)
	copy(ss.h[:], h.Sum(nil))
}

// hkdf2 implements Noise's HKDF with 2 outputs, keyed by HMAC-BLAKE2s.
func hkdf2(chainingKey [hashLen]byte, inputKeyMaterial []byte) (out1, out2 [hashLen]byte) {
	tempKey := hmacHash(chainingKey[:], inputKeyMaterial)
	out1 = hmacHash(tempKey[:], []byte{0x01})
	out2 = hmacHash(tempKey[:], append(out1[:], 0x02))
	return
}

func newBlake2s() hash.Hash {
	h, _ := blake2s.New256(nil)
	return h
}

func hmacHash(key, data []byte) [hashLen]byte {
	mac := hmac.New(newBlake2s, key)
	mac.Write(data)
	var out [hashLen]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func (ss *symmetricState) mixKey(inputKeyMaterial []byte) {
	ck, tempK := hkdf2(ss.ck, inputKeyMaterial)
	ss.ck = ck
	ss.cs.key = tempK
	ss.cs.hasKey = true
	ss.cs.n = 0
}

func (ss *symmetricState) encryptAndHash(plaintext []byte) ([]byte, error) {
	ct, err := ss.cs.encryptWithAd(ss.h[:], plaintext)
	if err != nil {
		return nil, err
	}
	ss.mixHash(ct)
	return ct, nil
}

func (ss *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	pt, err := ss.cs.decryptWithAd(ss.h[:], ciphertext)
	if err != nil {
		return nil, err
	}
	ss.mixHash(ciphertext)
	return pt, nil
}

// split derives the two transport directions' keys once the handshake
// completes, per Noise §5.1.
func (ss *symmetricState) split() (send, recv [keyLen]byte) {
	send, recv = hkdf2(ss.ck, nil)
	return
}
