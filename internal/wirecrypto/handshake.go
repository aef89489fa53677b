package wirecrypto

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

// Role distinguishes the Noise XX initiator (client) from the responder
// (host), matching spec §3's client/host roles.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// keyKind selects which of a party's two keypairs a pattern token refers to.
type keyKind int

const (
	keyEphemeral keyKind = iota
	keyStatic
)

// Handshake drives one side of a Noise_XX_25519_ChaChaPoly_BLAKE2s exchange:
//
//	initiator: -> e                 (message 1)
//	responder: <- e, ee, s, es      (message 2)
//	initiator: -> s, se             (message 3)
//
// Token DH processing follows the Noise convention: a token like "es" is
// always DH(initiator's e, responder's s), independent of who is currently
// sending; each side evaluates it using whichever key it actually holds
// locally and the matching key it has already received from the peer.
type Handshake struct {
	role Role
	ss   *symmetricState

	localStaticPriv PrivateKey
	localStaticPub  PublicKey
	localEphPriv    PrivateKey
	localEphPub     PublicKey

	remoteEphemeral PublicKey
	remoteStatic    PublicKey
	haveRemoteEph   bool
	haveRemoteStat  bool

	step int
}

var (
	// ErrHandshakeOutOfOrder is returned when a handshake method is called
	// on the wrong side or in the wrong step (spec §7 handshake protocol
	// errors): the caller must drop the peer without mutating session
	// state.
	ErrHandshakeOutOfOrder = errors.New("wirecrypto: handshake message out of sequence")
	// ErrHandshakeFailed covers malformed messages and AEAD authentication
	// failures during the handshake.
	ErrHandshakeFailed = errors.New("wirecrypto: handshake authentication failed")
)

// NewHandshake starts a new handshake for role using the given local static
// identity keypair. The local static public key stays hidden from passive
// observers until message 2/3 decrypt it under the session's running
// handshake hash (spec §4.2's identity-hiding goal).
func NewHandshake(role Role, staticPriv PrivateKey) (*Handshake, error) {
	pub, err := publicFromPrivate(staticPriv)
	if err != nil {
		return nil, errors.Wrap(err, "wirecrypto: derive static public key")
	}
	return &Handshake{
		role:            role,
		ss:              newSymmetricState(),
		localStaticPriv: staticPriv,
		localStaticPub:  pub,
	}, nil
}

// dhToken computes the shared secret for a pattern token identified by which
// key kind belongs to the initiator and which belongs to the responder.
func (h *Handshake) dhToken(initiatorKey, responderKey keyKind) ([]byte, error) {
	var localPriv PrivateKey
	var remotePub PublicKey

	if h.role == RoleInitiator {
		localPriv = h.pick(initiatorKey)
		remotePub = h.pickRemote(responderKey)
	} else {
		localPriv = h.pick(responderKey)
		remotePub = h.pickRemote(initiatorKey)
	}
	return dh(localPriv, remotePub)
}

func (h *Handshake) pick(kind keyKind) PrivateKey {
	if kind == keyEphemeral {
		return h.localEphPriv
	}
	return h.localStaticPriv
}

func (h *Handshake) pickRemote(kind keyKind) PublicKey {
	if kind == keyEphemeral {
		return h.remoteEphemeral
	}
	return h.remoteStatic
}

func (h *Handshake) generateEphemeral() error {
	priv, pub, err := GenerateKeypair(rand.Read)
	if err != nil {
		return err
	}
	h.localEphPriv, h.localEphPub = priv, pub
	return nil
}

// WriteMessage1 (initiator only) emits "-> e".
func (h *Handshake) WriteMessage1() ([]byte, error) {
	if h.role != RoleInitiator || h.step != 0 {
		return nil, ErrHandshakeOutOfOrder
	}
	if err := h.generateEphemeral(); err != nil {
		return nil, err
	}
	h.ss.mixHash(h.localEphPub[:])
	h.step = 1
	return append([]byte(nil), h.localEphPub[:]...), nil
}

// ReadMessage1 (responder only) consumes "-> e".
func (h *Handshake) ReadMessage1(msg []byte) error {
	if h.role != RoleResponder || h.step != 0 {
		return ErrHandshakeOutOfOrder
	}
	if len(msg) != dhLen {
		return ErrHandshakeFailed
	}
	copy(h.remoteEphemeral[:], msg)
	h.haveRemoteEph = true
	h.ss.mixHash(msg)
	h.step = 1
	return nil
}

// WriteMessage2 (responder only) emits "<- e, ee, s, es".
func (h *Handshake) WriteMessage2() ([]byte, error) {
	if h.role != RoleResponder || h.step != 1 {
		return nil, ErrHandshakeOutOfOrder
	}
	if err := h.generateEphemeral(); err != nil {
		return nil, err
	}
	h.ss.mixHash(h.localEphPub[:])

	ee, err := h.dhToken(keyEphemeral, keyEphemeral)
	if err != nil {
		return nil, err
	}
	h.ss.mixKey(ee)

	encStatic, err := h.ss.encryptAndHash(h.localStaticPub[:])
	if err != nil {
		return nil, err
	}

	es, err := h.dhToken(keyEphemeral, keyStatic)
	if err != nil {
		return nil, err
	}
	h.ss.mixKey(es)

	h.step = 2
	return append(append([]byte(nil), h.localEphPub[:]...), encStatic...), nil
}

// ReadMessage2 (initiator only) consumes "<- e, ee, s, es".
func (h *Handshake) ReadMessage2(msg []byte) error {
	if h.role != RoleInitiator || h.step != 1 {
		return ErrHandshakeOutOfOrder
	}
	if len(msg) < dhLen+dhLen+tagLen {
		return ErrHandshakeFailed
	}
	copy(h.remoteEphemeral[:], msg[:dhLen])
	h.haveRemoteEph = true
	h.ss.mixHash(msg[:dhLen])

	ee, err := h.dhToken(keyEphemeral, keyEphemeral)
	if err != nil {
		return err
	}
	h.ss.mixKey(ee)

	staticCT := msg[dhLen:]
	staticPT, err := h.ss.decryptAndHash(staticCT)
	if err != nil {
		return ErrHandshakeFailed
	}
	if len(staticPT) != dhLen {
		return ErrHandshakeFailed
	}
	copy(h.remoteStatic[:], staticPT)
	h.haveRemoteStat = true

	es, err := h.dhToken(keyEphemeral, keyStatic)
	if err != nil {
		return err
	}
	h.ss.mixKey(es)

	h.step = 2
	return nil
}

// WriteMessage3 (initiator only) emits "-> s, se" and completes the
// handshake, returning the derived transport Session.
func (h *Handshake) WriteMessage3() ([]byte, *Session, error) {
	if h.role != RoleInitiator || h.step != 2 {
		return nil, nil, ErrHandshakeOutOfOrder
	}
	encStatic, err := h.ss.encryptAndHash(h.localStaticPub[:])
	if err != nil {
		return nil, nil, err
	}

	se, err := h.dhToken(keyStatic, keyEphemeral)
	if err != nil {
		return nil, nil, err
	}
	h.ss.mixKey(se)

	sess := h.finish()
	h.step = 3
	return encStatic, sess, nil
}

// ReadMessage3 (responder only) consumes "-> s, se" and completes the
// handshake, returning the derived transport Session.
func (h *Handshake) ReadMessage3(msg []byte) (*Session, error) {
	if h.role != RoleResponder || h.step != 2 {
		return nil, ErrHandshakeOutOfOrder
	}
	staticPT, err := h.ss.decryptAndHash(msg)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	if len(staticPT) != dhLen {
		return nil, ErrHandshakeFailed
	}
	copy(h.remoteStatic[:], staticPT)
	h.haveRemoteStat = true

	se, err := h.dhToken(keyStatic, keyEphemeral)
	if err != nil {
		return nil, err
	}
	h.ss.mixKey(se)

	sess := h.finish()
	h.step = 3
	return sess, nil
}

// RemoteStaticKey returns the peer's authenticated static identity key. Only
// valid once the handshake has completed.
func (h *Handshake) RemoteStaticKey() (PublicKey, bool) {
	return h.remoteStatic, h.haveRemoteStat
}

func (h *Handshake) finish() *Session {
	sendKey, recvKey := h.ss.split()
	if h.role == RoleResponder {
		// The initiator's "first" derived key is its send key (c1) and the
		// responder's receive key; swap so each side's Session.send always
		// means "key used to encrypt outbound traffic".
		sendKey, recvKey = recvKey, sendKey
	}
	var hash [32]byte = h.ss.h
	return newSession(sendKey, recvKey, hash, h.remoteStatic)
}
