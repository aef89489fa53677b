package relay

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"aidanwoods.dev/go-paseto"
)

// LeaseClaims is the decoded payload of a PASETO v4.public lease token
// (spec §4.6, §6 Glossary "Lease"): wavry_id, session_id, role, and the
// relay's negotiated bandwidth limits.
type LeaseClaims struct {
	WavryID       string
	SessionID     uuid.UUID
	Role          PeerRole
	SoftLimitKbps uint32
	HardLimitKbps uint32
}

// LeaseVerifier checks lease tokens against the Master's configured
// public key (spec §4.6: "verifies the token as a PASETO v4.public
// signature by the Master's configured public key").
type LeaseVerifier struct {
	publicKey paseto.V4AsymmetricPublicKey
	parser    paseto.Parser
}

// NewLeaseVerifier builds a verifier from the Master's hex-encoded
// Ed25519-backed v4 public key.
func NewLeaseVerifier(masterPublicKeyHex string) (*LeaseVerifier, error) {
	pub, err := paseto.NewV4AsymmetricPublicKeyFromHex(masterPublicKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "relay: parse master public key")
	}
	parser := paseto.NewParser()
	parser.AddRule(paseto.NotExpired())
	return &LeaseVerifier{publicKey: pub, parser: parser}, nil
}

// Verify checks token's signature and claims and ensures its session_id
// matches expectedSession. On any failure it returns a RejectReason
// suitable for a LeaseReject reply; verification failures never mutate
// relay state (spec §7: "failure does NOT create state").
func (v *LeaseVerifier) Verify(token string, expectedSession uuid.UUID) (LeaseClaims, RejectReason, error) {
	parsed, err := v.parser.ParseV4Public(v.publicKey, token, nil)
	if err != nil {
		return LeaseClaims{}, RejectReasonInvalidSignature, errors.Wrap(err, "relay: verify lease signature")
	}

	exp, err := parsed.GetExpiration()
	if err != nil {
		return LeaseClaims{}, RejectReasonInvalidSignature, errors.Wrap(err, "relay: lease missing expiration")
	}
	if !exp.After(time.Now()) {
		return LeaseClaims{}, RejectReasonExpired, errors.New("relay: lease expired")
	}

	wavryID, err := parsed.GetString("sub")
	if err != nil {
		return LeaseClaims{}, RejectReasonInvalidSignature, errors.Wrap(err, "relay: lease missing sub")
	}
	sidStr, err := parsed.GetString("sid")
	if err != nil {
		return LeaseClaims{}, RejectReasonInvalidSignature, errors.Wrap(err, "relay: lease missing sid")
	}
	sessionID, err := uuid.Parse(sidStr)
	if err != nil {
		return LeaseClaims{}, RejectReasonInvalidSignature, errors.Wrap(err, "relay: lease sid not a uuid")
	}
	if sessionID != expectedSession {
		return LeaseClaims{}, RejectReasonInvalidSignature, errors.New("relay: lease session_id mismatch")
	}

	roleStr, err := parsed.GetString("role")
	if err != nil {
		return LeaseClaims{}, RejectReasonInvalidSignature, errors.Wrap(err, "relay: lease missing role")
	}
	var role PeerRole
	switch roleStr {
	case "client":
		role = PeerRoleClient
	case "server":
		role = PeerRoleServer
	default:
		return LeaseClaims{}, RejectReasonInvalidRole, errors.Errorf("relay: lease has invalid role %q", roleStr)
	}

	claims := LeaseClaims{WavryID: wavryID, SessionID: sessionID, Role: role}
	if soft, err := parsed.GetString("slimit"); err == nil {
		claims.SoftLimitKbps = parseUint32OrZero(soft)
	}
	if hard, err := parsed.GetString("hlimit"); err == nil {
		claims.HardLimitKbps = parseUint32OrZero(hard)
	}
	return claims, 0, nil
}

func parseUint32OrZero(s string) uint32 {
	var v uint32
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + uint32(c-'0')
	}
	return v
}
