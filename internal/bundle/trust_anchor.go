package bundle

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// AnchorType distinguishes an issuer anchor (signs manifests) from an
// auditor anchor (signs safety attestations).
type AnchorType string

const (
	AnchorIssuer  AnchorType = "issuer"
	AnchorAuditor AnchorType = "auditor"
)

// AnchorState is the lifecycle state of a trust anchor.
type AnchorState string

const (
	StateActive     AnchorState = "active"
	StateRotating   AnchorState = "rotating"
	StateRetired    AnchorState = "retired"
	StateCompromised AnchorState = "compromised"
)

// TrustAnchor is a principal's key, scoped to a validity window and
// lifecycle state (spec §3).
type TrustAnchor struct {
	ID         string
	KeyID      string
	Algorithm  string
	PublicKey  string // "ed25519:" + base64(32 bytes)
	Type       AnchorType
	ValidFrom  time.Time
	ValidUntil time.Time
	State      AnchorState
}

// Usable reports whether the anchor may be used to verify a signature at
// time t: state must be active or rotating, and t must fall within
// [ValidFrom, ValidUntil].
func (a TrustAnchor) Usable(t time.Time) bool {
	if a.State != StateActive && a.State != StateRotating {
		return false
	}
	if t.Before(a.ValidFrom) || t.After(a.ValidUntil) {
		return false
	}
	return true
}

// DecodePublicKey parses the "ed25519:" + base64(32 raw bytes) public key
// format into an ed25519.PublicKey.
func (a TrustAnchor) DecodePublicKey() (ed25519.PublicKey, error) {
	return DecodePublicKey(a.PublicKey)
}

// DecodePublicKey parses the wire public key format (spec §6):
// "ed25519:" + base64(32-byte raw public key).
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	const prefix = "ed25519:"
	if !strings.HasPrefix(s, prefix) {
		return nil, fmt.Errorf("bundle: public key missing %q prefix", prefix)
	}
	raw, err := base64.StdEncoding.DecodeString(s[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("bundle: public key not valid base64: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("bundle: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// EncodePublicKey formats a raw ed25519 public key into the wire format.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return "ed25519:" + base64.StdEncoding.EncodeToString(pub)
}

// DecodeSignature parses the "base64:" + base64(signature) wire format.
func DecodeSignature(s string) ([]byte, error) {
	const prefix = "base64:"
	if !strings.HasPrefix(s, prefix) {
		return nil, fmt.Errorf("bundle: signature missing %q prefix", prefix)
	}
	raw, err := base64.StdEncoding.DecodeString(s[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("bundle: signature not valid base64: %w", err)
	}
	return raw, nil
}

// EncodeSignature formats a raw signature into the wire format.
func EncodeSignature(sig []byte) string {
	return "base64:" + base64.StdEncoding.EncodeToString(sig)
}
