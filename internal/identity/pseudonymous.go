package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/creed-space/vcp/internal/bundle"
)

// Pseudonym is an unlinkable stand-in for a real token: derived from
// (token, secret, salt) via HMAC-SHA-256 so that neither the pseudonym nor
// its ownership proof reveals the real token without the secret.
type Pseudonym struct {
	Value string // 32 hex chars
	Salt  []byte
}

// GeneratePseudonym derives a fresh pseudonym for t under secret. A new
// random salt is drawn each call, so repeated calls for the same token
// produce unlinkable pseudonyms.
func GeneratePseudonym(t bundle.Token, secret []byte) (Pseudonym, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return Pseudonym{}, fmt.Errorf("identity: generating salt: %w", err)
	}
	return derivePseudonym(t, secret, salt), nil
}

func derivePseudonym(t bundle.Token, secret, salt []byte) Pseudonym {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(t.Canonical()))
	mac.Write(salt)
	digest := mac.Sum(nil)
	return Pseudonym{Value: hex.EncodeToString(digest)[:32], Salt: append([]byte(nil), salt...)}
}

// ProveOwnership produces a proof that the holder of secret generated
// pseudonym p from t, without revealing t to a verifier that lacks secret.
func ProveOwnership(t bundle.Token, p Pseudonym, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(t.Canonical()))
	mac.Write([]byte(":"))
	mac.Write([]byte(p.Value))
	mac.Write([]byte(":"))
	mac.Write(p.Salt)
	return mac.Sum(nil)
}

// VerifyOwnership checks a proof produced by ProveOwnership in constant
// time, and also confirms p itself was derived from (t, secret, p.Salt) -
// a proof alone does not imply p.Value was honestly derived.
func VerifyOwnership(t bundle.Token, p Pseudonym, secret, proof []byte) bool {
	expectedPseudonym := derivePseudonym(t, secret, p.Salt)
	if subtle.ConstantTimeCompare([]byte(expectedPseudonym.Value), []byte(p.Value)) != 1 {
		return false
	}
	expectedProof := ProveOwnership(t, p, secret)
	return subtle.ConstantTimeCompare(expectedProof, proof) == 1
}
