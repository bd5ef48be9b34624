package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ContentHash canonicalizes content and returns its external hash form,
// "sha256:" followed by lowercase hex — the same string stored in
// manifest.bundle.content_hash.
func ContentHash(content string) (string, error) {
	canonical, err := CanonicalizeContent(content)
	if err != nil {
		return "", err
	}
	return HashCanonical(canonical), nil
}

// HashCanonical hashes an already-canonicalized string without
// re-validating it. Used when the canonical form is already on hand (e.g.
// re-verifying a previously canonicalized value).
func HashCanonical(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// VerifyContentHash reports whether content's canonical hash matches the
// expected external hash form. Any canonicalization error counts as a
// mismatch (caller maps canonicalization failure to INVALID_SCHEMA, hash
// failure to HASH_MISMATCH — this function only answers the hash
// question).
func VerifyContentHash(content, expected string) (bool, error) {
	got, err := ContentHash(content)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(got, expected), nil
}

// ParseContentHash validates the "sha256:" + 64 lowercase hex char format
// and returns the raw hash bytes.
func ParseContentHash(s string) ([]byte, error) {
	const prefix = "sha256:"
	if !strings.HasPrefix(s, prefix) {
		return nil, fmt.Errorf("canon: content hash missing %q prefix", prefix)
	}
	hexPart := s[len(prefix):]
	if len(hexPart) != 64 {
		return nil, fmt.Errorf("canon: content hash hex part must be 64 chars, got %d", len(hexPart))
	}
	if hexPart != strings.ToLower(hexPart) {
		return nil, fmt.Errorf("canon: content hash hex part must be lowercase")
	}
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return nil, fmt.Errorf("canon: content hash not valid hex: %w", err)
	}
	return raw, nil
}
