package canon

import "encoding/json"

// CanonicalizeManifest produces the canonical byte string signed and
// verified for a manifest: JCS-style canonical JSON of the manifest with
// the top-level "signature" field removed.
//
// manifestJSON is the manifest serialized with encoding/json (field order
// does not matter — CanonicalJSON re-sorts everything). Removing the
// signature field before re-canonicalizing is what makes sign/verify
// self-consistent: the signer canonicalizes the unsigned manifest, signs
// that byte string, then attaches the signature; the verifier reconstructs
// the identical byte string by canonicalizing the manifest with signature
// stripped again.
func CanonicalizeManifest(manifestJSON []byte) ([]byte, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal(manifestJSON, &decoded); err != nil {
		return nil, err
	}
	delete(decoded, "signature")
	return CanonicalJSON(decoded)
}

// CanonicalizeValue canonicalizes any JSON-marshalable value by round-
// tripping it through encoding/json into a generic decoded tree and then
// through CanonicalJSON. Used for the safety-attestation signing payload
// and for the messaging envelope (both sign a sub-object, not a full
// manifest, so there is no "signature" field to strip here).
func CanonicalizeValue(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return CanonicalJSON(decoded)
}
