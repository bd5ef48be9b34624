package bundle

import "time"

// Manifest is the signed metadata envelope accompanying a Bundle's content
// (spec §3). JSON tags define the wire form; CanonicalizeManifest (in
// package canon) re-serializes this into JCS canonical form with
// Signature stripped for signing/verification.
type Manifest struct {
	VCPVersion string       `json:"vcp_version"`
	Bundle     BundleInfo   `json:"bundle"`
	Issuer     Principal    `json:"issuer"`
	Timestamps Timestamps   `json:"timestamps"`
	Budget     Budget       `json:"budget"`
	Safety     Attestation  `json:"safety_attestation"`
	Signature  Signature    `json:"signature"`
	Scope      *Scope       `json:"scope,omitempty"`
	Compose    *Composition `json:"composition,omitempty"`
	Revocation *Revocation  `json:"revocation,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// BundleInfo carries the bundle's own identity and content binding.
type BundleInfo struct {
	ID              string `json:"id"`
	Version         string `json:"version"`
	ContentHash     string `json:"content_hash"`
	ContentEncoding string `json:"content_encoding"`
	ContentFormat   string `json:"content_format"`
}

// Principal identifies an issuer or auditor by id, public key, and key id.
type Principal struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key"` // "ed25519:" + base64(32 raw bytes)
	KeyID     string `json:"key_id"`
}

// Timestamps carries the manifest's temporal bounds. All times are UTC.
type Timestamps struct {
	IssuedAt  time.Time `json:"iat"`
	NotBefore time.Time `json:"nbf"`
	ExpiresAt time.Time `json:"exp"`
	JTI       string    `json:"jti"` // UUID
}

// Budget describes the content's expected token footprint.
type Budget struct {
	TokenCount     int     `json:"token_count"`
	Tokenizer      string  `json:"tokenizer"`
	MaxContextShare float64 `json:"max_context_share"` // (0,1]
}

// AttestationType enumerates the safety attestation strength.
type AttestationType string

const (
	AttestationInjectionSafe AttestationType = "injection-safe"
	AttestationContentSafe   AttestationType = "content-safe"
	AttestationFullAudit     AttestationType = "full-audit"
)

// Attestation is the auditor's signed claim about the content's safety.
type Attestation struct {
	Auditor        string          `json:"auditor"`
	AuditorKeyID   string          `json:"auditor_key_id"`
	ReviewedAt     time.Time       `json:"reviewed_at"`
	AttestationType AttestationType `json:"attestation_type"`
	Signature      string          `json:"signature"` // "base64:" + base64(sig)
}

// Signature is the issuer's signature over the canonicalized manifest
// (with this field itself removed first).
type Signature struct {
	Algorithm   string   `json:"algorithm"` // "ed25519"
	Value       string   `json:"value"`     // "base64:" + base64(sig)
	SignedFields []string `json:"signed_fields"`
	Threshold   int      `json:"threshold,omitempty"`
	Signers     []string `json:"signers,omitempty"`
}

// Scope optionally restricts where a bundle may be injected.
type Scope struct {
	ModelFamilies []string `json:"model_families,omitempty"`
	Purposes      []string `json:"purposes,omitempty"`
	Environments  []string `json:"environments,omitempty"`
	Audiences     []string `json:"audiences,omitempty"`
	Regions       []string `json:"regions,omitempty"`
}

// CompositionMode enumerates the four composer merge strategies.
type CompositionMode string

const (
	ModeBase     CompositionMode = "base"
	ModeExtend   CompositionMode = "extend"
	ModeOverride CompositionMode = "override"
	ModeStrict   CompositionMode = "strict"
)

// Composition declares how this bundle participates in multi-bundle merges.
type Composition struct {
	Layer         int             `json:"layer"`
	Mode          CompositionMode `json:"mode"`
	ConflictsWith []string        `json:"conflicts_with,omitempty"`
	Requires      []string        `json:"requires,omitempty"`
}

// Revocation declares where to check this bundle's revocation status.
type Revocation struct {
	CheckURI string `json:"check_uri,omitempty"`
	CRLURI   string `json:"crl_uri,omitempty"`
}

// Bundle pairs a Manifest with its canonicalizable content string.
type Bundle struct {
	Manifest Manifest `json:"manifest"`
	Content  string   `json:"content"`
}
