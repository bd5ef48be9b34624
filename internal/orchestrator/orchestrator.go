package orchestrator

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/creed-space/vcp/internal/bundle"
	"github.com/creed-space/vcp/internal/canon"
	"github.com/creed-space/vcp/internal/replay"
	"github.com/creed-space/vcp/internal/revocation"
	"github.com/creed-space/vcp/internal/trust"
)

// MaxManifestSize and MaxContentSize are the spec §6 size limits.
const (
	MaxManifestSize = 65_536
	MaxContentSize  = 262_144

	clockSkewTolerance = 5 * time.Minute
	maxExpFromIAT      = 90 * 24 * time.Hour
)

// VerificationContext carries the situational parameters verify() checks
// the manifest's budget and scope against (spec §4.5 steps 10-11).
type VerificationContext struct {
	ModelContextLimit int
	ModelFamily       string
	Purpose           string
	Environment       string
	SessionID         string

	// Strict enables strict injection-scan enforcement (step 12): findings
	// map to InvalidAttestation instead of being logged-only.
	Strict bool

	// Now overrides the clock for temporal checks; nil uses time.Now.
	Now func() time.Time
}

func (c VerificationContext) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// PreInjectHooks fires the pre_inject hook chain (spec §4.5 step 13,
// §4.8). Aborted reports whether any hook in the chain returned an abort
// action. A non-nil err is treated as fail-open: verification proceeds as
// if the chain had completed normally (spec is explicit that hook
// executor exceptions must not block verification).
type PreInjectHooks interface {
	FirePreInject(ctx context.Context, sessionID string, b *bundle.Bundle) (aborted bool, err error)
}

// Orchestrator wires together the trust store, replay cache, revocation
// checker, and (optionally) a pre_inject hook chain into the verify()
// pipeline.
type Orchestrator struct {
	Trust      *trust.Store
	Replay     *replay.Cache
	Revocation *revocation.Checker
	Hooks      PreInjectHooks
	Log        *zap.Logger
}

// New builds an Orchestrator. trustStore and replayCache must be non-nil;
// revocationChecker and hooks may be nil (revocation checks are skipped
// when no check_uri/crl_uri is present regardless; hooks being nil simply
// means step 13 is a no-op).
func New(trustStore *trust.Store, replayCache *replay.Cache, revocationChecker *revocation.Checker, hooks PreInjectHooks, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{Trust: trustStore, Replay: replayCache, Revocation: revocationChecker, Hooks: hooks, Log: log}
}

// Verify runs the spec §4.5 pipeline against b in strict order. The first
// failing step short-circuits and returns its result code; no hook fires
// on a short-circuited failure.
//
// The second return value lists the check names (in CheckNames() order)
// that completed before the terminal result, built up live as each step
// passes rather than reverse-inferred from the result code afterward:
// InvalidAttestation alone is returned by three different steps
// (attestation signature, strict injection-scan rejection, pre_inject
// hook abort), so a single code-to-step lookup table cannot tell them
// apart. Callers that persist verification outcomes (internal/audit)
// should carry this slice rather than re-derive it from the result.
func (o *Orchestrator) Verify(ctx context.Context, b bundle.Bundle, vctx VerificationContext) (Result, []string) {
	m := b.Manifest
	var passed []string

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		o.Log.Warn("orchestrator: marshaling manifest failed", zap.Error(err))
		return InvalidSchema, passed
	}

	// Step 1: size.
	if len(manifestJSON) > MaxManifestSize {
		return SizeExceeded, passed
	}
	if len(b.Content) > MaxContentSize {
		return SizeExceeded, passed
	}

	// Structural validation: content canonicalizes cleanly and the
	// manifest conforms to the wire schema. Both map to InvalidSchema
	// (scenario: Unicode bidi-override content fails canonicalization and
	// must return INVALID_SCHEMA, not a crash).
	if _, err := canon.CanonicalizeContent(b.Content); err != nil {
		o.Log.Debug("orchestrator: content canonicalization failed", zap.Error(err))
		return InvalidSchema, passed
	}
	if err := validateManifestSchema(manifestJSON); err != nil {
		o.Log.Debug("orchestrator: manifest schema validation failed", zap.Error(err))
		return InvalidSchema, passed
	}
	passed = append(passed, "size")

	// Step 2: content hash.
	ok, err := canon.VerifyContentHash(b.Content, m.Bundle.ContentHash)
	if err != nil || !ok {
		return HashMismatch, passed
	}
	passed = append(passed, "content_hash")

	now := vctx.now()

	// Step 3: issuer trust.
	issuerAnchor, ok := o.Trust.Lookup(m.Issuer.ID, m.Issuer.KeyID, now)
	if !ok || issuerAnchor.Type != bundle.AnchorIssuer {
		return UntrustedIssuer, passed
	}
	passed = append(passed, "issuer_trust")

	// Step 4: manifest signature.
	if err := verifyManifestSignature(m, manifestJSON, issuerAnchor); err != nil {
		o.Log.Debug("orchestrator: manifest signature invalid", zap.Error(err))
		return InvalidSignature, passed
	}
	passed = append(passed, "issuer_signature")

	// Step 5: auditor trust.
	auditorAnchor, ok := o.Trust.Lookup(m.Safety.Auditor, m.Safety.AuditorKeyID, now)
	if !ok || auditorAnchor.Type != bundle.AnchorAuditor {
		return UntrustedAuditor, passed
	}
	passed = append(passed, "auditor_trust")

	// Step 6: attestation signature.
	if err := verifyAttestationSignature(m, auditorAnchor); err != nil {
		o.Log.Debug("orchestrator: attestation signature invalid", zap.Error(err))
		return InvalidAttestation, passed
	}
	passed = append(passed, "attestation_signature")

	// Step 7: revocation. Fail-open on transport; fail-closed on revoked.
	if o.Revocation != nil && m.Revocation != nil {
		status := o.Revocation.Check(ctx, m.Revocation.CheckURI, m.Revocation.CRLURI, m.Timestamps.JTI)
		if status.Revoked {
			return Revoked, passed
		}
	}
	passed = append(passed, "revocation")

	// Step 8: temporal.
	ts := m.Timestamps
	if now.Before(ts.NotBefore) {
		return NotYetValid, passed
	}
	if now.After(ts.ExpiresAt) {
		return Expired, passed
	}
	if ts.IssuedAt.After(now.Add(clockSkewTolerance)) {
		return FutureTimestamp, passed
	}
	if ts.ExpiresAt.After(ts.IssuedAt.Add(maxExpFromIAT)) {
		return Expired, passed
	}
	passed = append(passed, "temporal")

	// Step 9: replay.
	if o.Replay.IsSeen(ts.JTI, now) {
		return ReplayDetected, passed
	}
	o.Replay.Record(ts.JTI, ts.ExpiresAt, now)
	passed = append(passed, "replay")

	// Step 10: budget.
	maxTokens := int(float64(vctx.ModelContextLimit) * m.Budget.MaxContextShare)
	if m.Budget.TokenCount > maxTokens {
		return BudgetExceeded, passed
	}
	passed = append(passed, "budget")

	// Step 11: scope.
	if m.Scope != nil {
		result := bundle.Negotiate(m.Scope, bundle.NegotiationRequest{
			ModelFamily: vctx.ModelFamily,
			Purpose:     vctx.Purpose,
			Environment: vctx.Environment,
		})
		if len(m.Scope.ModelFamilies) > 0 && result.ModelFamilyPattern == "" {
			return ScopeMismatch, passed
		}
		if !result.PurposeMatched || !result.EnvironmentMatched {
			return ScopeMismatch, passed
		}
	}
	passed = append(passed, "scope")

	// Step 12: injection scan. Findings are always logged; strictness
	// configuration decides whether they are fatal.
	findings := Scan(b.Content)
	if len(findings) > 0 {
		o.Log.Warn("orchestrator: injection scan findings",
			zap.String("bundle_id", m.Bundle.ID), zap.Int("count", len(findings)))
		if vctx.Strict {
			return InvalidAttestation, passed
		}
	}
	passed = append(passed, "injection_scan")

	// Step 13: pre_inject hook chain. Fail-open on hook executor error.
	if o.Hooks != nil {
		aborted, err := o.Hooks.FirePreInject(ctx, vctx.SessionID, &b)
		if err != nil {
			o.Log.Warn("orchestrator: pre_inject hook executor error, proceeding fail-open", zap.Error(err))
		} else if aborted {
			return InvalidAttestation, passed
		}
	}
	passed = append(passed, "pre_inject_hooks")

	return Valid, passed
}

// VerifyOrRaise wraps Verify and returns an error for any non-VALID
// outcome (spec §4.5 verify_or_raise).
func (o *Orchestrator) VerifyOrRaise(ctx context.Context, b bundle.Bundle, vctx VerificationContext) error {
	result, _ := o.Verify(ctx, b, vctx)
	if result.IsValid() {
		return nil
	}
	return &VerificationError{Result: result}
}

// VerificationError is returned by VerifyOrRaise for a non-VALID outcome.
type VerificationError struct {
	Result Result
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("vcp: verification failed: %s", e.Result)
}

func verifyManifestSignature(m bundle.Manifest, manifestJSON []byte, anchor bundle.TrustAnchor) error {
	pub, err := anchor.DecodePublicKey()
	if err != nil {
		return err
	}
	sig, err := bundle.DecodeSignature(m.Signature.Value)
	if err != nil {
		return err
	}
	canonical, err := canon.CanonicalizeManifest(manifestJSON)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, canonical, sig) {
		return fmt.Errorf("orchestrator: manifest signature does not verify")
	}
	return nil
}

// attestationPayload is the fixed shape signed by the auditor (spec §4.5
// step 6): reviewed_at, attestation_type, content_hash, auditor identity.
type attestationPayload struct {
	ReviewedAt      time.Time               `json:"reviewed_at"`
	AttestationType bundle.AttestationType  `json:"attestation_type"`
	ContentHash     string                  `json:"content_hash"`
	Auditor         string                  `json:"auditor"`
	AuditorKeyID    string                  `json:"auditor_key_id"`
}

func verifyAttestationSignature(m bundle.Manifest, anchor bundle.TrustAnchor) error {
	pub, err := anchor.DecodePublicKey()
	if err != nil {
		return err
	}
	sig, err := bundle.DecodeSignature(m.Safety.Signature)
	if err != nil {
		return err
	}
	payload := attestationPayload{
		ReviewedAt:      m.Safety.ReviewedAt,
		AttestationType: m.Safety.AttestationType,
		ContentHash:     m.Bundle.ContentHash,
		Auditor:         m.Safety.Auditor,
		AuditorKeyID:    m.Safety.AuditorKeyID,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	canonical, err := canon.CanonicalizeValue(jsonRawToMap(payloadJSON))
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, canonical, sig) {
		return fmt.Errorf("orchestrator: attestation signature does not verify")
	}
	return nil
}

func jsonRawToMap(raw []byte) interface{} {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
