// Package httpapi is a thin HTTP adapter over the verification core.
//
// Deliberately out of scope beyond a reference shape (spec.md §1): "the
// HTTP router (thin adapter over the core)". No production routing,
// auth, or rate-limiting logic lives here — real deployments are
// expected to front this with their own gateway. No HTTP router library
// appears anywhere in the retrieved example pack, so this stub follows
// the teacher's own net/http.ServeMux usage (internal/observability's
// metrics server) rather than introducing an unwired dependency.
package httpapi

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"

	"github.com/creed-space/vcp/internal/audit"
	"github.com/creed-space/vcp/internal/bundle"
	"github.com/creed-space/vcp/internal/identity"
	"github.com/creed-space/vcp/internal/messaging"
	"github.com/creed-space/vcp/internal/orchestrator"
)

// Verifier is the subset of *orchestrator.Orchestrator this adapter calls.
// The second return value is the ordered list of pipeline steps that
// completed before Result, threaded straight through to AuditLog.Append
// rather than re-derived from Result (see orchestrator.Verify's doc
// comment: InvalidAttestation alone terminates three different steps).
type Verifier interface {
	Verify(ctx context.Context, b bundle.Bundle, vctx orchestrator.VerificationContext) (orchestrator.Result, []string)
}

// AuditLog is the subset of *audit.Log this adapter calls.
type AuditLog interface {
	Append(rec audit.Record) audit.Entry
}

// IdentityRegistry is the subset of *identity.Registry this adapter calls.
type IdentityRegistry interface {
	Register(t bundle.Token, tier identity.PrivacyTier, ownerID string, metadata map[string]interface{}) identity.Entry
}

// EnvelopeLog is the subset of *messaging.Log this adapter calls.
type EnvelopeLog interface {
	Append(e messaging.Envelope) messaging.Envelope
}

// verifyRequest is the JSON body accepted by POST /v1/verify.
type verifyRequest struct {
	Bundle  bundle.Bundle                    `json:"bundle"`
	Context orchestrator.VerificationContext `json:"context"`
}

// Config wires every optional side effect a verification outcome can
// trigger, alongside the required Verifier. Only Verifier is mandatory;
// the rest degrade to no-ops when left zero.
type Config struct {
	Verifier Verifier

	// AuditLog, when set, receives one audit.Record per verification.
	AuditLog AuditLog

	// IdentityRegistry, when set, registers the bundle's declared
	// identity token (manifest metadata key "token") on every VALID
	// result, so the registry reflects constitutions actually seen in
	// live traffic rather than only test-registered tokens.
	IdentityRegistry IdentityRegistry

	// EnvelopeLog, when set along with NodeID and NodeKey, records a
	// signed constitution_announce envelope for every VALID result —
	// the inter-agent broadcast a multi-node deployment would forward
	// to peers (spec §4.12).
	EnvelopeLog EnvelopeLog
	NodeID      string
	NodeKey     ed25519.PrivateKey
}

// Handler adapts a Verifier to a single POST /v1/verify HTTP endpoint.
// Responds with {"result": "<result name>", "checks_passed": [...]}.
type Handler struct {
	cfg Config
}

// NewHandler wraps cfg.Verifier as an http.Handler. Every field of cfg
// besides Verifier is optional.
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	result, checksPassed := h.cfg.Verifier.Verify(r.Context(), req.Bundle, req.Context)

	if h.cfg.AuditLog != nil {
		h.cfg.AuditLog.Append(auditRecordFor(req.Bundle, result, checksPassed, req.Context.SessionID))
	}

	if result.IsValid() {
		h.registerIdentity(req.Bundle)
		h.announceConstitution(req.Bundle)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"result":        result.String(),
		"checks_passed": checksPassed,
	})
}

// registerIdentity registers the bundle's declared identity token, if any,
// into the identity registry. A bundle with no "token" metadata or an
// unparseable one is simply skipped — identity registration is an
// enrichment, not a verification requirement.
func (h *Handler) registerIdentity(b bundle.Bundle) {
	if h.cfg.IdentityRegistry == nil {
		return
	}
	raw, ok := b.Manifest.Metadata["token"].(string)
	if !ok || raw == "" {
		return
	}
	token, err := bundle.ParseToken(raw)
	if err != nil {
		return
	}
	h.cfg.IdentityRegistry.Register(token, identity.InferPrivacyTier(token), b.Manifest.Issuer.ID, nil)
}

// announceConstitution builds and signs a constitution_announce envelope
// and records it to the envelope log, so operators can tail real
// inter-agent-broadcast-shaped traffic even in a single-node deployment.
func (h *Handler) announceConstitution(b bundle.Bundle) {
	if h.cfg.EnvelopeLog == nil || h.cfg.NodeID == "" || len(h.cfg.NodeKey) == 0 {
		return
	}
	env := messaging.NewEnvelope(messaging.TypeConstitutionAnnounce, h.cfg.NodeID, messaging.BroadcastRecipient,
		map[string]interface{}{
			"bundle_id": b.Manifest.Bundle.ID,
			"version":   b.Manifest.Bundle.Version,
		})
	if err := env.Validate(); err != nil {
		return
	}
	signed, err := messaging.Sign(env, h.cfg.NodeKey)
	if err != nil {
		return
	}
	h.cfg.EnvelopeLog.Append(signed)
}

// auditRecordFor builds the audit.Record for one verification outcome,
// shared by Handler and ComposeHandler so both endpoints record identically
// shaped entries.
func auditRecordFor(b bundle.Bundle, result orchestrator.Result, checksPassed []string, sessionID string) audit.Record {
	return audit.Record{
		SessionID:         sessionID,
		Result:            result,
		ChecksPassed:      checksPassed,
		BundleID:          b.Manifest.Bundle.ID,
		ContentHash:       b.Manifest.Bundle.ContentHash,
		IssuerID:          b.Manifest.Issuer.ID,
		Version:           b.Manifest.Bundle.Version,
		ManifestSignature: b.Manifest.Signature.Value,
	}
}
