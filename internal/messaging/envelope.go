// Package messaging implements the Messaging Envelope (spec §4.12): a
// signed inter-agent message.
//
// Grounded on internal/gossip/server.go's envelope-verification sequence
// (timestamp freshness → peer trust → signature → forward) and its
// envelopeSignatureMessage canonical-byte-string pattern, replacing the
// teacher's fixed binary layout with canon's JCS-style canonical JSON
// (minus the signature field) since this package has no gRPC/protobuf
// wire format to match.
package messaging

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/creed-space/vcp/internal/canon"
)

// Type is the recognized set of envelope message types.
type Type string

const (
	TypeContextShare         Type = "context_share"
	TypeConstitutionAnnounce Type = "constitution_announce"
	TypeConstraintPropagate  Type = "constraint_propagate"
	TypeEscalation           Type = "escalation"
)

var validTypes = map[Type]bool{
	TypeContextShare: true, TypeConstitutionAnnounce: true,
	TypeConstraintPropagate: true, TypeEscalation: true,
}

// BroadcastRecipient is the sentinel recipient value meaning "all peers".
const BroadcastRecipient = "broadcast"

// Severity is the escalation payload's severity field. Only meaningful
// when Type == TypeEscalation.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Envelope is a signed inter-agent message.
type Envelope struct {
	VCPMessage string                 `json:"vcp_message"`
	Type       Type                   `json:"type"`
	MessageID  string                 `json:"message_id"`
	Sender     string                 `json:"sender"`
	Recipient  string                 `json:"recipient"`
	Timestamp  string                 `json:"timestamp"`
	Payload    map[string]interface{} `json:"payload"`
	Signature  string                 `json:"signature,omitempty"`
}

// NewEnvelope builds an unsigned envelope with a fresh UUID message_id and
// the current UTC timestamp in ISO-8601 form.
func NewEnvelope(typ Type, sender, recipient string, payload map[string]interface{}) Envelope {
	return Envelope{
		VCPMessage: "1.2",
		Type:       typ,
		MessageID:  uuid.NewString(),
		Sender:     sender,
		Recipient:  recipient,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Payload:    payload,
	}
}

// ValidationError describes a single envelope validation failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("messaging: %s: %s", e.Field, e.Reason)
}

// Validate checks envelope structure: UUID message_id, a recognized type,
// non-empty sender/recipient, a parseable timestamp, and — for escalation
// messages at critical/emergency severity — payload.requires_ack == true.
func (e Envelope) Validate() error {
	if _, err := uuid.Parse(e.MessageID); err != nil {
		return &ValidationError{Field: "message_id", Reason: "not a valid UUID"}
	}
	if !validTypes[e.Type] {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unrecognized type %q", e.Type)}
	}
	if e.Sender == "" {
		return &ValidationError{Field: "sender", Reason: "must not be empty"}
	}
	if e.Recipient == "" {
		return &ValidationError{Field: "recipient", Reason: "must not be empty"}
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return &ValidationError{Field: "timestamp", Reason: "not a parseable ISO-8601 UTC timestamp"}
	}
	if e.Type == TypeEscalation {
		if sev, _ := e.Payload["severity"].(string); sev == string(SeverityCritical) || sev == string(SeverityEmergency) {
			ack, _ := e.Payload["requires_ack"].(bool)
			if !ack {
				return &ValidationError{Field: "payload.requires_ack", Reason: "must be true for critical/emergency escalations"}
			}
		}
	}
	return nil
}

// signingBytes produces the canonical byte string signed and verified:
// JCS-style canonical JSON of the envelope with "signature" stripped.
func signingBytes(e Envelope) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("messaging: marshal envelope: %w", err)
	}
	return canon.CanonicalizeManifest(raw)
}

// Sign computes e's signature under priv and returns a copy with Signature
// set. e must already pass Validate (callers should validate before
// signing, matching the orchestrator's fail-closed discipline).
func Sign(e Envelope, priv ed25519.PrivateKey) (Envelope, error) {
	unsigned := e
	unsigned.Signature = ""
	msg, err := signingBytes(unsigned)
	if err != nil {
		return Envelope{}, err
	}
	signed := e
	signed.Signature = hex.EncodeToString(ed25519.Sign(priv, msg))
	return signed, nil
}

// Verify checks e's Ed25519 signature under pub. Does not re-run
// Validate; callers combine both per spec's fail-closed discipline.
func Verify(e Envelope, pub ed25519.PublicKey) bool {
	if e.Signature == "" {
		return false
	}
	unsigned := e
	unsigned.Signature = ""
	msg, err := signingBytes(unsigned)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(e.Signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}
