// Package audit implements the Audit Log (spec §4.11): an append-only,
// privacy-hashed record of every verification outcome.
//
// Grounded directly on the teacher's internal/storage/bolt.go LedgerEntry +
// AppendLedger/PruneOldLedgerEntries/ReadLedger shape, repurposed from a
// process-isolation ledger into a verification-outcome ledger.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/creed-space/vcp/internal/orchestrator"
)

// Level gates how much optional detail an AuditEntry carries beyond its
// mandatory privacy-hashed fields.
type Level string

const (
	LevelMinimal  Level = "minimal"
	LevelStandard Level = "standard"
	LevelVerbose  Level = "verbose"
)

// Entry is a single privacy-preserving verification record. Every field
// that could identify a user, bundle, issuer, or request is replaced by a
// prefixed SHA-256 digest via HashField; ChecksPassed is copied from the
// caller's Record.ChecksPassed, not re-derived from the result.
type Entry struct {
	Timestamp               time.Time `json:"timestamp"`
	SessionIDHash           string    `json:"session_id_hash"`
	VerificationResult      string    `json:"verification_result"`
	ChecksPassed            []string  `json:"checks_passed"`
	BundleIDHash            string    `json:"bundle_id_hash"`
	ContentHash             string    `json:"content_hash"`
	IssuerHash              string    `json:"issuer_hash"`
	Version                 string    `json:"version"`
	ManifestSignaturePrefix string    `json:"manifest_signature_prefix"`
	AuditLevel              Level     `json:"audit_level"`

	// Optional, level-gated fields: only populated at LevelVerbose.
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// HashField replaces a raw identifying value with "sha256:" followed by
// the first 32 hex characters of SHA-256(value), per spec §4.11.
func HashField(value string) string {
	sum := sha256.Sum256([]byte(value))
	return "sha256:" + hex.EncodeToString(sum[:])[:32]
}

// signaturePrefix returns the first n characters of a signature string,
// never the full signature (a partial audit fingerprint, not a verification
// artifact).
func signaturePrefix(signature string, n int) string {
	if len(signature) <= n {
		return signature
	}
	return signature[:n]
}

// Record is the raw input to Append before its identifying fields are
// hashed.
type Record struct {
	SessionID string
	Result    orchestrator.Result

	// ChecksPassed is the ordered list of pipeline step names completed
	// before Result, as returned by orchestrator.Verify's second value.
	// The caller must thread this through directly rather than having
	// Append re-derive it from Result: InvalidAttestation alone is
	// returned by three different steps, so there is no reliable
	// code-to-step mapping to reconstruct it after the fact.
	ChecksPassed      []string
	BundleID          string
	ContentHash       string
	IssuerID          string
	Version           string
	ManifestSignature string
	Level             Level
	Detail            map[string]interface{}
}

// Log is an append-only, in-memory audit buffer. Export to JSON is the
// caller's responsibility via Entries(); Log itself holds no file handle,
// matching the teacher's separation of in-memory state from bolt-backed
// durability (storage.DB offers AppendAuditEntry for a bbolt ledger;
// cmd/vcp-agent does not feed this Log into it).
type Log struct {
	mu      sync.Mutex
	entries []Entry
	cap     int // 0 means unbounded
}

// NewLog creates an audit log. capacity bounds the in-memory buffer (oldest
// entries are dropped once exceeded); 0 means unbounded.
func NewLog(capacity int) *Log {
	return &Log{cap: capacity}
}

// Append derives one Entry from rec and appends it.
func (l *Log) Append(rec Record) Entry {
	level := rec.Level
	if level == "" {
		level = LevelStandard
	}

	e := Entry{
		Timestamp:               time.Now().UTC(),
		SessionIDHash:           HashField(rec.SessionID),
		VerificationResult:      rec.Result.String(),
		ChecksPassed:            rec.ChecksPassed,
		BundleIDHash:            HashField(rec.BundleID),
		ContentHash:             rec.ContentHash,
		IssuerHash:              HashField(rec.IssuerID),
		Version:                 rec.Version,
		ManifestSignaturePrefix: signaturePrefix(rec.ManifestSignature, 16),
		AuditLevel:              level,
	}
	if level == LevelVerbose {
		e.Detail = rec.Detail
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	if l.cap > 0 && len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
	l.mu.Unlock()

	return e
}

// Entries returns a snapshot of all buffered entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of buffered entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
