package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/creed-space/vcp/internal/audit"
	"github.com/creed-space/vcp/internal/bundle"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vcp-test.db")
	db, err := Open(path, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_InitializesSchemaVersion(t *testing.T) {
	db := openTestDB(t)
	if err := db.checkSchemaVersion(); err != nil {
		t.Errorf("expected schema version to check out, got %v", err)
	}
}

func TestPutTrustAnchor_RoundTripsViaListTrustAnchors(t *testing.T) {
	db := openTestDB(t)
	anchor := bundle.TrustAnchor{
		ID:         "anchor-1",
		KeyID:      "k1",
		Algorithm:  "ed25519",
		PublicKey:  "ed25519:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=",
		Type:       bundle.AnchorIssuer,
		ValidFrom:  time.Now().Add(-time.Hour),
		ValidUntil: time.Now().Add(time.Hour),
		State:      bundle.StateActive,
	}
	if err := db.PutTrustAnchor(anchor); err != nil {
		t.Fatalf("PutTrustAnchor: %v", err)
	}
	anchors, err := db.ListTrustAnchors()
	if err != nil {
		t.Fatalf("ListTrustAnchors: %v", err)
	}
	if len(anchors) != 1 || anchors[0].ID != "anchor-1" {
		t.Errorf("expected to find anchor-1, got %+v", anchors)
	}
}

func TestReplayEntries_PersistAndLoadUnexpired(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	if err := db.PersistReplayEntry("jti-live", now.Add(time.Hour), now); err != nil {
		t.Fatalf("PersistReplayEntry: %v", err)
	}
	if err := db.PersistReplayEntry("jti-expired", now.Add(-time.Hour), now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("PersistReplayEntry: %v", err)
	}

	loaded, err := db.LoadUnexpiredReplayEntries(now)
	if err != nil {
		t.Fatalf("LoadUnexpiredReplayEntries: %v", err)
	}
	if _, ok := loaded["jti-live"]; !ok {
		t.Error("expected jti-live to be present")
	}
	if _, ok := loaded["jti-expired"]; ok {
		t.Error("expected jti-expired to be excluded")
	}
}

func TestPruneExpiredReplayEntries_DeletesOnlyExpired(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	_ = db.PersistReplayEntry("jti-live", now.Add(time.Hour), now)
	_ = db.PersistReplayEntry("jti-expired", now.Add(-time.Hour), now.Add(-2*time.Hour))

	deleted, err := db.PruneExpiredReplayEntries(now)
	if err != nil {
		t.Fatalf("PruneExpiredReplayEntries: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted entry, got %d", deleted)
	}

	loaded, err := db.LoadUnexpiredReplayEntries(now)
	if err != nil {
		t.Fatalf("LoadUnexpiredReplayEntries: %v", err)
	}
	if len(loaded) != 1 {
		t.Errorf("expected 1 remaining entry, got %d", len(loaded))
	}
}

func TestAuditLedger_AppendAndReadRoundTrips(t *testing.T) {
	db := openTestDB(t)
	e := audit.Entry{
		Timestamp:          time.Now().UTC(),
		SessionIDHash:      audit.HashField("sess-1"),
		VerificationResult: "VALID",
		ChecksPassed:       []string{"size", "content_hash"},
		AuditLevel:         audit.LevelStandard,
	}
	if err := db.AppendAuditEntry(e); err != nil {
		t.Fatalf("AppendAuditEntry: %v", err)
	}

	entries, err := db.ReadAuditLedger()
	if err != nil {
		t.Fatalf("ReadAuditLedger: %v", err)
	}
	if len(entries) != 1 || entries[0].VerificationResult != "VALID" {
		t.Errorf("expected 1 VALID entry, got %+v", entries)
	}
}

func TestPruneOldAuditEntries_RemovesEntriesOutsideRetention(t *testing.T) {
	db := openTestDB(t)
	old := audit.Entry{
		Timestamp:     time.Now().UTC().AddDate(0, 0, -10),
		SessionIDHash: audit.HashField("old-session"),
	}
	recent := audit.Entry{
		Timestamp:     time.Now().UTC(),
		SessionIDHash: audit.HashField("recent-session"),
	}
	_ = db.AppendAuditEntry(old)
	_ = db.AppendAuditEntry(recent)

	deleted, err := db.PruneOldAuditEntries()
	if err != nil {
		t.Fatalf("PruneOldAuditEntries: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 pruned entry (retentionDays=1), got %d", deleted)
	}

	entries, err := db.ReadAuditLedger()
	if err != nil {
		t.Fatalf("ReadAuditLedger: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionIDHash != audit.HashField("recent-session") {
		t.Errorf("expected only the recent entry to survive, got %+v", entries)
	}
}

func TestPersistRevocationResult_DoesNotError(t *testing.T) {
	db := openTestDB(t)
	if err := db.PersistRevocationResult("anchor-1", true, time.Now()); err != nil {
		t.Errorf("PersistRevocationResult: %v", err)
	}
}
