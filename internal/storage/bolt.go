// Package storage implements bbolt-backed persistent storage for
// vcp-agent.
//
// Schema (bbolt bucket layout):
//
//	/trust_anchors
//	    key:   anchor id
//	    value: JSON-encoded bundle.TrustAnchor
//
//	/replay_cache
//	    key:   jti
//	    value: JSON-encoded replayRecord (expiry, recorded_at)
//
//	/audit_ledger
//	    key:   RFC3339Nano timestamp + "_" + session_id_hash  [sortable]
//	    value: JSON-encoded audit.Entry
//
//	/revocation_cache
//	    key:   anchor id
//	    value: JSON-encoded revocationRecord (revoked, checked_at)
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (bbolt does not support concurrent writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//   - CRC32 integrity check on database open (bbolt built-in).
//
// Retention:
//   - Audit ledger entries older than RetentionDays are pruned by
//     PruneOldAuditEntries, which vcp-agent calls once on startup.
//   - Trust anchors are never automatically pruned (operator action required).
//
// This package supplements (does not replace) the in-memory trust.Store,
// replay.Cache, and audit.Log — those remain the hot-path authorities.
// vcp-agent reads persisted trust-anchor states on startup and prunes the
// audit ledger; it does not write anchors, replay entries, or audit
// entries here.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/creed-space/vcp/internal/audit"
	"github.com/creed-space/vcp/internal/bundle"
)

const (
	// DefaultDBPath is the default bbolt file location.
	DefaultDBPath = "/var/lib/vcp-agent/vcp.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default audit ledger retention period.
	DefaultRetentionDays = 30

	bucketTrustAnchors    = "trust_anchors"
	bucketReplayCache     = "replay_cache"
	bucketAuditLedger     = "audit_ledger"
	bucketRevocationCache = "revocation_cache"
	bucketMeta            = "meta"
)

// DB wraps a bbolt instance with typed accessors for vcp-agent data.
type DB struct {
	db            *bolt.DB
	retentionDays int
}

// Open opens (or creates) the bbolt database at the given path.
// Initialises all required buckets and verifies the schema version.
func Open(path string, retentionDays int) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketTrustAnchors, bucketReplayCache, bucketAuditLedger, bucketRevocationCache, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: database has %q, agent requires %q. "+
					"Run migration or restore from backup.",
				string(v), SchemaVersion,
			)
		}
		return nil
	})
}

// Close closes the underlying bbolt file.
func (d *DB) Close() error {
	return d.db.Close()
}

// ─── Trust anchor operations ───────────────────────────────────────────────

// PutTrustAnchor writes or updates a persisted copy of a trust anchor, so
// the trust store can be rehydrated on restart without refetching the
// bootstrap file.
func (d *DB) PutTrustAnchor(a bundle.TrustAnchor) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("PutTrustAnchor marshal: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketTrustAnchors))
		return b.Put([]byte(a.ID), data)
	})
}

// ListTrustAnchors returns every persisted trust anchor.
func (d *DB) ListTrustAnchors() ([]bundle.TrustAnchor, error) {
	var anchors []bundle.TrustAnchor
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketTrustAnchors))
		return b.ForEach(func(_, v []byte) error {
			var a bundle.TrustAnchor
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			anchors = append(anchors, a)
			return nil
		})
	})
	return anchors, err
}

// ─── Replay cache durability ────────────────────────────────────────────────

type replayRecord struct {
	Expiry     time.Time `json:"expiry"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PersistReplayEntry durably records a jti admission so it survives a
// restart within its validity window. The in-memory replay.Cache remains
// the hot-path authority; this is a recovery seam only.
func (d *DB) PersistReplayEntry(jti string, expiry, recordedAt time.Time) error {
	data, err := json.Marshal(replayRecord{Expiry: expiry, RecordedAt: recordedAt})
	if err != nil {
		return fmt.Errorf("PersistReplayEntry marshal: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketReplayCache))
		return b.Put([]byte(jti), data)
	})
}

// LoadUnexpiredReplayEntries returns every persisted jti whose expiry is
// still in the future, for rehydrating an in-memory replay.Cache on
// startup.
func (d *DB) LoadUnexpiredReplayEntries(now time.Time) (map[string]time.Time, error) {
	out := map[string]time.Time{}
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketReplayCache))
		return b.ForEach(func(k, v []byte) error {
			var rec replayRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Expiry.After(now) {
				out[string(k)] = rec.Expiry
			}
			return nil
		})
	})
	return out, err
}

// PruneExpiredReplayEntries deletes replay cache entries whose expiry has
// passed. Returns the number of entries deleted.
func (d *DB) PruneExpiredReplayEntries(now time.Time) (int, error) {
	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketReplayCache))
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec replayRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !rec.Expiry.After(now) {
				keyCopy := make([]byte, len(k))
				copy(keyCopy, k)
				toDelete = append(toDelete, keyCopy)
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ─── Revocation cache durability ────────────────────────────────────────────

type revocationRecord struct {
	Revoked   bool      `json:"revoked"`
	CheckedAt time.Time `json:"checked_at"`
}

// PersistRevocationResult durably records the last revocation check result
// for an anchor id, so a restart doesn't immediately hammer the revocation
// endpoint for every previously-checked anchor.
func (d *DB) PersistRevocationResult(anchorID string, revoked bool, checkedAt time.Time) error {
	data, err := json.Marshal(revocationRecord{Revoked: revoked, CheckedAt: checkedAt})
	if err != nil {
		return fmt.Errorf("PersistRevocationResult marshal: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRevocationCache))
		return b.Put([]byte(anchorID), data)
	})
}

// ─── Audit ledger operations ────────────────────────────────────────────────

// auditKey constructs a sortable bbolt key for an audit entry.
// Format: RFC3339Nano + "_" + session id hash. Lexicographic sort =
// chronological sort.
func auditKey(t time.Time, sessionIDHash string) []byte {
	return []byte(fmt.Sprintf("%s_%s", t.UTC().Format(time.RFC3339Nano), sessionIDHash))
}

// AppendAuditEntry persists a single audit.Entry.
func (d *DB) AppendAuditEntry(e audit.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("AppendAuditEntry marshal: %w", err)
	}
	key := auditKey(e.Timestamp, e.SessionIDHash)
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAuditLedger))
		return b.Put(key, data)
	})
}

// PruneOldAuditEntries deletes audit entries older than retentionDays.
// Returns the number of entries deleted.
func (d *DB) PruneOldAuditEntries() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := auditKey(cutoff, "")

	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAuditLedger))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}

		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOldAuditEntries delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ReadAuditLedger returns all persisted audit entries in chronological
// order. For operational use (CLI inspection); not called on the hot path.
func (d *DB) ReadAuditLedger() ([]audit.Entry, error) {
	var entries []audit.Entry
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAuditLedger))
		return b.ForEach(func(_, v []byte) error {
			var e audit.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}
