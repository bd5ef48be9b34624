// Package trust implements the Trust Store (spec §4.2): a bulk-loaded set
// of issuer/auditor anchors with validity windows and lifecycle state.
//
// Mutex shape grounded on the teacher's internal/operator.MemRegistry: a
// single sync.RWMutex guarding a map, read methods taking RLock, writers
// taking Lock. Writers are expected to be rare and externally serialized
// (spec §4.2), same as the teacher's assumption that operator writes are
// low-frequency and need no finer-grained locking.
package trust

import (
	"sync"
	"time"

	"github.com/creed-space/vcp/internal/bundle"
)

// anchorKey identifies an anchor by (entity id, key id).
type anchorKey struct {
	entityID string
	keyID    string
}

// Store holds trust anchors keyed by (entity_id, key_id). Safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	anchors map[anchorKey]bundle.TrustAnchor
	// byEntity indexes all key ids registered for an entity, so Lookup
	// can scan "any key_id" when the caller passes keyID == "".
	byEntity map[string][]string
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		anchors:  make(map[anchorKey]bundle.TrustAnchor),
		byEntity: make(map[string][]string),
	}
}

// Config is the bulk-load shape matching spec §6's trust configuration
// JSON object.
type Config struct {
	TrustAnchors map[string]EntityConfig `json:"trust_anchors"`
}

// EntityConfig lists all keys for one entity id.
type EntityConfig struct {
	Type bundle.AnchorType `json:"type"`
	Keys []KeyConfig       `json:"keys"`
}

// KeyConfig is a single key entry within an entity's configuration.
type KeyConfig struct {
	ID         string             `json:"id"`
	Algorithm  string             `json:"algorithm"`
	PublicKey  string             `json:"public_key"`
	State      bundle.AnchorState `json:"state"`
	ValidFrom  time.Time          `json:"valid_from"`
	ValidUntil time.Time          `json:"valid_until"`
}

// LoadConfig bulk-loads a Store from a parsed trust configuration. Safe to
// call once at startup; it is not safe to call concurrently with Lookup
// (callers should build the Store fully before publishing it for reads).
func LoadConfig(cfg Config) *Store {
	s := New()
	for entityID, ent := range cfg.TrustAnchors {
		for _, k := range ent.Keys {
			s.put(bundle.TrustAnchor{
				ID:         entityID,
				KeyID:      k.ID,
				Algorithm:  k.Algorithm,
				PublicKey:  k.PublicKey,
				Type:       ent.Type,
				ValidFrom:  k.ValidFrom,
				ValidUntil: k.ValidUntil,
				State:      k.State,
			})
		}
	}
	return s
}

func (s *Store) put(a bundle.TrustAnchor) {
	key := anchorKey{entityID: a.ID, keyID: a.KeyID}
	if _, exists := s.anchors[key]; !exists {
		s.byEntity[a.ID] = append(s.byEntity[a.ID], a.KeyID)
	}
	s.anchors[key] = a
}

// AddIssuer registers (or replaces) a single issuer anchor. Expected to be
// rare; callers must serialize concurrent writers externally (spec §4.2).
func (s *Store) AddIssuer(a bundle.TrustAnchor) {
	a.Type = bundle.AnchorIssuer
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(a)
}

// AddAuditor registers (or replaces) a single auditor anchor.
func (s *Store) AddAuditor(a bundle.TrustAnchor) {
	a.Type = bundle.AnchorAuditor
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(a)
}

// Lookup returns the first usable anchor matching entityID and, if keyID
// is non-empty, that exact key id. If keyID is empty, any usable key for
// the entity is returned (deterministic: keys are scanned in registration
// order). Returns (TrustAnchor{}, false) if no usable anchor matches.
func (s *Store) Lookup(entityID, keyID string, at time.Time) (bundle.TrustAnchor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if keyID != "" {
		a, ok := s.anchors[anchorKey{entityID: entityID, keyID: keyID}]
		if ok && a.Usable(at) {
			return a, true
		}
		return bundle.TrustAnchor{}, false
	}

	for _, kid := range s.byEntity[entityID] {
		a := s.anchors[anchorKey{entityID: entityID, keyID: kid}]
		if a.Usable(at) {
			return a, true
		}
	}
	return bundle.TrustAnchor{}, false
}

// Count returns the total number of registered anchors (for metrics /
// operator introspection).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.anchors)
}

// SetState transitions a single anchor's lifecycle state (e.g. an
// operator marking a compromised key). Returns false if no anchor matches
// entityID/keyID.
func (s *Store) SetState(entityID, keyID string, state bundle.AnchorState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := anchorKey{entityID: entityID, keyID: keyID}
	a, ok := s.anchors[key]
	if !ok {
		return false
	}
	a.State = state
	s.anchors[key] = a
	return true
}

// ListAnchors returns every registered anchor (for operator introspection
// and storage persistence; not on the verification hot path).
func (s *Store) ListAnchors() []bundle.TrustAnchor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bundle.TrustAnchor, 0, len(s.anchors))
	for _, a := range s.anchors {
		out = append(out, a)
	}
	return out
}
