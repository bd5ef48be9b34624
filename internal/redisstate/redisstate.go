// Package redisstate documents the interface a Redis-backed situate.Store
// would implement, as an alternative to the in-memory situate.Tracker for
// cross-worker session persistence (spec §4.7/§9).
//
// Deliberately out of scope beyond the interface (spec.md §1): "the
// Redis-backed persistence fallback (interface only; the in-memory core
// is the reference)". No Redis client library appears anywhere in the
// retrieved example pack; this package holds no wired implementation.
package redisstate

import (
	"context"
	"errors"

	"github.com/creed-space/vcp/internal/situate"
)

// ErrNotImplemented is returned by every method of Store: this package is
// an interface-compliance placeholder, not a working backend.
var ErrNotImplemented = errors.New("redisstate: not implemented; in-memory situate.Tracker is authoritative")

// Store is a situate.Store placeholder satisfying the interface so
// callers can type-check against it without a live Redis dependency.
type Store struct{}

var _ situate.Store = (*Store)(nil)

func (s *Store) Append(ctx context.Context, sessionID string, c situate.VCPContext, maxHistory int) error {
	return ErrNotImplemented
}

func (s *Store) History(ctx context.Context, sessionID string) ([]situate.VCPContext, error) {
	return nil, ErrNotImplemented
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return ErrNotImplemented
}
