package situate

import "context"

// Store is the persistence seam a Tracker's bounded history could be
// backed by. The in-memory Tracker implemented in tracker.go is
// authoritative (spec §9 Open Questions); Store documents the interface a
// distributed alternative (e.g. a Redis-backed tracker shared across
// agent replicas) would need to satisfy to be swapped in without
// touching callers.
type Store interface {
	// Append records a new context entry for sessionID, trimming to
	// maxHistory entries.
	Append(ctx context.Context, sessionID string, c VCPContext, maxHistory int) error

	// History returns the stored entries for sessionID, oldest first.
	History(ctx context.Context, sessionID string) ([]VCPContext, error)

	// Clear drops all stored history for sessionID.
	Clear(ctx context.Context, sessionID string) error
}
