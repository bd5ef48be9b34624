// Package bridge documents the interface an ecosystem-specific bridge
// would implement: translating between VCP's state model and an
// unrelated external system's own internal state model (spec.md §1:
// "ecosystem-specific bridges (translating between unrelated internal
// state models)").
//
// Deliberately out of scope beyond the interface. No concrete external
// system is named by the spec, so no wired implementation lives here.
package bridge

import "context"

// Bridge translates a VCP situational context update into an external
// system's own state representation, and reports whether the external
// system accepted it.
type Bridge interface {
	// Name identifies the external system this bridge targets.
	Name() string

	// Push translates and forwards a VCP-side event (typically a
	// situate.Transition or messaging.Envelope, passed as an opaque value
	// since the shape is entirely external-system-specific) to the
	// external system.
	Push(ctx context.Context, event interface{}) error
}
