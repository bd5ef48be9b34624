package operator

import (
	"sync"

	"github.com/creed-space/vcp/internal/situate"
)

// MemSessionRegistry is a thread-safe in-memory implementation of
// SessionRegistry, wrapping one situate.Tracker per session. The agent
// embeds this and shares it between the session-processing path and the
// operator server, mirroring the teacher's MemRegistry shape.
type MemSessionRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*situate.Tracker
}

// NewMemSessionRegistry creates an empty MemSessionRegistry.
func NewMemSessionRegistry() *MemSessionRegistry {
	return &MemSessionRegistry{trackers: make(map[string]*situate.Tracker)}
}

// Put registers (or replaces) the tracker for a session id.
func (r *MemSessionRegistry) Put(sessionID string, t *situate.Tracker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers[sessionID] = t
}

// Remove drops a session's tracker (e.g. on session end).
func (r *MemSessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trackers, sessionID)
}

func summarize(sessionID string, t *situate.Tracker) SessionStatus {
	transitions := t.FindTransitions(situate.SeverityNone)
	lastSeverity := situate.SeverityNone
	if len(transitions) > 0 {
		lastSeverity = transitions[len(transitions)-1].Severity
	}
	return SessionStatus{
		SessionID:    sessionID,
		HistoryLen:   t.Len(),
		LastSeverity: string(lastSeverity),
	}
}

// Status returns the named session's summary.
func (r *MemSessionRegistry) Status(sessionID string) (SessionStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trackers[sessionID]
	if !ok {
		return SessionStatus{}, false
	}
	return summarize(sessionID, t), true
}

// List returns every tracked session's summary.
func (r *MemSessionRegistry) List() []SessionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionStatus, 0, len(r.trackers))
	for sessionID, t := range r.trackers {
		out = append(out, summarize(sessionID, t))
	}
	return out
}
