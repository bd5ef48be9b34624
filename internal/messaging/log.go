package messaging

import "sync"

// Log is a bounded, in-memory ring buffer of recently sent envelopes,
// mirroring internal/audit.Log's NewLog/Append/Entries/Len shape so the
// operator socket can expose it with the same envelope_tail/audit_tail
// pattern.
type Log struct {
	mu      sync.Mutex
	entries []Envelope
	cap     int // 0 means unbounded
}

// NewLog creates a Log bounded at capacity entries (0 means unbounded).
func NewLog(capacity int) *Log {
	return &Log{cap: capacity}
}

// Append records e, dropping the oldest entry once capacity is exceeded.
func (l *Log) Append(e Envelope) Envelope {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	if l.cap > 0 && len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
	l.mu.Unlock()
	return e
}

// Entries returns a snapshot of all buffered envelopes, oldest first.
func (l *Log) Entries() []Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Envelope, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of buffered envelopes.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
