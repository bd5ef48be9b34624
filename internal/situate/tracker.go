package situate

import (
	"context"
	"sync"
	"time"
)

// DefaultHistorySize is the tracker's default bounded-history length
// (spec §4.7).
const DefaultHistorySize = 100

// Severity classifies how significant a context transition is.
type Severity string

const (
	SeverityNone      Severity = "none"
	SeverityMinor     Severity = "minor"
	SeverityMajor     Severity = "major"
	SeverityEmergency Severity = "emergency"
)

// majorDimensions are the dimensions whose change alone is enough to
// classify a transition as major (spec §4.7).
var majorDimensions = map[Dimension]bool{
	DimensionOccasion:    true,
	DimensionAgency:      true,
	DimensionConstraints: true,
}

// emergencyValues are the encoded symbol values whose presence in the
// current context classifies a transition as emergency regardless of what
// else changed (spec §4.7). Currently just occasion=emergency; extend
// here if further named values are designated emergency-level.
var emergencyValues = map[string]bool{
	alphabets[DimensionOccasion]["emergency"]: true,
}

// Transition describes a change between two recorded contexts.
type Transition struct {
	Severity          Severity
	ChangedDimensions []Dimension
	Previous          VCPContext
	Current           VCPContext
	Timestamp         time.Time
}

// classify computes the Transition between previous and current.
func classify(previous, current VCPContext, at time.Time) Transition {
	var changed []Dimension
	for _, dim := range Dimensions {
		if !equalValues(previous.Values[dim], current.Values[dim]) {
			changed = append(changed, dim)
		}
	}

	severity := SeverityNone
	switch {
	case containsEmergencyValue(current):
		severity = SeverityEmergency
	case anyMajorDimension(changed) || len(changed) >= 3:
		severity = SeverityMajor
	case len(changed) > 0:
		severity = SeverityMinor
	}

	return Transition{
		Severity:          severity,
		ChangedDimensions: changed,
		Previous:          previous,
		Current:           current,
		Timestamp:         at,
	}
}

func equalValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func anyMajorDimension(dims []Dimension) bool {
	for _, d := range dims {
		if majorDimensions[d] {
			return true
		}
	}
	return false
}

func containsEmergencyValue(ctx VCPContext) bool {
	for _, values := range ctx.Values {
		for _, v := range values {
			if emergencyValues[v] {
				return true
			}
		}
	}
	return false
}

// Handler is invoked per-severity when the tracker records a transition.
type Handler func(Transition)

// TransitionHooks fires the on_transition hook chain (spec §4.7, §4.8). An
// abort rolls the new record back out of history. A non-nil err is
// fail-open: the transition completes as if the chain had no hooks.
type TransitionHooks interface {
	FireOnTransition(ctx context.Context, sessionID string, t Transition) (aborted bool, err error)
}

type entry struct {
	timestamp time.Time
	context   VCPContext
}

// Tracker maintains a bounded-history sequence of recorded contexts and
// classifies the transition between consecutive records. Grounded on the
// teacher's escalation.Accumulator (one mutex-guarded instance per key)
// for the concurrency shape, and on escalation's threshold-table style for
// classify's severity decision table.
type Tracker struct {
	mu         sync.Mutex
	maxHistory int
	history    []entry
	handlers   map[Severity][]Handler
	hooks      TransitionHooks
	sessionID  string
}

// NewTracker creates a Tracker with the given bounded history size (0 uses
// DefaultHistorySize) and an optional hook executor.
func NewTracker(maxHistory int, sessionID string, hooks TransitionHooks) *Tracker {
	if maxHistory <= 0 {
		maxHistory = DefaultHistorySize
	}
	return &Tracker{
		maxHistory: maxHistory,
		handlers:   make(map[Severity][]Handler),
		hooks:      hooks,
		sessionID:  sessionID,
	}
}

// OnSeverity registers a handler invoked whenever a recorded transition
// has exactly the given severity.
func (t *Tracker) OnSeverity(sev Severity, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[sev] = append(t.handlers[sev], h)
}

// Record appends ctx to history, computes its Transition against the
// previous record (Severity none if this is the first record), trims
// history to maxHistory, and fires registered severity handlers. If an
// on_transition hook chain is attached and aborts, the new record is
// rolled back and Record returns (Transition{}, false). The first record
// has no previous context and does not fire the hook chain. A hook
// executor error is fail-open: the transition is treated as completed.
func (t *Tracker) Record(ctx context.Context, c VCPContext, at time.Time) (Transition, bool) {
	t.mu.Lock()
	var previous VCPContext
	hadPrevious := len(t.history) > 0
	if hadPrevious {
		previous = t.history[len(t.history)-1].context
	} else {
		previous = NewContext()
	}

	transition := classify(previous, c, at)
	if !hadPrevious {
		transition.Severity = SeverityNone
		transition.ChangedDimensions = nil
	}

	t.history = append(t.history, entry{timestamp: at, context: c})
	if len(t.history) > t.maxHistory {
		t.history = t.history[len(t.history)-t.maxHistory:]
	}
	handlers := append([]Handler(nil), t.handlers[transition.Severity]...)
	hooks := t.hooks
	sessionID := t.sessionID
	t.mu.Unlock()

	if hooks != nil && hadPrevious {
		aborted, err := hooks.FireOnTransition(ctx, sessionID, transition)
		if err != nil {
			// fail-open: proceed as completed
		} else if aborted {
			t.mu.Lock()
			if len(t.history) > 0 {
				t.history = t.history[:len(t.history)-1]
			}
			t.mu.Unlock()
			return Transition{}, false
		}
	}

	for _, h := range handlers {
		h(transition)
	}
	return transition, true
}

// History returns a copy of the tracked contexts, oldest first.
func (t *Tracker) History() []VCPContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]VCPContext, len(t.history))
	for i, e := range t.history {
		out[i] = e.context
	}
	return out
}

// Len returns the current history length.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}

// FindTransitions recomputes every transition across stored history and
// returns those at or above minSeverity.
func (t *Tracker) FindTransitions(minSeverity Severity) []Transition {
	t.mu.Lock()
	hist := append([]entry(nil), t.history...)
	t.mu.Unlock()

	var out []Transition
	var previous VCPContext
	for i, e := range hist {
		if i == 0 {
			previous = NewContext()
		}
		tr := classify(previous, e.context, e.timestamp)
		if i == 0 {
			tr.Severity = SeverityNone
			tr.ChangedDimensions = nil
		}
		if severityRank(tr.Severity) >= severityRank(minSeverity) {
			out = append(out, tr)
		}
		previous = e.context
	}
	return out
}

func severityRank(s Severity) int {
	switch s {
	case SeverityNone:
		return 0
	case SeverityMinor:
		return 1
	case SeverityMajor:
		return 2
	case SeverityEmergency:
		return 3
	default:
		return -1
	}
}
