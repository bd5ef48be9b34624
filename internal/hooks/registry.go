package hooks

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry holds deployment-scoped (process-wide) and session-scoped
// hooks, keyed by type, and assembles priority-ordered chains on demand.
// Concurrency shape grounded on operator.MemRegistry (RWMutex-guarded
// map-of-structs, safe under concurrent callers).
type Registry struct {
	mu         sync.RWMutex
	deployment map[Type][]Hook
	session    map[string]map[Type][]Hook
	log        *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *zap.Logger) *Registry {
	deployment := make(map[Type][]Hook, len(AllTypes))
	for _, t := range AllTypes {
		deployment[t] = nil
	}
	return &Registry{
		deployment: deployment,
		session:    make(map[string]map[Type][]Hook),
		log:        log,
	}
}

// Register validates hook, rejects a duplicate name within scope+type,
// and inserts it into the target list in priority-descending order.
func (r *Registry) Register(hook Hook, scope Scope, sessionID string) error {
	if err := hook.Validate(); err != nil {
		return err
	}
	if scope == ScopeSession && sessionID == "" {
		return fmt.Errorf("hooks: session_id is required for session-scoped hooks")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	target, err := r.targetList(hook.Type, scope, sessionID)
	if err != nil {
		return err
	}
	for _, h := range target {
		if h.Name == hook.Name {
			return &DuplicateError{Name: hook.Name, Scope: scope}
		}
	}

	target = append(target, hook)
	insertionSort(target)
	r.setTargetList(hook.Type, scope, sessionID, target)

	if r.log != nil {
		r.log.Info("hook registered",
			zap.String("name", hook.Name),
			zap.String("type", string(hook.Type)),
			zap.String("scope", string(scope)),
			zap.Int("priority", hook.Priority))
	}
	return nil
}

// Deregister removes a hook by name from the given scope. Returns true
// if a hook was found and removed.
func (r *Registry) Deregister(name string, scope Scope, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	switch scope {
	case ScopeDeployment:
		for _, t := range AllTypes {
			before := len(r.deployment[t])
			r.deployment[t] = removeByName(r.deployment[t], name)
			if len(r.deployment[t]) < before {
				found = true
			}
		}
	case ScopeSession:
		sessionHooks, ok := r.session[sessionID]
		if !ok {
			return false
		}
		for _, t := range AllTypes {
			before := len(sessionHooks[t])
			sessionHooks[t] = removeByName(sessionHooks[t], name)
			if len(sessionHooks[t]) < before {
				found = true
			}
		}
	}
	if found && r.log != nil {
		r.log.Info("hook deregistered", zap.String("name", name), zap.String("scope", string(scope)))
	}
	return found
}

// GetChain returns the merged, priority-ordered chain for hookType and
// session: deployment hooks run before session hooks at equal priority.
func (r *Registry) GetChain(hookType Type, sessionID string) []Hook {
	r.mu.RLock()
	deployment := append([]Hook(nil), r.deployment[hookType]...)
	var session []Hook
	if sessionHooks, ok := r.session[sessionID]; ok {
		session = append([]Hook(nil), sessionHooks[hookType]...)
	}
	r.mu.RUnlock()

	return mergeByPriority(deployment, session)
}

// RegisteredCount returns the total hook count across all types in scope.
func (r *Registry) RegisteredCount(scope Scope, sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	switch scope {
	case ScopeDeployment:
		for _, t := range AllTypes {
			total += len(r.deployment[t])
		}
	case ScopeSession:
		for _, hooks := range r.session[sessionID] {
			total += len(hooks)
		}
	}
	return total
}

// ClearSession drops all hooks registered under sessionID.
func (r *Registry) ClearSession(sessionID string) {
	r.mu.Lock()
	delete(r.session, sessionID)
	r.mu.Unlock()
	if r.log != nil {
		r.log.Info("hook session cleared", zap.String("session_id", sessionID))
	}
}

func (r *Registry) targetList(hookType Type, scope Scope, sessionID string) ([]Hook, error) {
	switch scope {
	case ScopeDeployment:
		return r.deployment[hookType], nil
	case ScopeSession:
		if sessionID == "" {
			return nil, fmt.Errorf("hooks: session_id required for session scope")
		}
		if _, ok := r.session[sessionID]; !ok {
			sessionHooks := make(map[Type][]Hook, len(AllTypes))
			for _, t := range AllTypes {
				sessionHooks[t] = nil
			}
			r.session[sessionID] = sessionHooks
		}
		return r.session[sessionID][hookType], nil
	default:
		return nil, fmt.Errorf("hooks: unknown scope %q", scope)
	}
}

func (r *Registry) setTargetList(hookType Type, scope Scope, sessionID string, hooks []Hook) {
	switch scope {
	case ScopeDeployment:
		r.deployment[hookType] = hooks
	case ScopeSession:
		r.session[sessionID][hookType] = hooks
	}
}

// insertionSort keeps hooks sorted priority-descending; registrations are
// infrequent relative to chain reads so an O(n) insertion is acceptable.
func insertionSort(hooks []Hook) {
	for i := len(hooks) - 1; i > 0; i-- {
		if hooks[i].Priority > hooks[i-1].Priority {
			hooks[i], hooks[i-1] = hooks[i-1], hooks[i]
		} else {
			break
		}
	}
}

func removeByName(hooks []Hook, name string) []Hook {
	out := hooks[:0]
	for _, h := range hooks {
		if h.Name != name {
			out = append(out, h)
		}
	}
	return out
}

// mergeByPriority merges two priority-descending-sorted lists, preferring
// deployment hooks at equal priority.
func mergeByPriority(deployment, session []Hook) []Hook {
	result := make([]Hook, 0, len(deployment)+len(session))
	d, s := 0, 0
	for d < len(deployment) && s < len(session) {
		if deployment[d].Priority >= session[s].Priority {
			result = append(result, deployment[d])
			d++
		} else {
			result = append(result, session[s])
			s++
		}
	}
	result = append(result, deployment[d:]...)
	result = append(result, session[s:]...)
	return result
}
