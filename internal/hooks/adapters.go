package hooks

import (
	"context"

	"github.com/creed-space/vcp/internal/bundle"
	"github.com/creed-space/vcp/internal/situate"
)

// PreInjectAdapter satisfies orchestrator.PreInjectHooks by firing the
// pre_inject chain through an Executor.
type PreInjectAdapter struct {
	Executor *Executor
}

// FirePreInject builds a pre_inject event from b and runs the chain.
func (a PreInjectAdapter) FirePreInject(ctx context.Context, sessionID string, b *bundle.Bundle) (bool, error) {
	event := map[string]interface{}{
		"injection_target": b.Manifest.Bundle.ID,
		"injection_format": "system_prompt",
		"raw_constitution": b.Content,
	}
	result := a.Executor.Execute(ctx, TypePreInject, sessionID, nil, nil, event, nil)
	return result.Status == "aborted", nil
}

// TransitionAdapter satisfies situate.TransitionHooks by firing the
// on_transition chain through an Executor.
type TransitionAdapter struct {
	Executor *Executor
}

// FireOnTransition builds an on_transition event from t and runs the
// chain.
func (a TransitionAdapter) FireOnTransition(ctx context.Context, sessionID string, t situate.Transition) (bool, error) {
	event := map[string]interface{}{
		"previous_state": t.Previous,
		"new_state":      t.Current,
		"trigger":        string(t.Severity),
	}
	result := a.Executor.Execute(ctx, TypeOnTransition, sessionID, t.Current, nil, event, nil)
	return result.Status == "aborted", nil
}
