package hooks

import (
	"context"
	"testing"
)

func continueAction(ctx context.Context, in Input) Result { return Result{Status: StatusContinue} }

func validHook(name string, priority int) Hook {
	return Hook{
		Name:      name,
		Type:      TypePreInject,
		Priority:  priority,
		TimeoutMS: 1000,
		Enabled:   true,
		Action:    continueAction,
	}
}

func TestHook_ValidateRejectsBadName(t *testing.T) {
	h := validHook("Bad Name!", 1)
	if err := h.Validate(); err == nil {
		t.Error("expected validation error for bad name")
	}
}

func TestHook_ValidateRejectsOutOfRangePriority(t *testing.T) {
	h := validHook("ok-name", 101)
	if err := h.Validate(); err == nil {
		t.Error("expected validation error for out-of-range priority")
	}
}

func TestHook_ValidateRejectsOutOfRangeTimeout(t *testing.T) {
	h := validHook("ok-name", 1)
	h.TimeoutMS = 40000
	if err := h.Validate(); err == nil {
		t.Error("expected validation error for out-of-range timeout_ms")
	}
}

func TestHook_ValidateRejectsNilAction(t *testing.T) {
	h := validHook("ok-name", 1)
	h.Action = nil
	if err := h.Validate(); err == nil {
		t.Error("expected validation error for nil action")
	}
}

func TestRegistry_RegisterRejectsDuplicateNameInScope(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(validHook("dup", 10), ScopeDeployment, ""); err != nil {
		t.Fatal(err)
	}
	err := r.Register(validHook("dup", 20), ScopeDeployment, "")
	if err == nil {
		t.Fatal("expected DuplicateError")
	}
	if _, ok := err.(*DuplicateError); !ok {
		t.Fatalf("expected *DuplicateError, got %T", err)
	}
}

func TestRegistry_GetChainSortsPriorityDescending(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(validHook("low", 10), ScopeDeployment, "")
	r.Register(validHook("high", 90), ScopeDeployment, "")
	r.Register(validHook("mid", 50), ScopeDeployment, "")

	chain := r.GetChain(TypePreInject, "")
	want := []string{"high", "mid", "low"}
	if len(chain) != len(want) {
		t.Fatalf("expected %d hooks, got %d", len(want), len(chain))
	}
	for i, name := range want {
		if chain[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, chain[i].Name)
		}
	}
}

func TestRegistry_GetChainDeploymentPrecedesSessionAtEqualPriority(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(validHook("deploy-hook", 50), ScopeDeployment, "")
	r.Register(validHook("session-hook", 50), ScopeSession, "sess-1")

	chain := r.GetChain(TypePreInject, "sess-1")
	if len(chain) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(chain))
	}
	if chain[0].Name != "deploy-hook" || chain[1].Name != "session-hook" {
		t.Errorf("expected deployment first at equal priority, got %s, %s", chain[0].Name, chain[1].Name)
	}
}

func TestRegistry_GetChainExcludesOtherSessions(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(validHook("s1-hook", 50), ScopeSession, "sess-1")
	r.Register(validHook("s2-hook", 50), ScopeSession, "sess-2")

	chain := r.GetChain(TypePreInject, "sess-1")
	if len(chain) != 1 || chain[0].Name != "s1-hook" {
		t.Errorf("expected only sess-1's hook, got %v", chain)
	}
}

func TestRegistry_DeregisterRemovesHook(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(validHook("temp", 50), ScopeDeployment, "")
	if !r.Deregister("temp", ScopeDeployment, "") {
		t.Fatal("expected deregister to report found")
	}
	if r.RegisteredCount(ScopeDeployment, "") != 0 {
		t.Error("expected 0 hooks after deregister")
	}
}

func TestRegistry_ClearSessionDropsAllSessionHooks(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(validHook("s1-hook", 50), ScopeSession, "sess-1")
	r.ClearSession("sess-1")
	if r.RegisteredCount(ScopeSession, "sess-1") != 0 {
		t.Error("expected 0 hooks after clearing session")
	}
}

func TestRegistry_RegisterSessionScopeRequiresSessionID(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Register(validHook("orphan", 50), ScopeSession, "")
	if err == nil {
		t.Fatal("expected error for missing session_id")
	}
}
