package hooks

import (
	"context"
	"testing"
	"time"
)

func TestExecutor_EmptyChainCompletesUnchanged(t *testing.T) {
	r := NewRegistry(nil)
	e := NewExecutor(r, nil)

	result := e.Execute(context.Background(), TypePreInject, "sess-1", "ctx", "constitution", nil, nil)
	if result.Status != "completed" {
		t.Errorf("expected completed, got %s", result.Status)
	}
	if result.Context != "ctx" {
		t.Errorf("expected context unchanged, got %v", result.Context)
	}
}

func TestExecutor_AbortShortCircuitsChain(t *testing.T) {
	r := NewRegistry(nil)
	fired := map[string]bool{}

	first := validHook("first", 90)
	first.Action = func(ctx context.Context, in Input) Result {
		fired["first"] = true
		return Result{Status: StatusAbort, Reason: "policy violation"}
	}
	second := validHook("second", 50)
	second.Action = func(ctx context.Context, in Input) Result {
		fired["second"] = true
		return Result{Status: StatusContinue}
	}
	r.Register(first, ScopeDeployment, "")
	r.Register(second, ScopeDeployment, "")

	e := NewExecutor(r, nil)
	result := e.Execute(context.Background(), TypePreInject, "", nil, nil, nil, nil)

	if result.Status != "aborted" {
		t.Fatalf("expected aborted, got %s", result.Status)
	}
	if result.AbortedBy != "first" {
		t.Errorf("expected aborted_by=first, got %s", result.AbortedBy)
	}
	if fired["second"] {
		t.Error("expected second hook not to fire after abort")
	}
}

func TestExecutor_ModifyPassesReplacementForward(t *testing.T) {
	r := NewRegistry(nil)
	modifier := validHook("modifier", 90)
	modifier.Action = func(ctx context.Context, in Input) Result {
		return Result{Status: StatusModify, ModifiedContext: "new-context"}
	}
	var seenContext interface{}
	reader := validHook("reader", 50)
	reader.Action = func(ctx context.Context, in Input) Result {
		seenContext = in.Context
		return Result{Status: StatusContinue}
	}
	r.Register(modifier, ScopeDeployment, "")
	r.Register(reader, ScopeDeployment, "")

	e := NewExecutor(r, nil)
	result := e.Execute(context.Background(), TypePreInject, "", "old-context", nil, nil, nil)

	if seenContext != "new-context" {
		t.Errorf("expected second hook to see modified context, got %v", seenContext)
	}
	if result.Context != "new-context" {
		t.Errorf("expected final context to be modified value, got %v", result.Context)
	}
}

func TestExecutor_TimeoutTreatedAsContinueAndCounted(t *testing.T) {
	r := NewRegistry(nil)
	slow := validHook("slow", 50)
	slow.TimeoutMS = 10
	slow.Action = func(ctx context.Context, in Input) Result {
		<-ctx.Done()
		return Result{Status: StatusAbort, Reason: "should never apply"}
	}
	r.Register(slow, ScopeDeployment, "")

	e := NewExecutor(r, nil)
	result := e.Execute(context.Background(), TypePreInject, "", nil, nil, nil, nil)

	if result.Status != "completed" {
		t.Fatalf("expected completed despite timeout, got %s", result.Status)
	}
	if len(result.HookResults) != 1 || result.HookResults[0].Result.Status != StatusContinue {
		t.Errorf("expected timed-out hook recorded as continue, got %+v", result.HookResults)
	}
	if !result.CascadeFailure {
		t.Error("expected the timed-out hook to be counted as an error (1 of 1 executed > 50%)")
	}
}

func TestExecutor_PanicTreatedAsContinue(t *testing.T) {
	r := NewRegistry(nil)
	bad := validHook("panics", 50)
	bad.Action = func(ctx context.Context, in Input) Result {
		panic("boom")
	}
	r.Register(bad, ScopeDeployment, "")

	e := NewExecutor(r, nil)
	result := e.Execute(context.Background(), TypePreInject, "", nil, nil, nil, nil)

	if result.Status != "completed" {
		t.Fatalf("expected completed despite panic, got %s", result.Status)
	}
}

func TestExecutor_DisabledHookSkipped(t *testing.T) {
	r := NewRegistry(nil)
	fired := false
	disabled := validHook("disabled", 50)
	disabled.Enabled = false
	disabled.Action = func(ctx context.Context, in Input) Result {
		fired = true
		return Result{Status: StatusContinue}
	}
	r.Register(disabled, ScopeDeployment, "")

	e := NewExecutor(r, nil)
	e.Execute(context.Background(), TypePreInject, "", nil, nil, nil, nil)
	if fired {
		t.Error("expected disabled hook not to fire")
	}
}

func TestExecutor_PredicateFalseSkipsHook(t *testing.T) {
	r := NewRegistry(nil)
	fired := false
	gated := validHook("gated", 50)
	gated.Condition = func(in Input) bool { return false }
	gated.Action = func(ctx context.Context, in Input) Result {
		fired = true
		return Result{Status: StatusContinue}
	}
	r.Register(gated, ScopeDeployment, "")

	e := NewExecutor(r, nil)
	e.Execute(context.Background(), TypePreInject, "", nil, nil, nil, nil)
	if fired {
		t.Error("expected gated hook not to fire when predicate is false")
	}
}

func TestExecutor_CascadeFailureDetectedOverHalfErrorRate(t *testing.T) {
	r := NewRegistry(nil)
	okHook := validHook("ok", 90)
	okHook.Action = func(ctx context.Context, in Input) Result { return Result{Status: StatusContinue} }
	timeout1 := validHook("timeout1", 70)
	timeout1.TimeoutMS = 1
	timeout1.Action = func(ctx context.Context, in Input) Result {
		time.Sleep(20 * time.Millisecond)
		return Result{Status: StatusContinue}
	}
	timeout2 := validHook("timeout2", 50)
	timeout2.TimeoutMS = 1
	timeout2.Action = func(ctx context.Context, in Input) Result {
		time.Sleep(20 * time.Millisecond)
		return Result{Status: StatusContinue}
	}
	r.Register(okHook, ScopeDeployment, "")
	r.Register(timeout1, ScopeDeployment, "")
	r.Register(timeout2, ScopeDeployment, "")

	e := NewExecutor(r, nil)
	result := e.Execute(context.Background(), TypePreInject, "", nil, nil, nil, nil)
	if !result.CascadeFailure {
		t.Error("expected cascade_failure when 2/3 hooks time out")
	}
}
