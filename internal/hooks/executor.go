package hooks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Executor runs hook chains pulled from a Registry, enforcing per-hook
// timeouts, predicate evaluation, abort/modify semantics, and cascade
// failure detection (>50% of executed hooks erroring or timing out).
type Executor struct {
	registry *Registry
	log      *zap.Logger
}

// NewExecutor creates an Executor bound to registry.
func NewExecutor(registry *Registry, log *zap.Logger) *Executor {
	return &Executor{registry: registry, log: log}
}

// Execute runs the priority-ordered chain for hookType and sessionID over
// context/constitution, passing event as the type-specific payload.
func (e *Executor) Execute(
	ctx context.Context,
	hookType Type,
	sessionID string,
	vcpContext interface{},
	constitution interface{},
	event interface{},
	sessionInfo map[string]interface{},
) ChainResult {
	chain := e.registry.GetChain(hookType, sessionID)
	if len(chain) == 0 {
		return ChainResult{Status: "completed", Context: vcpContext, Constitution: constitution}
	}

	chainState := make(map[string]interface{})
	currentContext := vcpContext
	currentConstitution := constitution
	var results []HookOutcome
	errors := 0
	executed := 0

	for _, hook := range chain {
		if !hook.Enabled {
			continue
		}

		input := Input{
			Context:      currentContext,
			Constitution: currentConstitution,
			Event:        event,
			Session:      sessionInfo,
			ChainState:   chainState,
		}

		if hook.Condition != nil {
			if !safePredicate(hook.Condition, input) {
				continue
			}
		}

		executed++
		start := time.Now()
		result, timedOutOrErrored := e.runWithDeadline(ctx, hook, input)
		result.DurationMS = time.Since(start).Milliseconds()
		if timedOutOrErrored {
			errors++
		}
		results = append(results, HookOutcome{Name: hook.Name, Result: result})

		switch result.Status {
		case StatusAbort:
			return ChainResult{
				Status:       "aborted",
				Reason:       result.Reason,
				Context:      currentContext,
				Constitution: currentConstitution,
				HookResults:  results,
				AbortedBy:    hook.Name,
			}
		case StatusModify:
			if result.ModifiedContext != nil {
				currentContext = result.ModifiedContext
			}
			if result.ModifiedConstitution != nil {
				currentConstitution = result.ModifiedConstitution
			}
		}
	}

	cascade := executed > 0 && float64(errors)/float64(executed) > 0.5
	if cascade && e.log != nil {
		e.log.Warn("hook cascade failure",
			zap.String("type", string(hookType)),
			zap.Int("total", executed),
			zap.Int("errors", errors))
	}

	return ChainResult{
		Status:         "completed",
		Context:        currentContext,
		Constitution:   currentConstitution,
		HookResults:    results,
		CascadeFailure: cascade,
	}
}

// safePredicate evaluates a hook's condition, treating a panic as false
// (skip the hook) — a predicate must never be allowed to crash the chain.
func safePredicate(pred Predicate, input Input) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return pred(input)
}

// runWithDeadline executes hook.Action on its own goroutine with a
// wall-clock deadline of hook.TimeoutMS. If the deadline elapses first,
// the goroutine's eventual result is discarded — abandoned work must
// never mutate pipeline state after its deadline. A panicking action is
// also normalized to a continue result, matching the registry's
// exception-is-fail-open contract for hook actions, and like a timeout it
// is reported as an error for cascade detection.
func (e *Executor) runWithDeadline(ctx context.Context, hook Hook, input Input) (Result, bool) {
	deadline := time.Duration(hook.TimeoutMS) * time.Millisecond
	hookCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type outcome struct {
		result   Result
		panicked bool
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{result: Result{Status: StatusContinue}, panicked: true}
			}
		}()
		done <- outcome{result: hook.Action(hookCtx, input)}
	}()

	select {
	case o := <-done:
		return o.result, o.panicked
	case <-hookCtx.Done():
		if e.log != nil {
			e.log.Warn("hook timeout",
				zap.String("name", hook.Name),
				zap.Int("timeout_ms", hook.TimeoutMS))
		}
		return Result{Status: StatusContinue}, true
	}
}
