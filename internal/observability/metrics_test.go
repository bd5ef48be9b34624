package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersWithoutPanic(t *testing.T) {
	m := NewMetrics()
	if m.registry == nil {
		t.Fatal("expected a non-nil registry")
	}
}

func TestVerificationsTotal_IncrementsByResultLabel(t *testing.T) {
	m := NewMetrics()
	m.VerificationsTotal.WithLabelValues("VALID").Inc()
	m.VerificationsTotal.WithLabelValues("VALID").Inc()
	m.VerificationsTotal.WithLabelValues("REPLAY_DETECTED").Inc()

	if got := testutil.ToFloat64(m.VerificationsTotal.WithLabelValues("VALID")); got != 2 {
		t.Errorf("expected VALID count 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.VerificationsTotal.WithLabelValues("REPLAY_DETECTED")); got != 1 {
		t.Errorf("expected REPLAY_DETECTED count 1, got %v", got)
	}
}

func TestBudgetTokensRemaining_TracksPerModelFamily(t *testing.T) {
	m := NewMetrics()
	m.BudgetTokensRemaining.WithLabelValues("claude-3").Set(150000)
	m.BudgetTokensRemaining.WithLabelValues("gpt-4").Set(4096)

	if got := testutil.ToFloat64(m.BudgetTokensRemaining.WithLabelValues("claude-3")); got != 150000 {
		t.Errorf("expected claude-3 budget 150000, got %v", got)
	}
	if got := testutil.ToFloat64(m.BudgetTokensRemaining.WithLabelValues("gpt-4")); got != 4096 {
		t.Errorf("expected gpt-4 budget 4096, got %v", got)
	}
}

func TestIdentityRedactedTotal_Increments(t *testing.T) {
	m := NewMetrics()
	m.IdentityRedactedTotal.Inc()
	m.IdentityRedactedTotal.Inc()
	m.IdentityRedactedTotal.Inc()

	if got := testutil.ToFloat64(m.IdentityRedactedTotal); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
}
