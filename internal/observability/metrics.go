// Package observability implements vcp-agent's Prometheus metrics.
//
// Endpoint: GET /metrics on 127.0.0.1:9090 (configurable via
// config.ObservabilityConfig.MetricsAddr).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback only by default — no external exposure.
//
// Metric naming convention: vcp_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - Result/reason labels use the small, fixed check/result vocabulary
//     from internal/orchestrator (never a raw bundle ID or session ID).
//   - Session IDs are never used as labels (unbounded cardinality).
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for vcp-agent.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Verification pipeline ───────────────────────────────────────────────

	// VerificationsTotal counts orchestrator.Verify calls by result.
	// Labels: result (VALID, SIZE_EXCEEDED, UNTRUSTED_ISSUER, ...)
	VerificationsTotal *prometheus.CounterVec

	// VerificationLatency records orchestrator.Verify wall-clock duration.
	VerificationLatency prometheus.Histogram

	// BundlesRejectedTotal counts bundles that failed verification, by the
	// step name that failed (the first orchestrator check name that did not pass).
	BundlesRejectedTotal *prometheus.CounterVec

	// ─── Situate / session tracking ──────────────────────────────────────────

	// ActiveSessions is the current number of sessions held by the situate
	// tracker.
	ActiveSessions prometheus.Gauge

	// ContextUpdatesTotal counts situate.Tracker Record calls.
	ContextUpdatesTotal prometheus.Counter

	// ─── Budget ───────────────────────────────────────────────────────────────

	// BudgetTokensRemaining is the current remaining token budget, by model
	// family.
	// Labels: model_family
	BudgetTokensRemaining *prometheus.GaugeVec

	// BudgetExceededTotal counts injections refused for exceeding the
	// configured model-family budget.
	BudgetExceededTotal *prometheus.CounterVec

	// ─── Messaging ────────────────────────────────────────────────────────────

	// EnvelopesReceivedTotal counts received messaging envelopes, by
	// acceptance status.
	// Labels: accepted (true, false)
	EnvelopesReceivedTotal *prometheus.CounterVec

	// EnvelopesSentTotal counts sent messaging envelopes.
	EnvelopesSentTotal prometheus.Counter

	// ─── Identity registry ────────────────────────────────────────────────────

	// IdentityQueriesTotal counts identity.Registry.Find calls, by scope.
	// Labels: scope (exact, prefix, pattern)
	IdentityQueriesTotal *prometheus.CounterVec

	// IdentityRedactedTotal counts entries redacted from Find results for
	// insufficient privacy-tier authorization.
	IdentityRedactedTotal prometheus.Counter

	// ─── Storage ──────────────────────────────────────────────────────────────

	// StorageWriteLatency records bbolt write transaction latency.
	StorageWriteLatency prometheus.Histogram

	// AuditLedgerEntries is the current number of in-memory audit log entries.
	AuditLedgerEntries prometheus.Gauge

	// ─── Agent ────────────────────────────────────────────────────────────────

	// AgentUptimeSeconds is the number of seconds since agent start.
	AgentUptimeSeconds prometheus.Gauge

	// startTime records when the agent started (for uptime calculation).
	startTime time.Time
}

// NewMetrics creates and registers all vcp-agent Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		VerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vcp",
			Subsystem: "verify",
			Name:      "total",
			Help:      "Total bundle verifications performed, by result.",
		}, []string{"result"}),

		VerificationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vcp",
			Subsystem: "verify",
			Name:      "latency_seconds",
			Help:      "Bundle verification pipeline latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		BundlesRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vcp",
			Subsystem: "verify",
			Name:      "rejected_total",
			Help:      "Total bundles rejected, by the first failing check step.",
		}, []string{"step"}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vcp",
			Subsystem: "situate",
			Name:      "active_sessions",
			Help:      "Current number of sessions held by the situate tracker.",
		}),

		ContextUpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcp",
			Subsystem: "situate",
			Name:      "context_updates_total",
			Help:      "Total situational-context updates recorded.",
		}),

		BudgetTokensRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vcp",
			Subsystem: "budget",
			Name:      "tokens_remaining",
			Help:      "Current remaining injection token budget, by model family.",
		}, []string{"model_family"}),

		BudgetExceededTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vcp",
			Subsystem: "budget",
			Name:      "exceeded_total",
			Help:      "Total injections refused for exceeding the model-family budget.",
		}, []string{"model_family"}),

		EnvelopesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vcp",
			Subsystem: "messaging",
			Name:      "envelopes_received_total",
			Help:      "Total messaging envelopes received, by acceptance status.",
		}, []string{"accepted"}),

		EnvelopesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcp",
			Subsystem: "messaging",
			Name:      "envelopes_sent_total",
			Help:      "Total messaging envelopes sent to peers.",
		}),

		IdentityQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vcp",
			Subsystem: "identity",
			Name:      "queries_total",
			Help:      "Total identity registry queries, by scope.",
		}, []string{"scope"}),

		IdentityRedactedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcp",
			Subsystem: "identity",
			Name:      "redacted_total",
			Help:      "Total identity entries redacted from query results for insufficient authorization.",
		}),

		StorageWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vcp",
			Subsystem: "storage",
			Name:      "write_latency_seconds",
			Help:      "bbolt write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		AuditLedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vcp",
			Subsystem: "storage",
			Name:      "audit_ledger_entries",
			Help:      "Current number of in-memory audit log entries.",
		}),

		AgentUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vcp",
			Subsystem: "agent",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the agent started.",
		}),
	}

	reg.MustRegister(
		m.VerificationsTotal,
		m.VerificationLatency,
		m.BundlesRejectedTotal,
		m.ActiveSessions,
		m.ContextUpdatesTotal,
		m.BudgetTokensRemaining,
		m.BudgetExceededTotal,
		m.EnvelopesReceivedTotal,
		m.EnvelopesSentTotal,
		m.IdentityQueriesTotal,
		m.IdentityRedactedTotal,
		m.StorageWriteLatency,
		m.AuditLedgerEntries,
		m.AgentUptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given
// address. Blocks until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.AgentUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
