// Package main — cmd/vcp-agent/main.go
//
// VCP agent entrypoint.
//
// Startup sequence:
//  1. Load and validate config from /etc/vcp-agent/config.yaml.
//  2. Initialise structured logger (zap, JSON format).
//  3. Open BoltDB storage.
//  4. Prune stale audit entries.
//  5. Load the trust store from its bootstrap file.
//  6. Build the replay cache, revocation checker, hook registry/executor.
//  7. Build the orchestrator bound to the above, plus the audit log,
//     identity registry, and messaging log/node key every downstream
//     consumer (HTTP API, operator socket) shares.
//  8. Start the Prometheus metrics server (loopback-bound).
//  9. Start the operator Unix-socket server (if enabled).
// 10. Register SIGHUP handler for config hot-reload.
// 11. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel root context (propagates to all goroutines).
//  2. Close the operator listener.
//  3. Close BoltDB.
//  4. Flush logger.
//  5. Exit 0.
//
// On trust bootstrap failure or config validation failure: exit 1
// immediately.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/creed-space/vcp/internal/audit"
	"github.com/creed-space/vcp/internal/config"
	"github.com/creed-space/vcp/internal/hooks"
	"github.com/creed-space/vcp/internal/httpapi"
	"github.com/creed-space/vcp/internal/identity"
	"github.com/creed-space/vcp/internal/messaging"
	"github.com/creed-space/vcp/internal/observability"
	"github.com/creed-space/vcp/internal/operator"
	"github.com/creed-space/vcp/internal/orchestrator"
	"github.com/creed-space/vcp/internal/replay"
	"github.com/creed-space/vcp/internal/revocation"
	"github.com/creed-space/vcp/internal/storage"
	"github.com/creed-space/vcp/internal/trust"
)

func main() {
	// ── Flags ───────────────────────────────────────────────────────────
	configPath := flag.String("config", "/etc/vcp-agent/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("vcp-agent %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ─────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Initialise logger ───────────────────────────────────────
	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("VCP agent starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 3: Open BoltDB ─────────────────────────────────────────────
	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.AuditRetentionDays)
	if err != nil {
		log.Fatal("BoltDB open failed", zap.Error(err),
			zap.String("path", cfg.Storage.DBPath))
	}
	defer db.Close() //nolint:errcheck
	log.Info("BoltDB opened", zap.String("path", cfg.Storage.DBPath))

	// ── Step 4: Prune stale audit entries ───────────────────────────────
	pruned, err := db.PruneOldAuditEntries()
	if err != nil {
		log.Warn("audit ledger pruning failed", zap.Error(err))
	} else {
		log.Info("audit ledger pruned", zap.Int("deleted", pruned))
	}

	// ── Step 5: Load trust store ─────────────────────────────────────────
	trustStore, err := loadTrustStore(cfg.Trust.BootstrapFile, db)
	if err != nil {
		log.Fatal("trust bootstrap failed", zap.Error(err),
			zap.String("path", cfg.Trust.BootstrapFile))
	}
	log.Info("trust store loaded", zap.Int("anchors", trustStore.Count()))

	// ── Step 6: Replay cache, revocation checker, hooks ─────────────────
	replayCache := replay.New(cfg.Replay.Capacity)
	defer replayCache.Close()

	revocationChecker := revocation.NewChecker(cfg.Revocation.Timeout, cfg.Revocation.CacheTTL, log)

	hookRegistry := hooks.NewRegistry(log)
	hookExecutor := hooks.NewExecutor(hookRegistry, log)

	// ── Step 7: Orchestrator ─────────────────────────────────────────────
	orch := orchestrator.New(trustStore, replayCache, revocationChecker,
		hooks.PreInjectAdapter{Executor: hookExecutor}, log)

	auditLog := audit.NewLog(0)
	identityRegistry := identity.NewRegistry(0, 0)
	envelopeLog := messaging.NewLog(0)

	// Node signing key for inter-agent envelopes (constitution_announce,
	// etc.). Regenerated on every restart — multi-node deployments that need
	// a stable node identity across restarts should persist this in db
	// instead; a single-node deployment only ever needs to verify its own
	// signatures.
	_, nodeKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		log.Fatal("node keypair generation failed", zap.Error(err))
	}

	// ── Step 8: Metrics server ───────────────────────────────────────────
	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Thin HTTP verification endpoint (spec non-goal c/d: minimal,
	// not a full REST API) ───────────────────────────────────────────────
	if cfg.API.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/v1/verify", httpapi.NewHandler(httpapi.Config{
			Verifier:         orch,
			AuditLog:         auditLog,
			IdentityRegistry: identityRegistry,
			EnvelopeLog:      envelopeLog,
			NodeID:           cfg.NodeID,
			NodeKey:          nodeKey,
		}))
		mux.Handle("/v1/compose", httpapi.NewComposeHandler(orch, auditLog))
		apiSrv := &http.Server{Addr: cfg.API.Addr, Handler: mux}
		go func() {
			<-ctx.Done()
			apiSrv.Close() //nolint:errcheck
		}()
		go func() {
			if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http api server error", zap.Error(err))
			}
		}()
		log.Info("http verify endpoint started", zap.String("addr", cfg.API.Addr))
	}

	// ── Step 9: Operator server ──────────────────────────────────────────
	sessionRegistry := operator.NewMemSessionRegistry()
	if cfg.Operator.Enabled {
		opSrv := operator.NewServer(cfg.Operator.SocketPath, sessionRegistry, trustStore, auditLog, identityRegistry, envelopeLog, log)
		go func() {
			if err := opSrv.ListenAndServe(ctx); err != nil {
				log.Error("operator server error", zap.Error(err))
			}
		}()
		log.Info("operator server started", zap.String("socket", cfg.Operator.SocketPath))
	} else {
		log.Info("operator server disabled")
	}

	// ── Step 10: SIGHUP hot-reload ───────────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			// Apply non-destructive changes.
			log.Info("config hot-reload successful",
				zap.String("log_level", newCfg.Observability.LogLevel))
			// In a full implementation, propagate budget/hook config
			// changes to the orchestrator atomically here.
			_ = newCfg
		}
	}()

	// ── Step 11: Wait for shutdown signal ────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()
	log.Info("VCP agent shutdown complete")
}

// loadTrustStore reads the trust bootstrap file (spec §6's trust
// configuration JSON object), then applies the lifecycle state of each
// anchor persisted in db to the matching bootstrap anchor; persisted
// anchors absent from the bootstrap file are not added. Nothing in
// vcp-agent writes persisted anchors, so state changes made at runtime are
// not carried across a restart.
func loadTrustStore(bootstrapPath string, db *storage.DB) (*trust.Store, error) {
	f, err := os.Open(bootstrapPath)
	if err != nil {
		return nil, fmt.Errorf("open bootstrap file: %w", err)
	}
	defer f.Close()

	var cfg trust.Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode bootstrap file: %w", err)
	}

	store := trust.LoadConfig(cfg)

	persisted, err := db.ListTrustAnchors()
	if err != nil {
		return nil, fmt.Errorf("load persisted anchors: %w", err)
	}
	for _, a := range persisted {
		store.SetState(a.ID, a.KeyID, a.State)
	}

	return store, nil
}

// buildLogger constructs a zap.Logger with the given level and format.
func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
