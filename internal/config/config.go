// Package config loads, validates, and defaults the vcp-agent
// configuration.
//
// Near-verbatim structural adaptation of the teacher's
// internal/config/config.go: a Config struct with a Defaults() function,
// a Load(path) function that applies defaults then overlays a YAML file,
// and a Validate(cfg) function that accumulates every violation into one
// error, re-keyed from octoreflex's sections (agent, anomaly, escalation,
// budget, storage, gossip, observability, operator) to VCP's (trust,
// replay, revocation, orchestrator, budget, hooks, storage, operator,
// observability).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the Makefile via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for vcp-agent.
type Config struct {
	// SchemaVersion must be "1".
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this agent in audit entries and messaging
	// envelopes. Default: hostname.
	NodeID string `yaml:"node_id"`

	Trust         TrustConfig         `yaml:"trust"`
	Replay        ReplayConfig        `yaml:"replay"`
	Revocation    RevocationConfig    `yaml:"revocation"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Budget        BudgetConfig        `yaml:"budget"`
	Hooks         HooksConfig         `yaml:"hooks"`
	Storage       StorageConfig       `yaml:"storage"`
	Operator      OperatorConfig      `yaml:"operator"`
	Observability ObservabilityConfig `yaml:"observability"`
	API           APIConfig           `yaml:"api"`
}

// TrustConfig points at the bootstrap trust-anchor file loaded into
// trust.Store at startup (trust.Config's JSON shape).
type TrustConfig struct {
	// BootstrapFile is the absolute path to the trust anchors JSON file.
	BootstrapFile string `yaml:"bootstrap_file"`
}

// ReplayConfig sizes the Replay Cache.
type ReplayConfig struct {
	// Capacity is the maximum number of jti entries retained. Default: 100000.
	Capacity int `yaml:"capacity"`
}

// RevocationConfig governs the Revocation Checker's network behavior.
type RevocationConfig struct {
	// Timeout bounds each revocation HTTP request. Default: 5s.
	Timeout time.Duration `yaml:"timeout"`

	// CacheTTL bounds how long a cache hit is trusted before re-checking.
	// Default: 5m.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheSizeCap must be >= 1 but is not passed to revocation.NewChecker;
	// the checker's cache has no entry limit. Default: 10000.
	CacheSizeCap int `yaml:"cache_size_cap"`
}

// OrchestratorConfig holds verify() pipeline settings. Neither field is
// read outside Validate: the orchestrator takes strictness per call from
// VerificationContext.Strict and applies its own fixed size limits.
type OrchestratorConfig struct {
	// StrictMode is not read by any component. Default: true.
	StrictMode bool `yaml:"strict_mode"`

	// MaxBundleSizeBytes must be >= 1 but is not read by any component;
	// SIZE_EXCEEDED is decided by the orchestrator's fixed manifest and
	// content limits. Default: 1048576 (1 MiB).
	MaxBundleSizeBytes int `yaml:"max_bundle_size_bytes"`
}

// BudgetConfig holds per-model-family token budget limits.
type BudgetConfig struct {
	// ModelContextLimits maps a model family name to its context window
	// token count. Validate requires every value to be >= 1; no component
	// reads the map (the budget check uses
	// VerificationContext.ModelContextLimit).
	ModelContextLimits map[string]int `yaml:"model_context_limits"`
}

// HooksConfig holds hook executor defaults.
type HooksConfig struct {
	// DefaultTimeoutMS must lie in [1, 30000] but is not read by any
	// component; a hook registration without timeout_ms is not given this
	// default. Default: 500.
	DefaultTimeoutMS int `yaml:"default_timeout_ms"`
}

// StorageConfig holds bbolt persistence parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the bbolt file.
	// Default: /var/lib/vcp-agent/vcp.db.
	DBPath string `yaml:"db_path"`

	// AuditRetentionDays is the audit ledger retention period. Default: 30.
	AuditRetentionDays int `yaml:"audit_retention_days"`
}

// OperatorConfig holds the operator introspection socket's parameters.
type OperatorConfig struct {
	// SocketPath is the Unix domain socket path. Default: /run/vcp-agent/operator.sock.
	SocketPath string `yaml:"socket_path"`

	// Enabled controls whether the operator socket is active. Default: true.
	Enabled bool `yaml:"enabled"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9090.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// APIConfig holds the thin HTTP verification endpoint's parameters
// (spec.md's non-goal (c)/(d): a minimal adapter, not a full REST API).
type APIConfig struct {
	// Addr is the HTTP bind address for the /v1/verify endpoint.
	// Default: 127.0.0.1:9443.
	Addr string `yaml:"addr"`

	// Enabled controls whether the HTTP verification endpoint is served.
	// Default: false — operators opt in since the orchestrator is
	// otherwise reachable only through the operator socket and
	// cmd/vcp-verify.
	Enabled bool `yaml:"enabled"`
}

// DefaultDBPath is the default bbolt file location.
const DefaultDBPath = "/var/lib/vcp-agent/vcp.db"

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Trust: TrustConfig{
			BootstrapFile: "/etc/vcp-agent/trust-anchors.json",
		},
		Replay: ReplayConfig{
			Capacity: 100000,
		},
		Revocation: RevocationConfig{
			Timeout:      5 * time.Second,
			CacheTTL:     5 * time.Minute,
			CacheSizeCap: 10000,
		},
		Orchestrator: OrchestratorConfig{
			StrictMode:         true,
			MaxBundleSizeBytes: 1024 * 1024,
		},
		Budget: BudgetConfig{
			ModelContextLimits: map[string]int{
				"gpt-4":    8192,
				"gpt-4o":   128000,
				"claude-3": 200000,
			},
		},
		Hooks: HooksConfig{
			DefaultTimeoutMS: 500,
		},
		Storage: StorageConfig{
			DBPath:             DefaultDBPath,
			AuditRetentionDays: 30,
		},
		Operator: OperatorConfig{
			Enabled:    true,
			SocketPath: "/run/vcp-agent/operator.sock",
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		API: APIConfig{
			Addr:    "127.0.0.1:9443",
			Enabled: false,
		},
	}
}

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness, accumulating every
// violation into one error.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.Trust.BootstrapFile == "" {
		errs = append(errs, "trust.bootstrap_file must not be empty")
	}
	if cfg.Replay.Capacity < 1 {
		errs = append(errs, fmt.Sprintf("replay.capacity must be >= 1, got %d", cfg.Replay.Capacity))
	}
	if cfg.Revocation.Timeout < time.Millisecond {
		errs = append(errs, fmt.Sprintf("revocation.timeout must be >= 1ms, got %s", cfg.Revocation.Timeout))
	}
	if cfg.Revocation.CacheTTL < 0 {
		errs = append(errs, "revocation.cache_ttl must be >= 0")
	}
	if cfg.Revocation.CacheSizeCap < 1 {
		errs = append(errs, fmt.Sprintf("revocation.cache_size_cap must be >= 1, got %d", cfg.Revocation.CacheSizeCap))
	}
	if cfg.Orchestrator.MaxBundleSizeBytes < 1 {
		errs = append(errs, "orchestrator.max_bundle_size_bytes must be >= 1")
	}
	for family, limit := range cfg.Budget.ModelContextLimits {
		if limit < 1 {
			errs = append(errs, fmt.Sprintf("budget.model_context_limits[%q] must be >= 1, got %d", family, limit))
		}
	}
	if cfg.Hooks.DefaultTimeoutMS < 1 || cfg.Hooks.DefaultTimeoutMS > 30000 {
		errs = append(errs, fmt.Sprintf("hooks.default_timeout_ms must be in [1, 30000], got %d", cfg.Hooks.DefaultTimeoutMS))
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.AuditRetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.audit_retention_days must be >= 1, got %d", cfg.Storage.AuditRetentionDays))
	}
	if cfg.Operator.Enabled && cfg.Operator.SocketPath == "" {
		errs = append(errs, "operator.socket_path must not be empty when operator.enabled is true")
	}
	if cfg.Observability.MetricsAddr == "" {
		errs = append(errs, "observability.metrics_addr must not be empty")
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		errs = append(errs, "api.addr must not be empty when api.enabled is true")
	}
	switch cfg.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_level must be one of debug/info/warn/error, got %q", cfg.Observability.LogLevel))
	}
	switch cfg.Observability.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_format must be json or console, got %q", cfg.Observability.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
