package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/creed-space/vcp/internal/bundle"
	"github.com/creed-space/vcp/internal/composer"
	"github.com/creed-space/vcp/internal/inject"
	"github.com/creed-space/vcp/internal/orchestrator"
)

// composeRequest is the JSON body accepted by POST /v1/compose: an ordered
// list of bundles to verify and merge, and the composition mode to merge
// them under.
type composeRequest struct {
	Bundles []bundle.Bundle                  `json:"bundles"`
	Mode    composer.Mode                    `json:"mode"`
	Context orchestrator.VerificationContext `json:"context"`
}

type composeResponse struct {
	MergedRules []string            `json:"merged_rules,omitempty"`
	Conflicts   []composer.Conflict `json:"conflicts,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
	Injected    string              `json:"injected,omitempty"`
	Results     []string            `json:"results"`
	Error       string              `json:"error,omitempty"`
}

// ComposeHandler adapts Verifier, composer.Compose, and inject.FormatMulti
// into a single POST /v1/compose endpoint: every input bundle is verified
// independently first, then the constitutions of the VALID ones are merged
// under the requested composition mode and returned as merged_rules, while
// the VALID bundles themselves are rendered by inject.FormatMulti into
// injected.
// Non-VALID bundles are reported in Results but excluded from composition.
type ComposeHandler struct {
	verifier Verifier
	auditLog AuditLog
	opts     inject.Options
}

// NewComposeHandler wraps verifier as an http.Handler for POST /v1/compose.
// auditLog may be nil.
func NewComposeHandler(verifier Verifier, auditLog AuditLog) *ComposeHandler {
	return &ComposeHandler{verifier: verifier, auditLog: auditLog, opts: inject.DefaultOptions()}
}

func (h *ComposeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req composeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if len(req.Bundles) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "httpapi: at least one bundle required"})
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = composer.ModeExtend
	}

	var (
		valid         []bundle.Bundle
		constitutions []composer.Constitution
		results       []string
	)
	for _, b := range req.Bundles {
		result, checksPassed := h.verifier.Verify(r.Context(), b, req.Context)
		results = append(results, result.String())

		if h.auditLog != nil {
			h.auditLog.Append(auditRecordFor(b, result, checksPassed, req.Context.SessionID))
		}

		if !result.IsValid() {
			continue
		}
		valid = append(valid, b)
		constitutions = append(constitutions, composer.Constitution{
			ID:       b.Manifest.Bundle.ID,
			Rules:    strings.Split(b.Content, "\n"),
			Priority: layerOf(b),
		})
	}

	resp := composeResponse{Results: results}

	if len(valid) == 0 {
		resp.Error = "httpapi: no bundle passed verification"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	composed, err := composer.Compose(constitutions, mode)
	if err != nil {
		if conflictErr, ok := err.(*composer.CompositionConflictError); ok {
			resp.Conflicts = conflictErr.Conflicts
		} else {
			resp.Error = err.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
		return
	}
	resp.MergedRules = composed.MergedRules
	resp.Conflicts = composed.Conflicts
	resp.Warnings = composed.Warnings

	injected, err := inject.FormatMulti(valid, h.opts, time.Now())
	if err == nil {
		resp.Injected = injected
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func layerOf(b bundle.Bundle) int {
	if b.Manifest.Compose != nil {
		return b.Manifest.Compose.Layer
	}
	return 0
}
