// Package main — cmd/vcp-verify/main.go
//
// vcp-verify is a standalone driver exercising the verify() pipeline
// against a single bundle file, without standing up the full vcp-agent
// daemon (no operator socket, no metrics server, no persistence).
//
// Usage:
//
//	vcp-verify -bundle bundle.json -trust trust-anchors.json \
//	  [-model-family gpt-4o] [-context-limit 128000] [-purpose ...] \
//	  [-environment ...] [-strict]
//
// Exit codes: 0 on VALID, 1 on any other Result, 2 on usage/IO errors.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/creed-space/vcp/internal/bundle"
	"github.com/creed-space/vcp/internal/config"
	"github.com/creed-space/vcp/internal/orchestrator"
	"github.com/creed-space/vcp/internal/replay"
	"github.com/creed-space/vcp/internal/revocation"
	"github.com/creed-space/vcp/internal/trust"
)

func main() {
	bundlePath := flag.String("bundle", "", "Path to a bundle JSON file (manifest + content)")
	trustPath := flag.String("trust", "", "Path to a trust anchors bootstrap JSON file")
	modelFamily := flag.String("model-family", "", "Model family for budget check (e.g. gpt-4o)")
	contextLimit := flag.Int("context-limit", 0, "Model context window token limit")
	purpose := flag.String("purpose", "", "Session purpose, checked against manifest scope")
	environment := flag.String("environment", "", "Session environment, checked against manifest scope")
	sessionID := flag.String("session-id", "", "Session id recorded in the replay/audit trail")
	strict := flag.Bool("strict", true, "Enable strict injection-scan enforcement")
	flag.Parse()

	if *bundlePath == "" || *trustPath == "" {
		fmt.Fprintln(os.Stderr, "usage: vcp-verify -bundle <file> -trust <file> [flags]")
		os.Exit(2)
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync() //nolint:errcheck

	b, err := loadBundle(*bundlePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load bundle: %v\n", err)
		os.Exit(2)
	}

	trustStore, err := loadTrust(*trustPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load trust anchors: %v\n", err)
		os.Exit(2)
	}

	defaults := config.Defaults()

	replayCache := replay.New(defaults.Replay.Capacity)
	defer replayCache.Close()

	revocationChecker := revocation.NewChecker(defaults.Revocation.Timeout, defaults.Revocation.CacheTTL, log)

	orch := orchestrator.New(trustStore, replayCache, revocationChecker, nil, log)

	vctx := orchestrator.VerificationContext{
		ModelContextLimit: *contextLimit,
		ModelFamily:       *modelFamily,
		Purpose:           *purpose,
		Environment:       *environment,
		SessionID:         *sessionID,
		Strict:            *strict,
	}

	result, checksPassed := orch.Verify(context.Background(), b, vctx)

	fmt.Printf("result: %s\n", result.String())
	fmt.Printf("checks_passed: %v\n", checksPassed)

	if result.IsValid() {
		os.Exit(0)
	}
	os.Exit(1)
}

// loadBundle reads a JSON-encoded bundle.Bundle from path.
func loadBundle(path string) (bundle.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return bundle.Bundle{}, err
	}
	var b bundle.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return bundle.Bundle{}, err
	}
	return b, nil
}

// loadTrust reads a trust.Config bootstrap file and builds a Store.
func loadTrust(path string) (*trust.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg trust.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return trust.LoadConfig(cfg), nil
}
