// Package mcpsrv documents the interface an MCP (Model Context Protocol)
// tool server would implement to expose VCP operations as callable tools.
//
// Deliberately out of scope beyond an interface (spec.md §1): "MCP tool
// server wiring". No MCP SDK appears anywhere in the retrieved example
// pack, so no transport or JSON-RPC framing is wired here — only the tool
// surface a real server would dispatch to.
package mcpsrv

import (
	"context"

	"github.com/creed-space/vcp/internal/bundle"
	"github.com/creed-space/vcp/internal/identity"
	"github.com/creed-space/vcp/internal/orchestrator"
)

// ToolResult is the generic shape an MCP tool call returns.
type ToolResult struct {
	Content interface{}
	IsError bool
}

// ToolServer is the surface a real MCP transport would dispatch incoming
// tool calls to. Each method corresponds to one MCP tool definition.
type ToolServer interface {
	// VerifyBundle exposes orchestrator.Verify as the "vcp_verify" tool.
	VerifyBundle(ctx context.Context, b bundle.Bundle, vctx orchestrator.VerificationContext) ToolResult

	// FindIdentity exposes identity.Registry.Find as the "vcp_find_identity" tool.
	FindIdentity(ctx context.Context, scope identity.QueryScope, pattern string, auth identity.AuthorizationContext, maxResults int) ToolResult
}
