// Package operator implements a Unix domain socket server for vcp-agent
// operator introspection and override commands.
//
// Protocol: newline-delimited JSON over a Unix domain socket.
// Socket path: /run/vcp-agent/operator.sock (configurable).
// Permissions: 0600, owned by root. Only root can connect.
//
// Commands (JSON request → JSON response):
//
//	{"cmd":"session_status","session_id":"sess-1"}
//	  → Returns the situate tracker's current history length and last
//	    transition severity for the session.
//	  → Response: {"ok":true,"session_id":"sess-1","history_len":12,"last_severity":"major"}
//
//	{"cmd":"sessions"}
//	  → Returns every tracked session with its summary.
//	  → Response: {"ok":true,"sessions":[{"session_id":"sess-1","history_len":12,"last_severity":"major"},...]}
//
//	{"cmd":"trust_list"}
//	  → Returns every registered trust anchor.
//	  → Response: {"ok":true,"anchors":[{"entity_id":"issuer.example","key_id":"k1","type":"issuer","state":"active"},...]}
//
//	{"cmd":"revoke","entity_id":"issuer.example","key_id":"k1"}
//	  → Marks the anchor compromised; the orchestrator will reject any
//	    manifest signed by it from the next verification onward.
//	  → Response: {"ok":true,"entity_id":"issuer.example","key_id":"k1"}
//
//	{"cmd":"audit_tail","n":10}
//	  → Returns the last n privacy-hashed audit log entries.
//	  → Response: {"ok":true,"entries":[...]}
//
//	{"cmd":"identity_find","scope":"prefix","pattern":"acme.assistant","n":50}
//	  → Queries the identity registry as a Privileged caller (operators see
//	    every tier). scope is one of "exact", "prefix", "pattern".
//	  → Response: {"ok":true,"identity_entries":[{"token":"acme.assistant.production","tier":"organizational","owner_id":"..."}],"has_more":false,"redacted_count":0}
//
//	{"cmd":"envelope_tail","n":10}
//	  → Returns the last n signed inter-agent envelopes this node has sent.
//	  → Response: {"ok":true,"envelopes":[...]}
//
// Grounded on the teacher's internal/operator.Server: same dispatch/cmdX
// handler shape, Request/Response envelope, semaphore-bounded concurrent
// connections, 4096-byte max request, 10s connection deadline, and 0600
// socket permissions — re-keyed from PID/escalation-state commands to
// session/trust-anchor/audit commands.
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/creed-space/vcp/internal/audit"
	"github.com/creed-space/vcp/internal/bundle"
	"github.com/creed-space/vcp/internal/identity"
	"github.com/creed-space/vcp/internal/messaging"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// SessionStatus is a snapshot of one tracked session's situate history.
type SessionStatus struct {
	SessionID    string `json:"session_id"`
	HistoryLen   int    `json:"history_len"`
	LastSeverity string `json:"last_severity"`
}

// SessionRegistry is the interface the operator uses to read situate
// tracker state. Implemented by the agent's session-to-tracker map.
type SessionRegistry interface {
	// Status returns the named session's summary, or (SessionStatus{}, false)
	// if the session is not tracked.
	Status(sessionID string) (SessionStatus, bool)

	// List returns every tracked session's summary.
	List() []SessionStatus
}

// TrustRegistry is the interface the operator uses to read and revoke
// trust anchors. Implemented by *trust.Store.
type TrustRegistry interface {
	SetState(entityID, keyID string, state bundle.AnchorState) bool
	ListAnchors() []bundle.TrustAnchor
}

// AuditRegistry is the interface the operator uses to read the audit log.
// Implemented by *audit.Log.
type AuditRegistry interface {
	Entries() []audit.Entry
}

// IdentityFinder is the interface the operator uses to query the identity
// registry. Implemented by *identity.Registry.
type IdentityFinder interface {
	Find(scope identity.QueryScope, pattern string, ctx identity.AuthorizationContext, maxResults int) (identity.QueryResult, error)
}

// EnvelopeRegistry is the interface the operator uses to read recently sent
// inter-agent envelopes. Implemented by *messaging.Log.
type EnvelopeRegistry interface {
	Entries() []messaging.Envelope
}

// identityEntryView is the JSON-safe projection of an identity.Entry
// returned to operators.
type identityEntryView struct {
	Token    string                 `json:"token"`
	Tier     string                 `json:"tier"`
	OwnerID  string                 `json:"owner_id"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// anchorView is the JSON-safe projection of a trust anchor returned to
// operators (keys are never included).
type anchorView struct {
	EntityID string `json:"entity_id"`
	KeyID    string `json:"key_id"`
	Type     string `json:"type"`
	State    string `json:"state"`
}

// Request is the JSON structure for operator commands.
type Request struct {
	Cmd       string `json:"cmd"`
	SessionID string `json:"session_id,omitempty"`
	EntityID  string `json:"entity_id,omitempty"`
	KeyID     string `json:"key_id,omitempty"`
	N         int    `json:"n,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// Response is the JSON structure for operator command responses.
type Response struct {
	OK              bool                 `json:"ok"`
	Error           string               `json:"error,omitempty"`
	SessionID       string               `json:"session_id,omitempty"`
	EntityID        string               `json:"entity_id,omitempty"`
	KeyID           string               `json:"key_id,omitempty"`
	HistoryLen      int                  `json:"history_len,omitempty"`
	LastSeverity    string               `json:"last_severity,omitempty"`
	Sessions        []SessionStatus      `json:"sessions,omitempty"`
	Anchors         []anchorView         `json:"anchors,omitempty"`
	Entries         []audit.Entry        `json:"entries,omitempty"`
	IdentityEntries []identityEntryView  `json:"identity_entries,omitempty"`
	HasMore         bool                 `json:"has_more,omitempty"`
	RedactedCount   int                  `json:"redacted_count,omitempty"`
	Envelopes       []messaging.Envelope `json:"envelopes,omitempty"`
}

// Server is the operator Unix domain socket server.
type Server struct {
	socketPath string
	sessions   SessionRegistry
	trust      TrustRegistry
	auditLog   AuditRegistry
	identity   IdentityFinder
	envelopes  EnvelopeRegistry
	log        *zap.Logger
	sem        chan struct{}
}

// NewServer creates an operator Server. identity and envelopes may be nil —
// identity_find and envelope_tail then report an error rather than panicking.
func NewServer(socketPath string, sessions SessionRegistry, trust TrustRegistry, auditLog AuditRegistry, identityFinder IdentityFinder, envelopes EnvelopeRegistry, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		sessions:   sessions,
		trust:      trust,
		auditLog:   auditLog,
		identity:   identityFinder,
		envelopes:  envelopes,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe starts the operator socket server. Removes any stale
// socket file before binding. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("operator: remove stale socket %q: %w", s.socketPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("operator: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("operator: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("operator: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("operator socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("operator: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("operator: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("operator: read error", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	resp := s.dispatch(req)
	s.writeResponse(conn, resp)
}

func (s *Server) dispatch(req Request) Response {
	switch req.Cmd {
	case "session_status":
		return s.cmdSessionStatus(req)
	case "sessions":
		return s.cmdSessions()
	case "trust_list":
		return s.cmdTrustList()
	case "revoke":
		return s.cmdRevoke(req)
	case "audit_tail":
		return s.cmdAuditTail(req)
	case "identity_find":
		return s.cmdIdentityFind(req)
	case "envelope_tail":
		return s.cmdEnvelopeTail(req)
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) cmdSessionStatus(req Request) Response {
	if req.SessionID == "" {
		return Response{OK: false, Error: "session_id required for session_status"}
	}
	status, tracked := s.sessions.Status(req.SessionID)
	if !tracked {
		return Response{OK: false, Error: fmt.Sprintf("session %q not tracked", req.SessionID)}
	}
	return Response{
		OK:           true,
		SessionID:    status.SessionID,
		HistoryLen:   status.HistoryLen,
		LastSeverity: status.LastSeverity,
	}
}

func (s *Server) cmdSessions() Response {
	return Response{OK: true, Sessions: s.sessions.List()}
}

func (s *Server) cmdTrustList() Response {
	anchors := s.trust.ListAnchors()
	views := make([]anchorView, 0, len(anchors))
	for _, a := range anchors {
		views = append(views, anchorView{
			EntityID: a.ID,
			KeyID:    a.KeyID,
			Type:     string(a.Type),
			State:    string(a.State),
		})
	}
	return Response{OK: true, Anchors: views}
}

func (s *Server) cmdRevoke(req Request) Response {
	if req.EntityID == "" || req.KeyID == "" {
		return Response{OK: false, Error: "entity_id and key_id required for revoke"}
	}
	if !s.trust.SetState(req.EntityID, req.KeyID, bundle.StateCompromised) {
		return Response{OK: false, Error: fmt.Sprintf("no anchor %s/%s registered", req.EntityID, req.KeyID)}
	}
	s.log.Info("operator: trust anchor revoked",
		zap.String("entity_id", req.EntityID), zap.String("key_id", req.KeyID))
	return Response{OK: true, EntityID: req.EntityID, KeyID: req.KeyID}
}

func (s *Server) cmdAuditTail(req Request) Response {
	n := req.N
	if n <= 0 {
		n = 10
	}
	all := s.auditLog.Entries()
	if n > len(all) {
		n = len(all)
	}
	return Response{OK: true, Entries: all[len(all)-n:]}
}

// cmdIdentityFind queries the identity registry as a Privileged caller —
// operators always see every tier, unlike agent-to-agent lookups which are
// gated by AuthorizationContext.CallerTier.
func (s *Server) cmdIdentityFind(req Request) Response {
	if s.identity == nil {
		return Response{OK: false, Error: "identity registry not configured"}
	}
	scope := identity.QueryScope(req.Scope)
	if scope == "" {
		scope = identity.ScopeExact
	}
	result, err := s.identity.Find(scope, req.Pattern, identity.AuthorizationContext{Privileged: true}, req.N)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	views := make([]identityEntryView, 0, len(result.Entries))
	for _, e := range result.Entries {
		views = append(views, identityEntryView{
			Token:    e.Token.Canonical(),
			Tier:     string(e.Tier),
			OwnerID:  e.OwnerID,
			Metadata: e.Metadata,
		})
	}
	return Response{
		OK:              true,
		IdentityEntries: views,
		HasMore:         result.HasMore,
		RedactedCount:   result.RedactedCount,
	}
}

func (s *Server) cmdEnvelopeTail(req Request) Response {
	if s.envelopes == nil {
		return Response{OK: false, Error: "envelope log not configured"}
	}
	n := req.N
	if n <= 0 {
		n = 10
	}
	all := s.envelopes.Entries()
	if n > len(all) {
		n = len(all)
	}
	return Response{OK: true, Envelopes: all[len(all)-n:]}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}
