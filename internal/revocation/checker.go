// Package revocation implements the Revocation Checker (spec §4.4):
// online per-jti checks with CRL fallback, guarded against SSRF, bounded
// in size, bounded in time, and cached.
//
// Style grounded on the teacher's internal/config layered-validation and
// error-accumulation conventions, and on internal/observability's
// fail-soft logging discipline: unlike every other orchestrator step,
// revocation failures are intentionally fail-open (spec §4.4 is explicit
// that transport/parse failures must not block all bundles).
package revocation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MaxResponseSize is the revocation response size cap (spec §6): 320 KiB.
const MaxResponseSize = 327_680

// Status is the outcome of a revocation check.
type Status struct {
	Revoked   bool
	Reason    string
	RevokedAt time.Time
}

// onlineResponse is the wire shape of a per-jti check response.
type onlineResponse struct {
	Revoked   bool       `json:"revoked"`
	Reason    string     `json:"reason,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// crlEntry is one revoked jti within a CRL document.
type crlEntry struct {
	JTI       string    `json:"jti"`
	RevokedAt time.Time `json:"revoked_at"`
	Reason    string    `json:"reason,omitempty"`
}

// crlDocument is the wire shape of a CRL response.
type crlDocument struct {
	Issuer     string     `json:"issuer"`
	UpdatedAt  time.Time  `json:"updated_at"`
	NextUpdate time.Time  `json:"next_update"`
	Revoked    []crlEntry `json:"revoked"`
}

type cacheEntry struct {
	status  Status
	revoked map[string]crlEntry // non-nil only for CRL cache entries
	expires time.Time
}

// Checker performs revocation checks with the spec §4.4 SSRF guard, size
// cap, deadline, and cache. The zero value is not usable; use NewChecker.
type Checker struct {
	client       *http.Client
	timeout      time.Duration
	cacheTTL     time.Duration
	allowedPorts map[string]bool
	resolve      func(string) ([]net.IP, error)
	log          *zap.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewChecker builds a Checker. timeout bounds each HTTP request;
// cacheTTL bounds how long a cache hit is trusted before re-checking.
func NewChecker(timeout, cacheTTL time.Duration, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{
		client:       &http.Client{Timeout: timeout, CheckRedirect: blockCrossHostRedirect},
		timeout:      timeout,
		cacheTTL:     cacheTTL,
		allowedPorts: map[string]bool{},
		resolve:      defaultResolve,
		log:          log,
		cache:        make(map[string]cacheEntry),
	}
}

func blockCrossHostRedirect(req *http.Request, via []*http.Request) error {
	if len(via) == 0 {
		return nil
	}
	if redirectChangesHost(via[0].URL, req.URL) {
		return fmt.Errorf("revocation: redirect changed host from %s to %s", via[0].URL.Host, req.URL.Host)
	}
	return nil
}

// Check consults the online endpoint first, falling back to the CRL on
// transport failure or unavailability. Fail-open: any transport or parse
// error results in Status{Revoked: false} plus a logged warning, never an
// error returned to the caller (spec §4.4).
func (c *Checker) Check(ctx context.Context, checkURI, crlURI, jti string) Status {
	if checkURI != "" {
		status, err := c.checkOnline(ctx, checkURI, jti)
		if err == nil {
			return status
		}
		c.log.Warn("revocation: online check failed, falling back to CRL",
			zap.String("check_uri", checkURI), zap.Error(err))
	}
	if crlURI != "" {
		status, err := c.checkCRL(ctx, crlURI, jti)
		if err == nil {
			return status
		}
		c.log.Warn("revocation: CRL check failed, treating as not revoked",
			zap.String("crl_uri", crlURI), zap.Error(err))
	}
	return Status{Revoked: false}
}

func (c *Checker) checkOnline(ctx context.Context, checkURI, jti string) (Status, error) {
	cacheKey := "online:" + checkURI + ":" + jti
	if e, ok := c.cacheLookup(cacheKey); ok {
		return e.status, nil
	}

	u, err := validateURL(checkURI, c.allowedPorts, c.resolve)
	if err != nil {
		return Status{}, err
	}
	q := u.Query()
	q.Set("jti", jti)
	u.RawQuery = q.Encode()

	body, err := c.fetch(ctx, u.String())
	if err != nil {
		return Status{}, err
	}

	var resp onlineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Status{}, fmt.Errorf("revocation: parsing online response: %w", err)
	}

	status := Status{Revoked: resp.Revoked, Reason: resp.Reason}
	if resp.RevokedAt != nil {
		status.RevokedAt = *resp.RevokedAt
	}
	c.cacheStore(cacheKey, cacheEntry{status: status, expires: time.Now().Add(c.cacheTTL)})
	return status, nil
}

func (c *Checker) checkCRL(ctx context.Context, crlURI, jti string) (Status, error) {
	cacheKey := "crl:" + crlURI
	if e, ok := c.cacheLookup(cacheKey); ok {
		if entry, found := e.revoked[jti]; found {
			return Status{Revoked: true, Reason: entry.Reason, RevokedAt: entry.RevokedAt}, nil
		}
		return Status{Revoked: false}, nil
	}

	u, err := validateURL(crlURI, c.allowedPorts, c.resolve)
	if err != nil {
		return Status{}, err
	}

	body, err := c.fetch(ctx, u.String())
	if err != nil {
		return Status{}, err
	}

	var doc crlDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return Status{}, fmt.Errorf("revocation: parsing CRL: %w", err)
	}

	if doc.NextUpdate.Before(time.Now()) {
		// Still authoritative per spec §4.4; the event is recorded, not
		// rejected.
		c.log.Warn("revocation: CRL is stale", zap.String("crl_uri", crlURI),
			zap.Time("next_update", doc.NextUpdate))
	}

	index := make(map[string]crlEntry, len(doc.Revoked))
	for _, e := range doc.Revoked {
		index[e.JTI] = e
	}
	c.cacheStore(cacheKey, cacheEntry{revoked: index, expires: time.Now().Add(c.cacheTTL)})

	if entry, found := index[jti]; found {
		return Status{Revoked: true, Reason: entry.Reason, RevokedAt: entry.RevokedAt}, nil
	}
	return Status{Revoked: false}, nil
}

// fetch performs the guarded HTTP GET with deadline and size cap.
func (c *Checker) fetch(ctx context.Context, fullURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("revocation: building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("revocation: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("revocation: response Content-Length %d exceeds cap", resp.ContentLength)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("revocation: unexpected status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("revocation: reading response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("revocation: response exceeds %d byte cap", MaxResponseSize)
	}
	return body, nil
}

func (c *Checker) cacheLookup(key string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.cache[key]
	if !ok || time.Now().After(e.expires) {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *Checker) cacheStore(key string, e cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = e
}
