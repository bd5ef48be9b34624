package identity

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/creed-space/vcp/internal/bundle"
)

// QueryScope controls how Find interprets its pattern: an exact lookup
// never walks the tree, a prefix/pattern query may, subject to
// authorization gating on privacy tier.
type QueryScope string

const (
	ScopeExact   QueryScope = "exact"
	ScopePrefix  QueryScope = "prefix"
	ScopePattern QueryScope = "pattern"
)

// DefaultMaxResults is Find's default result cap when the caller passes 0.
const DefaultMaxResults = 100

// Entry is a single registered token and the metadata attached at
// registration time.
type Entry struct {
	Token    bundle.Token
	Tier     PrivacyTier
	OwnerID  string
	Metadata map[string]interface{}
}

// AuthorizationContext describes the caller attempting a registry query.
// A non-admin caller may only see entries at a tier no stricter than its
// own clearance; Privileged callers (admins) bypass the check entirely.
type AuthorizationContext struct {
	CallerTier PrivacyTier
	Privileged bool
}

// allows reports whether ctx is permitted to see an entry at tier t.
func (ctx AuthorizationContext) allows(t PrivacyTier) bool {
	if ctx.Privileged {
		return true
	}
	return privacyRank[ctx.CallerTier] >= privacyRank[t]
}

// QueryResult is the outcome of a Find call. Entries the caller is not
// authorized to see are counted into RedactedCount rather than returned.
type QueryResult struct {
	Entries         []Entry
	HasMore         bool
	ScopeAuthorized bool
	RedactedCount   int
}

// node is one segment-level step in the prefix tree. tier is the strictest
// privacy tier among everything rooted at this node (including itself).
type node struct {
	children map[string]*node
	entry    *Entry // non-nil if a token terminates exactly here
	tier     PrivacyTier
}

func newNode() *node {
	return &node{children: map[string]*node{}, tier: PrivacyPublic}
}

// subscriber receives notifications when a matching token is registered.
type subscriber struct {
	id     int
	glob   func(string) bool
	notify func(Entry)
}

// Registry resolves tokens by exact match, prefix, or glob pattern, and
// supports subscriptions for newly registered tokens. A Bloom filter gives
// a fast "definitely absent" check ahead of the exact-match map lookup, the
// same two-stage shape octoreflex's escalation tracker uses (cheap
// in-memory check before touching the guarded structure).
type Registry struct {
	mu          sync.RWMutex
	root        *node
	exact       map[string]Entry
	filter      *bloom.BloomFilter
	subscribers []*subscriber
	nextSubID   int
}

// NewRegistry creates an empty registry sized for expectedEntries with a
// false-positive rate of fpRate for its existence Bloom filter.
func NewRegistry(expectedEntries uint, fpRate float64) *Registry {
	if expectedEntries == 0 {
		expectedEntries = 1024
	}
	if fpRate <= 0 {
		fpRate = 0.01
	}
	return &Registry{
		root:   newNode(),
		exact:  map[string]Entry{},
		filter: bloom.NewWithEstimates(expectedEntries, fpRate),
	}
}

// Register inserts a token at the given privacy tier, updates the Bloom
// filter, and notifies matching subscribers. Re-registering the same
// canonical token overwrites its entry.
func (r *Registry) Register(t bundle.Token, tier PrivacyTier, ownerID string, metadata map[string]interface{}) Entry {
	e := Entry{Token: t, Tier: tier, OwnerID: ownerID, Metadata: metadata}

	r.mu.Lock()
	canonical := t.Canonical()
	r.exact[canonical] = e
	r.filter.AddString(canonical)
	r.insert(t.Segments(), tier, &e)
	subs := append([]*subscriber(nil), r.subscribers...)
	r.mu.Unlock()

	for _, s := range subs {
		if s.glob(canonical) {
			safeNotify(s.notify, e)
		}
	}
	return e
}

// safeNotify invokes a subscriber callback, isolating the registry from a
// callback panic (spec: "callback exceptions must never break the
// registry").
func safeNotify(notify func(Entry), e Entry) {
	defer func() { _ = recover() }()
	notify(e)
}

func (r *Registry) insert(segments []string, tier PrivacyTier, e *Entry) {
	cur := r.root
	cur.tier = stricter(cur.tier, tier)
	for _, seg := range segments {
		next, ok := cur.children[seg]
		if !ok {
			next = newNode()
			cur.children[seg] = next
		}
		next.tier = stricter(next.tier, tier)
		cur = next
	}
	cur.entry = e
}

// Exists reports whether a canonical token string is registered. The Bloom
// filter answers "definitely not present" in O(1); a "maybe" is confirmed
// against the exact-match map, so Exists never returns a false negative.
func (r *Registry) Exists(canonical string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.filter.TestString(canonical) {
		return false
	}
	_, ok := r.exact[canonical]
	return ok
}

// Resolve performs an exact lookup, always allowed and revealing nothing
// about sibling entries.
func (r *Registry) Resolve(canonical string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.exact[canonical]
	return e, ok
}

// Find queries the registry by scope, capped at maxResults (DefaultMaxResults
// if 0). Exact scope requires pattern to be a full canonical token and
// always authorized (per Resolve's semantics). Prefix scope walks the tree
// under pattern's dot-joined segments. Pattern scope compiles pattern as a
// VCP glob ("*"/"**") and matches every registered token. For prefix/pattern
// scopes touching non-public tiers, entries ctx is not authorized to see
// are counted into RedactedCount instead of returned; ScopeAuthorized
// reports whether ctx could enumerate anything at all under this query.
func (r *Registry) Find(scope QueryScope, pattern string, ctx AuthorizationContext, maxResults int) (QueryResult, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	switch scope {
	case ScopeExact:
		e, ok := r.Resolve(pattern)
		if !ok {
			return QueryResult{ScopeAuthorized: true}, nil
		}
		return QueryResult{Entries: []Entry{e}, ScopeAuthorized: true}, nil

	case ScopePrefix:
		r.mu.RLock()
		defer r.mu.RUnlock()
		var prefix []string
		if pattern != "" {
			prefix = strings.Split(pattern, ".")
		}
		cur := r.root
		for _, seg := range prefix {
			next, ok := cur.children[seg]
			if !ok {
				return QueryResult{ScopeAuthorized: ctx.allows(cur.tier)}, nil
			}
			cur = next
		}
		var matched []Entry
		collect(cur, &matched)
		return paginate(matched, ctx, maxResults), nil

	case ScopePattern:
		g, err := bundle.CompilePattern(pattern)
		if err != nil {
			return QueryResult{}, fmt.Errorf("identity: invalid pattern %q: %w", pattern, err)
		}
		r.mu.RLock()
		defer r.mu.RUnlock()
		var matched []Entry
		for canonical, e := range r.exact {
			if g.Match(canonical) {
				matched = append(matched, e)
			}
		}
		return paginate(matched, ctx, maxResults), nil

	default:
		return QueryResult{}, fmt.Errorf("identity: unknown query scope %q", scope)
	}
}

// paginate splits matched entries into authorized/redacted buckets, then
// caps the authorized set at maxResults. Entries are sorted by canonical
// token so HasMore/pagination is deterministic across calls.
func paginate(matched []Entry, ctx AuthorizationContext, maxResults int) QueryResult {
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Token.Canonical() < matched[j].Token.Canonical()
	})

	var authorized []Entry
	redacted := 0
	for _, e := range matched {
		if ctx.allows(e.Tier) {
			authorized = append(authorized, e)
		} else {
			redacted++
		}
	}

	hasMore := false
	if len(authorized) > maxResults {
		authorized = authorized[:maxResults]
		hasMore = true
	}

	return QueryResult{
		Entries:         authorized,
		HasMore:         hasMore,
		ScopeAuthorized: len(matched) == 0 || len(authorized) > 0 || ctx.Privileged,
		RedactedCount:   redacted,
	}
}

func collect(n *node, out *[]Entry) {
	if n.entry != nil {
		*out = append(*out, *n.entry)
	}
	for _, child := range n.children {
		collect(child, out)
	}
}

// Subscribe registers a callback fired synchronously, from within
// Register's call, whenever a newly registered token matches pattern.
// Subscription itself is not authorization-gated beyond the implicit
// visibility filtering notifications apply at Register time; ctx is
// accepted for symmetry with Find and to let callers record who
// subscribed. Returns an unsubscribe function.
func (r *Registry) Subscribe(pattern string, ctx AuthorizationContext, notify func(Entry)) (func(), error) {
	g, err := bundle.CompilePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid subscription pattern %q: %w", pattern, err)
	}

	gated := func(e Entry) {
		if ctx.allows(e.Tier) {
			notify(e)
		}
	}

	r.mu.Lock()
	r.nextSubID++
	id := r.nextSubID
	s := &subscriber{id: id, glob: g.Match, notify: gated}
	r.subscribers = append(r.subscribers, s)
	r.mu.Unlock()

	return func() { r.unsubscribe(id) }, nil
}

func (r *Registry) unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.subscribers {
		if existing.id == id {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			return
		}
	}
}
