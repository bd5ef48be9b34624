// Package bundle defines the VCP data model: Token, Manifest, Bundle, and
// TrustAnchor (spec §3). These are immutable value types; every mutating-
// looking operation (WithVersion, Child, ...) returns a new value.
package bundle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

var segmentPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,31}$`)

// Token is the canonical name of a constitution in the VCP namespace: an
// ordered sequence of 3-10 lowercase segments, plus an optional semver
// version and optional uppercase namespace. Immutable once parsed.
type Token struct {
	segments  []string
	version   string // "" if absent
	namespace string // "" if absent
}

// ParseToken parses "domain.path.role[@version][:NAMESPACE]" into a Token.
// The segment count must be 3-10 and each segment must match
// [a-z][a-z0-9-]{0,31}.
func ParseToken(s string) (Token, error) {
	rest := s
	namespace := ""
	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		namespace = rest[idx+1:]
		rest = rest[:idx]
		if namespace == "" {
			return Token{}, fmt.Errorf("bundle: empty namespace after ':' in %q", s)
		}
		for _, r := range namespace {
			if r < 'A' || r > 'Z' {
				return Token{}, fmt.Errorf("bundle: namespace %q must be uppercase ASCII", namespace)
			}
		}
	}

	version := ""
	if idx := strings.IndexByte(rest, '@'); idx >= 0 {
		version = rest[idx+1:]
		rest = rest[:idx]
		if !isSemver(version) {
			return Token{}, fmt.Errorf("bundle: invalid semver version %q in %q", version, s)
		}
	}

	segments := strings.Split(rest, ".")
	if len(segments) < 3 || len(segments) > 10 {
		return Token{}, fmt.Errorf("bundle: token must have 3-10 segments, got %d in %q", len(segments), s)
	}
	for _, seg := range segments {
		if !segmentPattern.MatchString(seg) {
			return Token{}, fmt.Errorf("bundle: invalid token segment %q in %q", seg, s)
		}
	}

	return Token{segments: append([]string(nil), segments...), version: version, namespace: namespace}, nil
}

func isSemver(v string) bool {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}

// Canonical returns the dot-joined segments, with no version and no
// namespace.
func (t Token) Canonical() string { return strings.Join(t.segments, ".") }

// Full returns the canonical form with an optional "@version" and
// optional ":NAMESPACE" suffix.
func (t Token) Full() string {
	s := t.Canonical()
	if t.version != "" {
		s += "@" + t.version
	}
	if t.namespace != "" {
		s += ":" + t.namespace
	}
	return s
}

func (t Token) String() string { return t.Full() }

// Domain is the first segment.
func (t Token) Domain() string { return t.segments[0] }

// Role is the last segment.
func (t Token) Role() string { return t.segments[len(t.segments)-1] }

// Approach is the second-to-last segment. Empty string if the token has
// only 2 segments worth of content before role (cannot happen given the
// 3-segment minimum, but guarded for safety).
func (t Token) Approach() string {
	if len(t.segments) < 2 {
		return ""
	}
	return t.segments[len(t.segments)-2]
}

// Path returns the middle segments (everything between Domain and
// Approach, exclusive of Role).
func (t Token) Path() []string {
	if len(t.segments) <= 3 {
		return nil
	}
	return append([]string(nil), t.segments[1:len(t.segments)-2]...)
}

// Segments returns a copy of the raw segment list.
func (t Token) Segments() []string { return append([]string(nil), t.segments...) }

// Version returns the semver version, or "" if absent.
func (t Token) Version() string { return t.version }

// Namespace returns the uppercase namespace, or "" if absent.
func (t Token) Namespace() string { return t.namespace }

// WithVersion returns a new Token with the given version attached,
// replacing any existing version. Does not mutate t.
func (t Token) WithVersion(version string) (Token, error) {
	if !isSemver(version) {
		return Token{}, fmt.Errorf("bundle: invalid semver version %q", version)
	}
	out := t
	out.version = version
	return out, nil
}

// Child appends a new segment and returns the resulting Token (version and
// namespace are dropped, as a child is a distinct constitution identity).
// Fails if the result would exceed 10 segments or the segment is invalid.
func (t Token) Child(segment string) (Token, error) {
	if !segmentPattern.MatchString(segment) {
		return Token{}, fmt.Errorf("bundle: invalid child segment %q", segment)
	}
	if len(t.segments) >= 10 {
		return Token{}, fmt.Errorf("bundle: token already has the maximum 10 segments")
	}
	return Token{segments: append(append([]string(nil), t.segments...), segment)}, nil
}

// Equal compares canonical segment sequences only (version/namespace are
// not part of identity equality).
func (t Token) Equal(other Token) bool {
	if len(t.segments) != len(other.segments) {
		return false
	}
	for i := range t.segments {
		if t.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// MatchesPattern reports whether the token's canonical form matches a glob
// pattern using "*" for exactly one segment and "**" for any run of
// characters across segments, dot-delimited. The dots around "**" are
// literal, so "a.**.c" needs at least one segment between "a" and "c" and
// does not match "a.c". Patterns are compiled fresh each call; callers
// matching many tokens against the same pattern should use CompilePattern
// instead.
func (t Token) MatchesPattern(pattern string) bool {
	g, err := CompilePattern(pattern)
	if err != nil {
		return false
	}
	return g.Match(t.Canonical())
}

// CompilePattern compiles a VCP token glob pattern ("*" = one segment,
// "**" = any run of segments, at least one where dots surround it, "."
// delimited) into a reusable matcher.
func CompilePattern(pattern string) (glob.Glob, error) {
	return glob.Compile(pattern, '.')
}
