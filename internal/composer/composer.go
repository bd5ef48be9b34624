// Package composer implements the Composer (spec §4.6): merges an ordered
// sequence of constitutions into one rule list under one of four modes,
// detecting lexical conflicts along the way.
//
// Error shape grounded on the teacher's governance.ConstitutionalViolation
// (a typed error carrying structured context instead of a bare string) and
// on internal/config.Validate's accumulate-then-report idiom: conflicts
// are collected across the whole input before CompositionConflictError is
// raised, rather than failing on the first one.
package composer

import (
	"fmt"
	"strings"
)

// Mode selects a merge strategy (spec §4.6).
type Mode string

const (
	ModeBase     Mode = "base"
	ModeExtend   Mode = "extend"
	ModeOverride Mode = "override"
	ModeStrict   Mode = "strict"
)

// Constitution is a named, ordered list of rule strings.
type Constitution struct {
	ID       string
	Rules    []string
	Priority int
}

// normalizedRules trims whitespace and drops empty rules, matching the
// reference Constitution.__post_init__.
func (c Constitution) normalizedRules() []string {
	out := make([]string, 0, len(c.Rules))
	for _, r := range c.Rules {
		if trimmed := strings.TrimSpace(r); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ConflictType classifies how two rules conflict.
type ConflictType string

const (
	ConflictContradiction ConflictType = "contradiction"
	ConflictTension       ConflictType = "tension"
	ConflictDuplicate     ConflictType = "duplicate"
)

// Conflict records one detected conflict between two rules.
type Conflict struct {
	RuleA        string
	SourceA      string
	RuleB        string
	SourceB      string
	ConflictType ConflictType
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: %q (%s) vs %q (%s)", c.ConflictType, c.RuleA, c.SourceA, c.RuleB, c.SourceB)
}

// CompositionConflictError aggregates every unresolvable conflict found
// while composing under a mode that treats conflicts as fatal (extend,
// strict).
type CompositionConflictError struct {
	Conflicts []Conflict
}

func (e *CompositionConflictError) Error() string {
	return fmt.Sprintf("composer: composition has %d unresolvable conflict(s)", len(e.Conflicts))
}

// Result is the outcome of composing a set of constitutions.
type Result struct {
	MergedRules []string
	Conflicts   []Conflict
	Warnings    []string
	ModeUsed    Mode
}

// Compose merges constitutions under mode. Returns CompositionConflictError
// for extend/strict modes when any conflict is found; base and override
// never error (base records conflicts without adding the rule, override
// records removals as warnings).
func Compose(constitutions []Constitution, mode Mode) (Result, error) {
	if len(constitutions) == 0 {
		return Result{ModeUsed: mode}, nil
	}
	switch mode {
	case ModeBase:
		return composeBase(constitutions), nil
	case ModeExtend:
		return composeExtend(constitutions)
	case ModeOverride:
		return composeOverride(constitutions), nil
	case ModeStrict:
		return composeStrict(constitutions)
	default:
		return Result{}, fmt.Errorf("composer: unknown composition mode %q", mode)
	}
}

func composeBase(constitutions []Constitution) Result {
	base := constitutions[0]
	merged := base.normalizedRules()
	var conflicts []Conflict

	for _, c := range constitutions[1:] {
		for _, rule := range c.normalizedRules() {
			if conflict, found := detectConflict(rule, c.ID, merged, base.ID); found {
				conflicts = append(conflicts, conflict)
			} else {
				merged = append(merged, rule)
			}
		}
	}
	return Result{MergedRules: merged, Conflicts: conflicts, ModeUsed: ModeBase}
}

func composeExtend(constitutions []Constitution) (Result, error) {
	var merged []string
	var conflicts []Conflict
	sources := map[string]string{}

	for _, c := range constitutions {
		for _, rule := range c.normalizedRules() {
			if conflict, found := detectConflict(rule, c.ID, merged, sourceOf(sources, rule)); found {
				conflicts = append(conflicts, conflict)
			} else {
				merged = append(merged, rule)
				sources[rule] = c.ID
			}
		}
	}
	if len(conflicts) > 0 {
		return Result{}, &CompositionConflictError{Conflicts: conflicts}
	}
	return Result{MergedRules: merged, ModeUsed: ModeExtend}, nil
}

func composeOverride(constitutions []Constitution) Result {
	var merged []string
	var warnings []string

	for _, c := range constitutions {
		for _, rule := range c.normalizedRules() {
			var kept []string
			for _, existing := range merged {
				if rulesConflict(existing, rule) {
					warnings = append(warnings, fmt.Sprintf("rule %q (%s) overrides %q", rule, c.ID, existing))
					continue
				}
				kept = append(kept, existing)
			}
			merged = append(kept, rule)
		}
	}
	return Result{MergedRules: merged, Warnings: warnings, ModeUsed: ModeOverride}
}

func composeStrict(constitutions []Constitution) (Result, error) {
	var merged []string
	var conflicts []Conflict
	seen := map[string]bool{}
	sources := map[string]string{}

	for _, c := range constitutions {
		for _, rule := range c.normalizedRules() {
			normalized := strings.ToLower(strings.TrimSpace(rule))

			if seen[normalized] {
				conflicts = append(conflicts, Conflict{
					RuleA: rule, SourceA: c.ID,
					RuleB: rule, SourceB: sourceOf(sources, normalized),
					ConflictType: ConflictDuplicate,
				})
				continue
			}
			if conflict, found := detectConflict(rule, c.ID, merged, "earlier"); found {
				conflicts = append(conflicts, conflict)
				continue
			}
			merged = append(merged, rule)
			seen[normalized] = true
			sources[normalized] = c.ID
		}
	}
	if len(conflicts) > 0 {
		return Result{}, &CompositionConflictError{Conflicts: conflicts}
	}
	return Result{MergedRules: merged, ModeUsed: ModeStrict}, nil
}

func sourceOf(sources map[string]string, key string) string {
	if s, ok := sources[key]; ok {
		return s
	}
	return "unknown"
}

func detectConflict(rule, source string, existing []string, existingSource string) (Conflict, bool) {
	for _, e := range existing {
		if rulesConflict(rule, e) {
			return Conflict{
				RuleA: rule, SourceA: source,
				RuleB: e, SourceB: existingSource,
				ConflictType: determineConflictType(rule, e),
			}, true
		}
	}
	return Conflict{}, false
}

// conflictKeywords maps a keyword to the set of opposite keywords that, if
// both present across two rules about the same topic, indicate a conflict.
var conflictKeywords = map[string][]string{
	"always":   {"never"},
	"never":    {"always"},
	"must":     {"must not", "should not", "never"},
	"must not": {"must", "always"},
	"allow":    {"forbid", "prohibit", "deny"},
	"forbid":   {"allow", "permit"},
	"prohibit": {"allow", "permit"},
	"require":  {"forbid", "prohibit"},
}

func rulesConflict(ruleA, ruleB string) bool {
	a := strings.ToLower(ruleA)
	b := strings.ToLower(ruleB)

	for keyword, opposites := range conflictKeywords {
		if !strings.Contains(a, keyword) {
			continue
		}
		for _, opposite := range opposites {
			if strings.Contains(b, opposite) && sameTopic(a, b) {
				return true
			}
		}
	}
	return false
}

var commonWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "be": true,
	"to": true, "of": true, "and": true, "or": true, "in": true, "on": true,
	"at": true, "for": true, "with": true, "by": true, "from": true, "as": true,
	"it": true, "this": true, "that": true, "these": true, "those": true,
	"you": true, "we": true, "they": true, "i": true,
}

// sameTopic is a word-overlap heuristic: two rules are "about the same
// topic" if at least two non-common words appear in both.
func sameTopic(ruleA, ruleB string) bool {
	wordsA := significantWords(ruleA)
	wordsB := significantWords(ruleB)

	overlap := 0
	for w := range wordsA {
		if wordsB[w] {
			overlap++
			if overlap >= 2 {
				return true
			}
		}
	}
	return false
}

func significantWords(rule string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(rule) {
		if !commonWords[w] {
			out[w] = true
		}
	}
	return out
}

func determineConflictType(ruleA, ruleB string) ConflictType {
	a := strings.ToLower(ruleA)
	b := strings.ToLower(ruleB)

	if (strings.Contains(a, "always") && strings.Contains(b, "never")) ||
		(strings.Contains(a, "never") && strings.Contains(b, "always")) {
		return ConflictContradiction
	}
	if (strings.Contains(a, "must not") && strings.Contains(b, "must") && !strings.Contains(b, "must not")) ||
		(strings.Contains(a, "must") && !strings.Contains(a, "must not") && strings.Contains(b, "must not")) {
		return ConflictContradiction
	}
	if (strings.Contains(a, "allow") && strings.Contains(b, "forbid")) ||
		(strings.Contains(a, "forbid") && strings.Contains(b, "allow")) {
		return ConflictContradiction
	}
	return ConflictTension
}
