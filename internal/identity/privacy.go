// Package identity implements the VCP identity system (spec §4.10):
// namespace/privacy-tier inference, a registry for token resolution and
// pattern queries, a pseudonymous identity wrapper, and the CSM1 compact
// identity string.
package identity

import "github.com/creed-space/vcp/internal/bundle"

// PrivacyTier ranks how exposed a token's holder identity is, from most to
// least public. Higher ordinal means stricter: a node with mixed-tier
// descendants inherits the strictest tier among them.
type PrivacyTier string

const (
	PrivacyPublic         PrivacyTier = "public"
	PrivacyOrganizational PrivacyTier = "organizational"
	PrivacyCommunity      PrivacyTier = "community"
	PrivacyPersonal       PrivacyTier = "personal"
	PrivacyPseudonymous   PrivacyTier = "pseudonymous"
)

// privacyRank orders tiers from least to most strict, for "strictest wins"
// comparisons when a registry node has descendants of different tiers.
var privacyRank = map[PrivacyTier]int{
	PrivacyPublic:         0,
	PrivacyOrganizational: 1,
	PrivacyCommunity:      2,
	PrivacyPersonal:       3,
	PrivacyPseudonymous:   4,
}

// stricter returns the stricter (higher-rank) of a and b.
func stricter(a, b PrivacyTier) PrivacyTier {
	if privacyRank[b] > privacyRank[a] {
		return b
	}
	return a
}

var domainTier = map[string]PrivacyTier{
	"family":    PrivacyPublic,
	"work":      PrivacyPublic,
	"secure":    PrivacyPublic,
	"creative":  PrivacyPublic,
	"reality":   PrivacyPublic,
	"education": PrivacyPublic,
	"health":    PrivacyPublic,

	"company": PrivacyOrganizational,
	"school":  PrivacyOrganizational,
	"ngo":     PrivacyOrganizational,
	"org":     PrivacyOrganizational,

	"religion":  PrivacyCommunity,
	"culture":   PrivacyCommunity,
	"community": PrivacyCommunity,

	"user": PrivacyPersonal,

	"anon":   PrivacyPseudonymous,
	"pseudo": PrivacyPseudonymous,
}

// InferPrivacyTier classifies a token by its domain (first segment),
// following the fixed domain-to-tier table. Domains outside the table
// default to organizational.
func InferPrivacyTier(t bundle.Token) PrivacyTier {
	if tier, ok := domainTier[t.Domain()]; ok {
		return tier
	}
	return PrivacyOrganizational
}
