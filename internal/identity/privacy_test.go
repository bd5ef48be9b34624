package identity

import (
	"testing"

	"github.com/creed-space/vcp/internal/bundle"
)

func tok(t *testing.T, s string) bundle.Token {
	t.Helper()
	tok, err := bundle.ParseToken(s)
	if err != nil {
		t.Fatalf("ParseToken(%q): %v", s, err)
	}
	return tok
}

func TestInferPrivacyTier_PublicDomains(t *testing.T) {
	for _, domain := range []string{"family", "work", "secure", "creative", "reality", "education", "health"} {
		token := tok(t, domain+".test.role")
		if got := InferPrivacyTier(token); got != PrivacyPublic {
			t.Errorf("domain %q: expected public, got %s", domain, got)
		}
	}
}

func TestInferPrivacyTier_OrganizationalDomains(t *testing.T) {
	for _, domain := range []string{"company", "school", "ngo", "org"} {
		token := tok(t, domain+".test.role")
		if got := InferPrivacyTier(token); got != PrivacyOrganizational {
			t.Errorf("domain %q: expected organizational, got %s", domain, got)
		}
	}
}

func TestInferPrivacyTier_CommunityDomains(t *testing.T) {
	for _, domain := range []string{"religion", "culture", "community"} {
		token := tok(t, domain+".test.role")
		if got := InferPrivacyTier(token); got != PrivacyCommunity {
			t.Errorf("domain %q: expected community, got %s", domain, got)
		}
	}
}

func TestInferPrivacyTier_PersonalDomain(t *testing.T) {
	token := tok(t, "user.test.role")
	if got := InferPrivacyTier(token); got != PrivacyPersonal {
		t.Errorf("expected personal, got %s", got)
	}
}

func TestInferPrivacyTier_PseudonymousDomains(t *testing.T) {
	for _, domain := range []string{"anon", "pseudo"} {
		token := tok(t, domain+".test.role")
		if got := InferPrivacyTier(token); got != PrivacyPseudonymous {
			t.Errorf("domain %q: expected pseudonymous, got %s", domain, got)
		}
	}
}

func TestInferPrivacyTier_UnknownDomainDefaultsOrganizational(t *testing.T) {
	token := tok(t, "mystery.test.role")
	if got := InferPrivacyTier(token); got != PrivacyOrganizational {
		t.Errorf("expected organizational default, got %s", got)
	}
}

func TestStricter_PicksHigherRank(t *testing.T) {
	if got := stricter(PrivacyPublic, PrivacyPersonal); got != PrivacyPersonal {
		t.Errorf("expected personal to win, got %s", got)
	}
	if got := stricter(PrivacyPseudonymous, PrivacyPublic); got != PrivacyPseudonymous {
		t.Errorf("expected pseudonymous to win, got %s", got)
	}
}
