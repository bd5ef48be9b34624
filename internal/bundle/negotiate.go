package bundle

import "github.com/gobwas/glob"

// NegotiationRequest describes the situational triple a consumer wants to
// inject a bundle for. All three fields are matched independently against
// the bundle's Scope.
type NegotiationRequest struct {
	ModelFamily string
	Purpose     string
	Environment string
}

// NegotiationResult records, per dimension, which scope pattern matched
// (diagnostic only — scope gating itself is the orchestrator's job; this
// just explains *why* a bundle matched, for the injection formatter and
// for operator introspection).
type NegotiationResult struct {
	ModelFamilyPattern string
	PurposeMatched     bool
	EnvironmentMatched bool
}

// Negotiate reports which scope.model_families pattern matched req's model
// family (empty string if scope is nil or no pattern matched), and whether
// purpose/environment are present in their respective lists. An empty
// scope list for a dimension is treated as "unrestricted" (always true),
// matching the orchestrator's scope-check semantics in spec §4.5 step 11.
func Negotiate(scope *Scope, req NegotiationRequest) NegotiationResult {
	if scope == nil {
		return NegotiationResult{PurposeMatched: true, EnvironmentMatched: true}
	}
	result := NegotiationResult{}

	if len(scope.ModelFamilies) == 0 {
		result.ModelFamilyPattern = "*"
	} else {
		for _, pattern := range scope.ModelFamilies {
			g, err := glob.Compile(pattern)
			if err != nil {
				continue
			}
			if g.Match(req.ModelFamily) {
				result.ModelFamilyPattern = pattern
				break
			}
		}
	}

	result.PurposeMatched = len(scope.Purposes) == 0 || containsString(scope.Purposes, req.Purpose)
	result.EnvironmentMatched = len(scope.Environments) == 0 || containsString(scope.Environments, req.Environment)

	return result
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
