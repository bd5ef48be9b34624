package orchestrator

import "regexp"

// injectionPatterns are matched case-insensitively, multiline, against
// bundle content (spec §4.5 step 12). Grounded on the reference
// orchestrator's INJECTION_PATTERNS list.
var injectionPatterns = compilePatterns([]string{
	`ignore\s+(all\s+)?(previous|above|prior)\s+instructions`,
	`you\s+are\s+now\s+`,
	`disregard\s+(the\s+)?(above|previous)`,
	`your\s+new\s+(instructions|role|purpose)`,
	`(?m)^(user|assistant|system|human|ai):\s*`,
	`<\|?(system|user|assistant)\|?>`,
	"```system",
})

func compilePatterns(raw []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(raw))
	for i, p := range raw {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// forbiddenScanChars mirrors the reference orchestrator's FORBIDDEN_CHARS
// set. Most of these are already rejected by content canonicalization
// (package canon); the scan is kept as a defense-in-depth check against
// content that bypassed canonicalization (e.g. re-injected post-signing).
var forbiddenScanChars = []rune{
	'‪', '‫', '‬', '‭', '‮',
	'⁦', '⁧', '⁨', '⁩',
	'​', '‌', '‍', 0xFEFF,
	'\x00',
}

// Finding describes one injection-scan hit.
type Finding struct {
	Kind   string // "pattern" or "forbidden_char"
	Detail string
}

// Scan checks content against the fixed pattern set and forbidden
// character set. Returns all findings; callers decide whether findings
// are fatal based on strictness configuration.
func Scan(content string) []Finding {
	var findings []Finding
	for _, p := range injectionPatterns {
		if p.MatchString(content) {
			findings = append(findings, Finding{Kind: "pattern", Detail: p.String()})
		}
	}
	for _, c := range forbiddenScanChars {
		for _, r := range content {
			if r == c {
				findings = append(findings, Finding{Kind: "forbidden_char", Detail: string(r)})
				break
			}
		}
	}
	return findings
}
