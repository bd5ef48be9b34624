package identity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Persona is one of the seven archetypal constitutional personas encoded
// in a CSM1 string's first character.
type Persona string

const (
	PersonaNanny      Persona = "N" // child safety specialist
	PersonaSentinel   Persona = "Z" // security/privacy guardian
	PersonaGodparent  Persona = "G" // ethical guidance counselor
	PersonaAmbassador Persona = "A" // professional conduct advisor
	PersonaMuse       Persona = "M" // creative challenge and provocation
	PersonaMediator   Persona = "D" // fair resolution and balanced governance
	PersonaCustom     Persona = "C" // user-defined persona
)

var validPersonas = map[Persona]bool{
	PersonaNanny: true, PersonaSentinel: true, PersonaGodparent: true,
	PersonaAmbassador: true, PersonaMuse: true, PersonaMediator: true, PersonaCustom: true,
}

// CSMScope is one of the eleven context scopes a CSM1 code can restrict
// itself to.
type CSMScope string

const (
	ScopeFamily        CSMScope = "F"
	ScopeWork          CSMScope = "W"
	ScopeEducation     CSMScope = "E"
	ScopeHealthcare    CSMScope = "H"
	ScopeFinance       CSMScope = "I"
	ScopeLegal         CSMScope = "L"
	ScopePrivacy       CSMScope = "P"
	ScopeSafety        CSMScope = "S"
	ScopeAccessibility CSMScope = "A"
	ScopeEnvironment   CSMScope = "V"
	ScopeGeneral       CSMScope = "G"
)

var validScopes = map[CSMScope]bool{
	ScopeFamily: true, ScopeWork: true, ScopeEducation: true, ScopeHealthcare: true,
	ScopeFinance: true, ScopeLegal: true, ScopePrivacy: true, ScopeSafety: true,
	ScopeAccessibility: true, ScopeEnvironment: true, ScopeGeneral: true,
}

const (
	MinAdherenceLevel = 0
	MaxAdherenceLevel = 5
)

var csm1Pattern = regexp.MustCompile(
	`^(?P<persona>[NZGAMDC])(?P<level>[0-5])(?P<scopes>(?:\+[FWEHILPSAVG])*)(?::(?P<namespace>[A-Z][A-Z0-9]*))?(?:@(?P<version>\d+\.\d+\.\d+))?$`,
)

// Code is a parsed CSM1 (Constitutional Semantics Mark 1) compact identity
// string: persona, adherence level, an optional scope list, and optional
// namespace/version qualifiers.
//
//	code = persona level *("+" scope) [":" namespace] ["@" version]
type Code struct {
	Persona        Persona
	AdherenceLevel int
	Scopes         []CSMScope
	Namespace      string
	Version        string
}

// ParseCode parses a CSM1 code string such as "N5+F+E" or "Z3+P:SEC".
func ParseCode(raw string) (Code, error) {
	if raw == "" {
		return Code{}, fmt.Errorf("identity: CSM1 code cannot be empty")
	}
	m := csm1Pattern.FindStringSubmatch(strings.ToUpper(raw))
	if m == nil {
		return Code{}, fmt.Errorf("identity: invalid CSM1 code %q", raw)
	}
	names := csm1Pattern.SubexpNames()
	groups := map[string]string{}
	for i, v := range m {
		if names[i] != "" {
			groups[names[i]] = v
		}
	}

	persona := Persona(groups["persona"])
	if !validPersonas[persona] {
		return Code{}, fmt.Errorf("identity: unknown persona %q", groups["persona"])
	}
	level, err := strconv.Atoi(groups["level"])
	if err != nil {
		return Code{}, fmt.Errorf("identity: invalid adherence level in %q", raw)
	}

	var scopes []CSMScope
	if scopeGroup := groups["scopes"]; scopeGroup != "" {
		for _, part := range strings.Split(scopeGroup, "+") {
			if part == "" {
				continue
			}
			s := CSMScope(part)
			if !validScopes[s] {
				return Code{}, fmt.Errorf("identity: unknown scope %q", part)
			}
			scopes = append(scopes, s)
		}
	}

	return Code{
		Persona:        persona,
		AdherenceLevel: level,
		Scopes:         scopes,
		Namespace:      groups["namespace"],
		Version:        groups["version"],
	}, nil
}

// Encode renders the code back to its CSM1 string form.
func (c Code) Encode() string {
	var b strings.Builder
	b.WriteString(string(c.Persona))
	b.WriteString(strconv.Itoa(c.AdherenceLevel))
	for _, s := range c.Scopes {
		b.WriteByte('+')
		b.WriteString(string(s))
	}
	if c.Namespace != "" {
		b.WriteByte(':')
		b.WriteString(c.Namespace)
	}
	if c.Version != "" {
		b.WriteByte('@')
		b.WriteString(c.Version)
	}
	return b.String()
}

func (c Code) String() string { return c.Encode() }

// AppliesTo reports whether the code applies to scope. An empty scope list
// means no restriction: the code applies everywhere.
func (c Code) AppliesTo(scope CSMScope) bool {
	if len(c.Scopes) == 0 {
		return true
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// WithScopes returns a copy of c with its scope list replaced.
func (c Code) WithScopes(scopes []CSMScope) Code {
	out := c
	out.Scopes = append([]CSMScope(nil), scopes...)
	return out
}

// WithLevel returns a copy of c with its adherence level replaced.
func (c Code) WithLevel(level int) (Code, error) {
	if level < MinAdherenceLevel || level > MaxAdherenceLevel {
		return Code{}, fmt.Errorf("identity: adherence level must be %d-%d, got %d", MinAdherenceLevel, MaxAdherenceLevel, level)
	}
	out := c
	out.AdherenceLevel = level
	return out, nil
}

// IsActive reports whether the code's adherence level is above disabled (0).
func (c Code) IsActive() bool { return c.AdherenceLevel > 0 }

// IsMaximum reports whether the code is at the maximum adherence level.
func (c Code) IsMaximum() bool { return c.AdherenceLevel == MaxAdherenceLevel }
