// Package situate implements the Context Encoder and State Tracker (spec
// §4.7): nine fixed dimensions of situational context, encoded through a
// per-dimension lookup table, and a bounded-history tracker that derives
// a severity-classified Transition on each new record.
//
// Named situate (not context) so it doesn't shadow the standard library's
// context.Context import alias throughout the codebase.
package situate

// Dimension identifies one of the nine fixed context dimensions.
type Dimension string

const (
	DimensionTime        Dimension = "time"
	DimensionSpace       Dimension = "space"
	DimensionCompany     Dimension = "company"
	DimensionCulture     Dimension = "culture"
	DimensionOccasion    Dimension = "occasion"
	DimensionState       Dimension = "state"
	DimensionEnvironment Dimension = "environment"
	DimensionAgency      Dimension = "agency"
	DimensionConstraints Dimension = "constraints"
)

// Dimensions lists all nine dimensions in their canonical order.
var Dimensions = []Dimension{
	DimensionTime, DimensionSpace, DimensionCompany, DimensionCulture,
	DimensionOccasion, DimensionState, DimensionEnvironment, DimensionAgency,
	DimensionConstraints,
}

// alphabets maps each dimension's named values to a single-character
// symbol in that dimension's symbolic alphabet.
var alphabets = map[Dimension]map[string]string{
	DimensionTime:        {"morning": "⏰", "midday": "☀", "evening": "🌆", "night": "🌙"},
	DimensionSpace:       {"home": "🏡", "office": "🏢", "school": "🏫", "hospital": "🏥", "transit": "🚗"},
	DimensionCompany:     {"alone": "👤", "children": "👶", "colleagues": "👔", "family": "👨‍👩‍👧", "strangers": "👥"},
	DimensionCulture:     {"global": "🌍", "american": "🇺🇸", "european": "🇪🇺", "japanese": "🇯🇵"},
	DimensionOccasion:    {"normal": "➖", "celebration": "🎂", "mourning": "😢", "emergency": "🚨"},
	DimensionState:       {"happy": "😊", "anxious": "😰", "tired": "😴", "contemplative": "🤔", "frustrated": "😤"},
	DimensionEnvironment: {"comfortable": "☀", "hot": "🥵", "cold": "🥶", "quiet": "🔇", "noisy": "🔊"},
	DimensionAgency:      {"leader": "👑", "peer": "🤝", "subordinate": "📋", "limited": "🔐"},
	DimensionConstraints: {"minimal": "○", "legal": "⚖", "economic": "💸", "time": "⏱"},
}

// VCPContext is an encoded situational context: a named value list per
// dimension. A nil or absent entry means the dimension is unset.
type VCPContext struct {
	Values map[Dimension][]string
}

// NewContext returns an empty VCPContext.
func NewContext() VCPContext {
	return VCPContext{Values: make(map[Dimension][]string)}
}

// Encode maps named values for dim to symbols via its lookup table. Values
// with no entry in the table are silently dropped (spec §4.7). A nil
// values slice encodes to a dimension left unset.
func Encode(dim Dimension, values []string) []string {
	table := alphabets[dim]
	if table == nil || values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if symbol, ok := table[v]; ok {
			out = append(out, symbol)
		}
	}
	return out
}

// Set encodes and stores values for dim on c. Passing nil clears the
// dimension.
func (c VCPContext) Set(dim Dimension, values []string) {
	encoded := Encode(dim, values)
	if len(encoded) == 0 {
		delete(c.Values, dim)
		return
	}
	c.Values[dim] = encoded
}

// Has reports whether dim is set (non-empty) on c.
func (c VCPContext) Has(dim Dimension) bool {
	return len(c.Values[dim]) > 0
}
