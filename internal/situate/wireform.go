package situate

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// dimensionCodes are the single-ASCII-letter prefixes the wire form uses to
// identify a dimension (spec §3: "sym₁V₁…Vₙ|sym₂…" — sym is the dimension's
// own symbol, distinct from the V's, which are the dimension's already-
// encoded value symbols from alphabets).
var dimensionCodes = map[Dimension]byte{
	DimensionTime:        'T',
	DimensionSpace:       'S',
	DimensionCompany:     'O',
	DimensionCulture:     'U',
	DimensionOccasion:    'N',
	DimensionState:       'A',
	DimensionEnvironment: 'E',
	DimensionAgency:      'G',
	DimensionConstraints: 'C',
}

var codeToDimension = func() map[byte]Dimension {
	out := make(map[byte]Dimension, len(dimensionCodes))
	for d, c := range dimensionCodes {
		out[c] = d
	}
	return out
}()

// String renders c in the spec §3 wire form: each dimension with at least
// one value contributes its single-letter code followed by its value
// symbols concatenated with no separator; dimensions are joined by "|" in
// canonical Dimensions order, and dimensions with an empty sequence are
// omitted entirely.
func (c VCPContext) String() string {
	var parts []string
	for _, dim := range Dimensions {
		values := c.Values[dim]
		if len(values) == 0 {
			continue
		}
		parts = append(parts, string(dimensionCodes[dim])+strings.Join(values, ""))
	}
	return strings.Join(parts, "|")
}

// ParseContext parses the spec §3 wire form back into a VCPContext. Each
// "|"-separated segment must begin with a recognized dimension code; the
// remainder is split back into that dimension's value symbols by greedy
// longest-match against its alphabet, since some symbols (e.g. the family
// emoji) are themselves multi-rune sequences and cannot be split on plain
// rune boundaries.
func ParseContext(wire string) (VCPContext, error) {
	c := NewContext()
	if wire == "" {
		return c, nil
	}
	for _, part := range strings.Split(wire, "|") {
		if part == "" {
			return VCPContext{}, fmt.Errorf("situate: empty segment in wire form %q", wire)
		}
		r, size := utf8.DecodeRuneInString(part)
		if r >= utf8.RuneSelf {
			return VCPContext{}, fmt.Errorf("situate: segment %q missing a dimension code", part)
		}
		dim, ok := codeToDimension[byte(r)]
		if !ok {
			return VCPContext{}, fmt.Errorf("situate: unrecognized dimension code %q", string(r))
		}
		symbols, err := splitSymbols(dim, part[size:])
		if err != nil {
			return VCPContext{}, err
		}
		c.Values[dim] = symbols
	}
	return c, nil
}

// symbolsByDimension caches each dimension's known symbols sorted longest
// first, so splitSymbols' greedy match always prefers the longer of two
// symbols that share a prefix.
var symbolsByDimension = func() map[Dimension][]string {
	out := make(map[Dimension][]string, len(alphabets))
	for dim, table := range alphabets {
		symbols := make([]string, 0, len(table))
		for _, sym := range table {
			symbols = append(symbols, sym)
		}
		sort.Slice(symbols, func(i, j int) bool { return len(symbols[i]) > len(symbols[j]) })
		out[dim] = symbols
	}
	return out
}()

func splitSymbols(dim Dimension, s string) ([]string, error) {
	candidates := symbolsByDimension[dim]
	var out []string
	for len(s) > 0 {
		matched := false
		for _, sym := range candidates {
			if strings.HasPrefix(s, sym) {
				out = append(out, sym)
				s = s[len(sym):]
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("situate: unrecognized symbol at %q for dimension %q", s, dim)
		}
	}
	return out, nil
}
