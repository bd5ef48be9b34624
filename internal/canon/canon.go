// Package canon implements the two canonicalization operations VCP signs
// and hashes over: content canonicalization (for the bundle content hash)
// and manifest canonicalization (for the manifest signature).
//
// Both operations are deterministic: the same logical value always
// produces the same byte string, regardless of source formatting. This is
// the property every downstream signature and hash check depends on.
package canon

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrorKind classifies a canonicalization failure. Modeled as a typed enum
// rather than a bare error string so callers (the orchestrator) can map it
// to a specific VerificationResult without string matching.
type ErrorKind string

const (
	ErrForbiddenControl ErrorKind = "forbidden_control_character"
	ErrForbiddenRune    ErrorKind = "forbidden_unicode_character"
	ErrInvalidUTF8      ErrorKind = "invalid_utf8"
)

// Error is a structured canonicalization failure. It is never silently
// coerced away — callers must observe and handle it.
type Error struct {
	Kind   ErrorKind
	Offset int // byte offset of the offending rune, -1 if not applicable
	Rune   rune
}

func (e *Error) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("canon: %s at byte offset %d (U+%04X)", e.Kind, e.Offset, e.Rune)
	}
	return fmt.Sprintf("canon: %s", e.Kind)
}

// forbiddenRanges is the fixed set of characters that must never appear in
// canonicalized content: bidi overrides, bidi isolates, zero-width
// characters, and the BOM. Order matters only for readability.
var forbiddenRanges = []struct{ lo, hi rune }{
	{0x202A, 0x202E}, // bidi embedding/override controls
	{0x2066, 0x2069}, // bidi isolates
	{0x200B, 0x200D}, // zero-width space/non-joiner/joiner
	{0xFEFF, 0xFEFF}, // BOM / zero-width no-break space
}

func isForbiddenRune(r rune) bool {
	for _, rg := range forbiddenRanges {
		if r >= rg.lo && r <= rg.hi {
			return true
		}
	}
	return false
}

// CanonicalizeContent applies the deterministic content-canonicalization
// pipeline described in spec §4.1:
//  1. NFC-normalize
//  2. CRLF/CR -> LF
//  3. strip trailing space/tab per line
//  4. drop trailing empty lines, append exactly one LF
//  5. reject C0 controls other than LF/TAB
//  6. reject forbidden Unicode ranges
//  7. return UTF-8 without BOM
func CanonicalizeContent(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", &Error{Kind: ErrInvalidUTF8, Offset: -1}
	}

	normalized := norm.NFC.String(s)
	normalized = strings.ReplaceAll(normalized, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	// Drop trailing empty lines, then append exactly one LF.
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	lines = lines[:end]
	result := strings.Join(lines, "\n")
	if result != "" {
		result += "\n"
	} else {
		result = "\n"
	}

	for i, r := range result {
		if r == utf8.RuneError {
			return "", &Error{Kind: ErrInvalidUTF8, Offset: i}
		}
		if r < 0x20 {
			if r != '\n' && r != '\t' {
				return "", &Error{Kind: ErrForbiddenControl, Offset: i, Rune: r}
			}
			continue
		}
		if isForbiddenRune(r) {
			return "", &Error{Kind: ErrForbiddenRune, Offset: i, Rune: r}
		}
	}

	return result, nil
}

// CanonicalJSON produces JCS-style canonical JSON for a decoded value tree
// (the output of json.Unmarshal into interface{}): object keys sorted
// lexicographically by UTF-16 code unit, no insignificant whitespace,
// numbers rendered in their shortest round-tripping form. It does not
// accept raw JSON bytes — callers decode first so map key ordering from
// encoding/json (which is alphabetical on the Go side already, but not
// guaranteed across all producers) is made explicit and reproducible.
func CanonicalJSON(v interface{}) ([]byte, error) {
	var buf strings.Builder
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func writeCanonical(buf *strings.Builder, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeJSONString(buf, val)
	case float64:
		buf.WriteString(formatNumber(val))
	case map[string]interface{}:
		return writeCanonicalObject(buf, val)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("canon: unsupported JSON value type %T", v)
	}
	return nil
}

func writeCanonicalObject(buf *strings.Builder, obj map[string]interface{}) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	// Sort lexicographically by UTF-16 code unit, per JCS (RFC 8785 §3.2.3).
	sort.Slice(keys, func(i, j int) bool { return less16(keys[i], keys[j]) })

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, k)
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// less16 compares two strings by their UTF-16 code unit sequence, as JCS
// requires (not by raw UTF-8 byte order, which differs for runes outside
// the BMP and for surrogate-pair-affected ordering).
func less16(a, b string) bool {
	au := utf16Units(a)
	bu := utf16Units(b)
	n := len(au)
	if len(bu) < n {
		n = len(bu)
	}
	for i := 0; i < n; i++ {
		if au[i] != bu[i] {
			return au[i] < bu[i]
		}
	}
	return len(au) < len(bu)
}

func utf16Units(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, uint16(r))
			continue
		}
		r -= 0x10000
		out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return out
}

func writeJSONString(buf *strings.Builder, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// formatNumber renders a float64 in its shortest round-tripping decimal
// form, preferring an integer representation when the value is integral
// (JCS numbers must not carry a spurious ".0").
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
