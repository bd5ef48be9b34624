// Package inject implements the Injection Formatter (spec §4.9): renders
// a verified bundle, or a composed set of bundles, into a bounded
// system-prompt string in one of three formats.
//
// The deterministic string-building style (fixed-width hash slices,
// explicit field ordering via a line-accumulator) is grounded on
// storage.ledgerKey's sortable-key builder in the teacher's
// internal/storage/bolt.go.
package inject

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/creed-space/vcp/internal/bundle"
)

// Format selects one of the three rendering styles.
type Format string

const (
	FormatHeaderDelimited Format = "header-delimited"
	FormatXMLTagged       Format = "xml-tagged"
	FormatMinimal         Format = "minimal"
)

// Options controls rendering detail.
type Options struct {
	Format             Format
	IncludeTokens      bool
	IncludeAttestation bool
	HashPrefixLength   int
	HashSuffixLength   int
}

// DefaultOptions returns the reference defaults: header-delimited, tokens
// and attestation included, an 8-char hash prefix and 4-char suffix.
func DefaultOptions() Options {
	return Options{
		Format:             FormatHeaderDelimited,
		IncludeTokens:      true,
		IncludeAttestation: true,
		HashPrefixLength:   8,
		HashSuffixLength:   4,
	}
}

// Render renders a single verified bundle for injection.
func Render(b bundle.Bundle, opts Options, verifiedAt time.Time) string {
	switch opts.Format {
	case FormatXMLTagged:
		return formatXMLTagged(b, opts, verifiedAt)
	case FormatMinimal:
		return formatMinimal(b, opts, verifiedAt)
	default:
		return formatHeaderDelimited(b, opts, verifiedAt)
	}
}

func hashDisplay(contentHash string, prefixLen, suffixLen int) string {
	parts := strings.SplitN(contentHash, ":", 2)
	hash := contentHash
	if len(parts) == 2 {
		hash = parts[1]
	}
	if len(hash) <= prefixLen+suffixLen {
		return hash
	}
	return fmt.Sprintf("%s...%s", hash[:prefixLen], hash[len(hash)-suffixLen:])
}

func formatHeaderDelimited(b bundle.Bundle, opts Options, verifiedAt time.Time) string {
	m := b.Manifest
	lines := []string{
		fmt.Sprintf("[VCP:%s]", m.VCPVersion),
		fmt.Sprintf("[ID:%s@%s]", m.Bundle.ID, m.Bundle.Version),
		fmt.Sprintf("[HASH:%s]", hashDisplay(m.Bundle.ContentHash, opts.HashPrefixLength, opts.HashSuffixLength)),
	}
	if opts.IncludeTokens {
		lines = append(lines, fmt.Sprintf("[TOKENS:%d]", m.Budget.TokenCount))
	}
	if opts.IncludeAttestation {
		lines = append(lines, fmt.Sprintf("[ATTESTED:%s:%s]", m.Safety.AttestationType, m.Safety.Auditor))
	}
	lines = append(lines,
		fmt.Sprintf("[VERIFIED:%sZ]", verifiedAt.UTC().Format(time.RFC3339Nano)),
		"---BEGIN-CONSTITUTION---",
		strings.TrimRight(b.Content, " \t\r\n"),
		"---END-CONSTITUTION---",
	)
	return strings.Join(lines, "\n")
}

func formatXMLTagged(b bundle.Bundle, opts Options, verifiedAt time.Time) string {
	m := b.Manifest
	attrs := []string{
		fmt.Sprintf(`version="%s"`, m.VCPVersion),
		fmt.Sprintf(`id="%s"`, m.Bundle.ID),
		fmt.Sprintf(`bundle_version="%s"`, m.Bundle.Version),
		fmt.Sprintf(`hash="%s"`, hashDisplay(m.Bundle.ContentHash, opts.HashPrefixLength, opts.HashSuffixLength)),
	}
	if opts.IncludeTokens {
		attrs = append(attrs, fmt.Sprintf(`tokens="%d"`, m.Budget.TokenCount))
	}
	if opts.IncludeAttestation {
		attrs = append(attrs,
			fmt.Sprintf(`attestation="%s"`, m.Safety.AttestationType),
			fmt.Sprintf(`auditor="%s"`, m.Safety.Auditor))
	}
	attrs = append(attrs, fmt.Sprintf(`verified="%sZ"`, verifiedAt.UTC().Format(time.RFC3339Nano)))

	return fmt.Sprintf("<vcp-constitution %s>\n%s\n</vcp-constitution>",
		strings.Join(attrs, " "), strings.TrimRight(b.Content, " \t\r\n"))
}

func formatMinimal(b bundle.Bundle, opts Options, verifiedAt time.Time) string {
	m := b.Manifest
	hashValue := hashDisplay(m.Bundle.ContentHash, opts.HashPrefixLength, 0)
	hashValue = strings.TrimSuffix(hashValue, "...")
	header := fmt.Sprintf("# Constitution: %s@%s [%s]", m.Bundle.ID, m.Bundle.Version, hashValue)
	return fmt.Sprintf("%s\n\n%s", header, strings.TrimRight(b.Content, " \t\r\n"))
}

// FormatMulti renders a layered composition of verified bundles, sorted by
// composition.layer ascending. A nil composition on a bundle defaults its
// layer to its 1-based position in the input slice.
func FormatMulti(bundles []bundle.Bundle, opts Options, verifiedAt time.Time) (string, error) {
	if len(bundles) == 0 {
		return "", fmt.Errorf("inject: at least one bundle required")
	}
	if len(bundles) == 1 {
		return Render(bundles[0], opts, verifiedAt), nil
	}

	type layered struct {
		b     bundle.Bundle
		layer int
	}
	sorted := make([]layered, len(bundles))
	for i, b := range bundles {
		sorted[i] = layered{b: b, layer: layerOf(b, i+1)}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].layer < sorted[j].layer
	})

	lines := []string{
		"[VCP:1.0]",
		"[COMPOSITION:layered]",
		fmt.Sprintf("[LAYERS:%d]", len(bundles)),
	}

	layerSet := map[int]bool{}
	for _, lb := range sorted {
		b, layer := lb.b, lb.layer
		layerSet[layer] = true
		hashShort := hashDisplay(b.Manifest.Bundle.ContentHash, 8, 4)
		lines = append(lines, fmt.Sprintf("[LAYER:%d:%s@%s:%s]", layer, b.Manifest.Bundle.ID, b.Manifest.Bundle.Version, hashShort))
	}

	layers := make([]int, 0, len(layerSet))
	for l := range layerSet {
		layers = append(layers, l)
	}
	sort.Ints(layers)
	precedence := make([]string, len(layers))
	for i, l := range layers {
		precedence[i] = fmt.Sprintf("%d", l)
	}
	lines = append(lines, fmt.Sprintf("[PRECEDENCE:%s]", strings.Join(precedence, ">")))
	lines = append(lines,
		fmt.Sprintf("[VERIFIED:%sZ]", verifiedAt.UTC().Format(time.RFC3339Nano)),
		"---BEGIN-CONSTITUTION---",
	)

	for _, lb := range sorted {
		b, layer := lb.b, lb.layer
		mode := bundle.ModeExtend
		if b.Manifest.Compose != nil {
			mode = b.Manifest.Compose.Mode
		}
		title := b.Manifest.Bundle.ID
		if t, ok := b.Manifest.Metadata["title"]; ok {
			if s, ok := t.(string); ok {
				title = s
			}
		}
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("## Layer %d: %s (%s)", layer, title, strings.ToUpper(string(mode))))
		lines = append(lines, strings.TrimRight(b.Content, " \t\r\n"))
	}
	lines = append(lines, "")
	lines = append(lines, "---END-CONSTITUTION---")

	return strings.Join(lines, "\n"), nil
}

func layerOf(b bundle.Bundle, fallback int) int {
	if b.Manifest.Compose != nil {
		return b.Manifest.Compose.Layer
	}
	return fallback
}
