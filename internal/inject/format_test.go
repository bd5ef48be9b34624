package inject

import (
	"strings"
	"testing"
	"time"

	"github.com/creed-space/vcp/internal/bundle"
)

func sampleBundle() bundle.Bundle {
	return bundle.Bundle{
		Manifest: bundle.Manifest{
			VCPVersion: "1.0",
			Bundle: bundle.BundleInfo{
				ID:          "creed://test.example/minimal",
				Version:     "1.0.0",
				ContentHash: "sha256:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd",
			},
			Budget: bundle.Budget{TokenCount: 128},
			Safety: bundle.Attestation{
				Auditor:         "auditor.example",
				AttestationType: bundle.AttestationInjectionSafe,
			},
		},
		Content: "# Test Constitution\n\n## Article 1: Safety\nAll responses must be safe and helpful.\n",
	}
}

func TestRender_HeaderDelimitedIncludesAllFields(t *testing.T) {
	b := sampleBundle()
	opts := DefaultOptions()
	verifiedAt := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)

	out := Render(b, opts, verifiedAt)

	for _, want := range []string{
		"[VCP:1.0]",
		"[ID:creed://test.example/minimal@1.0.0]",
		"[HASH:01234567...abcd]",
		"[TOKENS:128]",
		"[ATTESTED:injection-safe:auditor.example]",
		"---BEGIN-CONSTITUTION---",
		"---END-CONSTITUTION---",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "All responses must be safe and helpful.\n\n") {
		t.Error("expected trailing whitespace in content to be trimmed")
	}
}

func TestRender_OmitsTokensAndAttestationWhenDisabled(t *testing.T) {
	b := sampleBundle()
	opts := DefaultOptions()
	opts.IncludeTokens = false
	opts.IncludeAttestation = false

	out := Render(b, opts, time.Now())
	if strings.Contains(out, "[TOKENS:") || strings.Contains(out, "[ATTESTED:") {
		t.Error("expected tokens/attestation lines to be omitted")
	}
}

func TestRender_XMLTagged(t *testing.T) {
	b := sampleBundle()
	opts := DefaultOptions()
	opts.Format = FormatXMLTagged

	out := Render(b, opts, time.Now())
	if !strings.HasPrefix(out, "<vcp-constitution ") {
		t.Errorf("expected xml-tagged output to start with opening tag, got:\n%s", out)
	}
	if !strings.HasSuffix(out, "</vcp-constitution>") {
		t.Errorf("expected xml-tagged output to end with closing tag, got:\n%s", out)
	}
	if !strings.Contains(out, `id="creed://test.example/minimal"`) {
		t.Error("expected id attribute present")
	}
}

func TestRender_Minimal(t *testing.T) {
	b := sampleBundle()
	opts := DefaultOptions()
	opts.Format = FormatMinimal

	out := Render(b, opts, time.Now())
	if !strings.HasPrefix(out, "# Constitution: creed://test.example/minimal@1.0.0 [01234567]") {
		t.Errorf("unexpected minimal header, got:\n%s", out)
	}
}

func TestFormatMulti_SingleBundleDelegatesToFormat(t *testing.T) {
	b := sampleBundle()
	single, err := FormatMulti([]bundle.Bundle{b}, DefaultOptions(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(single, "---BEGIN-CONSTITUTION---") {
		t.Error("expected single-bundle format to use the normal header-delimited rendering")
	}
}

func TestFormatMulti_SortsByLayerAndEmitsPrecedence(t *testing.T) {
	base := sampleBundle()
	base.Manifest.Bundle.ID = "creed://test.example/base"
	base.Manifest.Compose = &bundle.Composition{Layer: 1, Mode: bundle.ModeBase}

	override := sampleBundle()
	override.Manifest.Bundle.ID = "creed://test.example/override"
	override.Manifest.Compose = &bundle.Composition{Layer: 3, Mode: bundle.ModeOverride}

	out, err := FormatMulti([]bundle.Bundle{override, base}, DefaultOptions(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[LAYERS:2]") {
		t.Error("expected [LAYERS:2]")
	}
	if !strings.Contains(out, "[PRECEDENCE:1>3]") {
		t.Errorf("expected ascending precedence line, got:\n%s", out)
	}
	baseIdx := strings.Index(out, "creed://test.example/base")
	overrideIdx := strings.Index(out, "creed://test.example/override")
	if baseIdx == -1 || overrideIdx == -1 || baseIdx > overrideIdx {
		t.Error("expected base (layer 1) to be rendered before override (layer 3)")
	}
}

func TestFormatMulti_EmptyBundlesErrors(t *testing.T) {
	_, err := FormatMulti(nil, DefaultOptions(), time.Now())
	if err == nil {
		t.Fatal("expected error for empty bundle list")
	}
}
