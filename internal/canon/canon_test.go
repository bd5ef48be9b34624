package canon

import (
	"strings"
	"testing"
)

func TestCanonicalizeContent_TrimsTrailingWhitespaceAndNormalizesNewlines(t *testing.T) {
	in := "line one  \r\nline two\t\r\n\n\n"
	got, err := CanonicalizeContent(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "line one\nline two\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeContent_Idempotent(t *testing.T) {
	in := "# Test Constitution\n\n## Article 1: Safety\nAll responses must be safe.\n"
	once, err := CanonicalizeContent(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := CanonicalizeContent(once)
	if err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}
	if once != twice {
		t.Errorf("canonicalization not idempotent: %q != %q", once, twice)
	}
}

func TestCanonicalizeContent_RejectsBidiOverride(t *testing.T) {
	in := "safe text ‮evil‬"
	_, err := CanonicalizeContent(in)
	if err == nil {
		t.Fatal("expected error for embedded bidi override, got nil")
	}
	var cerr *Error
	if !AsCanonError(err, &cerr) {
		t.Fatalf("expected *canon.Error, got %T", err)
	}
	if cerr.Kind != ErrForbiddenRune {
		t.Errorf("got kind %q, want %q", cerr.Kind, ErrForbiddenRune)
	}
}

func TestCanonicalizeContent_AllowsLFAndTab(t *testing.T) {
	in := "col1\tcol2\nrow2\n"
	got, err := CanonicalizeContent(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "\t") {
		t.Errorf("expected tab to survive canonicalization, got %q", got)
	}
}

func TestCanonicalizeContent_RejectsOtherC0Controls(t *testing.T) {
	in := "text\x07bell"
	if _, err := CanonicalizeContent(in); err == nil {
		t.Fatal("expected error for bell character, got nil")
	}
}

func TestContentHash_StableAcrossEquivalentInput(t *testing.T) {
	a, err := ContentHash("hello world  \n\n\n")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ContentHash("hello world\n")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("expected equal hashes for canonically-equivalent input, got %q != %q", a, b)
	}
	if !strings.HasPrefix(a, "sha256:") {
		t.Errorf("expected sha256: prefix, got %q", a)
	}
}

func TestVerifyContentHash_MutationChangesHash(t *testing.T) {
	content := "# Policy\n\nBe safe.\n"
	hash, err := ContentHash(content)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := VerifyContentHash(content+"!", hash)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected mutated content to fail hash verification")
	}
}

func TestCanonicalJSON_SortsKeysAndOmitsWhitespace(t *testing.T) {
	v := map[string]interface{}{
		"b": 1.0,
		"a": "x",
		"c": map[string]interface{}{"z": true, "y": nil},
	}
	got, err := CanonicalJSON(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":"x","b":1,"c":{"y":null,"z":true}}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalizeManifest_StripsSignatureField(t *testing.T) {
	doc := []byte(`{"b":1,"signature":{"value":"abc"},"a":2}`)
	got, err := CanonicalizeManifest(doc)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":2,"b":1}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

// AsCanonError is a small local errors.As wrapper kept in-package so the
// test above reads linearly; avoids importing "errors" just for one call
// site duplicated across tests.
func AsCanonError(err error, target **Error) bool {
	ce, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = ce
	return true
}
