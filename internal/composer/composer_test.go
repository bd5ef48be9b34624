package composer

import "testing"

func TestCompose_BaseRecordsConflictsWithoutAdding(t *testing.T) {
	base := Constitution{ID: "base", Rules: []string{"You must always be helpful."}}
	extension := Constitution{ID: "ext", Rules: []string{"You must never be helpful."}}

	result, err := Compose([]Constitution{base, extension}, ModeBase)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(result.Conflicts))
	}
	for _, r := range result.MergedRules {
		if r == "You must never be helpful." {
			t.Error("expected conflicting rule to be excluded under base mode")
		}
	}
}

func TestCompose_ExtendErrorsOnConflict(t *testing.T) {
	a := Constitution{ID: "a", Rules: []string{"Always be transparent about being helpful."}}
	b := Constitution{ID: "b", Rules: []string{"Never be transparent about being helpful."}}

	_, err := Compose([]Constitution{a, b}, ModeExtend)
	if err == nil {
		t.Fatal("expected CompositionConflictError")
	}
	var conflictErr *CompositionConflictError
	if !asConflictError(err, &conflictErr) {
		t.Fatalf("expected *CompositionConflictError, got %T", err)
	}
	if len(conflictErr.Conflicts) != 1 {
		t.Errorf("expected 1 conflict, got %d", len(conflictErr.Conflicts))
	}
}

func TestCompose_OverrideLaterRulesWin(t *testing.T) {
	a := Constitution{ID: "a", Rules: []string{"Always be transparent about pricing."}}
	b := Constitution{ID: "b", Rules: []string{"Never be transparent about pricing."}}

	result, err := Compose([]Constitution{a, b}, ModeOverride)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.MergedRules) != 1 || result.MergedRules[0] != "Never be transparent about pricing." {
		t.Errorf("expected override to keep only the later rule, got %v", result.MergedRules)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected 1 warning, got %d", len(result.Warnings))
	}
}

func TestCompose_StrictRejectsDuplicates(t *testing.T) {
	a := Constitution{ID: "a", Rules: []string{"Be kind to users."}}
	b := Constitution{ID: "b", Rules: []string{"Be kind to users."}}

	_, err := Compose([]Constitution{a, b}, ModeStrict)
	if err == nil {
		t.Fatal("expected strict mode to reject duplicate rules")
	}
}

func TestCompose_EmptyInputReturnsEmptyResult(t *testing.T) {
	result, err := Compose(nil, ModeExtend)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.MergedRules) != 0 {
		t.Errorf("expected empty merged rules, got %v", result.MergedRules)
	}
}

func asConflictError(err error, target **CompositionConflictError) bool {
	if e, ok := err.(*CompositionConflictError); ok {
		*target = e
		return true
	}
	return false
}
