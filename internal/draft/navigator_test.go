package draft

import "testing"

func TestAppendixBoundaryFlags(t *testing.T) {
	doc := Document{Sections: []Section{{ID: "PC.I"}, {ID: "APP.1"}, {ID: "APP.2"}, {ID: "PC.VI"}}}
	nav := NewNavigator(&doc)

	got := nav.BoundaryFlags()
	want := []bool{false, true, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("BoundaryFlags() = %v, want %v", got, want)
		}
	}
	if nav.IsAppendixBoundary(-1) || nav.IsAppendixBoundary(9) {
		t.Fatal("out of range indexes are never boundaries")
	}
}

func TestJumpToField(t *testing.T) {
	doc := Document{Sections: []Section{
		{ID: "PC.I", Fields: []Field{{Key: "product_name", Type: TypeText}}},
		{ID: "PC.II"},
		{ID: "PC.III", SubSections: []SubSection{{ID: "PC.III.1", Fields: []Field{{Key: "booking_model", Type: TypeText}}}}},
		{ID: "PC.IV", Fields: []Field{{Key: "risk_level", Type: TypeDropdown}}},
	}}
	nav := NewNavigator(&doc)

	if got := nav.JumpToField("risk_level"); got != Applied {
		t.Fatalf("JumpToField(risk_level) = %v", got)
	}
	if nav.Active() != 3 {
		t.Fatalf("Active() = %d, want 3", nav.Active())
	}
	if got := nav.JumpToField("no_such_key"); got != NoOpUnknownField {
		t.Fatalf("JumpToField(no_such_key) = %v", got)
	}
	if nav.Active() != 3 {
		t.Fatalf("Active() moved to %d on unknown key", nav.Active())
	}
	nav.JumpToField("booking_model")
	if nav.Active() != 2 {
		t.Fatalf("sub-section field should resolve to its section, got %d", nav.Active())
	}
}

func TestSelectClampsAndEnds(t *testing.T) {
	doc := Document{Sections: []Section{{ID: "A"}, {ID: "B"}}}
	nav := NewNavigator(&doc)

	if got := nav.Prev(); got != NoOpOutOfRange || nav.Active() != 0 {
		t.Fatalf("Prev() at start = %v active=%d", got, nav.Active())
	}
	if got := nav.Next(); got != Applied || nav.Active() != 1 {
		t.Fatalf("Next() = %v active=%d", got, nav.Active())
	}
	if got := nav.Next(); got != NoOpOutOfRange || nav.Active() != 1 {
		t.Fatalf("Next() at end = %v active=%d", got, nav.Active())
	}
	if got := nav.Select(7); got != NoOpOutOfRange || nav.Active() != 1 {
		t.Fatalf("Select(7) = %v active=%d", got, nav.Active())
	}
	if _, ok := nav.SectionProgress(4); ok {
		t.Fatal("SectionProgress out of range should report false")
	}
}

func TestDocumentValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		wantErr bool
	}{
		{name: "no sections", doc: Document{ID: "d"}, wantErr: true},
		{name: "duplicate key", doc: Document{Sections: []Section{
			{ID: "A", Fields: []Field{{Key: "k", Type: TypeText}}},
			{ID: "B", SubSections: []SubSection{{ID: "B.1", Fields: []Field{{Key: "k", Type: TypeText}}}}},
		}}, wantErr: true},
		{name: "unknown type", doc: Document{Sections: []Section{{ID: "A", Fields: []Field{{Key: "k", Type: "slider"}}}}}, wantErr: true},
		{name: "unknown owner", doc: Document{Sections: []Section{{ID: "A", Owner: "OPS"}}}, wantErr: true},
		{name: "valid", doc: Document{Sections: []Section{{ID: "A", Owner: OwnerRMG, Fields: []Field{{Key: "k", Type: TypeText}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsApplicable(t *testing.T) {
	doc := Document{Sections: []Section{{ID: "A", Fields: []Field{
		{Key: "cross_border", Type: TypeYesNo, Value: "Yes"},
		{Key: "jurisdictions", Type: TypeText, DependsOn: &Dependency{Field: "cross_border", Value: "Yes"}},
		{Key: "channels", Type: TypeMultiselect, Value: "Retail"},
		{Key: "retail_disclosure", Type: TypeText, DependsOn: &Dependency{Field: "channels", Value: "Retail"}},
		{Key: "orphan", Type: TypeText, DependsOn: &Dependency{Field: "missing", Value: "x"}},
	}}}}
	doc.Normalize()

	for _, key := range []string{"jurisdictions", "retail_disclosure", "orphan"} {
		f, _ := doc.Field(key)
		if !doc.IsApplicable(f) {
			t.Fatalf("%s should be applicable", key)
		}
	}
	cross, _ := doc.Field("cross_border")
	SetYesNo(cross, false)
	f, _ := doc.Field("jurisdictions")
	if doc.IsApplicable(f) {
		t.Fatal("jurisdictions should not apply once cross_border is No")
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := Document{Sections: []Section{{ID: "A", Fields: []Field{{Key: "b", Type: TypeBulletList, BulletItems: []string{"x"}}}}}}
	copied := doc.Clone()
	f, _ := copied.Field("b")
	AddBulletItem(f, "y")

	orig, _ := doc.Field("b")
	if len(orig.BulletItems) != 1 {
		t.Fatalf("clone shares bullet storage: %v", orig.BulletItems)
	}
}
