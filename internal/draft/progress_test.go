package draft

import "testing"

func scenarioDocument() Document {
	return Document{
		ID: "npa-1",
		Sections: []Section{
			{
				ID:    "PC.I",
				Owner: OwnerBiz,
				Fields: []Field{
					{Key: "product_name", Label: "Product name", Type: TypeText, Value: "FX Accumulator", Required: true},
					{Key: "risk_level", Label: "Risk level", Type: TypeDropdown, Required: true},
					{Key: "notes", Label: "Notes", Type: TypeTextarea, Value: "Draft"},
					{Key: "references", Label: "References", Type: TypeBulletList},
				},
			},
		},
	}
}

func TestDocumentProgressScenario(t *testing.T) {
	doc := scenarioDocument()
	doc.Normalize()

	got := ProgressOfDocument(&doc)
	want := DocumentProgress{Filled: 2, Total: 4, Required: 2, RequiredFilled: 1}
	if got != want {
		t.Fatalf("ProgressOfDocument() = %+v, want %+v", got, want)
	}

	issues := IssuesOf(&doc)
	if len(issues) != 1 {
		t.Fatalf("expected exactly one issue, got %+v", issues)
	}
	if issues[0].Key != "risk_level" || issues[0].Label != "Risk level" {
		t.Fatalf("unexpected issue: %+v", issues[0])
	}
}

func TestSectionProgressIncludesSubSections(t *testing.T) {
	section := Section{
		ID: "PC.II",
		Fields: []Field{
			{Key: "a", Type: TypeText, Value: "x", Required: true},
		},
		SubSections: []SubSection{
			{ID: "PC.II.1", Fields: []Field{
				{Key: "b", Type: TypeText, Required: true},
				{Key: "c", Type: TypeBulletList, BulletItems: []string{"one"}},
			}},
		},
	}

	got := ProgressOf(&section)
	want := SectionProgress{Filled: 2, Total: 3, MissingRequired: 1}
	if got != want {
		t.Fatalf("ProgressOf() = %+v, want %+v", got, want)
	}
	if got.Percent() != 67 {
		t.Fatalf("Percent() = %d, want 67", got.Percent())
	}
}

func TestProgressInvariantHolds(t *testing.T) {
	sections := []Section{
		{ID: "empty"},
		{ID: "all-required", Fields: []Field{
			{Key: "r1", Type: TypeText, Required: true},
			{Key: "r2", Type: TypeYesNo, Required: true},
		}},
		{ID: "mixed", Fields: []Field{
			{Key: "m1", Type: TypeText, Value: "v", Required: true},
			{Key: "m2", Type: TypeMultiselect, Value: "A, B"},
			{Key: "m3", Type: TypeBulletList, Required: true},
		}},
	}
	for i := range sections {
		p := ProgressOf(&sections[i])
		if p.MissingRequired > p.Total || p.Filled > p.Total {
			t.Fatalf("section %s violates progress bounds: %+v", sections[i].ID, p)
		}
	}
}

func TestPercentHandlesEmptyTotal(t *testing.T) {
	tests := []struct {
		filled, total, want int
	}{
		{0, 0, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{4, 4, 100},
	}
	for _, tt := range tests {
		if got := Percent(tt.filled, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.filled, tt.total, got, tt.want)
		}
	}
}

func TestIssuesFollowDocumentOrder(t *testing.T) {
	doc := Document{Sections: []Section{
		{ID: "S1", Fields: []Field{{Key: "s1_top", Type: TypeText, Required: true}},
			SubSections: []SubSection{{ID: "S1.a", Fields: []Field{{Key: "s1_sub", Type: TypeText, Required: true}}}}},
		{ID: "S2", Fields: []Field{{Key: "s2_top", Type: TypeBulletList, Required: true}}},
	}}

	issues := IssuesOf(&doc)
	keys := make([]string, 0, len(issues))
	for _, issue := range issues {
		keys = append(keys, issue.Key)
	}
	want := []string{"s1_top", "s1_sub", "s2_top"}
	if len(keys) != len(want) {
		t.Fatalf("issues = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("issues = %v, want %v", keys, want)
		}
	}
	if issues[2].SectionIndex != 1 {
		t.Fatalf("expected s2_top in section 1, got %d", issues[2].SectionIndex)
	}
}
