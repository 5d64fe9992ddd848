package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"npa/draftbuilder/internal/draft"
)

const sampleTemplate = `
id: npa-lite
title: Lite NPA
description: Short form
sections:
  - id: PC.I
    label: Product
    owner: BIZ
    fields:
      - key: product_name
        label: Product name
        type: text
        required: true
        value: Card
        lineage: AUTO
        strategy: RULE
        confidence: 0.9
      - key: cross_border
        label: Cross border
        type: yesno
        value: "yes"
      - key: channels
        label: Channels
        type: multiselect
        value: Web, App
  - id: APP.1
    label: Appendix
    fields:
      - key: notes
        label: Notes
        type: bullet_list
        value: |
          - first
          - second
`

func TestParseNormalisesFields(t *testing.T) {
	doc, description, err := Parse([]byte(sampleTemplate))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if doc.ID != "npa-lite" || description != "Short form" || len(doc.Sections) != 2 {
		t.Fatalf("unexpected document: %+v", doc)
	}

	name, _ := doc.Field("product_name")
	if name.Strategy != draft.StrategyRule || name.Confidence == nil || *name.Confidence != 0.9 {
		t.Fatalf("unexpected product_name: %+v", name)
	}
	yes, _ := doc.Field("cross_border")
	if yes.Value != "Yes" || !yes.YesNoValue {
		t.Fatalf("unexpected yesno: %+v", yes)
	}
	channels, _ := doc.Field("channels")
	if got := channels.Selection(); len(got) != 2 || got[0] != "Web" {
		t.Fatalf("unexpected selection: %v", got)
	}
	notes, _ := doc.Field("notes")
	if len(notes.BulletItems) != 2 || notes.BulletItems[1] != "second" {
		t.Fatalf("unexpected bullets: %q", notes.BulletItems)
	}
}

func TestParseRejectsInvalidTemplates(t *testing.T) {
	tests := map[string]string{
		"empty":      "   ",
		"no id":      "title: x\nsections:\n  - id: PC.I\n",
		"bad type":   "id: x\nsections:\n  - id: PC.I\n    fields:\n      - key: a\n        type: slider\n",
		"bad yaml":   "id: [",
		"duplicates": "id: x\nsections:\n  - id: PC.I\n    fields:\n      - {key: a, type: text}\n      - {key: a, type: text}\n",
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := Parse([]byte(payload)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDirListAndLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lite.yaml"), []byte(sampleTemplate), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewDir(dir)
	list, err := src.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != "npa-lite" || list[0].Fields != 4 || list[0].Sections != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}

	doc, err := src.Load(context.Background(), "npa-lite")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Title != "Lite NPA" {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if _, err := src.Load(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBundledTemplateIsValid(t *testing.T) {
	doc, err := LoadFile(filepath.Join("..", "..", "templates", "npa_standard.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	nav := draft.NewNavigator(&doc)
	if got := nav.JumpToField("risk_level"); got != draft.Applied || nav.Active() != 3 {
		t.Fatalf("risk_level should live in section 3, got %v at %d", got, nav.Active())
	}
	var appendix int
	for i, flag := range nav.BoundaryFlags() {
		if flag {
			appendix++
			if !strings.HasPrefix(doc.Sections[i].ID, draft.AppendixPrefix) {
				t.Fatalf("boundary on non-appendix section %s", doc.Sections[i].ID)
			}
		}
	}
	if appendix != 1 {
		t.Fatalf("expected one appendix boundary, got %d", appendix)
	}
	if issues := draft.IssuesOf(&doc); len(issues) == 0 {
		t.Fatal("blank template should report missing required fields")
	}
}
