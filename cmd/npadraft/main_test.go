package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const progressTemplate = `
id: npa-lite
title: Lite NPA
sections:
  - id: PC.I
    label: Product
    fields:
      - key: product_name
        label: Product name
        type: text
        required: true
        value: Card
      - key: summary
        label: Summary
        type: textarea
        required: true
  - id: APP.1
    label: Appendix
    fields:
      - key: notes
        label: Notes
        type: text
`

func writeTemplate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lite.yaml")
	if err := os.WriteFile(path, []byte(progressTemplate), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	return path
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "progress", "token"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	if root.PersistentFlags().Lookup("json") == nil {
		t.Error("missing --json flag")
	}
}

func TestProgressCommandJSON(t *testing.T) {
	out, err := runRoot(t, "progress", writeTemplate(t), "--json")
	if err != nil {
		t.Fatalf("progress failed: %v", err)
	}

	var report progressReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if report.ID != "npa-lite" || report.Progress.Filled != 1 || report.Progress.Total != 3 {
		t.Fatalf("unexpected progress: %+v", report)
	}
	if len(report.Issues) != 1 || report.Issues[0].Key != "summary" {
		t.Fatalf("unexpected issues: %+v", report.Issues)
	}
	if len(report.Sections) != 2 || report.Sections[0].Appendix || !report.Sections[1].Appendix {
		t.Fatalf("unexpected sections: %+v", report.Sections)
	}
}

func TestProgressCommandText(t *testing.T) {
	out, err := runRoot(t, "progress", writeTemplate(t))
	if err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	for _, want := range []string{"Lite NPA (npa-lite)", "1 of 3 fields complete", "-- appendices --", "Summary (summary)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProgressCommandErrors(t *testing.T) {
	if _, err := runRoot(t, "progress"); err == nil {
		t.Error("expected error without a file argument")
	}
	if _, err := runRoot(t, "progress", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "cli-secret")
	out, err := runRoot(t, "token", "Avery", "--team", "biz")
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if strings.Count(strings.TrimSpace(out), ".") != 1 {
		t.Fatalf("unexpected token output %q", out)
	}
}
