package flow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

const healthcareOverride = `
flows:
  - flow: healthcare-guide
    title: Healthcare Quick Guide
    intro: Short {title} intro.
    questions:
      - key: coverage
        prompt: Public or private?
        input: single_choice
        options:
          - value: public
            label: Public system
          - value: private
      - key: insurer
        prompt: Which insurer?
        input: free_text
        condition:
          coverage: [private]
`

func TestParseCatalog(t *testing.T) {
	sets, err := ParseCatalog([]byte(healthcareOverride))
	if err != nil {
		t.Fatalf("ParseCatalog failed: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("expected 1 set, got %d", len(sets))
	}
	s := sets[0]
	if s.Flow != models.FlowHealthcareGuide || s.Title != "Healthcare Quick Guide" || len(s.Questions) != 2 {
		t.Fatalf("unexpected set: %+v", s)
	}
	if got := s.Questions[0].Options[1].Label; got != "private" {
		t.Errorf("missing label should default to the value, got %q", got)
	}
	if got := s.Questions[1].Condition["coverage"]; len(got) != 1 || got[0] != "private" {
		t.Errorf("condition = %v", s.Questions[1].Condition)
	}
}

func TestParseCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "", "empty"},
		{"unknown field", "flows:\n  - flow: apostille\n    colour: red\n", "colour"},
		{"unknown flow", "flows:\n  - flow: tax-return\n    questions:\n      - {key: a, prompt: A, input: free_text}\n", "unknown flow type"},
		{"duplicate flow", "flows:\n  - flow: apostille\n    questions: [{key: a, prompt: A, input: free_text}]\n  - flow: apostille\n    questions: [{key: a, prompt: A, input: free_text}]\n", "duplicate"},
		{"no questions", "flows:\n  - flow: apostille\n", "no questions"},
		{"bad input kind", "flows:\n  - flow: apostille\n    questions: [{key: a, prompt: A, input: slider}]\n", "invalid input kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.data))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadCatalogFileOverridesBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(healthcareOverride), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	overrides, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("LoadCatalogFile failed: %v", err)
	}

	reg, err := NewRegistry(MergeCatalog(Catalog(), overrides)...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	summaries := reg.Summaries()
	if len(summaries) != len(Catalog()) {
		t.Fatalf("expected %d flows, got %d", len(Catalog()), len(summaries))
	}
	last := summaries[len(summaries)-1]
	if last.Flow != models.FlowHealthcareGuide || last.Title != "Healthcare Quick Guide" || last.QuestionCount != 2 {
		t.Errorf("override not applied in place: %+v", last)
	}
	if summaries[0].Flow != models.FlowCoverLetter || summaries[0].QuestionCount != len(coverLetterSet().Questions) {
		t.Errorf("built-in cover letter changed: %+v", summaries[0])
	}

	if _, err := LoadCatalogFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestMergeCatalogAppendsNewFlows(t *testing.T) {
	base := []models.QuestionSet{coverLetterSet()}
	merged := MergeCatalog(base, []models.QuestionSet{apostilleSet()})
	if len(merged) != 2 || merged[1].Flow != models.FlowApostille {
		t.Errorf("unexpected merge result: %d sets", len(merged))
	}
}
