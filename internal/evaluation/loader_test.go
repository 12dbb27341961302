package evaluation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadGoldenQueries_JSON(t *testing.T) {
	path := writeTempFile(t, "golden.json", `[
		{"id": "q1", "table": "icd10_codes", "query": "type 2 diabetes", "expected_ids": ["E11.9", "E11.65"], "difficulty": "easy"},
		{"id": "q2", "table": "clinical_trials", "query": "metformin", "filters": {"status": "RECRUITING"}, "expected_ids": ["NCT00000001"]}
	]`)

	queries, err := LoadGoldenQueries(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(queries))
	}
	if queries[0].Table != "icd10_codes" || len(queries[0].ExpectedIDs) != 2 {
		t.Errorf("unexpected first query: %+v", queries[0])
	}
	if queries[1].Filters["status"] != "RECRUITING" {
		t.Errorf("expected status filter, got %v", queries[1].Filters)
	}
}

func TestLoadGoldenQueries_YAML(t *testing.T) {
	path := writeTempFile(t, "golden.yaml", `
- id: q1
  table: pubmed_articles
  query: statin adherence
  expected_ids: ["31234567"]
  difficulty: hard
`)

	queries, err := LoadGoldenQueries(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 1 || queries[0].ExpectedIDs[0] != "31234567" || queries[0].Difficulty != "hard" {
		t.Errorf("unexpected queries: %+v", queries)
	}
}

func TestLoadGoldenQueries_Errors(t *testing.T) {
	if _, err := LoadGoldenQueries("/nonexistent/path.json"); err == nil {
		t.Error("expected error for nonexistent file")
	}
	if _, err := LoadGoldenQueries(writeTempFile(t, "bad.json", `{not json`)); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestValidateGoldenQueries(t *testing.T) {
	valid := GoldenQuery{ID: "q1", Table: "icd10_codes", Query: "asthma", ExpectedIDs: []string{"J45.909"}}

	tests := []struct {
		name    string
		queries []GoldenQuery
		wantErr string
	}{
		{name: "valid", queries: []GoldenQuery{valid}},
		{name: "missing id", queries: []GoldenQuery{{Table: "icd10_codes", Query: "x", ExpectedIDs: []string{"A"}}}, wantErr: "missing id"},
		{name: "duplicate id", queries: []GoldenQuery{valid, valid}, wantErr: "duplicate id"},
		{name: "unknown table", queries: []GoldenQuery{{ID: "q", Table: "patients", Query: "x", ExpectedIDs: []string{"A"}}}, wantErr: "unknown table"},
		{name: "blank query", queries: []GoldenQuery{{ID: "q", Table: "icd10_codes", Query: "  ", ExpectedIDs: []string{"A"}}}, wantErr: "missing query text"},
		{name: "no expected ids", queries: []GoldenQuery{{ID: "q", Table: "icd10_codes", Query: "x"}}, wantErr: "no expected_ids"},
		{name: "bad difficulty", queries: []GoldenQuery{{ID: "q", Table: "icd10_codes", Query: "x", ExpectedIDs: []string{"A"}, Difficulty: "trivial"}}, wantErr: "invalid difficulty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGoldenQueries(tt.queries)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
