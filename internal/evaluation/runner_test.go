package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

type stubSearcher struct {
	results map[string][]string
	calls   []entities.SearchQuery
}

func (s *stubSearcher) Search(ctx context.Context, q entities.SearchQuery) ([]entities.SearchResult, error) {
	s.calls = append(s.calls, q)
	ids, ok := s.results[q.Query]
	if !ok {
		return nil, errors.New("search failed")
	}
	out := make([]entities.SearchResult, len(ids))
	for i, id := range ids {
		out[i] = entities.SearchResult{Table: q.Table, ID: id}
	}
	return out, nil
}

func TestRunner_Run(t *testing.T) {
	searcher := &stubSearcher{results: map[string][]string{
		"diabetes": {"E11.9", "E10.9"},
		"asthma":   {"J45.20", "J45.909"},
		"nothing":  {},
	}}
	queries := []GoldenQuery{
		{ID: "q1", Table: "icd10_codes", Query: "diabetes", ExpectedIDs: []string{"E11.9"}},
		{ID: "q2", Table: "icd10_codes", Query: "asthma", ExpectedIDs: []string{"J45.909"}},
		{ID: "q3", Table: "clinical_trials", Query: "nothing", ExpectedIDs: []string{"NCT1"}, Filters: map[string]string{"status": "RECRUITING"}},
		{ID: "q4", Table: "clinical_trials", Query: "broken", ExpectedIDs: []string{"NCT2"}},
	}

	summary, err := NewRunner(searcher, 5, zerolog.Nop()).Run(context.Background(), queries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.K != 5 || summary.TotalQueries != 4 {
		t.Errorf("unexpected totals: %+v", summary)
	}
	if summary.FailedQueries != 1 {
		t.Errorf("expected 1 failed query, got %d", summary.FailedQueries)
	}
	if summary.QueriesWithHits != 2 {
		t.Errorf("expected 2 queries with hits, got %d", summary.QueriesWithHits)
	}
	if !almostEqual(summary.AvgRecall, 0.5) {
		t.Errorf("expected avg recall 0.5, got %f", summary.AvgRecall)
	}
	if !almostEqual(summary.AvgMRR, (1+0.5)/4.0) {
		t.Errorf("expected avg mrr 0.375, got %f", summary.AvgMRR)
	}

	icd := summary.ByTable["icd10_codes"]
	if icd == nil || icd.Count != 2 || !almostEqual(icd.AvgMRR, 0.75) {
		t.Errorf("unexpected icd10 summary: %+v", icd)
	}
	if len(summary.Results) != 4 || summary.Results[3].Error == "" {
		t.Errorf("expected failed result to carry its error: %+v", summary.Results)
	}

	if searcher.calls[0].MaxResults != 5 {
		t.Errorf("expected searches limited to k, got %d", searcher.calls[0].MaxResults)
	}
	if searcher.calls[2].Filters["status"] != "RECRUITING" {
		t.Errorf("expected filters passed through, got %v", searcher.calls[2].Filters)
	}
}

func TestRunner_DefaultKAndCancel(t *testing.T) {
	r := NewRunner(&stubSearcher{}, 0, zerolog.Nop())
	if r.k != DefaultK {
		t.Errorf("expected default k %d, got %d", DefaultK, r.k)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Run(ctx, []GoldenQuery{{ID: "q", Table: "icd10_codes", Query: "x"}}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
