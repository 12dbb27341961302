package evaluation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// Searcher is the search surface being evaluated
type Searcher interface {
	Search(ctx context.Context, q entities.SearchQuery) ([]entities.SearchResult, error)
}

// Runner runs a golden set against a Searcher.
type Runner struct {
	searcher Searcher
	k        int
	logger   zerolog.Logger
}

// NewRunner creates a runner scoring the top k results. k <= 0 uses DefaultK.
func NewRunner(searcher Searcher, k int, logger zerolog.Logger) *Runner {
	if k <= 0 {
		k = DefaultK
	}
	return &Runner{searcher: searcher, k: k, logger: logger}
}

// Run evaluates every query. A failing query scores zero and is counted in
// FailedQueries; only context cancellation stops the run.
func (r *Runner) Run(ctx context.Context, queries []GoldenQuery) (*EvalSummary, error) {
	summary := &EvalSummary{
		K:            r.k,
		TotalQueries: len(queries),
		ByTable:      make(map[string]*TableSummary),
		Results:      make([]EvalResult, 0, len(queries)),
	}

	for _, gq := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := r.evaluate(ctx, gq)
		if result.Error != "" {
			summary.FailedQueries++
			r.logger.Warn().Str("query_id", gq.ID).Str("error", result.Error).Msg("golden query failed")
		}
		summary.add(result)
	}

	summary.finalize()
	return summary, nil
}

func (r *Runner) evaluate(ctx context.Context, gq GoldenQuery) EvalResult {
	result := EvalResult{QueryID: gq.ID, Table: gq.Table, Query: gq.Query}

	start := time.Now()
	results, err := r.searcher.Search(ctx, entities.SearchQuery{
		Table: gq.Table, Query: gq.Query, Filters: gq.Filters, MaxResults: r.k,
	})
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.ResultCount = len(results)
	result.RetrievedIDs = make([]string, len(results))
	for i, res := range results {
		result.RetrievedIDs[i] = res.ID
	}
	result.Recall = RecallAtK(gq.ExpectedIDs, result.RetrievedIDs, r.k)
	result.MRR = MRRAtK(gq.ExpectedIDs, result.RetrievedIDs, r.k)
	result.Precision = PrecisionAtK(gq.ExpectedIDs, result.RetrievedIDs, r.k)
	return result
}

func (s *EvalSummary) add(res EvalResult) {
	s.Results = append(s.Results, res)
	s.AvgRecall += res.Recall
	s.AvgMRR += res.MRR
	s.AvgPrecision += res.Precision
	s.AvgLatency += res.Latency
	if res.ResultCount > 0 {
		s.QueriesWithHits++
	}

	ts, ok := s.ByTable[res.Table]
	if !ok {
		ts = &TableSummary{}
		s.ByTable[res.Table] = ts
	}
	ts.Count++
	ts.AvgRecall += res.Recall
	ts.AvgMRR += res.MRR
}

func (s *EvalSummary) finalize() {
	if s.TotalQueries > 0 {
		n := float64(s.TotalQueries)
		s.AvgRecall /= n
		s.AvgMRR /= n
		s.AvgPrecision /= n
		s.AvgLatency /= time.Duration(s.TotalQueries)
	}
	for _, ts := range s.ByTable {
		n := float64(ts.Count)
		ts.AvgRecall /= n
		ts.AvgMRR /= n
	}
}
