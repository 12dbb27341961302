// Package evaluation measures full-text search quality over the mirrored
// tables against a labeled set of golden queries.
package evaluation

import "time"

// DefaultK is the cutoff used when a run does not set one.
const DefaultK = 10

// GoldenQuery is a labeled query with the record keys a good search returns.
type GoldenQuery struct {
	ID          string            `json:"id" yaml:"id"`
	Table       string            `json:"table" yaml:"table"`
	Query       string            `json:"query" yaml:"query"`
	Filters     map[string]string `json:"filters,omitempty" yaml:"filters,omitempty"`
	ExpectedIDs []string          `json:"expected_ids" yaml:"expected_ids"`
	Difficulty  string            `json:"difficulty" yaml:"difficulty"` // easy, medium, hard
}

// EvalResult holds the outcome for a single query.
type EvalResult struct {
	QueryID      string        `json:"query_id"`
	Table        string        `json:"table"`
	Query        string        `json:"query"`
	Recall       float64       `json:"recall"`
	MRR          float64       `json:"mrr"`
	Precision    float64       `json:"precision"`
	ResultCount  int           `json:"result_count"`
	RetrievedIDs []string      `json:"retrieved_ids"`
	Latency      time.Duration `json:"latency"`
	Error        string        `json:"error,omitempty"`
}

// EvalSummary aggregates metrics across the golden set.
type EvalSummary struct {
	K               int                      `json:"k"`
	TotalQueries    int                      `json:"total_queries"`
	FailedQueries   int                      `json:"failed_queries"`
	QueriesWithHits int                      `json:"queries_with_hits"`
	AvgRecall       float64                  `json:"avg_recall"`
	AvgMRR          float64                  `json:"avg_mrr"`
	AvgPrecision    float64                  `json:"avg_precision"`
	AvgLatency      time.Duration            `json:"avg_latency"`
	ByTable         map[string]*TableSummary `json:"by_table"`
	Results         []EvalResult             `json:"results"`
}

// TableSummary holds metrics for one table.
type TableSummary struct {
	Count     int     `json:"count"`
	AvgRecall float64 `json:"avg_recall"`
	AvgMRR    float64 `json:"avg_mrr"`
}
