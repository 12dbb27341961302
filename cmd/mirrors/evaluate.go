package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zatekoja/medical-mirrors/internal/evaluation"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <golden-file>",
	Short: "Score full-text search against a golden query set",
	Long: `Evaluate runs every golden query (JSON or YAML) and reports recall,
precision and mean reciprocal rank at the cutoff k.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().Int("k", evaluation.DefaultK, "rank cutoff")
	evaluateCmd.Flags().Bool("json", false, "print the full summary as JSON")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	queries, err := evaluation.LoadGoldenQueries(args[0])
	if err != nil {
		return err
	}
	if err := evaluation.ValidateGoldenQueries(queries); err != nil {
		return err
	}
	k, _ := cmd.Flags().GetInt("k")

	a, err := newApp(cmd.Context(), appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := evaluation.NewRunner(a.search(), k, observability.Component("evaluation")).Run(cmd.Context(), queries)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	return printEvaluation(cmd.OutOrStdout(), summary)
}

func printEvaluation(w io.Writer, s *evaluation.EvalSummary) error {
	fmt.Fprintf(w, "%d queries, %d with hits, %d failed\n", s.TotalQueries, s.QueriesWithHits, s.FailedQueries)
	fmt.Fprintf(w, "recall@%d %.3f  precision@%d %.3f  mrr@%d %.3f  avg latency %s\n\n",
		s.K, s.AvgRecall, s.K, s.AvgPrecision, s.K, s.AvgMRR, s.AvgLatency)

	tables := make([]string, 0, len(s.ByTable))
	for t := range s.ByTable {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	rows := make([][]string, 0, len(tables))
	for _, t := range tables {
		ts := s.ByTable[t]
		rows = append(rows, []string{
			t,
			strconv.Itoa(ts.Count),
			strconv.FormatFloat(ts.AvgRecall, 'f', 3, 64),
			strconv.FormatFloat(ts.AvgMRR, 'f', 3, 64),
		})
	}
	return writeTable(w, []string{"TABLE", "QUERIES", "RECALL", "MRR"}, rows)
}
