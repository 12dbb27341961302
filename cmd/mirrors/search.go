package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

var searchCmd = &cobra.Command{
	Use:   "search <table> <query...>",
	Short: "Full-text search one table",
	Long: `Search runs a ranked full-text query against one table. Filters are
column=value pairs; prefix the column with min_ or max_ for an inclusive
range bound, e.g. --filter min_enrollment=100.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int("limit", entities.DefaultSearchResults, "maximum results (at most 50)")
	searchCmd.Flags().StringArray("filter", nil, "column=value filter, repeatable")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetStringArray("filter")
	filters, err := parseFilters(raw)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := newApp(cmd.Context(), appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.search().Search(cmd.Context(), entities.SearchQuery{
		Table:      args[0],
		Query:      strings.Join(args[1:], " "),
		Filters:    filters,
		MaxResults: limit,
	})
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.ID, strconv.FormatFloat(r.Rank, 'f', 4, 64), truncate(r.Title, 80)})
	}
	return writeTable(cmd.OutOrStdout(), []string{"ID", "RANK", "TITLE"}, rows)
}

func parseFilters(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(raw))
	for _, f := range raw {
		column, value, ok := strings.Cut(f, "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return nil, fmt.Errorf("filter %q must look like column=value", f)
		}
		filters[column] = strings.TrimSpace(value)
	}
	return filters, nil
}
