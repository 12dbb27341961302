package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zatekoja/medical-mirrors/internal/application/services"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-source download progress and retry state",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "print the status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	status := orch.GetStatus(time.Now())

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	return printStatus(cmd, status, time.Now())
}

func printStatus(cmd *cobra.Command, status services.OrchestratorStatus, now time.Time) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d/%d sources complete (%.0f%%)\n", status.CompletedSources, status.TotalSources, status.CompletionPercentage)
	if len(status.ReadyForRetry) > 0 {
		fmt.Fprintf(out, "ready for retry: %s\n", strings.Join(status.ReadyForRetry, ", "))
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(status.Sources))
	for _, s := range status.Sources {
		retry := ""
		if s.RetryAfter != nil {
			retry = "in " + s.RetryAfter.Sub(now).Round(time.Minute).String()
		}
		kind := "small"
		if s.Large {
			kind = "large"
		}
		rows = append(rows, []string{
			s.Source, string(s.Status), kind,
			strconv.FormatInt(s.FilesDownloaded, 10), strconv.FormatInt(s.FilesFailed, 10),
			formatBytes(s.BytesDownloaded), strconv.Itoa(s.RetriesToday), retry, truncate(s.LastError, 50),
		})
	}
	return writeTable(out,
		[]string{"SOURCE", "STATUS", "SIZE", "FILES", "FAILED", "BYTES", "RETRIES", "RETRY", "LAST ERROR"}, rows)
}
