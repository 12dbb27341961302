package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zatekoja/medical-mirrors/internal/application/services"
)

var downloadCmd = &cobra.Command{
	Use:   "download [sources...]",
	Short: "Download sources (all enabled sources when none are named)",
	Long: `Download fetches upstream files into the data directory. Partial files
resume with HTTP range requests, completed files are skipped, and sources
backing off after a failure or a 429 are deferred until their retry time.
Large sources start one after another; small sources share a bounded pool.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().Bool("force-fresh", false, "re-download files already recorded as completed")
	downloadCmd.Flags().Int("max-concurrent", 0, "maximum small sources downloading at once")
	_ = viper.BindPFlag("force_fresh", downloadCmd.Flags().Lookup("force-fresh"))
	_ = viper.BindPFlag("max_concurrent_sources", downloadCmd.Flags().Lookup("max-concurrent"))

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	// Drug class sources need generic names from the database; the rest do not.
	a, err := newApp(cmd.Context(), appOptions{database: wantsDatabase(args)})
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	summary, err := orch.Run(cmd.Context(), args...)
	if err != nil {
		return err
	}

	if err := printRunSummary(cmd, summary); err != nil {
		return err
	}
	failed := 0
	for _, r := range summary.Sources {
		if r.Error != "" && !r.Deferred {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d source(s) failed", failed)
	}
	return nil
}

// wantsDatabase reports whether a download needs the drug repository.
func wantsDatabase(sources []string) bool {
	if len(sources) == 0 {
		return true
	}
	for _, s := range sources {
		if s == "rxclass" {
			return true
		}
	}
	return false
}

func printRunSummary(cmd *cobra.Command, summary *services.RunSummary) error {
	rows := make([][]string, 0, len(summary.Sources))
	for _, r := range summary.Sources {
		status := string(r.Status)
		if r.Deferred {
			status += " (deferred)"
		}
		rows = append(rows, []string{
			r.Source, status,
			strconv.Itoa(r.Downloaded), strconv.Itoa(r.Skipped), strconv.Itoa(r.Failed),
			formatBytes(r.Bytes), truncate(r.Error, 60),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s finished in %s\n\n", summary.RunID, summary.Finished.Sub(summary.Started).Round(time.Millisecond))
	return writeTable(cmd.OutOrStdout(),
		[]string{"SOURCE", "STATUS", "DOWNLOADED", "SKIPPED", "FAILED", "BYTES", "ERROR"}, rows)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
