package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zatekoja/medical-mirrors/internal/application/services"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/downloader"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [sources...]",
	Short: "Parse, validate and upsert downloaded files",
	Long: `Ingest parses every downloaded file of the named sources (all enabled
sources when none are named), validates the records and upserts them by
natural key in batches. A failing batch is rolled back and counted; the
run continues with the next batch.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Int("batch-size", 0, "records committed per transaction")
	ingestCmd.Flags().Int("workers", 0, "parser workers (default: half the cores)")
	_ = viper.BindPFlag("commit_batch_size", ingestCmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("parser_workers", ingestCmd.Flags().Lookup("workers"))

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.Close()

	sources, err := a.sources()
	if err != nil {
		return err
	}
	selected, err := selectSources(sources, args)
	if err != nil {
		return err
	}

	svc := a.ingestion()
	var rows [][]string
	failed := 0
	for _, src := range selected {
		summary, err := svc.IngestSource(cmd.Context(), src, a.cfg.Mirrors.DataDir)
		if err != nil {
			failed++
			log.Error().Err(err).Str("source", src.Name).Msg("ingest failed")
			rows = append(rows, []string{src.Name, src.Table, "-", "-", "-", "-", "-", truncate(err.Error(), 50)})
			continue
		}
		a.invalidateCache(cmd.Context(), src.Table)
		rows = append(rows, ingestRow(summary))
		if cmd.Context().Err() != nil {
			break
		}
	}

	if err := writeTable(cmd.OutOrStdout(),
		[]string{"SOURCE", "TABLE", "FILES", "PARSED", "INVALID", "UPSERTED", "FAILED BATCHES", "ERROR"}, rows); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d source(s) failed to ingest", failed)
	}
	return nil
}

func ingestRow(s *services.IngestSummary) []string {
	return []string{
		s.Source, s.Table, strconv.Itoa(s.Files), strconv.Itoa(s.Parsed), strconv.Itoa(s.Invalid),
		strconv.Itoa(s.Upserted), strconv.Itoa(s.FailedBatches), "",
	}
}

// selectSources returns the named enabled sources in catalog order, or every
// enabled source when names is empty.
func selectSources(sources []downloader.Source, names []string) ([]downloader.Source, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := downloader.Find(sources, n); !ok {
			return nil, fmt.Errorf("unknown source %q", n)
		}
		wanted[n] = true
	}
	var selected []downloader.Source
	for _, src := range sources {
		if src.Disabled {
			continue
		}
		if len(wanted) == 0 || wanted[src.Name] {
			selected = append(selected, src)
		}
	}
	return selected, nil
}
