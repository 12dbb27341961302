package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/downloader"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
	"github.com/zatekoja/medical-mirrors/internal/parser"
	"github.com/zatekoja/medical-mirrors/internal/validation"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

// DefaultCommitBatchSize is the number of records validated and upserted per transaction.
const DefaultCommitBatchSize = 1000

// maxReportedFailures bounds the failed ids kept in a summary.
const maxReportedFailures = 100

// IngestSummary reports one ingest of a source's files.
type IngestSummary struct {
	Source        string   `json:"source"`
	Table         string   `json:"table"`
	Files         int      `json:"files"`
	Parsed        int      `json:"parsed"`
	Skipped       int      `json:"skipped"`
	ParseFailures int      `json:"parse_failures"`
	Invalid       int      `json:"invalid"`
	Upserted      int      `json:"upserted"`
	FailedBatches int      `json:"failed_batches"`
	FailedIDs     []string `json:"failed_ids,omitempty"`
}

// IngestionService turns downloaded files into stored rows: parse, validate,
// then upsert in bounded batches.
type IngestionService struct {
	pool      *parser.Pool
	validator *validation.Validator
	records   repositories.RecordRepository
	drugs     repositories.DrugRepository
	events    providers.EventBus
	metrics   *observability.Metrics
	batchSize int
	logger    zerolog.Logger
}

// NewIngestionService creates an ingestion service. drugs is only needed for
// drug class sources; events and metrics may be nil.
func NewIngestionService(
	pool *parser.Pool,
	validator *validation.Validator,
	records repositories.RecordRepository,
	drugs repositories.DrugRepository,
	events providers.EventBus,
	metrics *observability.Metrics,
	batchSize int,
) *IngestionService {
	if batchSize <= 0 {
		batchSize = DefaultCommitBatchSize
	}
	return &IngestionService{
		pool:      pool,
		validator: validator,
		records:   records,
		drugs:     drugs,
		events:    events,
		metrics:   metrics,
		batchSize: batchSize,
		logger:    observability.Component("ingestion"),
	}
}

// SourceFiles lists the completed files of src under dataDir, sorted.
// Partial downloads are never returned.
func SourceFiles(src downloader.Source, dataDir string) ([]string, error) {
	entries, err := os.ReadDir(src.Dir(dataDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("list source files", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(src.Dir(dataDir), e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// IngestSource ingests every downloaded file of src.
func (s *IngestionService) IngestSource(ctx context.Context, src downloader.Source, dataDir string) (*IngestSummary, error) {
	paths, err := SourceFiles(src, dataDir)
	if err != nil {
		return nil, err
	}
	summary, err := s.IngestFiles(ctx, src.Format, src.Table, paths)
	if summary != nil {
		summary.Source = src.Name
		publish(ctx, s.events, s.logger, entities.NewIngestionEvent("", src.Name, entities.IngestionEventIngestCompleted, map[string]any{
			"table":    summary.Table,
			"parsed":   summary.Parsed,
			"upserted": summary.Upserted,
			"invalid":  summary.Invalid,
		}))
	}
	return summary, err
}

// IngestFiles parses paths with format and stores the records in table.
func (s *IngestionService) IngestFiles(ctx context.Context, format, table string, paths []string) (*IngestSummary, error) {
	ctx, span := observability.StartSpan(ctx, "ingestion.IngestFiles",
		attribute.String("format", format), attribute.String("table", table))
	defer span.End()

	summary := &IngestSummary{Table: table, Files: len(paths)}
	logger := s.logger.With().Str("format", format).Str("table", table).Logger()
	if len(paths) == 0 {
		logger.Warn().Msg("no files to ingest")
		return summary, nil
	}

	result, err := s.pool.ParseFiles(ctx, format, paths)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	summary.Parsed = len(result.Records)
	summary.Skipped = result.Skipped
	summary.ParseFailures = len(result.Failures)
	for _, f := range result.Failures {
		logger.Error().Err(f.Err).Str("file", f.Unit).Msg("parse unit failed")
	}
	s.count(ctx, func(m *observability.Metrics) metric.Int64Counter { return m.RecordsParsed }, summary.Parsed, table)
	s.count(ctx, func(m *observability.Metrics) metric.Int64Counter { return m.RecordsSkipped }, summary.Skipped, table)
	s.count(ctx, func(m *observability.Metrics) metric.Int64Counter { return m.ParseFailures }, summary.ParseFailures, table)

	if table == entities.TableDrugClasses {
		err = s.applyDrugClasses(ctx, result.Records, summary)
	} else {
		err = s.store(ctx, table, result.Records, summary, logger)
	}
	if err != nil {
		observability.RecordError(span, err)
		return summary, err
	}

	logger.Info().
		Int("files", summary.Files).
		Int("parsed", summary.Parsed).
		Int("skipped", summary.Skipped).
		Int("parse_failures", summary.ParseFailures).
		Int("invalid", summary.Invalid).
		Int("upserted", summary.Upserted).
		Int("failed_batches", summary.FailedBatches).
		Dur("parse_duration", result.Duration).
		Msg("ingest finished")
	return summary, nil
}

// store validates and upserts records batch by batch. A failed batch rolls
// back alone and the remaining batches still run.
func (s *IngestionService) store(ctx context.Context, table string, records []entities.Record, summary *IngestSummary, logger zerolog.Logger) error {
	for start := 0; start < len(records); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := records[start:min(start+s.batchSize, len(records))]
		rows, failed := s.validator.BatchValidate(batch, table)
		summary.Invalid += len(failed)
		summary.addFailedIDs(failed)
		s.count(ctx, func(m *observability.Metrics) metric.Int64Counter { return m.ValidationFailures }, len(failed), table)
		if len(rows) == 0 {
			continue
		}

		n, err := s.records.UpsertRows(ctx, table, rows)
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeValidation) {
				return err
			}
			logger.Error().Err(err).Int("batch_start", start).Int("rows", len(rows)).Msg("batch upsert failed")
			summary.FailedBatches++
			continue
		}
		summary.Upserted += n
		s.count(ctx, func(m *observability.Metrics) metric.Int64Counter { return m.RowsUpserted }, n, table)
	}
	return nil
}

// applyDrugClasses picks one class per drug, preferring the better ranked
// class type and then the first seen, and fills empty therapeutic classes.
func (s *IngestionService) applyDrugClasses(ctx context.Context, records []entities.Record, summary *IngestSummary) error {
	if s.drugs == nil {
		return apperrors.NewValidationError("drug class ingest needs a drug repository")
	}
	best := map[string]*entities.DrugClass{}
	for _, rec := range records {
		c, ok := rec.(*entities.DrugClass)
		if !ok || c.GenericName == "" || c.ClassName == "" {
			summary.Invalid++
			continue
		}
		name := strings.ToLower(strings.TrimSpace(c.GenericName))
		if cur, seen := best[name]; !seen || parser.ClassRank(c.ClassType) < parser.ClassRank(cur.ClassType) {
			best[name] = c
		}
	}
	classes := make(map[string]string, len(best))
	for name, c := range best {
		classes[name] = c.ClassName
	}
	n, err := s.drugs.ApplyDrugClasses(ctx, classes)
	if err != nil {
		return err
	}
	summary.Upserted = n
	s.count(ctx, func(m *observability.Metrics) metric.Int64Counter { return m.RowsUpserted }, n, entities.TableDrugInformation)
	return nil
}

func (s *IngestSummary) addFailedIDs(ids []string) {
	room := maxReportedFailures - len(s.FailedIDs)
	if room <= 0 {
		return
	}
	if len(ids) > room {
		ids = ids[:room]
	}
	s.FailedIDs = append(s.FailedIDs, ids...)
}

func (s *IngestionService) count(ctx context.Context, pick func(m *observability.Metrics) metric.Int64Counter, n int, table string) {
	if s.metrics == nil {
		return
	}
	observability.Add(ctx, pick(s.metrics), int64(n), "table", table)
}

// String renders a one-line summary for CLI output.
func (s *IngestSummary) String() string {
	return fmt.Sprintf("%s → %s: %d files, %d parsed, %d skipped, %d invalid, %d upserted, %d parse failures, %d failed batches",
		s.Source, s.Table, s.Files, s.Parsed, s.Skipped, s.Invalid, s.Upserted, s.ParseFailures, s.FailedBatches)
}
