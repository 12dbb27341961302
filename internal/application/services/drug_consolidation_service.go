package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
	"github.com/zatekoja/medical-mirrors/pkg/utils"
)

// DefaultConsolidationBatchSize is the number of groups committed per transaction.
const DefaultConsolidationBatchSize = 1000

// ConsolidationSummary reports one consolidation run.
type ConsolidationSummary struct {
	Groups       int `json:"groups"`
	Consolidated int `json:"consolidated"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
	Batches      int `json:"batches"`
}

// DrugConsolidationService merges raw drug rows into one row per generic name.
type DrugConsolidationService struct {
	drugs     repositories.DrugRepository
	events    providers.EventBus
	metrics   *observability.Metrics
	batchSize int
	logger    zerolog.Logger
}

// NewDrugConsolidationService creates a consolidation service. events and
// metrics may be nil.
func NewDrugConsolidationService(
	drugs repositories.DrugRepository,
	events providers.EventBus,
	metrics *observability.Metrics,
	batchSize int,
) *DrugConsolidationService {
	if batchSize <= 0 {
		batchSize = DefaultConsolidationBatchSize
	}
	return &DrugConsolidationService{
		drugs:     drugs,
		events:    events,
		metrics:   metrics,
		batchSize: batchSize,
		logger:    observability.Component("consolidation"),
	}
}

// groupNames maps each normalized key to the raw names that produce it.
func groupNames(names []string) (map[string][]string, []string) {
	groups := make(map[string][]string)
	for _, name := range names {
		key := utils.NormalizeGenericName(name)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], name)
	}
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return groups, keys
}

// Consolidate merges every group. Groups that already have a consolidated
// row are skipped unless force is set. A failing group or batch is logged and
// counted; the run continues.
func (s *DrugConsolidationService) Consolidate(ctx context.Context, force bool) (*ConsolidationSummary, error) {
	names, err := s.drugs.ListGenericNames(ctx)
	if err != nil {
		return nil, err
	}
	groups, keys := groupNames(names)
	summary := &ConsolidationSummary{Groups: len(keys)}
	s.logger.Info().Int("raw_names", len(names)).Int("groups", len(keys)).Bool("force", force).Msg("consolidation started")

	for start := 0; start < len(keys); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		batch := keys[start:min(start+s.batchSize, len(keys))]
		s.consolidateBatch(ctx, batch, groups, force, summary)
		summary.Batches++
	}

	s.logger.Info().
		Int("groups", summary.Groups).
		Int("consolidated", summary.Consolidated).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("consolidation finished")
	publish(ctx, s.events, s.logger, entities.NewIngestionEvent("", "", entities.IngestionEventConsolidated, map[string]any{
		"table":        entities.TableConsolidatedDrugs,
		"groups":       summary.Groups,
		"consolidated": summary.Consolidated,
		"failed":       summary.Failed,
	}))
	return summary, nil
}

func (s *DrugConsolidationService) consolidateBatch(ctx context.Context, keys []string, groups map[string][]string, force bool, summary *ConsolidationSummary) {
	pending := keys
	if !force {
		existing, err := s.drugs.ExistingConsolidated(ctx, keys)
		if err != nil {
			s.logger.Error().Err(err).Str("group", keys[0]).Msg("failed to check existing consolidated drugs")
			summary.Failed += len(keys)
			return
		}
		pending = make([]string, 0, len(keys))
		for _, key := range keys {
			if existing[key] {
				summary.Skipped++
				continue
			}
			pending = append(pending, key)
		}
	}
	if len(pending) == 0 {
		return
	}

	var rawNames []string
	for _, key := range pending {
		rawNames = append(rawNames, groups[key]...)
	}
	rows, err := s.drugs.GetRowsByGenericNames(ctx, rawNames)
	if err != nil {
		s.logger.Error().Err(err).Str("group", pending[0]).Msg("failed to load drug rows")
		summary.Failed += len(pending)
		return
	}
	byKey := make(map[string][]*entities.DrugInformation, len(pending))
	for _, row := range rows {
		key := utils.NormalizeGenericName(row.GenericName)
		byKey[key] = append(byKey[key], row)
	}

	merged := make([]*entities.ConsolidatedDrug, 0, len(pending))
	for _, key := range pending {
		drug, err := safeMerge(key, byKey[key])
		if err != nil {
			s.logger.Warn().Err(err).Str("group", key).Msg("failed to consolidate group")
			summary.Failed++
			continue
		}
		merged = append(merged, drug)
	}
	if len(merged) == 0 {
		return
	}
	if err := s.drugs.UpsertConsolidated(ctx, merged); err != nil {
		s.logger.Error().Err(err).Int("groups", len(merged)).Msg("failed to commit consolidation batch")
		summary.Failed += len(merged)
		return
	}
	summary.Consolidated += len(merged)
	if s.metrics != nil {
		observability.Add(ctx, s.metrics.GroupsConsolidated, int64(len(merged)), "table", entities.TableConsolidatedDrugs)
	}
}

func safeMerge(key string, rows []*entities.DrugInformation) (drug *entities.ConsolidatedDrug, err error) {
	if len(rows) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no drug rows for %q", key))
	}
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewInternalError(fmt.Sprintf("merge of %q panicked: %v", key, r), nil)
		}
	}()
	return MergeDrugGroup(key, rows), nil
}

// RecomputeConfidence rescores every consolidated drug in place without
// touching merged content. It returns the number of rows whose score changed.
func (s *DrugConsolidationService) RecomputeConfidence(ctx context.Context) (int, error) {
	updated, after := 0, ""
	for {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		page, err := s.drugs.ListConsolidated(ctx, after, s.batchSize)
		if err != nil {
			return updated, err
		}
		if len(page) == 0 {
			break
		}

		var updates []repositories.ScoreUpdate
		for _, d := range page {
			score, hasClinical := ConfidenceScore(d), HasClinicalData(d)
			if math.Abs(score-d.ConfidenceScore) < 1e-9 && hasClinical == d.HasClinicalData {
				continue
			}
			updates = append(updates, repositories.ScoreUpdate{
				GenericName:     d.GenericName,
				ConfidenceScore: score,
				HasClinicalData: hasClinical,
			})
		}
		if err := s.drugs.UpdateScores(ctx, updates); err != nil {
			return updated, err
		}
		updated += len(updates)
		after = page[len(page)-1].GenericName
		if len(page) < s.batchSize {
			break
		}
	}
	s.logger.Info().Int("updated", updated).Msg("confidence scores recomputed")
	return updated, nil
}
