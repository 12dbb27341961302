package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

// TopicAdapter implements TopicRepository
type TopicAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewTopicAdapter creates a new topic adapter
func NewTopicAdapter(client *postgres.Client) repositories.TopicRepository {
	return &TopicAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ListTopics pages health topics by topic_id.
func (a *TopicAdapter) ListTopics(ctx context.Context, after string, limit int, pendingOnly bool) ([]*entities.HealthTopic, error) {
	if limit <= 0 {
		limit = 100
	}
	ds := a.db.From(entities.TableHealthTopics).
		Select("topic_id", "title", "category", "url", "summary", "keywords", "last_updated").
		Where(goqu.C("topic_id").Gt(after)).
		Order(goqu.C("topic_id").Asc()).
		Limit(uint(limit))
	if pendingOnly {
		ds = ds.Where(goqu.C("enhanced_at").IsNull())
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list health topics", err)
	}
	defer rows.Close()

	var topics []*entities.HealthTopic
	for rows.Next() {
		var (
			t                                   entities.HealthTopic
			category, url, summary, lastUpdated sql.NullString
		)
		if err := rows.Scan(&t.TopicID, &t.Title, &category, &url, &summary, pq.Array(&t.Keywords), &lastUpdated); err != nil {
			return nil, apperrors.NewInternalError("failed to scan health topic", err)
		}
		t.Category = category.String
		t.URL = url.String
		t.Summary = summary.String
		t.LastUpdated = lastUpdated.String
		topics = append(topics, &t)
	}
	return topics, rows.Err()
}

// SaveCrossReference stores ref on its topic row.
func (a *TopicAdapter) SaveCrossReference(ctx context.Context, ref *entities.CrossReference) error {
	if ref == nil || ref.TopicID == "" {
		return apperrors.NewValidationError("cross reference topic id is required")
	}
	record := goqu.Record{
		"search_terms":          pq.Array(nonNilStrings(ref.SearchTerms)),
		"medical_entities":      pq.Array(nonNilStrings(ref.MedicalEntities)),
		"related_drugs":         relatedJSON(ref.RelatedDrugs),
		"related_trials":        relatedJSON(ref.RelatedTrials),
		"related_papers":        relatedJSON(ref.RelatedPapers),
		"related_foods":         relatedJSON(ref.RelatedFoods),
		"related_exercises":     relatedJSON(ref.RelatedExercises),
		"monitoring_parameters": pq.Array(nonNilStrings(ref.MonitoringParameters)),
		"patient_resources":     pq.Array(nonNilStrings(ref.PatientResources)),
		"provider_notes":        nullString(ref.ProviderNotes),
		"evidence_level":        string(ref.EvidenceLevel),
		"enhanced_at":           ref.EnhancedAt,
		"updated_at":            goqu.L("NOW()"),
	}
	query, args, err := a.db.Update(entities.TableHealthTopics).
		Set(record).
		Where(goqu.Ex{"topic_id": ref.TopicID}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewPersistenceError("failed to save cross reference", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("health topic with topic_id %s not found", ref.TopicID))
	}
	return nil
}

func relatedJSON(items []entities.RelatedItem) string {
	if items == nil {
		items = []entities.RelatedItem{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}
