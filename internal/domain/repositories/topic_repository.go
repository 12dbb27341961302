package repositories

import (
	"context"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// TopicRepository reads health topics and stores their cross references.
type TopicRepository interface {
	// ListTopics pages topics by id after the given id. With pendingOnly,
	// topics that already carry a cross reference are skipped.
	ListTopics(ctx context.Context, after string, limit int, pendingOnly bool) ([]*entities.HealthTopic, error)
	SaveCrossReference(ctx context.Context, ref *entities.CrossReference) error
}
