package providers

import (
	"context"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// EventBus publishes and fans out ingestion progress events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.IngestionEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.IngestionEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelIngestion carries every pipeline event
	EventChannelIngestion = "mirrors:ingestion"

	// EventChannelSourcePrefix is the prefix for per-source channels
	EventChannelSourcePrefix = "mirrors:source:"
)

// GetSourceChannel returns the channel name for a specific source
func GetSourceChannel(source string) string {
	return EventChannelSourcePrefix + source
}
