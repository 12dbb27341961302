package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
)

// publish sends event to the pipeline channel and, for source events, the
// source's own channel. Publishing is best effort.
func publish(ctx context.Context, bus providers.EventBus, logger zerolog.Logger, event *entities.IngestionEvent) {
	if bus == nil {
		return
	}
	channels := []string{providers.EventChannelIngestion}
	if event.Source != "" {
		channels = append(channels, providers.GetSourceChannel(event.Source))
	}
	for _, channel := range channels {
		if err := bus.Publish(ctx, channel, event); err != nil {
			logger.Warn().Err(err).Str("channel", channel).Str("event_type", string(event.EventType)).Msg("failed to publish event")
		}
	}
}
