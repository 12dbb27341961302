package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	redisclient "github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/redis"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

// subscriberBuffer is how many events a slow subscriber may lag before drops.
const subscriberBuffer = 100

// RedisEventBus fans ingestion events out over Redis Pub/Sub. One Redis
// subscription per channel is shared by every local subscriber of it.
type RedisEventBus struct {
	client *redisclient.Client
	logger zerolog.Logger

	mu   sync.RWMutex
	hubs map[string]*hub

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client: client,
		logger: observability.Component("event_bus"),
		hubs:   make(map[string]*hub),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Publish sends event to channel. Delivery is fire-and-forget: an event
// published while nobody listens is gone.
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.IngestionEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}

	receivers, err := b.client.Client().Publish(ctx, channel, payload).Result()
	if err != nil {
		return apperrors.NewExternalError("failed to publish event to "+channel, err)
	}

	b.logger.Debug().
		Str("channel", channel).
		Str("event_id", event.ID).
		Str("event_type", string(event.EventType)).
		Int64("receivers", receivers).
		Msg("published event")
	return nil
}

// Subscribe returns a stream of events on channel. The stream closes when
// ctx is cancelled, the channel is unsubscribed or the bus is closed.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.IngestionEvent, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, apperrors.NewInternalError("event bus is closed", err)
	}

	b.mu.Lock()
	h, ok := b.hubs[channel]
	if !ok {
		h = newHub(b.client.Client().Subscribe(b.ctx, channel))
		b.hubs[channel] = h
		go b.receive(channel, h)
	}
	stream := h.add()
	count := h.size()
	b.mu.Unlock()

	b.logger.Debug().Str("channel", channel).Int("subscribers", count).Msg("subscribed")

	go func() {
		select {
		case <-ctx.Done():
		case <-b.ctx.Done():
		}
		b.leave(channel, stream)
	}()

	return stream, nil
}

// receive pumps one Redis subscription into its hub until the
// subscription or the bus shuts down.
func (b *RedisEventBus) receive(channel string, h *hub) {
	defer func() {
		if err := b.drop(channel, h); err != nil {
			b.logger.Error().Err(err).Str("channel", channel).Msg("failed to clean up channel")
		}
	}()

	messages := h.pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			event, err := decodeEvent(msg.Payload)
			if err != nil {
				b.logger.Warn().Err(err).Str("channel", channel).Msg("discarding malformed event")
				continue
			}

			b.mu.RLock()
			dropped := h.broadcast(event)
			b.mu.RUnlock()
			if dropped > 0 {
				b.logger.Warn().
					Str("channel", channel).
					Str("event_id", event.ID).
					Int("dropped", dropped).
					Msg("subscriber lagging, event dropped")
			}
		}
	}
}

// leave detaches one subscriber, releasing the Redis subscription with the last one.
func (b *RedisEventBus) leave(channel string, stream chan *entities.IngestionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.hubs[channel]
	if !ok || !h.remove(stream) || h.size() > 0 {
		return
	}
	delete(b.hubs, channel)
	if err := h.close(); err != nil {
		b.logger.Warn().Err(err).Str("channel", channel).Msg("failed to release subscription")
	}
}

// drop tears down h if it is still the live hub for channel.
func (b *RedisEventBus) drop(channel string, h *hub) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hubs[channel] != h {
		return nil
	}
	delete(b.hubs, channel)
	if err := h.close(); err != nil {
		return apperrors.NewExternalError("failed to close subscription "+channel, err)
	}
	return nil
}

// Unsubscribe closes every local stream on channel and its Redis subscription.
func (b *RedisEventBus) Unsubscribe(_ context.Context, channel string) error {
	b.mu.RLock()
	h := b.hubs[channel]
	b.mu.RUnlock()
	if h == nil {
		return nil
	}
	return b.drop(channel, h)
}

// Close closes the event bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for channel, h := range b.hubs {
		if err := h.close(); err != nil {
			errs = append(errs, apperrors.NewExternalError("failed to close subscription "+channel, err))
		}
	}
	b.hubs = make(map[string]*hub)
	return errors.Join(errs...)
}

// hub is the local fan-out for one channel. Callers hold the bus lock.
type hub struct {
	pubsub      *redis.PubSub
	subscribers map[chan *entities.IngestionEvent]struct{}
}

func newHub(pubsub *redis.PubSub) *hub {
	return &hub{pubsub: pubsub, subscribers: make(map[chan *entities.IngestionEvent]struct{})}
}

func (h *hub) add() chan *entities.IngestionEvent {
	stream := make(chan *entities.IngestionEvent, subscriberBuffer)
	h.subscribers[stream] = struct{}{}
	return stream
}

func (h *hub) size() int { return len(h.subscribers) }

// remove closes stream and reports whether it was attached.
func (h *hub) remove(stream chan *entities.IngestionEvent) bool {
	if _, ok := h.subscribers[stream]; !ok {
		return false
	}
	delete(h.subscribers, stream)
	close(stream)
	return true
}

// broadcast hands event to every subscriber without blocking and returns
// how many were full.
func (h *hub) broadcast(event *entities.IngestionEvent) int {
	dropped := 0
	for stream := range h.subscribers {
		select {
		case stream <- event:
		default:
			dropped++
		}
	}
	return dropped
}

// close detaches every subscriber and releases the Redis subscription.
func (h *hub) close() error {
	for stream := range h.subscribers {
		h.remove(stream)
	}
	if h.pubsub == nil {
		return nil
	}
	return h.pubsub.Close()
}

func encodeEvent(event *entities.IngestionEvent) ([]byte, error) {
	if event == nil || event.EventType == "" {
		return nil, apperrors.NewValidationError("event requires an event type")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to marshal event", err)
	}
	return payload, nil
}

func decodeEvent(payload string) (*entities.IngestionEvent, error) {
	var event entities.IngestionEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, apperrors.NewParseError("failed to unmarshal event", err)
	}
	if event.EventType == "" {
		return nil, apperrors.NewParseError("event has no event type", nil)
	}
	return &event, nil
}
