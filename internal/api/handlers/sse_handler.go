package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
)

const defaultHeartbeat = 30 * time.Second

// SSEHandler streams pipeline progress events as Server-Sent Events
type SSEHandler struct {
	eventBus  providers.EventBus
	heartbeat time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	clients int
}

// NewSSEHandler creates a new SSE handler. A zero heartbeat uses 30s.
func NewSSEHandler(eventBus providers.EventBus, heartbeat time.Duration) *SSEHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &SSEHandler{
		eventBus:  eventBus,
		heartbeat: heartbeat,
		logger:    observability.Component("sse"),
	}
}

// StreamIngestion handles GET /api/stream/ingestion?type=...
func (h *SSEHandler) StreamIngestion(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, providers.EventChannelIngestion, map[string]interface{}{})
}

// StreamSource handles GET /api/stream/sources/{source}?type=...
func (h *SSEHandler) StreamSource(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	if source == "" {
		respondWithError(w, http.StatusBadRequest, "source is required")
		return
	}
	h.stream(w, r, providers.GetSourceChannel(source), map[string]interface{}{"source": source})
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, channel string, hello map[string]interface{}) {
	if h.eventBus == nil {
		respondWithError(w, http.StatusServiceUnavailable, "event streaming is not configured")
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	events, err := h.eventBus.Subscribe(r.Context(), channel)
	if err != nil {
		h.logger.Error().Err(err).Str("channel", channel).Msg("failed to subscribe")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	wanted := eventTypes(r.URL.Query().Get("type"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.track(1)
	defer h.track(-1)

	hello["channel"] = channel
	hello["timestamp"] = time.Now().UTC()
	if err := h.send(w, rc, "connected", hello); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := h.send(w, rc, "heartbeat", map[string]interface{}{"timestamp": time.Now().UTC()}); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if event == nil || (len(wanted) > 0 && !wanted[event.EventType]) {
				continue
			}
			if err := h.send(w, rc, string(event.EventType), event); err != nil {
				return
			}
		}
	}
}

func (h *SSEHandler) send(w http.ResponseWriter, rc *http.ResponseController, eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event")
		return nil
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	return rc.Flush()
}

func (h *SSEHandler) track(delta int) {
	h.mu.Lock()
	h.clients += delta
	n := h.clients
	h.mu.Unlock()
	h.logger.Debug().Int("clients", n).Msg("stream clients changed")
}

// ClientCount returns the number of open streams
func (h *SSEHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

// eventTypes parses a comma separated type filter; empty means all types.
func eventTypes(raw string) map[entities.IngestionEventType]bool {
	types := make(map[entities.IngestionEventType]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[entities.IngestionEventType(t)] = true
		}
	}
	return types
}
