package entities

import (
	"time"

	"github.com/google/uuid"
)

// IngestionEventType represents a pipeline progress transition
type IngestionEventType string

const (
	IngestionEventSourceStarted   IngestionEventType = "source_started"
	IngestionEventSourceCompleted IngestionEventType = "source_completed"
	IngestionEventSourceFailed    IngestionEventType = "source_failed"
	IngestionEventSourceDeferred  IngestionEventType = "source_deferred"
	IngestionEventIngestCompleted IngestionEventType = "ingest_completed"
	IngestionEventConsolidated    IngestionEventType = "consolidation_completed"
)

// IngestionEvent is published on the event bus as sources progress.
type IngestionEvent struct {
	ID        string             `json:"id"`
	RunID     string             `json:"run_id"`
	Source    string             `json:"source"`
	EventType IngestionEventType `json:"event_type"`
	Timestamp time.Time          `json:"timestamp"`
	Details   map[string]any     `json:"details,omitempty"`
}

// NewIngestionEvent creates a new ingestion event
func NewIngestionEvent(runID, source string, eventType IngestionEventType, details map[string]any) *IngestionEvent {
	return &IngestionEvent{
		ID:        uuid.NewString(),
		RunID:     runID,
		Source:    source,
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}
