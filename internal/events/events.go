package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/walink/internal/models"
)

// ClickRecordedV1 is the event type and routing key of recorded clicks
const ClickRecordedV1 = "clicks.recorded.v1"

// Producer identifies walink in event metadata
const Producer = "walink"

// Publisher delivers click events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, event ClickRecorded) error
	Close() error
}

// Meta describes an emitted event
type Meta struct {
	// Trace / request correlation ID
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID string `json:"id"`
	// Emitting service
	Producer *string `json:"producer,omitempty"`
	// Timestamp when the event was emitted
	Time time.Time `json:"time"`
	// Event name and version, e.g. clicks.recorded.v1
	Type string `json:"type"`
}

// Envelope wraps event data with its metadata
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// ClickRecorded is the payload published after a click was routed
type ClickRecorded struct {
	Click     models.ClickEvent `json:"click"`
	GroupSlug string            `json:"groupSlug"`
	AgentName string            `json:"agentName"`
	URL       string            `json:"url"`
	RequestID string            `json:"-"`
}

// NewEnvelope builds the envelope of a click event. The request id, when
// present, becomes the correlation id.
func NewEnvelope(event ClickRecorded, now time.Time) Envelope {
	producer := Producer
	meta := Meta{
		ID:       uuid.NewString(),
		Producer: &producer,
		Time:     now.UTC(),
		Type:     ClickRecordedV1,
	}
	if event.RequestID != "" {
		cid := event.RequestID
		meta.CorrelationID = &cid
	}
	return Envelope{Meta: meta, Data: event}
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(ctx context.Context, event ClickRecorded) error { return nil }

func (Nop) Close() error { return nil }
