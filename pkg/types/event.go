package types

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the wire version stamped on every event.
const SchemaVersion = "1.0"

// Event is the wire-stable record carried on the event bus. Serialization
// is JSON; field names are fixed and must not change between releases.
type Event struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Data          map[string]any `json:"data"`
	Timestamp     time.Time      `json:"timestamp"`
	SagaID        string         `json:"sagaId,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	SpanID        string         `json:"spanId,omitempty"`
	Source        string         `json:"source,omitempty"`
	Version       string         `json:"version"`
}

// NewEvent builds an event for the given topic with id, span id, timestamp
// and schema version filled in.
func NewEvent(topic string, data map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      topic,
		Data:      data,
		Timestamp: time.Now(),
		SpanID:    uuid.New().String(),
		Version:   SchemaVersion,
	}
}

// WithSaga returns a copy of the event tagged with saga and correlation ids.
func (e Event) WithSaga(sagaID, correlationID string) Event {
	e.SagaID = sagaID
	e.CorrelationID = correlationID
	return e
}

// WithSource returns a copy of the event tagged with the emitting component.
func (e Event) WithSource(source string) Event {
	e.Source = source
	return e
}

// String returns a string value from the event payload, or "" when absent.
func (e Event) String(field string) string {
	if e.Data == nil {
		return ""
	}
	if v, ok := e.Data[field].(string); ok {
		return v
	}
	return ""
}
