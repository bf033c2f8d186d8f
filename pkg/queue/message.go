package queue

import (
	"time"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Message is one unit of queued work. A message lives in exactly one place
// at a time: the pending list or the processing map, never both.
type Message struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Payload       map[string]any    `json:"payload"`
	Priority      types.Priority    `json:"priority"`
	SagaID        string            `json:"sagaId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	EnqueuedAt    time.Time         `json:"enqueuedAt"`
	Attempts      int               `json:"attempts"`
	MaxAttempts   int               `json:"maxAttempts"`
	ErrorHistory  []string          `json:"errorHistory,omitempty"`
	DelayUntil    time.Time         `json:"delayUntil,omitempty"`
	TTLDeadline   time.Time         `json:"ttlDeadline,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Stamped on dead-letter moves.
	DeadLetteredAt time.Time `json:"deadLetteredAt,omitempty"`
	OriginalQueue  string    `json:"originalQueue,omitempty"`
}

// ready reports whether the message may dispatch as of now.
func (m *Message) ready(now time.Time) bool {
	return m.DelayUntil.IsZero() || !now.Before(m.DelayUntil)
}

// ttlExpired reports whether the message outlived its TTL deadline.
func (m *Message) ttlExpired(now time.Time) bool {
	return !m.TTLDeadline.IsZero() && m.TTLDeadline.Before(now)
}

// EnqueueOptions tunes one Enqueue call.
type EnqueueOptions struct {
	// Priority overrides the queue's configured priority class.
	Priority types.Priority
	// Delay holds the message back from dispatch for the given duration.
	Delay time.Duration
	// TTL discards the message silently if it is still pending after the
	// given duration.
	TTL time.Duration
	// SagaID and CorrelationID tie the message to its saga.
	SagaID        string
	CorrelationID string
	Metadata      map[string]string
}

// Status is a point-in-time snapshot of one queue.
type Status struct {
	Name          string
	Priority      types.Priority
	Depth         int
	Processing    int
	MaxSize       int
	Paused        bool
	DeadLetter    bool
	Enqueued      uint64
	Processed     uint64
	Failed        uint64
	Retries       uint64
	DeadLettered  uint64
	Expired       uint64
	RateLimitHits uint64
	AvgProcessing time.Duration
	AvgWait       time.Duration
}
