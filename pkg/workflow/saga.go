package workflow

import (
	"time"
)

// SagaStatus is the lifecycle phase of a workflow instance.
type SagaStatus string

const (
	StatusActive    SagaStatus = "active"
	StatusCompleted SagaStatus = "completed"
	StatusFailed    SagaStatus = "failed"
	StatusCancelled SagaStatus = "cancelled"
)

// StateTransition is one stateHistory record.
type StateTransition struct {
	State     string
	Prev      string
	Timestamp time.Time
}

// Saga is one running workflow instance.
type Saga struct {
	ID            string
	CorrelationID string
	Template      string
	CurrentState  string
	History       []StateTransition
	StartTime     time.Time
	EndTime       time.Time
	RetryCount    int
	MaxRetries    int
	Payload       map[string]any
	Status        SagaStatus

	template *Template
	timer    *time.Timer
}

// snapshot returns a caller-safe copy without the internal fields.
func (s *Saga) snapshot() Saga {
	cp := *s
	cp.template = nil
	cp.timer = nil
	cp.History = make([]StateTransition, len(s.History))
	copy(cp.History, s.History)
	return cp
}

// stopTimer disarms the pending state timer, if any.
func (s *Saga) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
