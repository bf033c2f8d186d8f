package policy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/log"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Publisher is the slice of the event bus the policy engine needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev types.Event) (string, error)
}

// Policy enforces admission control, compliance validation, business rules,
// and circuit breaking for the core.
type Policy struct {
	cfg    config.PolicyConfig
	clock  types.Clock
	logger zerolog.Logger

	pubMu     sync.RWMutex
	publisher Publisher

	admission  *admissionState
	breakers   *breakerTable
	violations *violationRing

	ruleMu sync.RWMutex
	rules  map[string]RuleFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates the policy engine with the built-in rule set registered.
func New(cfg config.PolicyConfig, clock types.Clock) *Policy {
	if clock == nil {
		clock = types.RealClock{}
	}
	p := &Policy{
		cfg:        cfg,
		clock:      clock,
		logger:     log.WithComponent("policy"),
		admission:  newAdmissionState(cfg.Admission, clock),
		violations: newViolationRing(violationCapacity),
		rules:      make(map[string]RuleFunc),
		stopCh:     make(chan struct{}),
	}
	p.breakers = newBreakerTable(p, cfg.Breaker)
	p.registerBuiltinRules()
	return p
}

// SetPublisher wires the event bus in.
func (p *Policy) SetPublisher(pub Publisher) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	p.publisher = pub
}

// Start launches the breaker monitor.
func (p *Policy) Start() {
	p.wg.Add(1)
	go p.runBreakerMonitor()
}

// Stop halts the breaker monitor.
func (p *Policy) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Violations returns the recorded violations, newest first.
func (p *Policy) Violations() []Violation {
	return p.violations.list()
}

// RecordViolation lets other components file a violation, e.g. the state
// manager on a manual-mode write conflict.
func (p *Policy) RecordViolation(kind string, details map[string]any) Violation {
	return p.recordViolation(kind, details)
}

// recordViolation appends to the ledger and publishes the audit event.
func (p *Policy) recordViolation(kind string, details map[string]any) Violation {
	v := p.violations.add(kind, details, p.clock.Now())
	p.emit(types.TopicPolicyViolation, map[string]any{
		"violationId": v.ID,
		"kind":        v.Kind,
		"details":     v.Details,
	}, "", "")
	return v
}

func (p *Policy) emit(topic string, data map[string]any, sagaID, correlationID string) {
	p.pubMu.RLock()
	pub := p.publisher
	p.pubMu.RUnlock()
	if pub == nil {
		return
	}
	ev := types.NewEvent(topic, data).WithSource("policy")
	if sagaID != "" {
		ev = ev.WithSaga(sagaID, correlationID)
	}
	if _, err := pub.Publish(context.Background(), topic, ev); err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("failed to emit policy event")
	}
}

// runBreakerMonitor periodically polls breaker states so open breakers
// move to half-open on schedule rather than lazily on the next call.
func (p *Policy) runBreakerMonitor() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.breakers.poll()
		case <-p.stopCh:
			return
		}
	}
}
