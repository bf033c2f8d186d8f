package policy

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// errSlowCall marks a call that succeeded but exceeded the slow-call
// threshold; the breaker counts it as a failure.
var errSlowCall = errors.New("call exceeded slow-call threshold")

// breakerTable lazily creates one circuit breaker per external service.
type breakerTable struct {
	p   *Policy
	cfg config.BreakerConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerTable(p *Policy, cfg config.BreakerConfig) *breakerTable {
	return &breakerTable{
		p:        p,
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (t *breakerTable) get(service string) *gobreaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[service]; ok {
		return cb
	}

	cfg := t.cfg
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: uint32(cfg.HalfOpenSuccesses),
		Interval:    time.Minute,
		Timeout:     cfg.Cooldown.D(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if int(counts.Requests) < cfg.MinCalls {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio > cfg.ErrorRateThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.p.onBreakerStateChange(name, from, to)
		},
	})
	t.breakers[service] = cb
	return cb
}

// poll touches every breaker's state so open breakers transition to
// half-open when their cooldown elapses.
func (t *breakerTable) poll() {
	t.mu.Lock()
	cbs := make([]*gobreaker.CircuitBreaker, 0, len(t.breakers))
	for _, cb := range t.breakers {
		cbs = append(cbs, cb)
	}
	t.mu.Unlock()

	for _, cb := range cbs {
		_ = cb.State()
	}
}

func (t *breakerTable) states() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.breakers))
	for name, cb := range t.breakers {
		out[name] = cb.State().String()
	}
	return out
}

// Do runs fn through the named service's circuit breaker. A successful call
// slower than the slow-call threshold (the probe timeout while half-open)
// still counts as a failure. An open breaker rejects immediately.
func (p *Policy) Do(service string, fn func() error) error {
	cb := p.breakers.get(service)

	slowLimit := p.cfg.Breaker.SlowCallThreshold.D()
	if cb.State() == gobreaker.StateHalfOpen {
		slowLimit = p.cfg.Breaker.ProbeTimeout.D()
	}

	_, err := cb.Execute(func() (any, error) {
		start := p.clock.Now()
		callErr := fn()
		if callErr == nil && slowLimit > 0 && p.clock.Since(start) > slowLimit {
			return nil, errSlowCall
		}
		return nil, callErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.Wrap(types.KindResourceExhausted, "policy.breaker", "circuit open for "+service, err)
	}
	return err
}

// Allow reports whether calls to the service may proceed right now.
func (p *Policy) Allow(service string) bool {
	return p.breakers.get(service).State() != gobreaker.StateOpen
}

// BreakerStates returns the current state per known service.
func (p *Policy) BreakerStates() map[string]string {
	return p.breakers.states()
}

func (p *Policy) onBreakerStateChange(service string, from, to gobreaker.State) {
	p.logger.Info().
		Str("service", service).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("circuit breaker state change")

	switch to {
	case gobreaker.StateOpen:
		p.recordViolation("circuit_opened", map[string]any{"service": service})
		p.emit(types.TopicBreakerOpened, map[string]any{
			"service": service,
			"from":    from.String(),
		}, "", "")
	case gobreaker.StateClosed:
		p.emit(types.TopicBreakerClosed, map[string]any{
			"service": service,
			"from":    from.String(),
		}, "", "")
	}
}
