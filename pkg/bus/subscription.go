package bus

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// subscription binds a handler to a topic. Delivery runs on per-saga lanes:
// one goroutine and one bounded channel per (subscription, sagaId), which
// is what carries the FIFO-per-saga ordering guarantee. Events for
// different sagas flow through different lanes and may interleave freely.
type subscription struct {
	id      string
	topic   string
	handler Handler
	retry   bool
	bus     *EventBus

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
}

type lane struct {
	ch chan types.Event
}

func newSubscription(b *EventBus, topicName string, handler Handler, opts Options) *subscription {
	return &subscription{
		id:      uuid.New().String(),
		topic:   topicName,
		handler: handler,
		retry:   opts.Retry,
		bus:     b,
		lanes:   make(map[string]*lane),
	}
}

// dispatch enqueues the event on the saga's lane, creating the lane on
// first use. When a lane is over its high-water mark the event is routed to
// the DLQ instead of buffering without bound. The send happens under s.mu:
// the idle reaper also takes s.mu before its empty check, so a lane can
// never be reclaimed between the lookup and the send.
func (s *subscription) dispatch(ev types.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	key := ev.SagaID
	l, ok := s.lanes[key]
	if !ok {
		l = &lane{ch: make(chan types.Event, s.bus.cfg.LaneHighWater)}
		s.lanes[key] = l
		s.bus.wg.Add(1)
		go s.runLane(key, l)
	}

	overflow := false
	select {
	case l.ch <- ev:
	default:
		overflow = true
	}
	s.mu.Unlock()

	if overflow {
		s.bus.stats.mu.Lock()
		s.bus.stats.laneOverflow++
		s.bus.stats.mu.Unlock()
		s.bus.deadLetter(s, ev, types.E(types.KindResourceExhausted, "bus.dispatch",
			"subscriber lane over high-water mark"))
	}
}

// runLane drains one FIFO lane until the bus stops or the lane idles out.
func (s *subscription) runLane(key string, l *lane) {
	defer s.bus.wg.Done()

	idle := time.NewTimer(laneIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case ev := <-l.ch:
			s.deliver(ev)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(laneIdleTimeout)
		case <-idle.C:
			s.mu.Lock()
			// dispatch sends while holding s.mu, so once this check sees an
			// empty lane no event can land before the delete below.
			if len(l.ch) == 0 {
				delete(s.lanes, key)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			idle.Reset(laneIdleTimeout)
		case <-s.bus.ctx.Done():
			return
		}
	}
}

// deliver invokes the handler, applying the retry policy on failure and
// routing exhausted events to the DLQ.
func (s *subscription) deliver(ev types.Event) {
	err := s.handler(s.bus.ctx, ev)
	if err == nil {
		s.markDelivered()
		return
	}
	if !s.retry {
		s.markFailed()
		s.bus.deadLetter(s, ev, err)
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.bus.cfg.RetryBaseDelay.D()
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 30 * time.Second
	bo.Reset()

	maxRetries := s.bus.cfg.MaxRetries
	for attempt := 1; attempt <= maxRetries; attempt++ {
		delay := bo.NextBackOff() + time.Duration(rand.Intn(100))*time.Millisecond
		select {
		case <-time.After(delay):
		case <-s.bus.ctx.Done():
			return
		}

		s.bus.stats.mu.Lock()
		s.bus.stats.retries++
		s.bus.stats.mu.Unlock()

		if err = s.handler(s.bus.ctx, ev); err == nil {
			s.markDelivered()
			return
		}
	}

	s.markFailed()
	s.bus.logger.Warn().
		Str("topic", s.topic).
		Str("event_id", ev.ID).
		Str("saga_id", ev.SagaID).
		Err(err).
		Msg("delivery retries exhausted, routing to DLQ")
	s.bus.deadLetter(s, ev, err)
}

func (s *subscription) markDelivered() {
	s.bus.stats.mu.Lock()
	s.bus.stats.delivered++
	s.bus.stats.mu.Unlock()
}

func (s *subscription) markFailed() {
	s.bus.stats.mu.Lock()
	s.bus.stats.failures++
	s.bus.stats.mu.Unlock()
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
