package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/log"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Handler processes a delivered event. A non-nil error triggers the bus
// retry policy for subscriptions that have retries enabled.
type Handler func(ctx context.Context, ev types.Event) error

// Options configures a subscription.
type Options struct {
	// Retry enables redelivery with backoff on handler failure.
	Retry bool
}

// DefaultOptions returns the default subscription options (retry on).
func DefaultOptions() Options {
	return Options{Retry: true}
}

// SchemaValidator checks a topic payload at the publish boundary.
type SchemaValidator func(data map[string]any) error

// EventBus is a topic-addressed pub/sub broker with at-least-once delivery,
// FIFO ordering per (subscription, saga), bounded retries, and dead-letter
// routing.
type EventBus struct {
	cfg    config.BusConfig
	clock  types.Clock
	logger zerolog.Logger

	mu         sync.RWMutex
	topics     map[string]*topic
	subs       map[string]*subscription
	validators map[string]SchemaValidator

	history *historyRing
	dlq     *deadLetterStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats busStats
}

type topic struct {
	name      string
	subIDs    []string
	published uint64
}

type busStats struct {
	mu           sync.Mutex
	published    uint64
	delivered    uint64
	failures     uint64
	retries      uint64
	laneOverflow uint64
}

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	Published    uint64
	Delivered    uint64
	Failures     uint64
	Retries      uint64
	LaneOverflow uint64
	Topics       int
	Subscribers  int
	DLQDepth     int
}

// New creates an event bus. Call Shutdown to stop delivery workers.
func New(cfg config.BusConfig, clock types.Clock) *EventBus {
	if clock == nil {
		clock = types.RealClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBus{
		cfg:        cfg,
		clock:      clock,
		logger:     log.WithComponent("event-bus"),
		topics:     make(map[string]*topic),
		subs:       make(map[string]*subscription),
		validators: make(map[string]SchemaValidator),
		history:    newHistoryRing(cfg.HistorySize),
		dlq:        newDeadLetterStore(cfg.DLQMaxSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RegisterSchema installs a payload validator for a topic. Publishes to the
// topic whose payload fails the validator are rejected with SchemaError.
func (b *EventBus) RegisterSchema(topicName string, v SchemaValidator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validators[topicName] = v
}

// Subscribe registers a handler on a topic and returns the subscription id.
// Unknown topics are auto-created with a warning.
func (b *EventBus) Subscribe(topicName string, handler Handler, opts Options) (string, error) {
	if handler == nil {
		return "", types.E(types.KindSchemaError, "bus.subscribe", "nil handler")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[topicName]
	if !ok {
		b.logger.Warn().Str("topic", topicName).Msg("auto-creating topic on subscribe")
		t = &topic{name: topicName}
		b.topics[topicName] = t
	}

	sub := newSubscription(b, topicName, handler, opts)
	b.subs[sub.id] = sub
	t.subIDs = append(t.subIDs, sub.id)
	return sub.id, nil
}

// Unsubscribe removes a subscription and stops its delivery lanes.
func (b *EventBus) Unsubscribe(subID string) bool {
	b.mu.Lock()
	sub, ok := b.subs[subID]
	if !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.subs, subID)
	if t, tok := b.topics[sub.topic]; tok {
		for i, id := range t.subIDs {
			if id == subID {
				t.subIDs = append(t.subIDs[:i], t.subIDs[i+1:]...)
				break
			}
		}
	}
	b.mu.Unlock()

	sub.close()
	return true
}

// Publish validates the event, records it in history, and fans it out to
// every subscriber of the topic. It returns the assigned event id.
func (b *EventBus) Publish(ctx context.Context, topicName string, ev types.Event) (string, error) {
	select {
	case <-ctx.Done():
		return "", types.Wrap(types.KindCancelled, "bus.publish", "cancelled", ctx.Err())
	default:
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.clock.Now()
	}
	if ev.Version == "" {
		ev.Version = types.SchemaVersion
	}
	ev.Type = topicName

	if err := b.validate(ev); err != nil {
		return "", err
	}

	b.mu.Lock()
	t, ok := b.topics[topicName]
	if !ok {
		b.logger.Warn().Str("topic", topicName).Msg("auto-creating topic on publish")
		t = &topic{name: topicName}
		b.topics[topicName] = t
	}
	t.published++
	subIDs := make([]string, len(t.subIDs))
	copy(subIDs, t.subIDs)
	b.mu.Unlock()

	b.history.append(ev)
	b.stats.mu.Lock()
	b.stats.published++
	b.stats.mu.Unlock()

	for _, id := range subIDs {
		b.mu.RLock()
		sub, sok := b.subs[id]
		b.mu.RUnlock()
		if !sok {
			continue
		}
		sub.dispatch(ev)
	}
	return ev.ID, nil
}

// History returns up to 100 recent events matching the filter, newest last.
func (b *EventBus) History(f Filter) []types.Event {
	return b.history.query(f)
}

// DeadLetters returns the current DLQ records.
func (b *EventBus) DeadLetters() []DeadLetter {
	return b.dlq.list()
}

// AckDLQ removes a dead-letter record after manual handling.
func (b *EventBus) AckDLQ(recordID string) bool {
	return b.dlq.ack(recordID)
}

// Stats returns a snapshot of bus counters.
func (b *EventBus) Stats() Stats {
	b.stats.mu.Lock()
	s := Stats{
		Published:    b.stats.published,
		Delivered:    b.stats.delivered,
		Failures:     b.stats.failures,
		Retries:      b.stats.retries,
		LaneOverflow: b.stats.laneOverflow,
	}
	b.stats.mu.Unlock()

	b.mu.RLock()
	s.Topics = len(b.topics)
	s.Subscribers = len(b.subs)
	b.mu.RUnlock()
	s.DLQDepth = b.dlq.depth()
	return s
}

// Shutdown stops all delivery lanes and waits for in-flight handlers.
func (b *EventBus) Shutdown() {
	b.cancel()

	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[string]*subscription)
	b.topics = make(map[string]*topic)
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	b.wg.Wait()
}

// deadLetter records an exhausted delivery and emits the dlq-message event.
func (b *EventBus) deadLetter(sub *subscription, ev types.Event, deliveryErr error) {
	rec, overflow := b.dlq.add(ev, sub.id, deliveryErr, b.clock.Now())
	if overflow {
		b.logger.Error().
			Str("subscription", sub.id).
			Str("event_id", ev.ID).
			Msg("dead-letter store overflow, record dropped")
		return
	}

	// dlq-message itself never re-enters the DLQ path; a failing consumer
	// of the internal channel would otherwise loop forever.
	if ev.Type == types.TopicDLQMessage {
		return
	}

	notice := types.NewEvent(types.TopicDLQMessage, map[string]any{
		"recordId":       rec.ID,
		"originalEvent":  ev.ID,
		"originalTopic":  ev.Type,
		"subscriptionId": sub.id,
		"error":          deliveryErr.Error(),
		"manualApproval": true,
	}).WithSaga(ev.SagaID, ev.CorrelationID).WithSource("event-bus")

	if _, err := b.Publish(context.Background(), types.TopicDLQMessage, notice); err != nil {
		b.logger.Error().Err(err).Msg("failed to publish dlq-message event")
	}
}

func (b *EventBus) validate(ev types.Event) error {
	if ev.Type == "" || ev.Data == nil {
		return types.E(types.KindSchemaError, "bus.publish", "event requires type and payload")
	}
	if b.cfg.RequireCorrelation && isDomainTopic(ev.Type) {
		if ev.SagaID == "" || ev.CorrelationID == "" {
			return types.E(types.KindSchemaError, "bus.publish",
				"correlation tracking requires sagaId and correlationId on "+ev.Type)
		}
	}

	b.mu.RLock()
	v, ok := b.validators[ev.Type]
	b.mu.RUnlock()
	if ok {
		if err := v(ev.Data); err != nil {
			return types.Wrap(types.KindSchemaError, "bus.publish", "payload rejected for "+ev.Type, err)
		}
	}
	return nil
}

var domainTopics = map[string]struct{}{
	types.TopicIntent:        {},
	types.TopicCandidates:    {},
	types.TopicAvailability:  {},
	types.TopicConstraints:   {},
	types.TopicSelectionProp: {},
	types.TopicSelectionConf: {},
	types.TopicItinerary:     {},
	types.TopicRevision:      {},
	types.TopicFallback:      {},
	types.TopicOutput:        {},
}

func isDomainTopic(name string) bool {
	_, ok := domainTopics[name]
	return ok
}

// laneIdleTimeout bounds how long an empty per-saga lane keeps its
// goroutine before it is reclaimed. Variable so tests can force reclaim
// churn.
var laneIdleTimeout = 2 * time.Minute
