package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/log"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

const (
	dispatchInterval    = 20 * time.Millisecond
	healthCheckInterval = 10 * time.Second

	healthUtilizationLimit = 0.8
	healthErrorRateLimit   = 0.1
)

// Publisher is the slice of the event bus the queue manager needs. The core
// wires the concrete bus in after construction.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev types.Event) (string, error)
}

// Handler processes a dispatched message in-process. Registered handlers
// take precedence over event-bus routing for their message type.
type Handler func(ctx context.Context, msg Message) error

// Manager owns the named queues, their processor loops, and the per-queue
// health monitors.
type Manager struct {
	clock  types.Clock
	logger zerolog.Logger

	mu       sync.RWMutex
	queues   map[string]*queue
	handlers map[string]Handler

	pubMu     sync.RWMutex
	publisher Publisher

	journal *journal

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Deps carries the queue manager's pluggable capabilities.
type Deps struct {
	Clock   types.Clock
	DataDir string
}

// New creates the manager with one queue per config entry plus the
// dead-letter queues they name. Persistent queues recover their pending
// messages from the journal.
func New(cfgs map[string]config.QueueConfig, deps Deps) (*Manager, error) {
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	m := &Manager{
		clock:    deps.Clock,
		logger:   log.WithComponent("queue-manager"),
		queues:   make(map[string]*queue),
		handlers: make(map[string]Handler),
		stopCh:   make(chan struct{}),
	}

	if deps.DataDir != "" {
		j, err := openJournal(deps.DataDir)
		if err != nil {
			return nil, err
		}
		m.journal = j
	}

	for name, cfg := range cfgs {
		m.queues[name] = newQueue(name, cfg, false, deps.Clock)
	}
	// Dead-letter queues are plain terminal queues: no retries, no DLQ of
	// their own, no processor.
	for _, cfg := range cfgs {
		if cfg.DeadLetterQueue == "" {
			continue
		}
		if _, exists := m.queues[cfg.DeadLetterQueue]; exists {
			continue
		}
		dlqCfg := config.QueueConfig{
			Priority:    types.PriorityLow,
			MaxSize:     10 * cfg.MaxSize,
			Persistence: cfg.Persistence,
		}
		m.queues[cfg.DeadLetterQueue] = newQueue(cfg.DeadLetterQueue, dlqCfg, true, deps.Clock)
	}

	if m.journal != nil {
		for name, q := range m.queues {
			if !q.cfg.Persistence {
				continue
			}
			msgs, err := m.journal.load(name)
			if err != nil {
				m.logger.Error().Err(err).Str("queue", name).Msg("journal recovery failed")
				continue
			}
			q.mu.Lock()
			q.messages = append(q.messages, msgs...)
			q.mu.Unlock()
			if len(msgs) > 0 {
				m.logger.Info().Str("queue", name).Int("messages", len(msgs)).Msg("recovered pending messages")
			}
		}
	}
	return m, nil
}

// SetPublisher wires the event bus in. Must be called before Start when
// event emission or topic routing is wanted.
func (m *Manager) SetPublisher(p Publisher) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	m.publisher = p
}

// RegisterHandler installs an in-process handler for a message type.
func (m *Manager) RegisterHandler(msgType string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[msgType] = h
}

// Start launches one processor loop per regular queue and the health
// monitor.
func (m *Manager) Start() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.queues {
		if q.isDLQ {
			continue
		}
		m.wg.Add(1)
		go m.runProcessor(q)
	}
	m.wg.Add(1)
	go m.runHealthMonitor()
}

// Stop halts processors and closes the journal. In-flight messages are
// abandoned; persistent queues will recover them at next start.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	if m.journal != nil {
		if err := m.journal.close(); err != nil {
			m.logger.Error().Err(err).Msg("failed to close queue journal")
		}
	}
}

// Enqueue places a message on the named queue and returns its id.
func (m *Manager) Enqueue(ctx context.Context, queueName, msgType string, payload map[string]any, opts EnqueueOptions) (string, error) {
	select {
	case <-ctx.Done():
		return "", types.Wrap(types.KindCancelled, "queue.enqueue", "cancelled", ctx.Err())
	default:
	}

	q, err := m.queue(queueName)
	if err != nil {
		return "", err
	}

	now := m.clock.Now()
	priority := opts.Priority
	if priority == "" {
		priority = q.cfg.Priority
	}
	msg := &Message{
		ID:            uuid.New().String(),
		Type:          msgType,
		Payload:       payload,
		Priority:      priority,
		SagaID:        opts.SagaID,
		CorrelationID: opts.CorrelationID,
		EnqueuedAt:    now,
		MaxAttempts:   q.cfg.RetryAttempts,
		Metadata:      opts.Metadata,
	}
	if opts.Delay > 0 {
		msg.DelayUntil = now.Add(opts.Delay)
	}
	if opts.TTL > 0 {
		msg.TTLDeadline = now.Add(opts.TTL)
	}

	if err := q.add(msg); err != nil {
		return "", err
	}
	m.journalPut(q, msg)

	m.emit(types.TopicMessageEnqueued, map[string]any{
		"messageId": msg.ID,
		"queue":     queueName,
		"type":      msgType,
		"priority":  string(priority),
	}, msg)
	return msg.ID, nil
}

// Pause stops dispatch from the queue; pending messages stay put.
func (m *Manager) Pause(queueName string) error {
	q, err := m.queue(queueName)
	if err != nil {
		return err
	}
	q.setPaused(true)
	m.emit(types.TopicQueuePaused, map[string]any{"queue": queueName}, nil)
	return nil
}

// Resume restarts dispatch from a paused queue.
func (m *Manager) Resume(queueName string) error {
	q, err := m.queue(queueName)
	if err != nil {
		return err
	}
	q.setPaused(false)
	m.emit(types.TopicQueueResumed, map[string]any{"queue": queueName}, nil)
	return nil
}

// Clear drops all pending messages from a queue.
func (m *Manager) Clear(queueName string) (int, error) {
	q, err := m.queue(queueName)
	if err != nil {
		return 0, err
	}
	removed := q.clear()
	if m.journal != nil && q.cfg.Persistence {
		if err := m.journal.dropQueue(queueName); err != nil {
			m.logger.Error().Err(err).Str("queue", queueName).Msg("journal clear failed")
		}
	}
	m.emit(types.TopicQueueCleared, map[string]any{"queue": queueName, "removed": removed}, nil)
	return removed, nil
}

// Statuses returns a snapshot of every queue, sorted by name.
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	qs := make([]*queue, 0, len(m.queues))
	for _, q := range m.queues {
		qs = append(qs, q)
	}
	m.mu.RUnlock()

	out := make([]Status, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Depth reports pending plus in-flight messages for one queue.
func (m *Manager) Depth(queueName string) (int, error) {
	q, err := m.queue(queueName)
	if err != nil {
		return 0, err
	}
	s := q.status()
	return s.Depth + s.Processing, nil
}

// Ack resolves an in-flight message as successfully processed. Agents call
// this (through the harness) once their completion event is published.
func (m *Manager) Ack(queueName, messageID string) error {
	q, err := m.queue(queueName)
	if err != nil {
		return err
	}
	if !m.finish(q, messageID, nil) {
		return types.E(types.KindNotFound, "queue.ack", "message not in flight: "+messageID)
	}
	return nil
}

// Fail resolves an in-flight message as failed, triggering retry or DLQ
// routing.
func (m *Manager) Fail(queueName, messageID, reason string) error {
	q, err := m.queue(queueName)
	if err != nil {
		return err
	}
	if !m.finish(q, messageID, errors.New(reason)) {
		return types.E(types.KindNotFound, "queue.fail", "message not in flight: "+messageID)
	}
	return nil
}

func (m *Manager) queue(name string) (*queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[name]
	if !ok {
		return nil, types.E(types.KindNotFound, "queue", "unknown queue: "+name)
	}
	return q, nil
}

// runProcessor is one queue's dispatch loop.
func (m *Manager) runProcessor(q *queue) {
	defer m.wg.Done()

	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.dispatchTick(q)
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) dispatchTick(q *queue) {
	if q.isPaused() {
		return
	}
	now := m.clock.Now()

	// Leave headroom for in-flight work before pulling a batch.
	q.mu.Lock()
	free := q.concurrency - len(q.processing)
	q.mu.Unlock()
	if free <= 0 {
		return
	}
	batch := q.cfg.BatchSize
	if batch <= 0 || batch > free {
		batch = free
	}

	ready, expired := q.selectReady(now, batch)
	for _, id := range expired {
		m.journalDelete(q, id)
	}

	for i, msg := range ready {
		if q.bucket != nil && !q.bucket.take() {
			// Put the unserved tail back; next tick retries.
			q.mu.Lock()
			q.stats.rateLimitHits++
			q.messages = append(q.messages, ready[i:]...)
			q.mu.Unlock()
			return
		}
		m.dispatch(q, msg, now)
	}
}

func (m *Manager) dispatch(q *queue, msg *Message, now time.Time) {
	msg.Attempts++

	q.mu.Lock()
	inf := &inflight{msg: msg, startedAt: now}
	if timeout := q.cfg.ProcessingTimeout.D(); timeout > 0 {
		id := msg.ID
		inf.timer = time.AfterFunc(timeout, func() {
			m.finish(q, id, types.E(types.KindTimeout, "queue.process", "processing timeout"))
		})
	}
	q.processing[msg.ID] = inf
	q.mu.Unlock()

	m.mu.RLock()
	handler, hasHandler := m.handlers[msg.Type]
	m.mu.RUnlock()

	if hasHandler {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ctx := context.Background()
			if timeout := q.cfg.ProcessingTimeout.D(); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			m.finish(q, msg.ID, handler(ctx, *msg))
		}()
		return
	}

	// No in-process handler: route the task to its agents over the bus and
	// wait for an Ack/Fail or the processing timeout.
	m.pubMu.RLock()
	pub := m.publisher
	m.pubMu.RUnlock()
	if pub == nil {
		m.finish(q, msg.ID, types.E(types.KindInternal, "queue.dispatch", "no handler or publisher for "+msg.Type))
		return
	}

	data := make(map[string]any, len(msg.Payload)+2)
	for k, v := range msg.Payload {
		data[k] = v
	}
	data["messageId"] = msg.ID
	data["queue"] = q.name

	ev := types.NewEvent(msg.Type, data).
		WithSaga(msg.SagaID, msg.CorrelationID).
		WithSource("queue-manager")
	if _, err := pub.Publish(context.Background(), msg.Type, ev); err != nil {
		m.finish(q, msg.ID, err)
	}
}

// finish resolves an in-flight message. Returns false when the message was
// already resolved (racing timeout and ack, for instance).
func (m *Manager) finish(q *queue, messageID string, procErr error) bool {
	inf := q.endProcessing(messageID)
	if inf == nil {
		return false
	}
	msg := inf.msg
	now := m.clock.Now()

	if procErr == nil {
		q.recordSuccess(now.Sub(inf.startedAt), inf.startedAt.Sub(msg.EnqueuedAt))
		m.journalDelete(q, msg.ID)
		m.emit(types.TopicMessageProcessed, map[string]any{
			"messageId": msg.ID,
			"queue":     q.name,
			"attempts":  msg.Attempts,
		}, msg)
		return true
	}

	q.recordFailure()
	msg.ErrorHistory = append(msg.ErrorHistory, procErr.Error())

	if msg.Attempts < msg.MaxAttempts {
		msg.DelayUntil = now.Add(q.cfg.RetryDelay.D())
		q.requeue(msg)
		m.journalPut(q, msg)
		m.emit(types.TopicMessageRetryScheduled, map[string]any{
			"messageId": msg.ID,
			"queue":     q.name,
			"attempts":  msg.Attempts,
			"error":     procErr.Error(),
		}, msg)
		return true
	}

	m.moveToDLQ(q, msg, now)
	return true
}

// moveToDLQ routes an exhausted message to the queue's dead-letter queue.
// Dead-letter routing is terminal; nothing redispatches these automatically.
func (m *Manager) moveToDLQ(q *queue, msg *Message, now time.Time) {
	q.mu.Lock()
	q.stats.deadLettered++
	q.mu.Unlock()
	m.journalDelete(q, msg.ID)

	msg.DeadLetteredAt = now
	msg.OriginalQueue = q.name

	dlqName := q.cfg.DeadLetterQueue
	if dlqName == "" {
		m.logger.Warn().Str("queue", q.name).Str("message_id", msg.ID).
			Msg("no dead-letter queue configured, dropping message")
		return
	}
	dlq, err := m.queue(dlqName)
	if err != nil {
		m.logger.Error().Err(err).Str("queue", q.name).Msg("dead-letter queue missing")
		return
	}
	if err := dlq.add(msg); err != nil {
		m.logger.Error().Err(err).Str("queue", dlqName).Str("message_id", msg.ID).
			Msg("dead-letter queue full, dropping message")
		return
	}
	m.journalPut(dlq, msg)

	m.emit(types.TopicMessageDeadLettered, map[string]any{
		"messageId":     msg.ID,
		"queue":         q.name,
		"deadLetterQueue": dlqName,
		"attempts":      msg.Attempts,
		"errors":        msg.ErrorHistory,
	}, msg)
}

// Peek returns a copy of the pending messages of a queue, dispatch-ordered
// first by priority then by enqueue time. Intended for DLQ inspection.
func (m *Manager) Peek(queueName string, limit int) ([]Message, error) {
	q, err := m.queue(queueName)
	if err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Message, 0, len(q.messages))
	for _, msg := range q.messages {
		out = append(out, *msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// runHealthMonitor periodically inspects every regular queue and emits
// queue-health-warning events.
func (m *Manager) runHealthMonitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkHealth()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) checkHealth() {
	for _, s := range m.Statuses() {
		if s.DeadLetter {
			continue
		}
		var reasons []string
		if s.MaxSize > 0 && float64(s.Depth+s.Processing) > healthUtilizationLimit*float64(s.MaxSize) {
			reasons = append(reasons, "utilization")
		}
		q, err := m.queue(s.Name)
		if err == nil {
			if timeout := q.cfg.ProcessingTimeout.D(); timeout > 0 && s.AvgWait > timeout/2 {
				reasons = append(reasons, "wait_time")
			}
		}
		if total := s.Processed + s.Failed; total > 0 {
			if float64(s.Failed)/float64(total) > healthErrorRateLimit {
				reasons = append(reasons, "error_rate")
			}
		}
		if len(reasons) == 0 {
			continue
		}
		m.logger.Warn().Str("queue", s.Name).Strs("reasons", reasons).Msg("queue health warning")
		m.emit(types.TopicQueueHealthWarning, map[string]any{
			"queue":   s.Name,
			"reasons": reasons,
			"depth":   s.Depth,
		}, nil)
	}
}

func (m *Manager) emit(topic string, data map[string]any, msg *Message) {
	m.pubMu.RLock()
	pub := m.publisher
	m.pubMu.RUnlock()
	if pub == nil {
		return
	}
	ev := types.NewEvent(topic, data).WithSource("queue-manager")
	if msg != nil {
		ev = ev.WithSaga(msg.SagaID, msg.CorrelationID)
	}
	if _, err := pub.Publish(context.Background(), topic, ev); err != nil {
		m.logger.Error().Err(err).Str("topic", topic).Msg("failed to emit queue event")
	}
}

func (m *Manager) journalPut(q *queue, msg *Message) {
	if m.journal == nil || !q.cfg.Persistence {
		return
	}
	if err := m.journal.put(q.name, msg); err != nil {
		m.logger.Error().Err(err).Str("queue", q.name).Str("message_id", msg.ID).Msg("journal write failed")
	}
}

func (m *Manager) journalDelete(q *queue, messageID string) {
	if m.journal == nil || !q.cfg.Persistence {
		return
	}
	if err := m.journal.delete(q.name, messageID); err != nil {
		m.logger.Error().Err(err).Str("queue", q.name).Str("message_id", messageID).Msg("journal delete failed")
	}
}
