package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/bus"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/log"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/queue"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// defaultStateTimeout applies when a state has no configured timeout.
const defaultStateTimeout = 30 * time.Second

// Bus is the slice of the event bus the orchestrator needs.
type Bus interface {
	Publish(ctx context.Context, topic string, ev types.Event) (string, error)
	Subscribe(topic string, handler bus.Handler, opts bus.Options) (string, error)
	Unsubscribe(subID string) bool
}

// TaskQueues is the slice of the queue manager the orchestrator needs.
type TaskQueues interface {
	Enqueue(ctx context.Context, queueName, msgType string, payload map[string]any, opts queue.EnqueueOptions) (string, error)
}

// Admissions is the slice of the policy engine the orchestrator needs: it
// releases a saga's admission slot on termination.
type Admissions interface {
	Release(sagaID string)
}

// Stats is a snapshot of orchestrator counters.
type Stats struct {
	Active      int
	Completed   uint64
	Failed      uint64
	Cancelled   uint64
	AvgDuration time.Duration
}

// Orchestrator drives saga instances through their templates: INTENT events
// start sagas, completion events advance them, state timers retry or fail
// them.
type Orchestrator struct {
	cfg    config.WorkflowConfig
	clock  types.Clock
	logger zerolog.Logger

	bus        Bus
	queues     TaskQueues
	admissions Admissions

	mu        sync.Mutex
	sagas     map[string]*Saga
	templates map[string]*Template
	subIDs    []string
	stopped   bool

	completed     uint64
	failed        uint64
	cancelled     uint64
	avgDurationMs float64
}

// New creates the orchestrator with the CREATE and REVISE templates
// registered. Wire must be called before Start.
func New(cfg config.WorkflowConfig, clock types.Clock) *Orchestrator {
	if clock == nil {
		clock = types.RealClock{}
	}
	o := &Orchestrator{
		cfg:       cfg,
		clock:     clock,
		logger:    log.WithComponent("workflow"),
		sagas:     make(map[string]*Saga),
		templates: make(map[string]*Template),
	}
	o.templates[TemplateCreate] = CreateTemplate()
	o.templates[TemplateRevise] = ReviseTemplate()
	return o
}

// Wire hands the orchestrator its collaborators.
func (o *Orchestrator) Wire(b Bus, q TaskQueues, a Admissions) {
	o.bus = b
	o.queues = q
	o.admissions = a
}

// RegisterTemplate adds a saga template beyond the built-in pair.
func (o *Orchestrator) RegisterTemplate(t *Template) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.templates[t.Name] = t
}

// Start subscribes to INTENT, REVISION, and every completion topic of the
// registered templates.
func (o *Orchestrator) Start() error {
	subscribe := func(topic string, h bus.Handler) error {
		id, err := o.bus.Subscribe(topic, h, bus.DefaultOptions())
		if err != nil {
			return err
		}
		o.mu.Lock()
		o.subIDs = append(o.subIDs, id)
		o.mu.Unlock()
		return nil
	}

	if err := subscribe(types.TopicIntent, o.handleIntent); err != nil {
		return err
	}
	if err := subscribe(types.TopicRevision, o.handleRevision); err != nil {
		return err
	}

	seen := make(map[string]struct{})
	o.mu.Lock()
	templates := make([]*Template, 0, len(o.templates))
	for _, t := range o.templates {
		templates = append(templates, t)
	}
	o.mu.Unlock()
	for _, t := range templates {
		for _, spec := range t.Specs {
			if spec.Completion == "" {
				continue
			}
			if _, dup := seen[spec.Completion]; dup {
				continue
			}
			seen[spec.Completion] = struct{}{}
			if err := subscribe(spec.Completion, o.handleCompletion); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stop cancels every active saga and removes the bus subscriptions.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	cancelled := make([]*Saga, 0, len(o.sagas))
	for _, s := range o.sagas {
		s.stopTimer()
		s.Status = StatusCancelled
		s.EndTime = o.clock.Now()
		cancelled = append(cancelled, s)
	}
	o.sagas = make(map[string]*Saga)
	o.cancelled += uint64(len(cancelled))
	subIDs := o.subIDs
	o.subIDs = nil
	o.mu.Unlock()

	for _, s := range cancelled {
		o.release(s.ID)
		o.emit(types.TopicWorkflowCancelled, map[string]any{
			"sagaId": s.ID,
			"state":  s.CurrentState,
		}, s.ID, s.CorrelationID)
	}
	for _, id := range subIDs {
		o.bus.Unsubscribe(id)
	}
}

// Saga returns a snapshot of one instance.
func (o *Orchestrator) Saga(id string) (Saga, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sagas[id]
	if !ok {
		return Saga{}, false
	}
	return s.snapshot(), true
}

// Sagas returns snapshots of all active instances.
func (o *Orchestrator) Sagas() []Saga {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Saga, 0, len(o.sagas))
	for _, s := range o.sagas {
		out = append(out, s.snapshot())
	}
	return out
}

// Stats returns orchestrator counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		Active:      len(o.sagas),
		Completed:   o.completed,
		Failed:      o.failed,
		Cancelled:   o.cancelled,
		AvgDuration: time.Duration(o.avgDurationMs) * time.Millisecond,
	}
}

// handleIntent starts a saga: REVISE when the intent carries revisions,
// CREATE otherwise.
func (o *Orchestrator) handleIntent(_ context.Context, ev types.Event) error {
	if ev.SagaID == "" {
		return types.E(types.KindSchemaError, "workflow.intent", "intent event has no sagaId")
	}

	templateName := TemplateCreate
	if revs, ok := ev.Data["revisions"].([]any); ok && len(revs) > 0 {
		templateName = TemplateRevise
	}
	return o.startSaga(ev.SagaID, ev.CorrelationID, templateName, ev.Data)
}

// handleRevision branches a REVISE saga off an active one. The original
// saga continues unaffected; the pair shares a correlation id.
func (o *Orchestrator) handleRevision(_ context.Context, ev types.Event) error {
	o.mu.Lock()
	parent, ok := o.sagas[ev.SagaID]
	var correlationID string
	if ok {
		correlationID = parent.CorrelationID
	}
	o.mu.Unlock()

	if !ok {
		o.logger.Debug().Str("saga_id", ev.SagaID).Msg("revision for unknown saga dropped")
		return nil
	}

	revisionID := fmt.Sprintf("%s_rev_%d", ev.SagaID, o.clock.Now().UnixMilli())
	return o.startSaga(revisionID, correlationID, TemplateRevise, ev.Data)
}

func (o *Orchestrator) startSaga(sagaID, correlationID, templateName string, payload map[string]any) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	if _, exists := o.sagas[sagaID]; exists {
		o.mu.Unlock()
		o.logger.Warn().Str("saga_id", sagaID).Msg("duplicate intent for active saga dropped")
		return nil
	}
	t := o.templates[templateName]
	if t == nil {
		o.mu.Unlock()
		return types.E(types.KindNotFound, "workflow.start", "unknown template: "+templateName)
	}

	s := &Saga{
		ID:            sagaID,
		CorrelationID: correlationID,
		Template:      templateName,
		StartTime:     o.clock.Now(),
		MaxRetries:    o.cfg.MaxRetries,
		Payload:       payload,
		Status:        StatusActive,
		template:      t,
	}
	o.sagas[sagaID] = s
	o.enterStateLocked(s, t.First())
	first := s.CurrentState
	o.mu.Unlock()

	o.logger.Info().Str("saga_id", sagaID).Str("template", templateName).Msg("saga started")
	o.runEntry(sagaID, first)
	return nil
}

// handleCompletion advances the owning saga when the completion matches its
// current state; anything else is a late arrival and is dropped.
func (o *Orchestrator) handleCompletion(_ context.Context, ev types.Event) error {
	o.mu.Lock()
	s, ok := o.sagas[ev.SagaID]
	if !ok || s.Status != StatusActive {
		o.mu.Unlock()
		o.logger.Debug().Str("saga_id", ev.SagaID).Str("topic", ev.Type).
			Msg("completion for unknown or inactive saga dropped")
		return nil
	}

	prereq := s.template.StateForCompletion(ev.Type)
	if prereq == "" || s.CurrentState != prereq {
		o.mu.Unlock()
		o.logger.Debug().Str("saga_id", ev.SagaID).Str("topic", ev.Type).
			Str("current_state", s.CurrentState).Msg("late completion dropped")
		return nil
	}

	s.stopTimer()
	s.RetryCount = 0

	allowed := s.template.Transitions[s.CurrentState]
	if len(allowed) == 0 {
		o.mu.Unlock()
		o.failSaga(ev.SagaID, types.E(types.KindInternal, "workflow.transition",
			"no transition out of "+s.CurrentState))
		return nil
	}
	next := allowed[0]
	if passed, has := ev.Data["passed"].(bool); has && !passed && len(allowed) > 1 {
		next = allowed[1]
	}
	if !s.template.Allowed(s.CurrentState, next) {
		o.mu.Unlock()
		o.failSaga(ev.SagaID, types.E(types.KindInternal, "workflow.transition",
			"invalid transition "+s.CurrentState+" -> "+next))
		return nil
	}

	o.enterStateLocked(s, next)
	o.mu.Unlock()

	o.runEntry(ev.SagaID, next)
	return nil
}

// enterStateLocked records the transition and arms the state timer. Caller
// holds o.mu.
func (o *Orchestrator) enterStateLocked(s *Saga, state string) {
	prev := s.CurrentState
	s.CurrentState = state
	s.History = append(s.History, StateTransition{
		State:     state,
		Prev:      prev,
		Timestamp: o.clock.Now(),
	})
	if state == StateDone {
		return
	}

	timeout := defaultStateTimeout
	if d, ok := o.cfg.StateTimeouts[state]; ok && d.D() > 0 {
		timeout = d.D()
	}
	sagaID := s.ID
	s.timer = time.AfterFunc(timeout, func() {
		o.onStateTimeout(sagaID, state)
	})
}

// runEntry performs the entry action of a state outside the lock.
func (o *Orchestrator) runEntry(sagaID, state string) {
	o.mu.Lock()
	s, ok := o.sagas[sagaID]
	if !ok || s.Status != StatusActive || s.CurrentState != state {
		o.mu.Unlock()
		return
	}
	spec := s.template.Specs[state]
	correlationID := s.CorrelationID
	payload := s.Payload
	o.mu.Unlock()

	switch {
	case state == StateDone:
		o.completeSaga(sagaID)

	case spec.AutoAdvance:
		o.autoAdvance(sagaID, state)

	case spec.Queue != "":
		data := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			data[k] = v
		}
		data["state"] = state
		_, err := o.queues.Enqueue(context.Background(), spec.Queue, spec.TaskType, data, queue.EnqueueOptions{
			SagaID:        sagaID,
			CorrelationID: correlationID,
		})
		if err != nil {
			o.failSaga(sagaID, types.Wrap(types.KindOf(err), "workflow.entry",
				"failed to dispatch "+spec.TaskType, err))
		}
	}
}

// autoAdvance moves straight to the next happy-path state.
func (o *Orchestrator) autoAdvance(sagaID, state string) {
	o.mu.Lock()
	s, ok := o.sagas[sagaID]
	if !ok || s.Status != StatusActive || s.CurrentState != state {
		o.mu.Unlock()
		return
	}
	allowed := s.template.Transitions[state]
	if len(allowed) == 0 {
		o.mu.Unlock()
		o.failSaga(sagaID, types.E(types.KindInternal, "workflow.transition",
			"no transition out of "+state))
		return
	}
	s.stopTimer()
	next := allowed[0]
	o.enterStateLocked(s, next)
	o.mu.Unlock()

	o.runEntry(sagaID, next)
}

// onStateTimeout fires when a state timer lapses with the saga still in
// that state: retry the entry action until the retry budget is spent, then
// fail with a state timeout.
func (o *Orchestrator) onStateTimeout(sagaID, state string) {
	o.mu.Lock()
	s, ok := o.sagas[sagaID]
	if !ok || s.Status != StatusActive || s.CurrentState != state {
		o.mu.Unlock()
		return
	}

	if s.RetryCount < s.MaxRetries {
		s.RetryCount++
		retry := s.RetryCount
		timeout := defaultStateTimeout
		if d, tok := o.cfg.StateTimeouts[state]; tok && d.D() > 0 {
			timeout = d.D()
		}
		s.timer = time.AfterFunc(timeout, func() {
			o.onStateTimeout(sagaID, state)
		})
		o.mu.Unlock()

		o.logger.Warn().Str("saga_id", sagaID).Str("state", state).Int("retry", retry).
			Msg("state timed out, retrying entry action")
		o.runEntry(sagaID, state)
		return
	}
	o.mu.Unlock()

	o.failSaga(sagaID, types.E(types.KindTimeout, "workflow.state",
		"state "+state+" timed out after retries"))
}

func (o *Orchestrator) completeSaga(sagaID string) {
	o.mu.Lock()
	s, ok := o.sagas[sagaID]
	if !ok {
		o.mu.Unlock()
		return
	}
	s.stopTimer()
	s.Status = StatusCompleted
	s.EndTime = o.clock.Now()
	duration := s.EndTime.Sub(s.StartTime)
	delete(o.sagas, sagaID)
	o.completed++

	alpha := o.cfg.EMAAlpha
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	sample := float64(duration.Milliseconds())
	if o.avgDurationMs == 0 {
		o.avgDurationMs = sample
	} else {
		o.avgDurationMs = alpha*sample + (1-alpha)*o.avgDurationMs
	}
	correlationID := s.CorrelationID
	o.mu.Unlock()

	o.release(sagaID)
	o.logger.Info().Str("saga_id", sagaID).Dur("duration", duration).Msg("saga completed")
	o.emit(types.TopicWorkflowComplete, map[string]any{
		"sagaId":     sagaID,
		"durationMs": duration.Milliseconds(),
	}, sagaID, correlationID)
}

func (o *Orchestrator) failSaga(sagaID string, cause error) {
	o.mu.Lock()
	s, ok := o.sagas[sagaID]
	if !ok {
		o.mu.Unlock()
		return
	}
	s.stopTimer()
	s.Status = StatusFailed
	s.EndTime = o.clock.Now()
	state := s.CurrentState
	correlationID := s.CorrelationID
	delete(o.sagas, sagaID)
	o.failed++
	o.mu.Unlock()

	o.release(sagaID)
	o.logger.Error().Err(cause).Str("saga_id", sagaID).Str("state", state).Msg("saga failed")
	o.emit(types.TopicWorkflowError, map[string]any{
		"sagaId": sagaID,
		"state":  state,
		"kind":   string(types.KindOf(cause)),
		"error":  cause.Error(),
	}, sagaID, correlationID)
}

func (o *Orchestrator) release(sagaID string) {
	if o.admissions != nil {
		o.admissions.Release(sagaID)
	}
}

func (o *Orchestrator) emit(topic string, data map[string]any, sagaID, correlationID string) {
	if o.bus == nil {
		return
	}
	ev := types.NewEvent(topic, data).WithSaga(sagaID, correlationID).WithSource("workflow")
	if _, err := o.bus.Publish(context.Background(), topic, ev); err != nil {
		o.logger.Error().Err(err).Str("topic", topic).Msg("failed to emit workflow event")
	}
}
