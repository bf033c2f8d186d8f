package agent

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/bus"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/log"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Result is what an agent produces for one task: the completion topic it
// answers on and the payload to publish there.
type Result struct {
	Topic string
	Data  map[string]any
}

// Agent handles one task type. The input is the task event's payload; the
// returned Result is published as the completion event.
type Agent interface {
	Name() string
	TaskType() string
	Handle(ctx context.Context, task map[string]any) (Result, error)
}

// Func adapts a plain function into an Agent.
type Func struct {
	AgentName string
	Task      string
	Fn        func(ctx context.Context, task map[string]any) (Result, error)
}

func (f Func) Name() string     { return f.AgentName }
func (f Func) TaskType() string { return f.Task }
func (f Func) Handle(ctx context.Context, task map[string]any) (Result, error) {
	return f.Fn(ctx, task)
}

// Bus is the slice of the event bus the harness needs.
type Bus interface {
	Publish(ctx context.Context, topic string, ev types.Event) (string, error)
	Subscribe(topic string, handler bus.Handler, opts bus.Options) (string, error)
	Unsubscribe(subID string) bool
}

// Acker settles queue messages on the agent's behalf.
type Acker interface {
	Ack(queueName, messageID string) error
	Fail(queueName, messageID, reason string) error
}

// Harness binds agents to their task topics: the queue manager routes each
// dispatched message as an event on the message type's topic, the harness
// runs the agent, publishes the completion, and settles the message.
type Harness struct {
	logger zerolog.Logger
	bus    Bus
	acker  Acker

	mu     sync.Mutex
	agents map[string]Agent
	subIDs []string
}

// NewHarness creates an empty harness.
func NewHarness(b Bus, a Acker) *Harness {
	return &Harness{
		logger: log.WithComponent("agent"),
		bus:    b,
		acker:  a,
		agents: make(map[string]Agent),
	}
}

// Register binds an agent to its task type. Registering a second agent for
// the same task type is a conflict.
func (h *Harness) Register(a Agent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.agents[a.TaskType()]; exists {
		return types.E(types.KindConflict, "agent.register", "task type already bound: "+a.TaskType())
	}
	h.agents[a.TaskType()] = a
	return nil
}

// Start subscribes every registered agent to its task topic.
func (h *Harness) Start() error {
	h.mu.Lock()
	agents := make([]Agent, 0, len(h.agents))
	for _, a := range h.agents {
		agents = append(agents, a)
	}
	h.mu.Unlock()

	for _, a := range agents {
		agent := a
		id, err := h.bus.Subscribe(agent.TaskType(), func(ctx context.Context, ev types.Event) error {
			h.handleTask(ctx, agent, ev)
			return nil
		}, bus.DefaultOptions())
		if err != nil {
			return err
		}
		h.mu.Lock()
		h.subIDs = append(h.subIDs, id)
		h.mu.Unlock()
	}
	return nil
}

// Stop removes the task subscriptions.
func (h *Harness) Stop() {
	h.mu.Lock()
	subIDs := h.subIDs
	h.subIDs = nil
	h.mu.Unlock()
	for _, id := range subIDs {
		h.bus.Unsubscribe(id)
	}
}

// handleTask runs one agent invocation end to end: handler, completion
// publish, queue settlement. Settlement failures are logged, not retried;
// the processing timeout is the backstop.
func (h *Harness) handleTask(ctx context.Context, a Agent, ev types.Event) {
	messageID, _ := ev.Data["messageId"].(string)
	queueName, _ := ev.Data["queue"].(string)

	res, err := a.Handle(ctx, ev.Data)
	if err != nil {
		h.logger.Error().Err(err).Str("agent", a.Name()).Str("saga_id", ev.SagaID).
			Msg("agent task failed")
		h.settle(queueName, messageID, err)
		return
	}

	if res.Topic != "" {
		out := types.NewEvent(res.Topic, res.Data).
			WithSaga(ev.SagaID, ev.CorrelationID).WithSource(a.Name())
		if _, perr := h.bus.Publish(ctx, res.Topic, out); perr != nil {
			h.logger.Error().Err(perr).Str("agent", a.Name()).Str("topic", res.Topic).
				Msg("failed to publish completion")
			h.settle(queueName, messageID, perr)
			return
		}
	}
	h.settle(queueName, messageID, nil)
}

func (h *Harness) settle(queueName, messageID string, cause error) {
	if queueName == "" || messageID == "" {
		return
	}
	var err error
	if cause == nil {
		err = h.acker.Ack(queueName, messageID)
	} else {
		err = h.acker.Fail(queueName, messageID, cause.Error())
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("queue", queueName).Str("message_id", messageID).
			Msg("failed to settle message")
	}
}
