package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/bus"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

type stubBus struct {
	mu       sync.Mutex
	handlers map[string][]bus.Handler
	events   []types.Event
	pubErr   error
}

func newStubBus() *stubBus {
	return &stubBus{handlers: make(map[string][]bus.Handler)}
}

func (b *stubBus) Publish(_ context.Context, _ string, ev types.Event) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubErr != nil {
		return "", b.pubErr
	}
	b.events = append(b.events, ev)
	return ev.ID, nil
}

func (b *stubBus) Subscribe(topic string, h bus.Handler, _ bus.Options) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
	return topic, nil
}

func (b *stubBus) Unsubscribe(string) bool { return true }

func (b *stubBus) deliver(t *testing.T, topic string, ev types.Event) {
	t.Helper()
	b.mu.Lock()
	hs := append([]bus.Handler(nil), b.handlers[topic]...)
	b.mu.Unlock()
	require.NotEmpty(t, hs, "no subscription for %s", topic)
	for _, h := range hs {
		require.NoError(t, h(context.Background(), ev))
	}
}

type settlement struct {
	Queue  string
	ID     string
	Reason string
	Acked  bool
}

type stubAcker struct {
	mu      sync.Mutex
	settled []settlement
}

func (a *stubAcker) Ack(queueName, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{Queue: queueName, ID: messageID, Acked: true})
	return nil
}

func (a *stubAcker) Fail(queueName, messageID, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{Queue: queueName, ID: messageID, Reason: reason})
	return nil
}

func (a *stubAcker) all() []settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]settlement(nil), a.settled...)
}

func taskEvent(taskType, msgID string) types.Event {
	return types.NewEvent(taskType, map[string]any{
		"destination": "lisbon",
		"messageId":   msgID,
		"queue":       types.QueueCandidateGeneration,
	}).WithSaga("s1", "c1").WithSource("queue-manager")
}

func TestHarnessRunsAgentAndPublishesCompletion(t *testing.T) {
	b := newStubBus()
	a := &stubAcker{}
	h := NewHarness(b, a)

	require.NoError(t, h.Register(Func{
		AgentName: "candidate-gen",
		Task:      "generate-candidates",
		Fn: func(_ context.Context, task map[string]any) (Result, error) {
			assert.Equal(t, "lisbon", task["destination"])
			return Result{Topic: types.TopicCandidates, Data: map[string]any{"count": 3}}, nil
		},
	}))
	require.NoError(t, h.Start())
	t.Cleanup(h.Stop)

	b.deliver(t, "generate-candidates", taskEvent("generate-candidates", "m1"))

	require.Len(t, b.events, 1)
	out := b.events[0]
	assert.Equal(t, types.TopicCandidates, out.Type)
	assert.Equal(t, "s1", out.SagaID)
	assert.Equal(t, "c1", out.CorrelationID)
	assert.Equal(t, "candidate-gen", out.Source)

	settled := a.all()
	require.Len(t, settled, 1)
	assert.True(t, settled[0].Acked)
	assert.Equal(t, "m1", settled[0].ID)
}

func TestHarnessFailsMessageOnAgentError(t *testing.T) {
	b := newStubBus()
	a := &stubAcker{}
	h := NewHarness(b, a)

	require.NoError(t, h.Register(Func{
		AgentName: "validator",
		Task:      "validate-availability",
		Fn: func(context.Context, map[string]any) (Result, error) {
			return Result{}, errors.New("provider unavailable")
		},
	}))
	require.NoError(t, h.Start())
	t.Cleanup(h.Stop)

	b.deliver(t, "validate-availability", taskEvent("validate-availability", "m2"))

	assert.Empty(t, b.events)
	settled := a.all()
	require.Len(t, settled, 1)
	assert.False(t, settled[0].Acked)
	assert.Equal(t, "provider unavailable", settled[0].Reason)
}

func TestHarnessFailsMessageOnPublishError(t *testing.T) {
	b := newStubBus()
	a := &stubAcker{}
	h := NewHarness(b, a)

	require.NoError(t, h.Register(Func{
		AgentName: "ranker",
		Task:      "rank-candidates",
		Fn: func(context.Context, map[string]any) (Result, error) {
			return Result{Topic: types.TopicSelectionProp, Data: map[string]any{}}, nil
		},
	}))
	require.NoError(t, h.Start())
	t.Cleanup(h.Stop)

	b.pubErr = errors.New("bus down")
	b.deliver(t, "rank-candidates", taskEvent("rank-candidates", "m3"))

	settled := a.all()
	require.Len(t, settled, 1)
	assert.False(t, settled[0].Acked)
}

func TestHarnessSilentAgentJustAcks(t *testing.T) {
	b := newStubBus()
	a := &stubAcker{}
	h := NewHarness(b, a)

	require.NoError(t, h.Register(Func{
		AgentName: "telemetry",
		Task:      "record-telemetry",
		Fn: func(context.Context, map[string]any) (Result, error) {
			return Result{}, nil
		},
	}))
	require.NoError(t, h.Start())
	t.Cleanup(h.Stop)

	b.deliver(t, "record-telemetry", taskEvent("record-telemetry", "m4"))

	assert.Empty(t, b.events)
	settled := a.all()
	require.Len(t, settled, 1)
	assert.True(t, settled[0].Acked)
}

func TestRegisterDuplicateTaskType(t *testing.T) {
	h := NewHarness(newStubBus(), &stubAcker{})

	fn := func(context.Context, map[string]any) (Result, error) { return Result{}, nil }
	require.NoError(t, h.Register(Func{AgentName: "a", Task: "generate-candidates", Fn: fn}))

	err := h.Register(Func{AgentName: "b", Task: "generate-candidates", Fn: fn})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindConflict))
}
