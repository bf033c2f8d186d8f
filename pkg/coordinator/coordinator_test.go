package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/policy"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/queue"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

type stubAdmitter struct {
	mu       sync.Mutex
	decision policy.Decision
	active   int
	admitted []string
	released []string
}

func (a *stubAdmitter) Admit(sagaID, _ string, _, _ int) policy.Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.decision.Approved {
		a.admitted = append(a.admitted, sagaID)
	}
	return a.decision
}

func (a *stubAdmitter) Release(sagaID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.released = append(a.released, sagaID)
}

func (a *stubAdmitter) ActiveSagas() int { return a.active }

type stubQueues struct {
	mu         sync.Mutex
	depth      int
	enqueueErr error
	tasks      []struct {
		Queue   string
		Type    string
		Payload map[string]any
		Opts    queue.EnqueueOptions
	}
}

func (q *stubQueues) Enqueue(_ context.Context, queueName, msgType string, payload map[string]any, opts queue.EnqueueOptions) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	q.tasks = append(q.tasks, struct {
		Queue   string
		Type    string
		Payload map[string]any
		Opts    queue.EnqueueOptions
	}{queueName, msgType, payload, opts})
	return "msg-1", nil
}

func (q *stubQueues) Depth(string) (int, error) { return q.depth, nil }

type stubBus struct {
	mu     sync.Mutex
	err    error
	events []types.Event
}

func (b *stubBus) Publish(_ context.Context, _ string, ev types.Event) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.events = append(b.events, ev)
	return ev.ID, nil
}

func newTestCoordinator(approved bool) (*Coordinator, *stubBus, *stubQueues, *stubAdmitter) {
	b := &stubBus{}
	q := &stubQueues{}
	a := &stubAdmitter{decision: policy.Decision{Approved: approved, Reason: ""}}
	if !approved {
		a.decision.Reason = policy.ReasonRateLimit
	}
	c := New()
	c.Wire(b, q, a)
	return c, b, q, a
}

func TestSubmitPlanAdmitted(t *testing.T) {
	c, b, q, a := newTestCoordinator(true)

	ticket, err := c.SubmitPlan(context.Background(), PlanRequest{
		ClientIP: "10.0.0.1",
		Payload:  map[string]any{"destination": "lisbon"},
	})
	require.NoError(t, err)
	assert.True(t, ticket.Accepted)
	assert.NotEmpty(t, ticket.SagaID)
	assert.NotEmpty(t, ticket.CorrelationID)
	assert.Contains(t, a.admitted, ticket.SagaID)

	require.Len(t, q.tasks, 1)
	task := q.tasks[0]
	assert.Equal(t, types.QueueSearchRequests, task.Queue)
	assert.Equal(t, "plan-request", task.Type)
	assert.Equal(t, ticket.SagaID, task.Opts.SagaID)
	assert.Equal(t, "10.0.0.1", task.Payload["clientIp"])

	require.Len(t, b.events, 1)
	ev := b.events[0]
	assert.Equal(t, types.TopicIntent, ev.Type)
	assert.Equal(t, ticket.SagaID, ev.SagaID)
	assert.Equal(t, ticket.CorrelationID, ev.CorrelationID)
	assert.Equal(t, "lisbon", ev.Data["destination"])
}

func TestSubmitPlanCarriesRevisions(t *testing.T) {
	c, b, _, _ := newTestCoordinator(true)

	_, err := c.SubmitPlan(context.Background(), PlanRequest{
		ClientIP:  "10.0.0.1",
		Payload:   map[string]any{"destination": "lisbon"},
		Revisions: []map[string]any{{"field": "dates"}},
	})
	require.NoError(t, err)

	require.Len(t, b.events, 1)
	revs, ok := b.events[0].Data["revisions"].([]any)
	require.True(t, ok)
	assert.Len(t, revs, 1)
}

func TestSubmitPlanDenied(t *testing.T) {
	c, b, q, _ := newTestCoordinator(false)

	ticket, err := c.SubmitPlan(context.Background(), PlanRequest{
		ClientIP: "10.0.0.1",
		Payload:  map[string]any{"destination": "lisbon"},
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindRateLimited))
	assert.False(t, ticket.Accepted)
	assert.Equal(t, policy.ReasonRateLimit, ticket.Reason)
	assert.Empty(t, q.tasks)
	assert.Empty(t, b.events)
}

func TestSubmitPlanValidation(t *testing.T) {
	c, _, _, _ := newTestCoordinator(true)

	_, err := c.SubmitPlan(context.Background(), PlanRequest{Payload: map[string]any{}})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSchemaError))

	_, err = c.SubmitPlan(context.Background(), PlanRequest{ClientIP: "10.0.0.1"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSchemaError))
}

func TestSubmitPlanEnqueueFailureReleasesAdmission(t *testing.T) {
	c, _, q, a := newTestCoordinator(true)
	q.enqueueErr = types.E(types.KindQueueFull, "queue.enqueue", "queue full")

	_, err := c.SubmitPlan(context.Background(), PlanRequest{
		ClientIP: "10.0.0.1",
		Payload:  map[string]any{"destination": "lisbon"},
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindQueueFull))
	require.Len(t, a.admitted, 1)
	assert.Equal(t, a.admitted, a.released)
}

func TestSubmitPlanPublishFailureReleasesAdmission(t *testing.T) {
	c, b, _, a := newTestCoordinator(true)
	b.err = errors.New("bus down")

	_, err := c.SubmitPlan(context.Background(), PlanRequest{
		ClientIP: "10.0.0.1",
		Payload:  map[string]any{"destination": "lisbon"},
	})
	require.Error(t, err)
	require.Len(t, a.admitted, 1)
	assert.Equal(t, a.admitted, a.released)
}
