package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/agent"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/bus"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/coordinator"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/metrics"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/state"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return cfg
}

func newTestCore(t *testing.T, cfg *config.Config) *Core {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

// echoAgent completes its stage immediately, reporting a passing check.
func echoAgent(name, task, completion string) agent.Func {
	return agent.Func{
		AgentName: name,
		Task:      task,
		Fn: func(_ context.Context, in map[string]any) (agent.Result, error) {
			return agent.Result{Topic: completion, Data: map[string]any{
				"passed": true,
				"state":  in["state"],
			}}, nil
		},
	}
}

func registerPipelineAgents(t *testing.T, c *Core) {
	t.Helper()
	silent := agent.Func{
		AgentName: "intake",
		Task:      "plan-request",
		Fn: func(context.Context, map[string]any) (agent.Result, error) {
			return agent.Result{}, nil
		},
	}
	require.NoError(t, c.Agents.Register(silent))

	for _, a := range []agent.Func{
		echoAgent("candidate-gen", "generate-candidates", types.TopicCandidates),
		echoAgent("availability", "validate-availability", types.TopicAvailability),
		echoAgent("ranker", "rank-candidates", types.TopicSelectionProp),
		echoAgent("selector", "confirm-selection", types.TopicSelectionConf),
		echoAgent("enricher", "enrich-itinerary", types.TopicItinerary),
		echoAgent("builder", "build-output", types.TopicOutput),
		echoAgent("final-verifier", "final-verify", types.TopicConstraints),
		echoAgent("packager", "package-output", "package-ready"),
	} {
		require.NoError(t, c.Agents.Register(a))
	}
}

func TestCorePlanRunsToCompletion(t *testing.T) {
	c := newTestCore(t, testConfig(t))
	registerPipelineAgents(t, c)

	var mu sync.Mutex
	var completed []types.Event
	_, err := c.Bus.Subscribe(types.TopicWorkflowComplete, func(_ context.Context, ev types.Event) error {
		mu.Lock()
		completed = append(completed, ev)
		mu.Unlock()
		return nil
	}, bus.DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))

	ticket, err := c.Coordinator.SubmitPlan(context.Background(), coordinator.PlanRequest{
		ClientIP: "10.0.0.1",
		Payload:  map[string]any{"destination": "lisbon", "budget": 2000.0},
	})
	require.NoError(t, err)
	require.True(t, ticket.Accepted)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(completed) == 1
	}, 15*time.Second, 50*time.Millisecond, "saga did not complete")

	mu.Lock()
	done := completed[0]
	mu.Unlock()
	assert.Equal(t, ticket.SagaID, done.SagaID)
	assert.Equal(t, ticket.CorrelationID, done.CorrelationID)

	stats := c.Workflow.Stats()
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Equal(t, 0, stats.Active)

	// The admission slot is released on completion.
	assert.Eventually(t, func() bool {
		return c.Policy.ActiveSagas() == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCoreAdmissionDenial(t *testing.T) {
	cfg := testConfig(t)
	cfg.Policy.Admission.MaxRequests = 0

	c := newTestCore(t, cfg)
	require.NoError(t, c.Start(context.Background()))

	ticket, err := c.Coordinator.SubmitPlan(context.Background(), coordinator.PlanRequest{
		ClientIP: "10.0.0.1",
		Payload:  map[string]any{"destination": "lisbon"},
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindRateLimited))
	assert.False(t, ticket.Accepted)
	assert.Len(t, c.Workflow.Sagas(), 0)
}

func TestCoreStateChangesReachTheBus(t *testing.T) {
	c := newTestCore(t, testConfig(t))
	require.NoError(t, c.Start(context.Background()))

	var mu sync.Mutex
	var changes []types.Event
	_, err := c.Bus.Subscribe(types.TopicStateSubscription, func(_ context.Context, ev types.Event) error {
		mu.Lock()
		changes = append(changes, ev)
		mu.Unlock()
		return nil
	}, bus.DefaultOptions())
	require.NoError(t, err)

	_, err = c.State.Set(context.Background(), types.NamespaceSearchCache, "q1",
		map[string]any{"results": 3}, state.SetOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 1
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	ev := changes[0]
	mu.Unlock()
	assert.Equal(t, types.NamespaceSearchCache, ev.Data["namespace"])
	assert.Equal(t, "q1", ev.Data["key"])
}

func TestCoreManualConflictFilesViolation(t *testing.T) {
	c := newTestCore(t, testConfig(t))
	require.NoError(t, c.Start(context.Background()))

	ctx := context.Background()
	_, err := c.State.Set(ctx, types.NamespaceSystemConfig, "flags", "v1", state.SetOptions{})
	require.NoError(t, err)

	// A stale-version write to a manual-conflict namespace is refused and
	// lands in the violation ledger.
	_, err = c.State.Set(ctx, types.NamespaceSystemConfig, "flags", "v2",
		state.SetOptions{ExpectedVersion: "stale"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindConflict))

	violations := c.Policy.Violations()
	require.NotEmpty(t, violations)
	assert.Equal(t, "state_conflict", violations[0].Kind)
}

func TestCoreStopIdempotent(t *testing.T) {
	c := newTestCore(t, testConfig(t))
	require.NoError(t, c.Start(context.Background()))

	c.Stop()
	c.Stop()
}

func TestCoreStateBridgeServesBusRequests(t *testing.T) {
	c := newTestCore(t, testConfig(t))

	replies := make(chan types.Event, 4)
	for _, topic := range []string{
		types.StateTopic("set", "response"),
		types.StateTopic("get", "response"),
		types.StateTopic("get", "error"),
	} {
		_, err := c.Bus.Subscribe(topic, func(_ context.Context, ev types.Event) error {
			replies <- ev
			return nil
		}, bus.DefaultOptions())
		require.NoError(t, err)
	}

	require.NoError(t, c.Start(context.Background()))
	ctx := context.Background()

	setReq := types.NewEvent(types.StateTopic("set", "request"), map[string]any{
		"namespace": types.NamespaceSearchCache,
		"key":       "q9",
		"value":     map[string]any{"results": 2},
	})
	setID, err := c.Bus.Publish(ctx, types.StateTopic("set", "request"), setReq)
	require.NoError(t, err)

	var setReply types.Event
	select {
	case setReply = <-replies:
	case <-time.After(5 * time.Second):
		t.Fatal("no set response")
	}
	assert.Equal(t, types.StateTopic("set", "response"), setReply.Type)
	assert.Equal(t, setID, setReply.Data["requestId"])
	assert.NotEmpty(t, setReply.Data["version"])

	getReq := types.NewEvent(types.StateTopic("get", "request"), map[string]any{
		"namespace": types.NamespaceSearchCache,
		"key":       "q9",
	})
	_, err = c.Bus.Publish(ctx, types.StateTopic("get", "request"), getReq)
	require.NoError(t, err)

	var getReply types.Event
	select {
	case getReply = <-replies:
	case <-time.After(5 * time.Second):
		t.Fatal("no get response")
	}
	assert.Equal(t, types.StateTopic("get", "response"), getReply.Type)
	assert.Equal(t, true, getReply.Data["found"])
	assert.Equal(t, map[string]any{"results": 2}, getReply.Data["value"])

	// A malformed request is answered on the error topic, not retried.
	badReq := types.NewEvent(types.StateTopic("get", "request"), map[string]any{"key": "q9"})
	_, err = c.Bus.Publish(ctx, types.StateTopic("get", "request"), badReq)
	require.NoError(t, err)

	var errReply types.Event
	select {
	case errReply = <-replies:
	case <-time.After(5 * time.Second):
		t.Fatal("no error reply")
	}
	assert.Equal(t, types.StateTopic("get", "error"), errReply.Type)
	assert.Equal(t, string(types.KindSchemaError), errReply.Data["kind"])
}

func TestCoreRegistersReadinessGates(t *testing.T) {
	c := newTestCore(t, testConfig(t))
	require.NoError(t, c.Start(context.Background()))

	st := metrics.GetReadiness()
	assert.Equal(t, "ready", st.Status)
	for _, gate := range []string{"bus-dlq", "queue-backlog", "state-degraded"} {
		assert.Equal(t, "ready", st.Components[gate])
	}

	c.Stop()
	st = metrics.GetReadiness()
	assert.Equal(t, "not_ready", st.Status)
}
