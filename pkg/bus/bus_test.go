package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

func testBusConfig() config.BusConfig {
	return config.BusConfig{
		MaxRetries:     2,
		RetryBaseDelay: config.Duration(2 * time.Millisecond),
		HistorySize:    64,
		LaneHighWater:  16,
		DLQMaxSize:     32,
	}
}

func newTestBus(t *testing.T, cfg config.BusConfig) *EventBus {
	t.Helper()
	b := New(cfg, types.RealClock{})
	t.Cleanup(b.Shutdown)
	return b
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	got := make(chan types.Event, 1)
	_, err := b.Subscribe("search-results", func(_ context.Context, ev types.Event) error {
		got <- ev
		return nil
	}, DefaultOptions())
	require.NoError(t, err)

	ev := types.NewEvent("search-results", map[string]any{"count": 3}).WithSaga("s1", "c1")
	id, err := b.Publish(context.Background(), "search-results", ev)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case delivered := <-got:
		assert.Equal(t, id, delivered.ID)
		assert.Equal(t, "search-results", delivered.Type)
		assert.Equal(t, "s1", delivered.SagaID)
		assert.Equal(t, types.SchemaVersion, delivered.Version)
		assert.False(t, delivered.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSameSagaDeliversInPublishOrder(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	var mu sync.Mutex
	var order []int
	_, err := b.Subscribe("ordered", func(_ context.Context, ev types.Event) error {
		mu.Lock()
		order = append(order, ev.Data["n"].(int))
		mu.Unlock()
		return nil
	}, DefaultOptions())
	require.NoError(t, err)

	const n = 25
	for i := 0; i < n; i++ {
		ev := types.NewEvent("ordered", map[string]any{"n": i}).WithSaga("s1", "c1")
		_, err := b.Publish(context.Background(), "ordered", ev)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == n
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < n; i++ {
		assert.Equal(t, i, order[i])
	}
}

func TestRetrySucceedsBeforeExhaustion(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	var mu sync.Mutex
	attempts := 0
	_, err := b.Subscribe("flaky", func(_ context.Context, _ types.Event) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, DefaultOptions())
	require.NoError(t, err)

	ev := types.NewEvent("flaky", map[string]any{"x": 1}).WithSaga("s1", "c1")
	_, err = b.Publish(context.Background(), "flaky", ev)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return b.Stats().Delivered == 1
	}, 3*time.Second, 10*time.Millisecond)

	s := b.Stats()
	assert.Equal(t, uint64(2), s.Retries)
	assert.Equal(t, uint64(0), s.Failures)
	assert.Equal(t, 0, s.DLQDepth)
}

func TestExhaustedRetriesRouteToDLQ(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	notices := make(chan types.Event, 1)
	_, err := b.Subscribe(types.TopicDLQMessage, func(_ context.Context, ev types.Event) error {
		notices <- ev
		return nil
	}, DefaultOptions())
	require.NoError(t, err)

	_, err = b.Subscribe("doomed", func(_ context.Context, _ types.Event) error {
		return errors.New("handler always fails")
	}, DefaultOptions())
	require.NoError(t, err)

	ev := types.NewEvent("doomed", map[string]any{"x": 1}).WithSaga("s1", "c1")
	id, err := b.Publish(context.Background(), "doomed", ev)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return b.Stats().DLQDepth == 1
	}, 3*time.Second, 10*time.Millisecond)

	records := b.DeadLetters()
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].OriginalEvent.ID)
	assert.True(t, records[0].RequiresApproval)
	assert.Contains(t, records[0].Error, "always fails")

	select {
	case notice := <-notices:
		assert.Equal(t, records[0].ID, notice.Data["recordId"])
		assert.Equal(t, "doomed", notice.Data["originalTopic"])
		assert.Equal(t, "s1", notice.SagaID)
	case <-time.After(2 * time.Second):
		t.Fatal("dlq-message event not published")
	}
}

func TestRetryDisabledFailsImmediately(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	var mu sync.Mutex
	attempts := 0
	_, err := b.Subscribe("no-retry", func(_ context.Context, _ types.Event) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("nope")
	}, Options{Retry: false})
	require.NoError(t, err)

	ev := types.NewEvent("no-retry", map[string]any{"x": 1}).WithSaga("s1", "c1")
	_, err = b.Publish(context.Background(), "no-retry", ev)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return b.Stats().DLQDepth == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts)
	assert.Equal(t, uint64(0), b.Stats().Retries)
}

func TestAckDLQRemovesRecord(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	_, err := b.Subscribe("doomed", func(_ context.Context, _ types.Event) error {
		return errors.New("fail")
	}, Options{Retry: false})
	require.NoError(t, err)

	ev := types.NewEvent("doomed", map[string]any{"x": 1}).WithSaga("s1", "c1")
	_, err = b.Publish(context.Background(), "doomed", ev)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return b.Stats().DLQDepth == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec := b.DeadLetters()[0]
	assert.True(t, b.AckDLQ(rec.ID))
	assert.Equal(t, 0, b.Stats().DLQDepth)
	assert.False(t, b.AckDLQ(rec.ID))
}

func TestSchemaValidatorRejectsPayload(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	b.RegisterSchema("typed", func(data map[string]any) error {
		if _, ok := data["required"]; !ok {
			return errors.New("missing required field")
		}
		return nil
	})

	bad := types.NewEvent("typed", map[string]any{"other": 1}).WithSaga("s1", "c1")
	_, err := b.Publish(context.Background(), "typed", bad)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSchemaError))

	good := types.NewEvent("typed", map[string]any{"required": true}).WithSaga("s1", "c1")
	_, err = b.Publish(context.Background(), "typed", good)
	require.NoError(t, err)
}

func TestDomainTopicRequiresCorrelation(t *testing.T) {
	cfg := testBusConfig()
	cfg.RequireCorrelation = true
	b := newTestBus(t, cfg)

	ev := types.NewEvent(types.TopicIntent, map[string]any{"x": 1})
	_, err := b.Publish(context.Background(), types.TopicIntent, ev)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSchemaError))

	tagged := types.NewEvent(types.TopicIntent, map[string]any{"x": 1}).WithSaga("s1", "c1")
	_, err = b.Publish(context.Background(), types.TopicIntent, tagged)
	require.NoError(t, err)

	// Non-domain topics stay exempt from correlation tracking.
	plain := types.NewEvent("internal-tick", map[string]any{"x": 1})
	_, err = b.Publish(context.Background(), "internal-tick", plain)
	require.NoError(t, err)
}

func TestPublishRejectsMalformedEvent(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	_, err := b.Publish(context.Background(), "topic", types.Event{})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSchemaError))
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev := types.NewEvent("topic", map[string]any{"x": 1})
	_, err := b.Publish(ctx, "topic", ev)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindCancelled))
}

func TestHistoryFiltersAndOrders(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	for i := 0; i < 3; i++ {
		ev := types.NewEvent("a", map[string]any{"n": i}).WithSaga("s1", "c1")
		_, err := b.Publish(context.Background(), "a", ev)
		require.NoError(t, err)
	}
	other := types.NewEvent("b", map[string]any{"n": 99}).WithSaga("s2", "c2")
	_, err := b.Publish(context.Background(), "b", other)
	require.NoError(t, err)

	bySaga := b.History(Filter{SagaID: "s1"})
	require.Len(t, bySaga, 3)
	assert.Equal(t, 0, bySaga[0].Data["n"])
	assert.Equal(t, 2, bySaga[2].Data["n"])

	byType := b.History(Filter{Type: "b"})
	require.Len(t, byType, 1)
	assert.Equal(t, "s2", byType[0].SagaID)

	all := b.History(Filter{})
	assert.Len(t, all, 4)
}

func TestHistoryRingEvictsOldest(t *testing.T) {
	cfg := testBusConfig()
	cfg.HistorySize = 4
	b := newTestBus(t, cfg)

	for i := 0; i < 6; i++ {
		ev := types.NewEvent("a", map[string]any{"n": i}).WithSaga("s1", "c1")
		_, err := b.Publish(context.Background(), "a", ev)
		require.NoError(t, err)
	}

	all := b.History(Filter{})
	require.Len(t, all, 4)
	assert.Equal(t, 2, all[0].Data["n"])
	assert.Equal(t, 5, all[3].Data["n"])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	got := make(chan types.Event, 4)
	subID, err := b.Subscribe("a", func(_ context.Context, ev types.Event) error {
		got <- ev
		return nil
	}, DefaultOptions())
	require.NoError(t, err)

	ev := types.NewEvent("a", map[string]any{"n": 1}).WithSaga("s1", "c1")
	_, err = b.Publish(context.Background(), "a", ev)
	require.NoError(t, err)

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("first event not delivered")
	}

	require.True(t, b.Unsubscribe(subID))
	require.False(t, b.Unsubscribe(subID))

	ev2 := types.NewEvent("a", map[string]any{"n": 2}).WithSaga("s1", "c1")
	_, err = b.Publish(context.Background(), "a", ev2)
	require.NoError(t, err)

	select {
	case <-got:
		t.Fatal("event delivered after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLaneOverflowRoutesToDLQ(t *testing.T) {
	cfg := testBusConfig()
	cfg.LaneHighWater = 1
	b := newTestBus(t, cfg)

	release := make(chan struct{})
	_, err := b.Subscribe("slow", func(_ context.Context, _ types.Event) error {
		<-release
		return nil
	}, Options{Retry: false})
	require.NoError(t, err)
	defer close(release)

	// First event occupies the handler, second fills the lane buffer, the
	// rest must overflow.
	for i := 0; i < 5; i++ {
		ev := types.NewEvent("slow", map[string]any{"n": i}).WithSaga("s1", "c1")
		_, err := b.Publish(context.Background(), "slow", ev)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		s := b.Stats()
		return s.LaneOverflow >= 1 && s.DLQDepth >= 1
	}, 3*time.Second, 10*time.Millisecond)

	rec := b.DeadLetters()[0]
	assert.Contains(t, rec.Error, "high-water")
}

func TestStatsCountsTopicsAndSubscribers(t *testing.T) {
	b := newTestBus(t, testBusConfig())

	_, err := b.Subscribe("a", func(_ context.Context, _ types.Event) error { return nil }, DefaultOptions())
	require.NoError(t, err)
	_, err = b.Subscribe("b", func(_ context.Context, _ types.Event) error { return nil }, DefaultOptions())
	require.NoError(t, err)

	s := b.Stats()
	assert.Equal(t, 2, s.Topics)
	assert.Equal(t, 2, s.Subscribers)
}

func TestLaneReclaimDoesNotLoseEvents(t *testing.T) {
	prev := laneIdleTimeout
	laneIdleTimeout = 2 * time.Millisecond
	defer func() { laneIdleTimeout = prev }()

	b := newTestBus(t, testBusConfig())

	var mu sync.Mutex
	received := 0
	_, err := b.Subscribe("churn", func(_ context.Context, _ types.Event) error {
		mu.Lock()
		received++
		mu.Unlock()
		return nil
	}, DefaultOptions())
	require.NoError(t, err)

	// Space publishes past the idle timeout so each one races a lane
	// reclaim. Every event must still be delivered exactly once.
	const n = 30
	for i := 0; i < n; i++ {
		ev := types.NewEvent("churn", map[string]any{"n": i}).WithSaga("s1", "c1")
		_, err := b.Publish(context.Background(), "churn", ev)
		require.NoError(t, err)
		time.Sleep(3 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received == n
	}, 3*time.Second, 5*time.Millisecond)

	s := b.Stats()
	assert.Equal(t, uint64(n), s.Delivered)
	assert.Equal(t, 0, s.DLQDepth)
}
