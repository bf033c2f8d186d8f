package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testStateConfig() config.StateConfig {
	return config.StateConfig{
		SweepInterval: config.Duration(time.Hour),
		LockTimeout:   config.Duration(10 * time.Second),
		TxTimeout:     config.Duration(30 * time.Second),
		MaxLocks:      100,
		MaxTx:         10,
		Namespaces: map[string]config.NamespaceConfig{
			"plain": {
				Consistency: config.ConsistencyEventual,
				MaxSize:     100, CompressionThreshold: 1024,
				Indexing: true, Conflict: config.ConflictLastWriteWins,
			},
			"cached": {
				Consistency: config.ConsistencyEventual,
				TTL:         config.Duration(time.Minute),
				MaxSize:     100, CompressionThreshold: 1024,
				Conflict: config.ConflictLastWriteWins,
			},
			"durable": {
				Consistency: config.ConsistencyStrong,
				MaxSize:     100, CompressionThreshold: 1024,
				Replication:       true,
				ReplicationFactor: 3, WriteQuorum: 2, ReadQuorum: 2,
				Versioning: true,
				Conflict:   config.ConflictFirstWriteWins,
			},
			"merged": {
				Consistency: config.ConsistencyEventual,
				MaxSize:     100, CompressionThreshold: 1024,
				Conflict: config.ConflictMerge,
			},
			"appended": {
				Consistency: config.ConsistencyWeak,
				MaxSize:     100, CompressionThreshold: 1024,
				Conflict: config.ConflictAppend,
			},
			"guarded": {
				Consistency: config.ConsistencyEventual,
				MaxSize:     100, CompressionThreshold: 1024,
				Conflict: config.ConflictManual,
			},
			"versioned": {
				Consistency: config.ConsistencyEventual,
				MaxSize:     100, CompressionThreshold: 1024,
				Versioning: true, Conflict: config.ConflictLastWriteWins,
			},
		},
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeClock, *InMemoryReplicator) {
	t.Helper()
	clock := newFakeClock()
	repl := NewInMemoryReplicator(3)
	m, err := New(testStateConfig(), Deps{Clock: clock, Replicator: repl})
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m, clock, repl
}

func TestSetGetRoundtrip(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.Set(ctx, "plain", "user:1", map[string]any{"name": "ada"}, SetOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Version)

	got, err := m.Get(ctx, "plain", "user:1", GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, map[string]any{"name": "ada"}, got.Value)
	assert.Equal(t, res.Version, got.Metadata.Version)
	assert.Equal(t, uint64(1), got.Metadata.AccessCount)
}

func TestGetMissingReturnsNil(t *testing.T) {
	m, _, _ := newTestManager(t)

	got, err := m.Get(context.Background(), "plain", "nope", GetOptions{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUnknownNamespace(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Set(context.Background(), "ghost", "k", 1, SetOptions{})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindNotFound))
}

func TestTTLExpiry(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "cached", "search:abc", "results", SetOptions{})
	require.NoError(t, err)

	got, err := m.Get(ctx, "cached", "search:abc", GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)

	clock.Advance(2 * time.Minute)

	got, err = m.Get(ctx, "cached", "search:abc", GetOptions{})
	require.NoError(t, err)
	assert.Nil(t, got, "expired entry must read as missing")

	exists, err := m.Exists(ctx, "cached", "search:abc")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPerCallTTLOverride(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	long := 10 * time.Minute
	_, err := m.Set(ctx, "cached", "k1", 1, SetOptions{TTL: &long})
	require.NoError(t, err)

	none := time.Duration(-1)
	_, err = m.Set(ctx, "cached", "k2", 2, SetOptions{TTL: &none})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	remaining, ok, err := m.TTL("cached", "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, remaining)

	_, ok, err = m.TTL("cached", "k2")
	require.NoError(t, err)
	assert.False(t, ok, "negative TTL override disables expiry")
}

func TestTTLMissingKey(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, _, err := m.TTL("cached", "absent")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindNotFound))
}

func TestExpireAndPersist(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "plain", "k", "v", SetOptions{})
	require.NoError(t, err)

	ok, err := m.Expire("plain", "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, hasTTL, err := m.TTL("plain", "k")
	require.NoError(t, err)
	assert.True(t, hasTTL)

	ok, err = m.Persist("plain", "k")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(time.Hour)
	got, err := m.Get(ctx, "plain", "k", GetOptions{})
	require.NoError(t, err)
	assert.NotNil(t, got, "persisted key must not expire")
}

func TestDelete(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "plain", "k", "v", SetOptions{})
	require.NoError(t, err)

	existed, err := m.Delete(ctx, "plain", "k", "")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = m.Delete(ctx, "plain", "k", "")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestKeysGlob(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	for _, k := range []string{"session:a", "session:b", "pref:a"} {
		_, err := m.Set(ctx, "plain", k, 1, SetOptions{})
		require.NoError(t, err)
	}

	keys, err := m.Keys("plain", "session:*", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"session:a", "session:b"}, keys)

	keys, err = m.Keys("plain", "*", 2)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestQueryIndex(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "plain", "b1", map[string]any{"type": "hotel", "status": "held"}, SetOptions{})
	require.NoError(t, err)
	_, err = m.Set(ctx, "plain", "b2", map[string]any{"type": "flight", "status": "held"}, SetOptions{})
	require.NoError(t, err)

	hits, err := m.Query("plain", "type", "hotel", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b1", hits[0].Key)

	hits, err = m.Query("plain", "status", "held", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	// Updates move index membership.
	_, err = m.Set(ctx, "plain", "b1", map[string]any{"type": "hotel", "status": "confirmed"}, SetOptions{})
	require.NoError(t, err)
	hits, err = m.Query("plain", "status", "held", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestQueryRequiresIndexing(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Query("cached", "type", "hotel", 0)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSchemaError))
}

func TestMSetMGet(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	results, err := m.MSet(ctx, "plain", map[string]any{"a": 1, "b": 2}, SetOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	got, err := m.MGet(ctx, "plain", []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, got["a"].Value)
}

func TestIncrement(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	n, err := m.Increment(ctx, "plain", "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = m.Increment(ctx, "plain", "counter", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = m.Set(ctx, "plain", "text", "nope", SetOptions{})
	require.NoError(t, err)
	_, err = m.Increment(ctx, "plain", "text", 1)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSchemaError))
}

func TestConflictLastWriteWins(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "plain", "k", "old", SetOptions{})
	require.NoError(t, err)

	_, err = m.Set(ctx, "plain", "k", "new", SetOptions{ExpectedVersion: "stale-version"})
	require.NoError(t, err)

	got, err := m.Get(ctx, "plain", "k", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "new", got.Value)
}

func TestConflictFirstWriteWins(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "durable", "booking:1", "original", SetOptions{})
	require.NoError(t, err)

	_, err = m.Set(ctx, "durable", "booking:1", "intruder", SetOptions{ExpectedVersion: "stale-version"})
	require.NoError(t, err)

	got, err := m.Get(ctx, "durable", "booking:1", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "original", got.Value, "first write must survive the conflict")
}

func TestConflictMerge(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "merged", "prefs:u1", map[string]any{"seat": "aisle", "meal": "veg"}, SetOptions{})
	require.NoError(t, err)

	_, err = m.Set(ctx, "merged", "prefs:u1", map[string]any{"meal": "vegan"}, SetOptions{ExpectedVersion: "stale"})
	require.NoError(t, err)

	got, err := m.Get(ctx, "merged", "prefs:u1", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"seat": "aisle", "meal": "vegan"}, got.Value)
}

func TestConflictAppend(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "appended", "events", []any{"a"}, SetOptions{})
	require.NoError(t, err)

	_, err = m.Set(ctx, "appended", "events", []any{"b"}, SetOptions{ExpectedVersion: "stale"})
	require.NoError(t, err)

	got, err := m.Get(ctx, "appended", "events", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got.Value)
}

func TestConflictManual(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	var hookNS, hookKey string
	m.ConflictHook = func(ns, key string) { hookNS, hookKey = ns, key }

	_, err := m.Set(ctx, "guarded", "cfg", "v1", SetOptions{})
	require.NoError(t, err)

	_, err = m.Set(ctx, "guarded", "cfg", "v2", SetOptions{ExpectedVersion: "stale"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindConflict))
	assert.Equal(t, "guarded", hookNS)
	assert.Equal(t, "cfg", hookKey)

	got, err := m.Get(ctx, "guarded", "cfg", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Value)
}

func TestVersionHistory(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Set(ctx, "versioned", "doc", "rev1", SetOptions{})
	require.NoError(t, err)
	_, err = m.Set(ctx, "versioned", "doc", "rev2", SetOptions{})
	require.NoError(t, err)

	hist, err := m.Get(ctx, "versioned", "doc:"+first.Version, GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, hist, "versioned namespaces keep prior revisions")
	assert.Equal(t, "rev1", hist.Value)
}

func TestLockBlocksWriters(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	lockID, err := m.Lock(ctx, "plain", "hot", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, m.IsLocked("plain", "hot"))

	_, err = m.Set(ctx, "plain", "hot", 1, SetOptions{})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindConflict))

	_, err = m.Set(ctx, "plain", "hot", 1, SetOptions{LockID: lockID})
	require.NoError(t, err)

	require.NoError(t, m.Unlock("plain", "hot", lockID))
	assert.False(t, m.IsLocked("plain", "hot"))
}

func TestLockReentrant(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	id1, err := m.Lock(ctx, "plain", "k", "owner-a", time.Minute)
	require.NoError(t, err)
	id2, err := m.Lock(ctx, "plain", "k", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestLockExpiry(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Lock(ctx, "plain", "k", "owner-a", time.Second)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)

	// A different owner acquires immediately once the TTL lapsed.
	acqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = m.Lock(acqCtx, "plain", "k", "owner-b", time.Minute)
	require.NoError(t, err)
}

func TestUnlockIDMismatch(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Lock(context.Background(), "plain", "k", "owner-a", time.Minute)
	require.NoError(t, err)

	err = m.Unlock("plain", "k", "wrong-id")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindConflict))
}

func TestStrongWriteQuorumFailure(t *testing.T) {
	m, _, repl := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "durable", "booking:q", "confirmed-rate", SetOptions{})
	require.NoError(t, err)

	// Two of three replicas down: write quorum of 2 is unreachable.
	repl.SetReplicaDown(1, true)
	repl.SetReplicaDown(2, true)

	_, err = m.Set(ctx, "durable", "booking:q", "clobbered", SetOptions{})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindResourceExhausted))

	repl.SetReplicaDown(1, false)
	repl.SetReplicaDown(2, false)

	got, err := m.Get(ctx, "durable", "booking:q", GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "confirmed-rate", got.Value, "failed quorum write must leave prior value intact")
}

func TestEventualCatchUp(t *testing.T) {
	m, _, repl := newTestManager(t)
	ctx := context.Background()

	cfg := config.NamespaceConfig{
		Consistency: config.ConsistencyEventual,
		MaxSize:     10, Replication: true, ReplicationFactor: 3,
		Conflict: config.ConflictLastWriteWins,
	}
	require.NoError(t, m.CreateNamespace("replicated", cfg))

	repl.SetReplicaDown(2, true)
	_, err := m.Set(ctx, "replicated", "k", "v", SetOptions{})
	require.NoError(t, err)
	assert.Positive(t, repl.PendingWrites())

	repl.SetReplicaDown(2, false)
	require.NoError(t, repl.Flush(ctx))
	assert.Zero(t, repl.PendingWrites())
}

func TestSubscribe(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	events := make(chan ChangeEvent, 4)
	subID, err := m.Subscribe("plain", "watched:*", func(ev ChangeEvent) { events <- ev })
	require.NoError(t, err)

	_, err = m.Set(ctx, "plain", "watched:1", "v", SetOptions{})
	require.NoError(t, err)
	_, err = m.Set(ctx, "plain", "ignored", "v", SetOptions{})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "watched:1", ev.Key)
		assert.Equal(t, ChangeSet, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no change notification received")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected notification for %s", ev.Key)
	case <-time.After(50 * time.Millisecond):
	}

	assert.True(t, m.Unsubscribe("plain", subID))
	assert.False(t, m.Unsubscribe("plain", subID))
}

func TestLRUEviction(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	cfg := config.NamespaceConfig{
		Consistency: config.ConsistencyWeak,
		MaxSize:     5,
		Conflict:    config.ConflictLastWriteWins,
	}
	require.NoError(t, m.CreateNamespace("tiny", cfg))

	for i := 0; i < 6; i++ {
		key := string(rune('a' + i))
		_, err := m.Set(ctx, "tiny", key, i, SetOptions{})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	// Touch "a" so it is no longer the coldest entry.
	_, err := m.Get(ctx, "tiny", "a", GetOptions{})
	require.NoError(t, err)

	m.sweepEviction()

	got, err := m.Get(ctx, "tiny", "a", GetOptions{})
	require.NoError(t, err)
	assert.NotNil(t, got, "recently accessed entry survives eviction")

	got, err = m.Get(ctx, "tiny", "b", GetOptions{})
	require.NoError(t, err)
	assert.Nil(t, got, "least recently accessed entry is evicted")
}

func TestNamespaceLifecycle(t *testing.T) {
	m, _, _ := newTestManager(t)

	err := m.CreateNamespace("plain", config.NamespaceConfig{})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindConflict))

	require.NoError(t, m.CreateNamespace("extra", config.NamespaceConfig{MaxSize: 10}))
	assert.Contains(t, m.ListNamespaces(), "extra")

	require.NoError(t, m.DeleteNamespace("extra"))
	assert.NotContains(t, m.ListNamespaces(), "extra")

	err = m.DeleteNamespace("extra")
	assert.True(t, types.IsKind(err, types.KindNotFound))
}

func TestPersistenceReload(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()

	cfg := testStateConfig()
	cfg.Namespaces["saved"] = config.NamespaceConfig{
		Consistency: config.ConsistencyEventual,
		MaxSize:     100,
		Persistence: true,
		Conflict:    config.ConflictLastWriteWins,
	}

	m1, err := New(cfg, Deps{Clock: clock, DataDir: dir})
	require.NoError(t, err)
	_, err = m1.Set(context.Background(), "saved", "booking:77", map[string]any{"status": "confirmed"}, SetOptions{})
	require.NoError(t, err)
	m1.Stop()

	m2, err := New(cfg, Deps{Clock: clock, DataDir: dir})
	require.NoError(t, err)
	defer m2.Stop()

	got, err := m2.Get(context.Background(), "saved", "booking:77", GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, got, "persistent namespace reloads entries after restart")
	assert.Equal(t, map[string]any{"status": "confirmed"}, got.Value)
}

func TestExpirySweep(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "cached", "short", "v", SetOptions{})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	m.sweepExpiry(clock.Now())

	stats := m.NamespaceStats()
	for _, s := range stats {
		if s.Name == "cached" {
			assert.Zero(t, s.Keys)
			assert.Equal(t, uint64(1), s.Expired)
		}
	}
}

func TestHitMissCounters(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "plain", "k", "v", SetOptions{})
	require.NoError(t, err)

	_, err = m.Get(ctx, "plain", "k", GetOptions{})
	require.NoError(t, err)
	_, err = m.Get(ctx, "plain", "absent", GetOptions{})
	require.NoError(t, err)

	for _, s := range m.NamespaceStats() {
		if s.Name == "plain" {
			assert.Equal(t, uint64(1), s.Hits)
			assert.Equal(t, uint64(1), s.Misses)
		}
	}
}

func TestQueryAfterOverwriteDropsStaleTerms(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "plain", "trip:1", map[string]any{"city": "paris"},
		SetOptions{Indexes: []string{"city"}})
	require.NoError(t, err)

	// Overwrite without asking for the extra index field. The old term must
	// still be removed.
	_, err = m.Set(ctx, "plain", "trip:1", map[string]any{"city": "lyon"}, SetOptions{})
	require.NoError(t, err)

	hits, err := m.Query("plain", "city", "paris", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// The new write did not request city indexing either, so lyon is not
	// queryable.
	hits, err = m.Query("plain", "city", "lyon", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQueryAfterReindexedOverwrite(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Set(ctx, "plain", "trip:1", map[string]any{"city": "paris"},
		SetOptions{Indexes: []string{"city"}})
	require.NoError(t, err)
	_, err = m.Set(ctx, "plain", "trip:1", map[string]any{"city": "lyon"},
		SetOptions{Indexes: []string{"city"}})
	require.NoError(t, err)

	hits, err := m.Query("plain", "city", "paris", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = m.Query("plain", "city", "lyon", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "trip:1", hits[0].Key)
}

func TestSessionSweepUsesInjectedClock(t *testing.T) {
	clock := newFakeClock()
	tr := newSessionTracker(clock)

	tr.recordWrite("sess-1", "plain", "k", "v1")
	observedAt := clock.Now().Add(-time.Second)
	require.True(t, tr.checkRead("sess-1", "plain", "k", "v0", observedAt))

	clock.Advance(31 * time.Minute)
	tr.sweep(30 * time.Minute)

	assert.False(t, tr.checkRead("sess-1", "plain", "k", "v0", observedAt))
}
