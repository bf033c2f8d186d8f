package state

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/log"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Manager is the namespaced key/value state manager: TTLs, LRU eviction,
// secondary indexes, optimistic versioning, locks, transactions,
// subscriptions, and pluggable consistency.
type Manager struct {
	cfg    config.StateConfig
	clock  types.Clock
	logger zerolog.Logger

	codec      Codec
	cipher     Cipher
	replicator Replicator
	persist    *persistStore

	mu         sync.RWMutex
	namespaces map[string]*namespace

	locks    *lockTable
	txs      *txTable
	sessions *sessionTracker

	// ChangeHook, when set, observes every set/delete after local commit.
	// The core wires it to the event bus. Set before Start.
	ChangeHook func(ChangeEvent)
	// ConflictHook observes manual-mode conflicts. The core wires it to
	// the policy violation ledger. Set before Start.
	ConflictHook func(namespace, key string)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	healthMu sync.Mutex
	degraded bool
}

// Deps carries the pluggable capabilities. Zero values get safe defaults:
// gzip codec, pass-through cipher, a single in-memory replica, no
// persistence.
type Deps struct {
	Clock      types.Clock
	Codec      Codec
	Cipher     Cipher
	Replicator Replicator
	DataDir    string
}

// New creates a state manager and its built-in namespaces. Call Start to
// run maintenance sweeps and Stop to shut down.
func New(cfg config.StateConfig, deps Deps) (*Manager, error) {
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	if deps.Codec == nil {
		deps.Codec = GzipCodec{}
	}
	if deps.Cipher == nil {
		deps.Cipher = NoopCipher{}
	}
	if deps.Replicator == nil {
		deps.Replicator = NewInMemoryReplicator(3)
	}

	m := &Manager{
		cfg:        cfg,
		clock:      deps.Clock,
		logger:     log.WithComponent("state-manager"),
		codec:      deps.Codec,
		cipher:     deps.Cipher,
		replicator: deps.Replicator,
		namespaces: make(map[string]*namespace),
		locks:      newLockTable(deps.Clock),
		sessions:   newSessionTracker(deps.Clock),
		stopCh:     make(chan struct{}),
	}
	m.txs = newTxTable(m)

	if deps.DataDir != "" {
		ps, err := openPersistStore(deps.DataDir)
		if err != nil {
			return nil, err
		}
		m.persist = ps
	}

	for name, nsCfg := range cfg.Namespaces {
		if err := m.CreateNamespace(name, nsCfg); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Start launches the maintenance sweeps.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.runSweeper()
}

// Stop stops maintenance and closes the persistence store.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	if m.persist != nil {
		if err := m.persist.close(); err != nil {
			m.logger.Error().Err(err).Msg("failed to close persistence store")
		}
	}
}

// CreateNamespace registers a namespace. Duplicate names are a Conflict.
// Persistent namespaces reload their entries from disk.
func (m *Manager) CreateNamespace(name string, nsCfg config.NamespaceConfig) error {
	m.mu.Lock()
	if _, exists := m.namespaces[name]; exists {
		m.mu.Unlock()
		return types.E(types.KindConflict, "state.createNamespace", "namespace already exists: "+name)
	}
	ns := newNamespace(name, nsCfg)
	m.namespaces[name] = ns
	m.mu.Unlock()

	if nsCfg.Persistence && m.persist != nil {
		if err := m.reloadNamespace(ns); err != nil {
			m.logger.Error().Err(err).Str("namespace", name).Msg("failed to reload persisted entries")
		}
	}
	m.logger.Info().Str("namespace", name).Str("consistency", string(nsCfg.Consistency)).Msg("namespace created")
	return nil
}

// DeleteNamespace destroys a namespace and its persisted data.
func (m *Manager) DeleteNamespace(name string) error {
	m.mu.Lock()
	ns, ok := m.namespaces[name]
	if !ok {
		m.mu.Unlock()
		return types.E(types.KindNotFound, "state.deleteNamespace", "namespace not found: "+name)
	}
	delete(m.namespaces, name)
	m.mu.Unlock()

	if ns.cfg.Persistence && m.persist != nil {
		if err := m.persist.dropNamespace(name); err != nil {
			m.logger.Error().Err(err).Str("namespace", name).Msg("failed to drop persisted namespace")
		}
	}
	return nil
}

// ListNamespaces returns the namespace names, sorted.
func (m *Manager) ListNamespaces() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.namespaces))
	for name := range m.namespaces {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NamespaceStats returns per-namespace counters.
func (m *Manager) NamespaceStats() []NamespaceStats {
	m.mu.RLock()
	nss := make([]*namespace, 0, len(m.namespaces))
	for _, ns := range m.namespaces {
		nss = append(nss, ns)
	}
	m.mu.RUnlock()

	out := make([]NamespaceStats, 0, len(nss))
	degraded := m.Degraded()
	for _, ns := range nss {
		s := ns.snapshotStats()
		s.Degraded = degraded
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Degraded reports the health flag set by the maintenance sweep.
func (m *Manager) Degraded() bool {
	m.healthMu.Lock()
	defer m.healthMu.Unlock()
	return m.degraded
}

func (m *Manager) namespace(name string) (*namespace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.namespaces[name]
	if !ok {
		return nil, types.E(types.KindNotFound, "state", "namespace not found: "+name)
	}
	return ns, nil
}

// Set writes a key. The pipeline: lock check, optimistic-version conflict
// resolution, compression, encryption, version history, index update,
// replication per consistency class, persistence, change notification.
func (m *Manager) Set(ctx context.Context, nsName, key string, value any, opts SetOptions) (SetResult, error) {
	if err := ctxErr(ctx, "state.set"); err != nil {
		return SetResult{}, err
	}
	ns, err := m.namespace(nsName)
	if err != nil {
		return SetResult{}, err
	}

	if holder := m.locks.holder(nsName, key); holder != nil && holder.ID != opts.LockID {
		return SetResult{}, types.E(types.KindConflict, "state.set", "key is locked: "+nsName+"/"+key)
	}

	now := m.clock.Now()

	ns.mu.Lock()
	existing := ns.data[key]
	if existing != nil && existing.expired(now) {
		m.dropEntryLocked(ns, key, existing, true)
		existing = nil
	}

	storeValue := value
	if opts.ExpectedVersion != "" && existing != nil && existing.Version != opts.ExpectedVersion {
		ns.stats.mu.Lock()
		ns.stats.conflicts++
		ns.stats.mu.Unlock()

		resolved, cerr := resolveConflict(ns.cfg.Conflict, existing.Value, value)
		if cerr != nil {
			ns.mu.Unlock()
			if m.ConflictHook != nil {
				m.ConflictHook(nsName, key)
			}
			return SetResult{}, cerr
		}
		storeValue = resolved
	}
	ns.mu.Unlock()

	stored, compressed, encrypted, size, err := m.encode(ns.cfg, storeValue)
	if err != nil {
		return SetResult{}, types.Wrap(types.KindSchemaError, "state.set", "value not serializable", err)
	}

	version := uuid.New().String()
	ttl := resolveTTL(ns.cfg, opts.TTL)
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	rec := ReplicaRecord{
		Key: key, Stored: stored,
		Compressed: compressed, Encrypted: encrypted,
		Version: version, UpdatedAt: now,
	}

	// Strong writes are acknowledged only after the quorum accepts, so the
	// quorum round happens before local state changes; a failure leaves the
	// pre-write value in place.
	if ns.cfg.Replication && ns.cfg.Consistency == config.ConsistencyStrong {
		if err := m.replicator.WriteQuorum(ctx, nsName, rec, ns.cfg.WriteQuorum); err != nil {
			return SetResult{}, err
		}
	}

	ns.mu.Lock()
	existing = ns.data[key]
	createdAt := now
	var accessCount uint64
	if existing != nil {
		createdAt = existing.CreatedAt
		accessCount = existing.AccessCount
		ns.unindexEntry(key, existing)

		if ns.cfg.Versioning {
			hist := *existing
			ns.data[key+":"+existing.Version] = &hist
		}
	}

	entry := &Entry{
		Key:          key,
		Value:        storeValue,
		stored:       stored,
		compressed:   compressed,
		encrypted:    encrypted,
		Version:      version,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
		LastAccessed: now,
		AccessCount:  accessCount,
		TTL:          ttl,
		ExpiresAt:    expiresAt,
		Size:         size,
		Tags:         opts.Tags,
		Metadata:     opts.Metadata,
	}
	ns.data[key] = entry
	ns.indexEntry(key, entry, opts.Indexes)

	ns.stats.mu.Lock()
	ns.stats.sets++
	ns.stats.mu.Unlock()
	ns.mu.Unlock()

	if ns.cfg.Replication {
		switch ns.cfg.Consistency {
		case config.ConsistencyEventual, config.ConsistencySession:
			m.replicator.WriteAsync(nsName, rec)
		}
	}

	if ns.cfg.Persistence && m.persist != nil {
		if err := m.persist.put(nsName, key, persistRecord{
			Version:   version,
			CreatedAt: createdAt,
			UpdatedAt: now,
			TTL:       ttl,
			Flags:     persistFlags(compressed, encrypted),
			Payload:   stored,
		}); err != nil {
			m.logger.Error().Err(err).Str("namespace", nsName).Str("key", key).Msg("persist failed")
		}
	}

	if opts.SessionID != "" {
		m.sessions.recordWrite(opts.SessionID, nsName, key, version)
	}

	change := ChangeEvent{
		Namespace: nsName, Key: key, Kind: ChangeSet,
		Value: storeValue, Version: version, Timestamp: now,
	}
	ns.notify(change)
	if m.ChangeHook != nil {
		m.ChangeHook(change)
	}

	return SetResult{Version: version, Timestamp: now, ExpiresAt: expiresAt}, nil
}

// Get reads a key. A missing or expired key returns (nil, nil); expired
// entries are deleted on the spot.
func (m *Manager) Get(ctx context.Context, nsName, key string, opts GetOptions) (*GetResult, error) {
	if err := ctxErr(ctx, "state.get"); err != nil {
		return nil, err
	}
	ns, err := m.namespace(nsName)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()

	// Strong reads aggregate quorum replies and take the freshest record.
	if ns.cfg.Replication && ns.cfg.Consistency == config.ConsistencyStrong {
		rec, found, rerr := m.replicator.ReadQuorum(ctx, nsName, key, ns.cfg.ReadQuorum)
		if rerr != nil {
			return nil, rerr
		}
		if !found {
			m.missLocal(ns, key, now)
			return nil, nil
		}
		return m.resultFromReplica(ns, key, rec, now)
	}

	ns.mu.Lock()
	entry, ok := ns.data[key]
	if !ok {
		ns.mu.Unlock()
		ns.stats.mu.Lock()
		ns.stats.misses++
		ns.stats.mu.Unlock()
		return nil, nil
	}
	if entry.expired(now) {
		m.dropEntryLocked(ns, key, entry, true)
		ns.mu.Unlock()
		ns.stats.mu.Lock()
		ns.stats.misses++
		ns.stats.mu.Unlock()
		m.persistDelete(ns, key)
		return nil, nil
	}

	entry.LastAccessed = now
	entry.AccessCount++
	value, derr := m.decode(entry)
	meta := entry.meta()
	ns.mu.Unlock()

	if derr != nil {
		return nil, types.Wrap(types.KindInternal, "state.get", "failed to decode stored value", derr)
	}

	ns.stats.mu.Lock()
	ns.stats.hits++
	ns.stats.mu.Unlock()

	// Session consistency: the caller must observe its own writes. Local
	// reads always do, since writes commit locally before acking; the
	// tracker asserts the invariant and flags regressions.
	if opts.SessionID != "" && ns.cfg.Consistency == config.ConsistencySession {
		if stale := m.sessions.checkRead(opts.SessionID, nsName, key, meta.Version, meta.UpdatedAt); stale {
			m.logger.Warn().Str("namespace", nsName).Str("key", key).Msg("session read observed stale version")
		}
	}

	return &GetResult{Value: value, Metadata: meta}, nil
}

// Delete removes a key. It reports whether the key existed.
func (m *Manager) Delete(ctx context.Context, nsName, key string, lockID string) (bool, error) {
	if err := ctxErr(ctx, "state.delete"); err != nil {
		return false, err
	}
	ns, err := m.namespace(nsName)
	if err != nil {
		return false, err
	}

	if holder := m.locks.holder(nsName, key); holder != nil && holder.ID != lockID {
		return false, types.E(types.KindConflict, "state.delete", "key is locked: "+nsName+"/"+key)
	}

	now := m.clock.Now()

	ns.mu.Lock()
	entry, ok := ns.data[key]
	if !ok {
		ns.mu.Unlock()
		return false, nil
	}
	m.dropEntryLocked(ns, key, entry, false)
	ns.stats.mu.Lock()
	ns.stats.deletes++
	ns.stats.mu.Unlock()
	ns.mu.Unlock()

	rec := ReplicaRecord{Key: key, Version: entry.Version, UpdatedAt: now, Deleted: true}
	if ns.cfg.Replication {
		switch ns.cfg.Consistency {
		case config.ConsistencyStrong:
			if err := m.replicator.WriteQuorum(ctx, nsName, rec, ns.cfg.WriteQuorum); err != nil {
				m.logger.Error().Err(err).Str("namespace", nsName).Str("key", key).
					Msg("delete quorum not reached, replicas may diverge until catch-up")
			}
		case config.ConsistencyEventual, config.ConsistencySession:
			m.replicator.WriteAsync(nsName, rec)
		}
	}

	m.persistDelete(ns, key)

	change := ChangeEvent{Namespace: nsName, Key: key, Kind: ChangeDelete, Timestamp: now}
	ns.notify(change)
	if m.ChangeHook != nil {
		m.ChangeHook(change)
	}
	return true, nil
}

// Exists reports whether the key is present and unexpired.
func (m *Manager) Exists(ctx context.Context, nsName, key string) (bool, error) {
	res, err := m.Get(ctx, nsName, key, GetOptions{})
	if err != nil {
		return false, err
	}
	return res != nil, nil
}

// Keys returns keys matching a glob pattern, capped at limit when positive.
func (m *Manager) Keys(nsName, pattern string, limit int) ([]string, error) {
	ns, err := m.namespace(nsName)
	if err != nil {
		return nil, err
	}
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	keys := ns.matchKeys(pattern, limit)
	sort.Strings(keys)
	return keys, nil
}

// MGet fetches several keys; absent keys are omitted from the result.
func (m *Manager) MGet(ctx context.Context, nsName string, keys []string) (map[string]*GetResult, error) {
	out := make(map[string]*GetResult, len(keys))
	for _, k := range keys {
		res, err := m.Get(ctx, nsName, k, GetOptions{})
		if err != nil {
			return nil, err
		}
		if res != nil {
			out[k] = res
		}
	}
	return out, nil
}

// MSet writes several keys with shared options.
func (m *Manager) MSet(ctx context.Context, nsName string, values map[string]any, opts SetOptions) (map[string]SetResult, error) {
	out := make(map[string]SetResult, len(values))
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		res, err := m.Set(ctx, nsName, k, values[k], opts)
		if err != nil {
			return nil, err
		}
		out[k] = res
	}
	return out, nil
}

// Increment atomically adds delta to a numeric key, creating it at delta
// when absent, and returns the new value.
func (m *Manager) Increment(ctx context.Context, nsName, key string, delta int64) (int64, error) {
	if err := ctxErr(ctx, "state.increment"); err != nil {
		return 0, err
	}
	if _, err := m.namespace(nsName); err != nil {
		return 0, err
	}

	// A short-lived internal lock makes read-modify-write atomic across
	// concurrent incrementers.
	owner := "increment-" + uuid.New().String()
	lockID, err := m.locks.acquire(ctx, nsName, key, owner, 5*time.Second)
	if err != nil {
		return 0, err
	}
	defer func() {
		if rerr := m.locks.release(nsName, key, lockID); rerr != nil {
			m.logger.Debug().Err(rerr).Msg("increment lock already released")
		}
	}()

	var current int64
	res, err := m.Get(ctx, nsName, key, GetOptions{})
	if err != nil {
		return 0, err
	}
	if res != nil {
		switch v := res.Value.(type) {
		case float64:
			current = int64(v)
		case int64:
			current = v
		case int:
			current = int64(v)
		default:
			return 0, types.E(types.KindSchemaError, "state.increment", "value is not numeric")
		}
	}

	next := current + delta
	if _, err := m.Set(ctx, nsName, key, next, SetOptions{LockID: lockID}); err != nil {
		return 0, err
	}
	return next, nil
}

// Expire sets a fresh TTL on an existing key.
func (m *Manager) Expire(nsName, key string, ttl time.Duration) (bool, error) {
	ns, err := m.namespace(nsName)
	if err != nil {
		return false, err
	}
	now := m.clock.Now()
	ns.mu.Lock()
	defer ns.mu.Unlock()
	entry, ok := ns.data[key]
	if !ok || entry.expired(now) {
		return false, nil
	}
	entry.TTL = ttl
	entry.ExpiresAt = now.Add(ttl)
	return true, nil
}

// Persist removes the TTL from a key so it no longer expires.
func (m *Manager) Persist(nsName, key string) (bool, error) {
	ns, err := m.namespace(nsName)
	if err != nil {
		return false, err
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	entry, ok := ns.data[key]
	if !ok || entry.expired(m.clock.Now()) {
		return false, nil
	}
	entry.TTL = 0
	entry.ExpiresAt = time.Time{}
	return true, nil
}

// TTL returns the remaining lifetime of a key. ok is false when the key
// has no TTL; a missing key is a NotFound error.
func (m *Manager) TTL(nsName, key string) (time.Duration, bool, error) {
	ns, err := m.namespace(nsName)
	if err != nil {
		return 0, false, err
	}
	now := m.clock.Now()
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	entry, ok := ns.data[key]
	if !ok || entry.expired(now) {
		return 0, false, types.E(types.KindNotFound, "state.ttl", "key not found: "+nsName+"/"+key)
	}
	if entry.ExpiresAt.IsZero() {
		return 0, false, nil
	}
	return entry.ExpiresAt.Sub(now), true, nil
}

// Query performs an equality-index lookup and returns current values.
func (m *Manager) Query(nsName, field string, value any, limit int) ([]QueryResult, error) {
	ns, err := m.namespace(nsName)
	if err != nil {
		return nil, err
	}
	if !ns.cfg.Indexing {
		return nil, types.E(types.KindSchemaError, "state.query", "indexing disabled for namespace "+nsName)
	}

	term := indexTerm(field, value)
	now := m.clock.Now()

	ns.mu.RLock()
	set := ns.index[term]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	ns.mu.RUnlock()
	sort.Strings(keys)

	var out []QueryResult
	for _, k := range keys {
		ns.mu.RLock()
		entry, ok := ns.data[k]
		var val any
		var derr error
		if ok && !entry.expired(now) {
			val, derr = m.decode(entry)
		} else {
			ok = false
		}
		ns.mu.RUnlock()
		if !ok || derr != nil {
			continue
		}
		out = append(out, QueryResult{Key: k, Value: val})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Subscribe registers a change callback for keys matching a glob pattern.
func (m *Manager) Subscribe(nsName, pattern string, cb func(ChangeEvent)) (string, error) {
	ns, err := m.namespace(nsName)
	if err != nil {
		return "", err
	}
	if cb == nil {
		return "", types.E(types.KindSchemaError, "state.subscribe", "nil callback")
	}
	id := uuid.New().String()
	ns.subMu.Lock()
	ns.subs[id] = &changeSub{id: id, pattern: pattern, cb: cb}
	ns.subMu.Unlock()
	return id, nil
}

// Unsubscribe removes a change subscription.
func (m *Manager) Unsubscribe(nsName, subID string) bool {
	ns, err := m.namespace(nsName)
	if err != nil {
		return false
	}
	ns.subMu.Lock()
	defer ns.subMu.Unlock()
	if _, ok := ns.subs[subID]; !ok {
		return false
	}
	delete(ns.subs, subID)
	return true
}

// Lock acquires the per-key lock, blocking until available, expired, or ctx
// ends. ttl bounds how long the lock may be held.
func (m *Manager) Lock(ctx context.Context, nsName, key, owner string, ttl time.Duration) (string, error) {
	if _, err := m.namespace(nsName); err != nil {
		return "", err
	}
	return m.locks.acquire(ctx, nsName, key, owner, ttl)
}

// Unlock releases a lock by id.
func (m *Manager) Unlock(nsName, key, lockID string) error {
	return m.locks.release(nsName, key, lockID)
}

// IsLocked reports whether the key currently has an unexpired lock.
func (m *Manager) IsLocked(nsName, key string) bool {
	return m.locks.holder(nsName, key) != nil
}

// --- internals ---

func (m *Manager) encode(nsCfg config.NamespaceConfig, value any) (stored []byte, compressed, encrypted bool, size int, err error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, false, false, 0, err
	}
	size = len(raw)
	stored = raw

	threshold := nsCfg.CompressionThreshold
	if threshold <= 0 {
		threshold = 1024
	}
	if size > threshold {
		stored, err = m.codec.Compress(stored)
		if err != nil {
			return nil, false, false, 0, err
		}
		compressed = true
	}
	if nsCfg.Encryption {
		stored, err = m.cipher.Encrypt(stored)
		if err != nil {
			return nil, false, false, 0, err
		}
		encrypted = true
	}
	return stored, compressed, encrypted, size, nil
}

func (m *Manager) decode(entry *Entry) (any, error) {
	if !entry.compressed && !entry.encrypted {
		return entry.Value, nil
	}
	raw := entry.stored
	var err error
	if entry.encrypted {
		raw, err = m.cipher.Decrypt(raw)
		if err != nil {
			return nil, err
		}
	}
	if entry.compressed {
		raw, err = m.codec.Decompress(raw)
		if err != nil {
			return nil, err
		}
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) resultFromReplica(ns *namespace, key string, rec ReplicaRecord, now time.Time) (*GetResult, error) {
	ns.mu.Lock()
	local, ok := ns.data[key]
	if ok && !local.expired(now) && !local.UpdatedAt.Before(rec.UpdatedAt) {
		local.LastAccessed = now
		local.AccessCount++
		value, derr := m.decode(local)
		meta := local.meta()
		ns.mu.Unlock()
		if derr != nil {
			return nil, types.Wrap(types.KindInternal, "state.get", "failed to decode stored value", derr)
		}
		ns.stats.mu.Lock()
		ns.stats.hits++
		ns.stats.mu.Unlock()
		return &GetResult{Value: value, Metadata: meta}, nil
	}
	ns.mu.Unlock()

	// Replica is fresher than local (or local is gone); decode its payload.
	raw := rec.Stored
	var err error
	if rec.Encrypted {
		if raw, err = m.cipher.Decrypt(raw); err != nil {
			return nil, types.Wrap(types.KindInternal, "state.get", "failed to decrypt replica value", err)
		}
	}
	if rec.Compressed {
		if raw, err = m.codec.Decompress(raw); err != nil {
			return nil, types.Wrap(types.KindInternal, "state.get", "failed to decompress replica value", err)
		}
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.Wrap(types.KindInternal, "state.get", "failed to decode replica value", err)
	}
	ns.stats.mu.Lock()
	ns.stats.hits++
	ns.stats.mu.Unlock()
	return &GetResult{
		Value:    out,
		Metadata: Meta{Version: rec.Version, UpdatedAt: rec.UpdatedAt},
	}, nil
}

func (m *Manager) missLocal(ns *namespace, key string, now time.Time) {
	ns.mu.Lock()
	if entry, ok := ns.data[key]; ok && entry.expired(now) {
		m.dropEntryLocked(ns, key, entry, true)
	}
	ns.mu.Unlock()
	ns.stats.mu.Lock()
	ns.stats.misses++
	ns.stats.mu.Unlock()
}

// dropEntryLocked removes an entry and its index terms. Caller holds ns.mu.
func (m *Manager) dropEntryLocked(ns *namespace, key string, entry *Entry, expired bool) {
	delete(ns.data, key)
	ns.unindexEntry(key, entry)
	if expired {
		ns.stats.mu.Lock()
		ns.stats.expired++
		ns.stats.mu.Unlock()
	}
}

func (m *Manager) persistDelete(ns *namespace, key string) {
	if !ns.cfg.Persistence || m.persist == nil {
		return
	}
	if err := m.persist.delete(ns.name, key); err != nil {
		m.logger.Error().Err(err).Str("namespace", ns.name).Str("key", key).Msg("persist delete failed")
	}
}

func (m *Manager) reloadNamespace(ns *namespace) error {
	recs, err := m.persist.load(ns.name)
	if err != nil {
		return err
	}
	now := m.clock.Now()

	ns.mu.Lock()
	defer ns.mu.Unlock()
	for key, rec := range recs {
		var expiresAt time.Time
		if rec.TTL > 0 {
			expiresAt = rec.UpdatedAt.Add(rec.TTL)
			if !now.Before(expiresAt) {
				continue
			}
		}
		raw := rec.Payload
		compressed, encrypted := persistFlagsSplit(rec.Flags)
		value := any(nil)
		if !compressed && !encrypted {
			if err := json.Unmarshal(raw, &value); err != nil {
				m.logger.Warn().Err(err).Str("key", key).Msg("skipping unreadable persisted entry")
				continue
			}
		}
		entry := &Entry{
			Key:          key,
			Value:        value,
			stored:       raw,
			compressed:   compressed,
			encrypted:    encrypted,
			Version:      rec.Version,
			CreatedAt:    rec.CreatedAt,
			UpdatedAt:    rec.UpdatedAt,
			LastAccessed: now,
			TTL:          rec.TTL,
			ExpiresAt:    expiresAt,
			Size:         len(raw),
		}
		ns.data[key] = entry
		if value != nil {
			ns.indexEntry(key, entry, nil)
		}
	}
	m.logger.Info().Str("namespace", ns.name).Int("entries", len(ns.data)).Msg("namespace reloaded from disk")
	return nil
}

func resolveTTL(nsCfg config.NamespaceConfig, override *time.Duration) time.Duration {
	if override != nil {
		if *override <= 0 {
			return 0
		}
		return *override
	}
	return nsCfg.TTL.D()
}

func ctxErr(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return types.Wrap(types.KindCancelled, op, "cancelled", ctx.Err())
	default:
		return nil
	}
}
