package state

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Lock is an exclusive per-key lock with an expiry. Re-entrant only for the
// same owner; at most one lock exists per (namespace, key) at any instant.
type Lock struct {
	ID         string
	Namespace  string
	Key        string
	AcquiredAt time.Time
	ExpiresAt  time.Time
	Owner      string
}

type lockTable struct {
	mu    sync.Mutex
	locks map[string]*Lock // "ns\x00key" -> lock
	clock types.Clock
}

func newLockTable(clock types.Clock) *lockTable {
	return &lockTable{
		locks: make(map[string]*Lock),
		clock: clock,
	}
}

func lockKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// acquire blocks until the lock is free, expired, or ctx ends. Waiters poll
// with jittered backoff rather than queueing, which keeps the table simple
// and starves nobody badly at the contention levels the core sees.
func (t *lockTable) acquire(ctx context.Context, namespace, key, owner string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	backoffDelay := 5 * time.Millisecond

	for {
		t.mu.Lock()
		now := t.clock.Now()
		k := lockKey(namespace, key)
		existing, held := t.locks[k]
		if held && existing.expired(now) {
			delete(t.locks, k)
			held = false
		}
		if held && owner != "" && existing.Owner == owner {
			// Re-entrant for the same owner: extend the expiry.
			existing.ExpiresAt = now.Add(ttl)
			id := existing.ID
			t.mu.Unlock()
			return id, nil
		}
		if !held {
			l := &Lock{
				ID:         uuid.New().String(),
				Namespace:  namespace,
				Key:        key,
				AcquiredAt: now,
				ExpiresAt:  now.Add(ttl),
				Owner:      owner,
			}
			t.locks[k] = l
			t.mu.Unlock()
			return l.ID, nil
		}
		t.mu.Unlock()

		jitter := time.Duration(rand.Intn(10)) * time.Millisecond
		select {
		case <-time.After(backoffDelay + jitter):
		case <-ctx.Done():
			return "", types.Wrap(types.KindCancelled, "state.lock", "cancelled while waiting", ctx.Err())
		}
		if backoffDelay < 80*time.Millisecond {
			backoffDelay *= 2
		}
	}
}

// release frees the lock. When lockID is given it must match; an empty
// lockID force-releases (owner death path).
func (t *lockTable) release(namespace, key, lockID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := lockKey(namespace, key)
	l, ok := t.locks[k]
	if !ok {
		return types.E(types.KindNotFound, "state.unlock", "no lock held on "+namespace+"/"+key)
	}
	if lockID != "" && l.ID != lockID {
		return types.E(types.KindConflict, "state.unlock", "lock id mismatch")
	}
	delete(t.locks, k)
	return nil
}

// holder returns the active lock for the key, pruning it if expired.
func (t *lockTable) holder(namespace, key string) *Lock {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := lockKey(namespace, key)
	l, ok := t.locks[k]
	if !ok {
		return nil
	}
	if l.expired(t.clock.Now()) {
		delete(t.locks, k)
		return nil
	}
	cp := *l
	return &cp
}

func (t *lockTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

// sweep drops expired locks; the maintenance loop calls it.
func (t *lockTable) sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, l := range t.locks {
		if l.expired(now) {
			delete(t.locks, k)
			removed++
		}
	}
	return removed
}

func (l *Lock) expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
