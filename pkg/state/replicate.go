package state

import (
	"context"
	"sync"
	"time"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// ErrQuorumNotReached is returned when a strong-consistency write cannot
// collect writeQuorum replica acknowledgements.
var ErrQuorumNotReached = types.E(types.KindResourceExhausted, "state.replicate", "quorum not reached")

// ReplicaRecord is the unit shipped to replicas. Stored carries the
// encoded payload; the flags say how to decode it.
type ReplicaRecord struct {
	Key        string
	Stored     []byte
	Compressed bool
	Encrypted  bool
	Version    string
	UpdatedAt  time.Time
	Deleted    bool
}

// Replicator ships namespace writes to replicas. The core treats it as a
// pluggable capability: the in-memory implementation below backs tests and
// single-node deployments, a networked one can be wired in production.
type Replicator interface {
	// WriteQuorum synchronously replicates and fails unless at least
	// quorum replicas acknowledge.
	WriteQuorum(ctx context.Context, namespace string, rec ReplicaRecord, quorum int) error
	// WriteAsync fans the record out in the background (eventual mode).
	WriteAsync(namespace string, rec ReplicaRecord)
	// ReadQuorum gathers quorum replies and returns the record with the
	// highest UpdatedAt, or found=false when no replica has the key.
	ReadQuorum(ctx context.Context, namespace, key string, quorum int) (rec ReplicaRecord, found bool, err error)
	// Flush drives catch-up for pending async writes; the state manager's
	// maintenance sweep calls it periodically.
	Flush(ctx context.Context) error
}

// InMemoryReplicator keeps replicationFactor in-process replica maps. Tests
// flip replicas down to exercise quorum failures.
type InMemoryReplicator struct {
	mu       sync.Mutex
	replicas []map[string]map[string]ReplicaRecord // replica -> namespace -> key
	down     []bool
	pending  []pendingWrite
}

type pendingWrite struct {
	namespace string
	rec       ReplicaRecord
}

// NewInMemoryReplicator creates a replicator with n replicas.
func NewInMemoryReplicator(n int) *InMemoryReplicator {
	if n <= 0 {
		n = 1
	}
	r := &InMemoryReplicator{
		replicas: make([]map[string]map[string]ReplicaRecord, n),
		down:     make([]bool, n),
	}
	for i := range r.replicas {
		r.replicas[i] = make(map[string]map[string]ReplicaRecord)
	}
	return r
}

// SetReplicaDown marks a replica unavailable (test hook and failure
// injection point).
func (r *InMemoryReplicator) SetReplicaDown(i int, down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= 0 && i < len(r.down) {
		r.down[i] = down
	}
}

func (r *InMemoryReplicator) WriteQuorum(ctx context.Context, namespace string, rec ReplicaRecord, quorum int) error {
	select {
	case <-ctx.Done():
		return types.Wrap(types.KindCancelled, "state.replicate", "cancelled", ctx.Err())
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	acks := 0
	for i := range r.replicas {
		if r.down[i] {
			continue
		}
		r.apply(i, namespace, rec)
		acks++
	}
	if acks < quorum {
		return ErrQuorumNotReached
	}
	return nil
}

func (r *InMemoryReplicator) WriteAsync(namespace string, rec ReplicaRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.replicas {
		if r.down[i] {
			r.pending = append(r.pending, pendingWrite{namespace: namespace, rec: rec})
			continue
		}
		r.apply(i, namespace, rec)
	}
}

func (r *InMemoryReplicator) ReadQuorum(ctx context.Context, namespace, key string, quorum int) (ReplicaRecord, bool, error) {
	select {
	case <-ctx.Done():
		return ReplicaRecord{}, false, types.Wrap(types.KindCancelled, "state.replicate", "cancelled", ctx.Err())
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var best ReplicaRecord
	found := false
	replies := 0
	for i := range r.replicas {
		if r.down[i] {
			continue
		}
		replies++
		if nsMap, ok := r.replicas[i][namespace]; ok {
			if rec, ok := nsMap[key]; ok && !rec.Deleted {
				if !found || rec.UpdatedAt.After(best.UpdatedAt) {
					best = rec
					found = true
				}
			}
		}
	}
	if replies < quorum {
		return ReplicaRecord{}, false, ErrQuorumNotReached
	}
	return best, found, nil
}

// Flush re-applies writes that missed a replica while it was down.
func (r *InMemoryReplicator) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var remaining []pendingWrite
	for _, pw := range r.pending {
		applied := false
		for i := range r.replicas {
			if r.down[i] {
				continue
			}
			r.apply(i, pw.namespace, pw.rec)
			applied = true
		}
		if !applied {
			remaining = append(remaining, pw)
		}
	}
	r.pending = remaining
	return nil
}

// PendingWrites reports the catch-up backlog size.
func (r *InMemoryReplicator) PendingWrites() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *InMemoryReplicator) apply(i int, namespace string, rec ReplicaRecord) {
	nsMap, ok := r.replicas[i][namespace]
	if !ok {
		nsMap = make(map[string]ReplicaRecord)
		r.replicas[i][namespace] = nsMap
	}
	existing, exists := nsMap[rec.Key]
	// Last-writer-wins per key; stale catch-up records must not clobber
	// newer state.
	if exists && existing.UpdatedAt.After(rec.UpdatedAt) {
		return
	}
	nsMap[rec.Key] = rec
}
