package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// TxOpKind discriminates buffered transaction operations.
type TxOpKind string

const (
	TxGet    TxOpKind = "get"
	TxSet    TxOpKind = "set"
	TxDelete TxOpKind = "delete"
)

// TxOp is one buffered operation.
type TxOp struct {
	Kind      TxOpKind
	Namespace string
	Key       string
	Value     any
	Opts      SetOptions
}

// TxResult is the outcome of one committed operation.
type TxResult struct {
	Kind  TxOpKind
	Key   string
	Value any
}

type transaction struct {
	id        string
	ops       []TxOp
	createdAt time.Time
	deadline  time.Time
}

type txTable struct {
	mu  sync.Mutex
	m   *Manager
	txs map[string]*transaction
}

func newTxTable(m *Manager) *txTable {
	return &txTable{m: m, txs: make(map[string]*transaction)}
}

// Begin opens a transaction. Operations buffer until Commit; nothing is
// visible to other readers before then (read committed).
func (m *Manager) Begin() (string, error) {
	m.txs.mu.Lock()
	defer m.txs.mu.Unlock()

	if m.cfg.MaxTx > 0 && len(m.txs.txs) >= m.cfg.MaxTx {
		return "", types.E(types.KindResourceExhausted, "state.begin", "too many open transactions")
	}
	now := m.clock.Now()
	tx := &transaction{
		id:        uuid.New().String(),
		createdAt: now,
		deadline:  now.Add(m.cfg.TxTimeout.D()),
	}
	m.txs.txs[tx.id] = tx
	return tx.id, nil
}

// Add buffers an operation on an open transaction.
func (m *Manager) Add(txID string, op TxOp) error {
	m.txs.mu.Lock()
	defer m.txs.mu.Unlock()

	tx, ok := m.txs.txs[txID]
	if !ok {
		return types.E(types.KindNotFound, "state.txAdd", "unknown transaction: "+txID)
	}
	if !m.clock.Now().Before(tx.deadline) {
		delete(m.txs.txs, txID)
		return types.E(types.KindTimeout, "state.txAdd", "transaction timed out")
	}
	switch op.Kind {
	case TxGet, TxSet, TxDelete:
	default:
		return types.E(types.KindSchemaError, "state.txAdd", "unknown op kind")
	}
	tx.ops = append(tx.ops, op)
	return nil
}

// Rollback discards an open transaction.
func (m *Manager) Rollback(txID string) error {
	m.txs.mu.Lock()
	defer m.txs.mu.Unlock()
	if _, ok := m.txs.txs[txID]; !ok {
		return types.E(types.KindNotFound, "state.rollback", "unknown transaction: "+txID)
	}
	delete(m.txs.txs, txID)
	return nil
}

// Commit executes the buffered operations atomically: every write/delete
// key is locked first, in canonical (namespace, key) order to avoid
// deadlock between concurrent transactions, then the operations run in the
// order they were added. Any failure undoes the applied mutations and
// releases all locks.
func (m *Manager) Commit(ctx context.Context, txID string) ([]TxResult, error) {
	m.txs.mu.Lock()
	tx, ok := m.txs.txs[txID]
	if ok {
		delete(m.txs.txs, txID)
	}
	m.txs.mu.Unlock()
	if !ok {
		return nil, types.E(types.KindNotFound, "state.commit", "unknown transaction: "+txID)
	}
	if !m.clock.Now().Before(tx.deadline) {
		return nil, types.E(types.KindTimeout, "state.commit", "transaction timed out")
	}

	owner := "tx-" + tx.id
	lockTTL := tx.deadline.Sub(m.clock.Now())

	// Lock acquisition in canonical order.
	type lockRef struct {
		ns, key, id string
	}
	writeKeys := make(map[string]TxOp)
	for _, op := range tx.ops {
		if op.Kind == TxSet || op.Kind == TxDelete {
			writeKeys[lockKey(op.Namespace, op.Key)] = op
		}
	}
	ordered := make([]string, 0, len(writeKeys))
	for k := range writeKeys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	lockCtx, cancel := context.WithDeadline(ctx, tx.deadline)
	defer cancel()

	var held []lockRef
	releaseAll := func() {
		for _, l := range held {
			if err := m.locks.release(l.ns, l.key, l.id); err != nil {
				m.logger.Debug().Err(err).Msg("transaction lock already released")
			}
		}
	}

	lockIDs := make(map[string]string, len(ordered))
	for _, k := range ordered {
		op := writeKeys[k]
		id, err := m.locks.acquire(lockCtx, op.Namespace, op.Key, owner, lockTTL)
		if err != nil {
			releaseAll()
			if types.IsKind(err, types.KindCancelled) && ctx.Err() == nil {
				return nil, types.E(types.KindTimeout, "state.commit", "lock acquisition timed out")
			}
			return nil, err
		}
		held = append(held, lockRef{ns: op.Namespace, key: op.Key, id: id})
		lockIDs[k] = id
	}

	// Execute in order, recording undo state for applied mutations.
	type undo struct {
		ns, key, lockID string
		existed         bool
		prevValue       any
		prevTTL         *time.Duration
	}
	var undos []undo
	rollback := func() {
		for i := len(undos) - 1; i >= 0; i-- {
			u := undos[i]
			if u.existed {
				opts := SetOptions{LockID: u.lockID, TTL: u.prevTTL}
				if _, err := m.Set(context.Background(), u.ns, u.key, u.prevValue, opts); err != nil {
					m.logger.Error().Err(err).Str("key", u.key).Msg("transaction rollback restore failed")
				}
			} else {
				if _, err := m.Delete(context.Background(), u.ns, u.key, u.lockID); err != nil {
					m.logger.Error().Err(err).Str("key", u.key).Msg("transaction rollback delete failed")
				}
			}
		}
	}

	snapshot := func(ns, key string) (undo, error) {
		res, err := m.Get(ctx, ns, key, GetOptions{})
		if err != nil {
			return undo{}, err
		}
		u := undo{ns: ns, key: key, lockID: lockIDs[lockKey(ns, key)]}
		if res != nil {
			u.existed = true
			u.prevValue = res.Value
			if !res.Metadata.ExpiresAt.IsZero() {
				remaining := res.Metadata.ExpiresAt.Sub(m.clock.Now())
				u.prevTTL = &remaining
			} else {
				none := time.Duration(-1)
				u.prevTTL = &none
			}
		}
		return u, nil
	}

	results := make([]TxResult, 0, len(tx.ops))
	for _, op := range tx.ops {
		if !m.clock.Now().Before(tx.deadline) {
			rollback()
			releaseAll()
			return nil, types.E(types.KindTimeout, "state.commit", "transaction timed out mid-commit")
		}

		switch op.Kind {
		case TxGet:
			res, err := m.Get(ctx, op.Namespace, op.Key, GetOptions{})
			if err != nil {
				rollback()
				releaseAll()
				return nil, err
			}
			var v any
			if res != nil {
				v = res.Value
			}
			results = append(results, TxResult{Kind: TxGet, Key: op.Key, Value: v})

		case TxSet:
			u, err := snapshot(op.Namespace, op.Key)
			if err != nil {
				rollback()
				releaseAll()
				return nil, err
			}
			opts := op.Opts
			opts.LockID = lockIDs[lockKey(op.Namespace, op.Key)]
			res, err := m.Set(ctx, op.Namespace, op.Key, op.Value, opts)
			if err != nil {
				rollback()
				releaseAll()
				return nil, err
			}
			undos = append(undos, u)
			results = append(results, TxResult{Kind: TxSet, Key: op.Key, Value: res.Version})

		case TxDelete:
			u, err := snapshot(op.Namespace, op.Key)
			if err != nil {
				rollback()
				releaseAll()
				return nil, err
			}
			existed, err := m.Delete(ctx, op.Namespace, op.Key, lockIDs[lockKey(op.Namespace, op.Key)])
			if err != nil {
				rollback()
				releaseAll()
				return nil, err
			}
			undos = append(undos, u)
			results = append(results, TxResult{Kind: TxDelete, Key: op.Key, Value: existed})
		}
	}

	releaseAll()
	return results, nil
}

// OpenTransactions reports the number of uncommitted transactions.
func (m *Manager) OpenTransactions() int {
	m.txs.mu.Lock()
	defer m.txs.mu.Unlock()
	return len(m.txs.txs)
}

// sweepExpired drops transactions past their deadline.
func (t *txTable) sweepExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, tx := range t.txs {
		if !now.Before(tx.deadline) {
			delete(t.txs, id)
			removed++
		}
	}
	return removed
}
