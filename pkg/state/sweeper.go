package state

import (
	"context"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// runSweeper is the maintenance loop: TTL expiry, LRU eviction, metrics
// aggregation, replication catch-up, and the health check. One ticker
// drives all passes, mirroring how often they need to run relative to
// entry TTLs.
func (m *Manager) runSweeper() {
	defer m.wg.Done()

	interval := m.cfg.SweepInterval.D()
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	flushBackoff := backoff.NewExponentialBackOff()
	flushBackoff.InitialInterval = interval
	flushBackoff.MaxInterval = 2 * time.Minute

	for {
		select {
		case <-ticker.C:
			now := m.clock.Now()
			m.sweepExpiry(now)
			m.sweepEviction()
			m.sweepMetrics()
			m.sweepReplication(flushBackoff)
			m.locks.sweep(now)
			m.txs.sweepExpired(now)
			m.sessions.sweep(30 * time.Minute)
			m.healthCheck()
		case <-m.stopCh:
			return
		}
	}
}

// sweepExpiry removes entries whose TTL elapsed.
func (m *Manager) sweepExpiry(now time.Time) {
	for _, ns := range m.allNamespaces() {
		var dropped []string
		ns.mu.Lock()
		for key, entry := range ns.data {
			if entry.expired(now) {
				m.dropEntryLocked(ns, key, entry, true)
				dropped = append(dropped, key)
			}
		}
		ns.mu.Unlock()

		for _, key := range dropped {
			m.persistDelete(ns, key)
			ns.notify(ChangeEvent{Namespace: ns.name, Key: key, Kind: ChangeDelete, Timestamp: now})
		}
		if len(dropped) > 0 {
			m.logger.Debug().Str("namespace", ns.name).Int("expired", len(dropped)).Msg("ttl sweep")
		}
	}
}

// sweepEviction evicts the least-recently-accessed 10% of entries from any
// namespace over its maxSize.
func (m *Manager) sweepEviction() {
	for _, ns := range m.allNamespaces() {
		if ns.cfg.MaxSize <= 0 {
			continue
		}

		ns.mu.Lock()
		if len(ns.data) <= ns.cfg.MaxSize {
			ns.mu.Unlock()
			continue
		}

		type cand struct {
			key      string
			accessed time.Time
		}
		cands := make([]cand, 0, len(ns.data))
		for key, entry := range ns.data {
			cands = append(cands, cand{key: key, accessed: entry.LastAccessed})
		}
		sort.Slice(cands, func(i, j int) bool { return cands[i].accessed.Before(cands[j].accessed) })

		evictCount := len(ns.data) / 10
		if evictCount < 1 {
			evictCount = 1
		}
		var evicted []string
		for i := 0; i < evictCount && i < len(cands); i++ {
			key := cands[i].key
			if entry, ok := ns.data[key]; ok {
				m.dropEntryLocked(ns, key, entry, false)
				evicted = append(evicted, key)
			}
		}
		ns.stats.mu.Lock()
		ns.stats.evictions += uint64(len(evicted))
		ns.stats.mu.Unlock()
		ns.mu.Unlock()

		for _, key := range evicted {
			m.persistDelete(ns, key)
		}
		m.logger.Info().Str("namespace", ns.name).Int("evicted", len(evicted)).Msg("lru eviction")
	}
}

// sweepMetrics recomputes aggregate sizes.
func (m *Manager) sweepMetrics() {
	for _, ns := range m.allNamespaces() {
		var total int64
		ns.mu.RLock()
		for _, entry := range ns.data {
			total += int64(len(entry.stored))
		}
		ns.mu.RUnlock()
		ns.stats.mu.Lock()
		ns.stats.totalSize = total
		ns.stats.mu.Unlock()
	}
}

// sweepReplication drives catch-up for pending async writes. Flush errors
// back off exponentially instead of hammering a down replica every tick.
func (m *Manager) sweepReplication(bo *backoff.ExponentialBackOff) {
	if err := m.replicator.Flush(context.Background()); err != nil {
		next := bo.NextBackOff()
		m.logger.Warn().Err(err).Dur("next_attempt_in", next).Msg("replication catch-up failed")
		return
	}
	bo.Reset()
}

// healthCheck flags the manager degraded on excess memory, locks, or open
// transactions.
func (m *Manager) healthCheck() {
	var totalKeys int
	var totalSize int64
	for _, ns := range m.allNamespaces() {
		s := ns.snapshotStats()
		totalKeys += s.Keys
		totalSize += s.TotalSize
	}

	degraded := false
	if m.cfg.MaxLocks > 0 && m.locks.count() > m.cfg.MaxLocks {
		degraded = true
	}
	if m.cfg.MaxTx > 0 && m.OpenTransactions() > m.cfg.MaxTx {
		degraded = true
	}
	// 1 GiB of serialized state is well past the intended working set.
	if totalSize > 1<<30 {
		degraded = true
	}

	m.healthMu.Lock()
	changed := m.degraded != degraded
	m.degraded = degraded
	m.healthMu.Unlock()

	if changed {
		if degraded {
			m.logger.Warn().Int("keys", totalKeys).Int64("bytes", totalSize).Msg("state manager degraded")
		} else {
			m.logger.Info().Msg("state manager recovered")
		}
	}
}

func (m *Manager) allNamespaces() []*namespace {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*namespace, 0, len(m.namespaces))
	for _, ns := range m.namespaces {
		out = append(out, ns)
	}
	return out
}
