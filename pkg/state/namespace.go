package state

import (
	"fmt"
	"path"
	"sync"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
)

// defaultIndexFields is the projection indexed for every write in an
// indexing-enabled namespace, independent of user-requested indexes.
var defaultIndexFields = []string{"type", "category", "status", "userId", "id"}

type namespace struct {
	name string
	cfg  config.NamespaceConfig

	mu    sync.RWMutex
	data  map[string]*Entry
	index map[string]map[string]struct{} // "field:value" -> key set

	subMu sync.RWMutex
	subs  map[string]*changeSub

	stats nsStats
}

type nsStats struct {
	mu        sync.Mutex
	hits      uint64
	misses    uint64
	sets      uint64
	deletes   uint64
	evictions uint64
	expired   uint64
	conflicts uint64
	totalSize int64
}

// NamespaceStats is a point-in-time snapshot of a namespace's counters.
type NamespaceStats struct {
	Name      string
	Keys      int
	Hits      uint64
	Misses    uint64
	Sets      uint64
	Deletes   uint64
	Evictions uint64
	Expired   uint64
	Conflicts uint64
	TotalSize int64
	Degraded  bool
}

type changeSub struct {
	id      string
	pattern string
	cb      func(ChangeEvent)
}

func newNamespace(name string, cfg config.NamespaceConfig) *namespace {
	return &namespace{
		name:  name,
		cfg:   cfg,
		data:  make(map[string]*Entry),
		index: make(map[string]map[string]struct{}),
		subs:  make(map[string]*changeSub),
	}
}

// indexEntry derives the entry's index terms, records them on the entry,
// and adds them to the term map. Caller holds ns.mu.
func (ns *namespace) indexEntry(key string, entry *Entry, extraFields []string) {
	if !ns.cfg.Indexing {
		return
	}
	entry.indexedTerms = indexTerms(entry.Value, extraFields)
	for _, term := range entry.indexedTerms {
		set, ok := ns.index[term]
		if !ok {
			set = make(map[string]struct{})
			ns.index[term] = set
		}
		set[key] = struct{}{}
	}
}

// unindexEntry removes the terms the entry was indexed with at write time.
// The terms come from the entry, not from the current call's options; an
// overwrite that drops or renames extra index fields must still clear what
// the previous write registered. Caller holds ns.mu.
func (ns *namespace) unindexEntry(key string, entry *Entry) {
	if !ns.cfg.Indexing {
		return
	}
	for _, term := range entry.indexedTerms {
		if set, ok := ns.index[term]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(ns.index, term)
			}
		}
	}
}

func indexTerms(value any, extraFields []string) []string {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	fields := make([]string, 0, len(defaultIndexFields)+len(extraFields))
	fields = append(fields, defaultIndexFields...)
	fields = append(fields, extraFields...)

	seen := make(map[string]struct{}, len(fields))
	var terms []string
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		v, present := m[f]
		if !present || v == nil {
			continue
		}
		switch v.(type) {
		case string, int, int64, float64, bool:
			terms = append(terms, indexTerm(f, v))
		}
	}
	return terms
}

func indexTerm(field string, value any) string {
	return fmt.Sprintf("%s:%v", field, value)
}

// matchKeys returns keys matching a glob pattern. Caller holds ns.mu (read).
func (ns *namespace) matchKeys(pattern string, limit int) []string {
	var out []string
	for k := range ns.data {
		if pattern != "" && pattern != "*" {
			if ok, err := path.Match(pattern, k); err != nil || !ok {
				continue
			}
		}
		out = append(out, k)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// notify fans a change event out to matching subscribers. Callbacks run on
// their own goroutines so a slow subscriber cannot stall a write.
func (ns *namespace) notify(ev ChangeEvent) {
	ns.subMu.RLock()
	defer ns.subMu.RUnlock()
	for _, sub := range ns.subs {
		if sub.pattern != "" && sub.pattern != "*" {
			if ok, err := path.Match(sub.pattern, ev.Key); err != nil || !ok {
				continue
			}
		}
		cb := sub.cb
		go cb(ev)
	}
}

func (ns *namespace) snapshotStats() NamespaceStats {
	ns.mu.RLock()
	keys := len(ns.data)
	ns.mu.RUnlock()

	ns.stats.mu.Lock()
	defer ns.stats.mu.Unlock()
	return NamespaceStats{
		Name:      ns.name,
		Keys:      keys,
		Hits:      ns.stats.hits,
		Misses:    ns.stats.misses,
		Sets:      ns.stats.sets,
		Deletes:   ns.stats.deletes,
		Evictions: ns.stats.evictions,
		Expired:   ns.stats.expired,
		Conflicts: ns.stats.conflicts,
		TotalSize: ns.stats.totalSize,
	}
}
