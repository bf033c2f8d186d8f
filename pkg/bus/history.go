package bus

import (
	"sync"
	"time"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Filter selects events from the history ring. Zero fields match anything.
type Filter struct {
	SagaID string
	Type   string
	Since  time.Time
}

// historyQueryLimit caps the number of events a History call returns.
const historyQueryLimit = 100

// historyRing retains the most recent published events in a fixed-size
// circular buffer. Read-heavy, so guarded by an RWMutex.
type historyRing struct {
	mu    sync.RWMutex
	buf   []types.Event
	next  int
	count int
}

func newHistoryRing(size int) *historyRing {
	if size <= 0 {
		size = 1000
	}
	return &historyRing{buf: make([]types.Event, size)}
}

func (r *historyRing) append(ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// query walks the ring newest-first, then reverses so results come back in
// publish order.
func (r *historyRing) query(f Filter) []types.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.Event
	for i := 0; i < r.count && len(out) < historyQueryLimit; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		ev := r.buf[idx]
		if f.SagaID != "" && ev.SagaID != f.SagaID {
			continue
		}
		if f.Type != "" && ev.Type != f.Type {
			continue
		}
		if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, ev)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
