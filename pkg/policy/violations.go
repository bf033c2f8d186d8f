package policy

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// violationCapacity bounds the in-memory ledger.
const violationCapacity = 1000

// Violation is one recorded policy breach.
type Violation struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Details   map[string]any
}

// violationRing keeps the most recent violations in a fixed-size ring.
type violationRing struct {
	mu    sync.Mutex
	buf   []Violation
	next  int
	count int
}

func newViolationRing(capacity int) *violationRing {
	if capacity <= 0 {
		capacity = violationCapacity
	}
	return &violationRing{buf: make([]Violation, capacity)}
}

func (r *violationRing) add(kind string, details map[string]any, now time.Time) Violation {
	v := Violation{
		ID:        uuid.New().String(),
		Kind:      kind,
		Timestamp: now,
		Details:   details,
	}
	r.mu.Lock()
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
	return v
}

// list returns the recorded violations, newest first.
func (r *violationRing) list() []Violation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Violation, 0, r.count)
	for i := 1; i <= r.count; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

func (r *violationRing) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
