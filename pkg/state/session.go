package state

import (
	"sync"
	"time"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// sessionTracker implements the bookkeeping side of session consistency:
// it remembers the last version each session wrote per key so reads can
// assert read-your-writes. Writes commit to the local store before they are
// acknowledged and session reads are pinned locally, so the invariant holds
// by construction; the tracker exists to detect regressions if the routing
// ever changes.
type sessionTracker struct {
	clock    types.Clock
	mu       sync.Mutex
	sessions map[string]map[string]sessionWrite // session -> ns/key -> last write
}

type sessionWrite struct {
	version string
	at      time.Time
}

func newSessionTracker(clock types.Clock) *sessionTracker {
	return &sessionTracker{
		clock:    clock,
		sessions: make(map[string]map[string]sessionWrite),
	}
}

func (t *sessionTracker) recordWrite(sessionID, namespace, key, version string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	writes, ok := t.sessions[sessionID]
	if !ok {
		writes = make(map[string]sessionWrite)
		t.sessions[sessionID] = writes
	}
	writes[lockKey(namespace, key)] = sessionWrite{version: version, at: t.clock.Now()}
}

// checkRead returns true when the observed version predates the session's
// own last write to the key.
func (t *sessionTracker) checkRead(sessionID, namespace, key, observedVersion string, observedAt time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	writes, ok := t.sessions[sessionID]
	if !ok {
		return false
	}
	w, ok := writes[lockKey(namespace, key)]
	if !ok {
		return false
	}
	return w.version != observedVersion && observedAt.Before(w.at)
}

// sweep drops session records older than the retention window.
func (t *sessionTracker) sweep(olderThan time.Duration) {
	cutoff := t.clock.Now().Add(-olderThan)
	t.mu.Lock()
	defer t.mu.Unlock()
	for sid, writes := range t.sessions {
		for k, w := range writes {
			if w.at.Before(cutoff) {
				delete(writes, k)
			}
		}
		if len(writes) == 0 {
			delete(t.sessions, sid)
		}
	}
}
