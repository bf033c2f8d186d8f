package queue

import (
	"sync"
	"time"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// tokenBucket enforces a dual-window rate limit: a per-second bucket and a
// per-minute bucket refill independently, and a dispatch must win a token
// from both.
type tokenBucket struct {
	mu sync.Mutex

	perSecondCap  float64
	perMinuteCap  float64
	secondTokens  float64
	minuteTokens  float64
	lastRefill    time.Time
	clock         types.Clock
}

func newTokenBucket(perSecond, perMinute int, clock types.Clock) *tokenBucket {
	return &tokenBucket{
		perSecondCap: float64(perSecond),
		perMinuteCap: float64(perMinute),
		secondTokens: float64(perSecond),
		minuteTokens: float64(perMinute),
		lastRefill:   clock.Now(),
		clock:        clock,
	}
}

// take consumes one token from each window, or reports denial.
func (b *tokenBucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.secondTokens = min(b.perSecondCap, b.secondTokens+elapsed*b.perSecondCap)
		b.minuteTokens = min(b.perMinuteCap, b.minuteTokens+elapsed*b.perMinuteCap/60)
		b.lastRefill = now
	}

	if b.secondTokens < 1 || b.minuteTokens < 1 {
		return false
	}
	b.secondTokens--
	b.minuteTokens--
	return true
}
