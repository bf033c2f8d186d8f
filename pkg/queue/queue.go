package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// emaAlpha weights the exponential moving averages for processing and wait
// times.
const emaAlpha = 0.2

type queue struct {
	name  string
	cfg   config.QueueConfig
	isDLQ bool

	mu         sync.Mutex
	messages   []*Message
	processing map[string]*inflight
	paused     bool

	bucket      *tokenBucket
	concurrency int

	stats qStats
}

type inflight struct {
	msg       *Message
	startedAt time.Time
	timer     *time.Timer
}

type qStats struct {
	enqueued      uint64
	processed     uint64
	failed        uint64
	retries       uint64
	deadLettered  uint64
	expired       uint64
	rateLimitHits uint64
	avgProcessing float64 // milliseconds
	avgWait       float64 // milliseconds
}

func newQueue(name string, cfg config.QueueConfig, isDLQ bool, clock types.Clock) *queue {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	q := &queue{
		name:        name,
		cfg:         cfg,
		isDLQ:       isDLQ,
		processing:  make(map[string]*inflight),
		concurrency: concurrency,
	}
	if !isDLQ && (cfg.RateLimit.PerSecond > 0 || cfg.RateLimit.PerMinute > 0) {
		perSecond := cfg.RateLimit.PerSecond
		if perSecond <= 0 {
			perSecond = cfg.RateLimit.PerMinute
		}
		perMinute := cfg.RateLimit.PerMinute
		if perMinute <= 0 {
			perMinute = perSecond * 60
		}
		q.bucket = newTokenBucket(perSecond, perMinute, clock)
	}
	return q
}

// add appends a message to the pending list. Caller must not hold q.mu.
func (q *queue) add(msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cfg.MaxSize > 0 && len(q.messages)+len(q.processing) >= q.cfg.MaxSize {
		return types.E(types.KindQueueFull, "queue.enqueue", "queue full: "+q.name)
	}
	q.messages = append(q.messages, msg)
	q.stats.enqueued++
	return nil
}

// selectReady removes up to batch dispatchable messages from the pending
// list: TTL-expired messages are dropped, delayed messages skipped, and the
// survivors ordered by priority rank then enqueue time. It returns the
// selected batch and the ids of expired messages.
func (q *queue) selectReady(now time.Time, batch int) (selected []*Message, expired []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.messages[:0]
	var ready []*Message
	for _, msg := range q.messages {
		if msg.ttlExpired(now) {
			q.stats.expired++
			expired = append(expired, msg.ID)
			continue
		}
		if msg.ready(now) {
			ready = append(ready, msg)
		}
		kept = append(kept, msg)
	}
	q.messages = kept

	sort.SliceStable(ready, func(i, j int) bool {
		ri, rj := ready[i].Priority.Rank(), ready[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return ready[i].EnqueuedAt.Before(ready[j].EnqueuedAt)
	})
	if batch > 0 && len(ready) > batch {
		ready = ready[:batch]
	}

	for _, msg := range ready {
		q.removeLocked(msg.ID)
	}
	return ready, expired
}

// removeLocked drops a message from the pending list. Caller holds q.mu.
func (q *queue) removeLocked(id string) {
	for i, m := range q.messages {
		if m.ID == id {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return
		}
	}
}

// endProcessing removes the message from the processing map, stopping its
// timeout timer. Returns nil when the message is not in flight (already
// resolved by a racing timeout or ack).
func (q *queue) endProcessing(id string) *inflight {
	q.mu.Lock()
	defer q.mu.Unlock()
	inf, ok := q.processing[id]
	if !ok {
		return nil
	}
	delete(q.processing, id)
	if inf.timer != nil {
		inf.timer.Stop()
	}
	return inf
}

// requeue returns a failed message to the pending list for a later retry.
func (q *queue) requeue(msg *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	q.stats.retries++
}

func (q *queue) recordSuccess(processingTime, waitTime time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stats.processed++
	q.stats.avgProcessing = ema(q.stats.avgProcessing, float64(processingTime.Milliseconds()))
	q.stats.avgWait = ema(q.stats.avgWait, float64(waitTime.Milliseconds()))
}

func (q *queue) recordFailure() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stats.failed++
}

func (q *queue) setPaused(paused bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = paused
}

func (q *queue) isPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// clear drops all pending messages and returns how many were removed.
// In-flight messages are left to finish.
func (q *queue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.messages)
	q.messages = nil
	return n
}

func (q *queue) status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Name:          q.name,
		Priority:      q.cfg.Priority,
		Depth:         len(q.messages),
		Processing:    len(q.processing),
		MaxSize:       q.cfg.MaxSize,
		Paused:        q.paused,
		DeadLetter:    q.isDLQ,
		Enqueued:      q.stats.enqueued,
		Processed:     q.stats.processed,
		Failed:        q.stats.failed,
		Retries:       q.stats.retries,
		DeadLettered:  q.stats.deadLettered,
		Expired:       q.stats.expired,
		RateLimitHits: q.stats.rateLimitHits,
		AvgProcessing: time.Duration(q.stats.avgProcessing) * time.Millisecond,
		AvgWait:       time.Duration(q.stats.avgWait) * time.Millisecond,
	}
}

func ema(current, sample float64) float64 {
	if current == 0 {
		return sample
	}
	return emaAlpha*sample + (1-emaAlpha)*current
}
