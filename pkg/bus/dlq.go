package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// DeadLetter is a terminal record of an event whose delivery exhausted all
// retries. Records are never retried automatically; AckDLQ is the only way
// to remove one.
type DeadLetter struct {
	ID              string
	OriginalEvent   types.Event
	SubscriptionID  string
	Error           string
	Timestamp       time.Time
	RequiresApproval bool
}

type deadLetterStore struct {
	mu      sync.Mutex
	max     int
	records []DeadLetter
}

func newDeadLetterStore(max int) *deadLetterStore {
	if max <= 0 {
		max = 10000
	}
	return &deadLetterStore{max: max}
}

// add stores a record. The second return is true when the store is full and
// the record was dropped.
func (d *deadLetterStore) add(ev types.Event, subID string, err error, now time.Time) (DeadLetter, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.records) >= d.max {
		return DeadLetter{}, true
	}
	rec := DeadLetter{
		ID:               uuid.New().String(),
		OriginalEvent:    ev,
		SubscriptionID:   subID,
		Error:            err.Error(),
		Timestamp:        now,
		RequiresApproval: true,
	}
	d.records = append(d.records, rec)
	return rec, false
}

func (d *deadLetterStore) ack(recordID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, rec := range d.records {
		if rec.ID == recordID {
			d.records = append(d.records[:i], d.records[i+1:]...)
			return true
		}
	}
	return false
}

func (d *deadLetterStore) list() []DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeadLetter, len(d.records))
	copy(out, d.records)
	return out
}

func (d *deadLetterStore) depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}
