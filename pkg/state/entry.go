package state

import (
	"time"
)

// Entry is one stored key in a namespace. The manager keeps both the
// serialized (possibly compressed and encrypted) form and the original
// value reference; the latter feeds conflict resolution without a decode
// round-trip.
type Entry struct {
	Key          string
	Value        any
	stored       []byte
	compressed   bool
	encrypted    bool
	indexedTerms []string
	Version      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastAccessed time.Time
	AccessCount  uint64
	TTL          time.Duration
	ExpiresAt    time.Time
	Size         int
	Tags         []string
	Metadata     map[string]string
}

// expired reports whether the entry's TTL elapsed as of now.
func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Meta is the caller-visible metadata slice of an entry.
type Meta struct {
	Version      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastAccessed time.Time
	AccessCount  uint64
	ExpiresAt    time.Time
	Size         int
	Tags         []string
	Metadata     map[string]string
}

func (e *Entry) meta() Meta {
	return Meta{
		Version:      e.Version,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
		LastAccessed: e.LastAccessed,
		AccessCount:  e.AccessCount,
		ExpiresAt:    e.ExpiresAt,
		Size:         e.Size,
		Tags:         e.Tags,
		Metadata:     e.Metadata,
	}
}

// GetResult carries a value and its metadata out of Get.
type GetResult struct {
	Value    any
	Metadata Meta
}

// SetResult reports the outcome of a successful Set.
type SetResult struct {
	Version   string
	Timestamp time.Time
	ExpiresAt time.Time
}

// SetOptions tunes one Set call.
type SetOptions struct {
	// TTL overrides the namespace default. Negative means "no TTL".
	TTL *time.Duration
	// ExpectedVersion enables optimistic concurrency: a mismatch invokes
	// the namespace's conflict-resolution mode.
	ExpectedVersion string
	// Indexes lists additional payload fields to index beyond the default
	// projection.
	Indexes []string
	// LockID lets the holder of a key lock write through it.
	LockID   string
	Metadata map[string]string
	Tags     []string
	// SessionID ties the write to a session for session consistency.
	SessionID string
}

// GetOptions tunes one Get call.
type GetOptions struct {
	// SessionID routes the read for session-consistency namespaces.
	SessionID string
}

// QueryResult is one index-query hit.
type QueryResult struct {
	Key   string
	Value any
}

// ChangeKind discriminates subscription notifications.
type ChangeKind string

const (
	ChangeSet    ChangeKind = "set"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent notifies a subscriber of a namespace mutation.
type ChangeEvent struct {
	Namespace string
	Key       string
	Kind      ChangeKind
	Value     any
	Version   string
	Timestamp time.Time
}
