// Package state implements the namespaced key/value state manager that the
// planning pipeline shares its working data through.
//
// Each namespace carries its own policy: TTL defaults, LRU capacity,
// secondary indexing, gzip compression above a size threshold, encryption,
// version history, a consistency class (strong, eventual, or session), and a
// conflict resolution mode for optimistic-version collisions.
//
// Core operations:
//   - Set/Get/Delete/Exists with per-call TTL, expected-version checks,
//     extra index fields, and session tracking
//   - Keys (glob match), Query (equality index lookup), MGet/MSet, Increment
//   - Expire/Persist/TTL for lifetime management
//   - Lock/Unlock for cooperative per-key locks with TTL and re-entrancy
//   - Begin/Add/Commit/Rollback for multi-key transactions with
//     canonical-order lock acquisition and undo-based rollback
//   - Subscribe/Unsubscribe for pattern-matched change notifications
//
// Strong namespaces acknowledge writes only after the configured write
// quorum accepts; a failed quorum leaves the previous value in place. Reads
// against strong namespaces aggregate a read quorum and return the freshest
// record. Eventual and session namespaces replicate asynchronously, with a
// background catch-up sweep retrying downed replicas.
//
// Namespaces marked persistent store their entries in a bbolt database
// (one bucket per namespace plus an append-only operations log) and reload
// them at startup.
package state
