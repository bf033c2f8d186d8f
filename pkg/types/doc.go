/*
Package types defines the shared vocabulary of the orchestration core: the
wire-stable Event record, the error taxonomy surfaced at component
boundaries, message priorities, the reserved topic and queue catalogs, and
the clock abstraction.

Every component imports types; types imports no component. Keeping the
shared records here is what lets the bus, queues, workflow engine, policy
layer, and state manager reference each other's payloads without import
cycles.

# Event Schema

Events are JSON records with fixed field names:

	id            UUID, assigned at publish
	type          topic name
	data          opaque structured payload
	timestamp     time of publish
	sagaId        owning saga (required when correlation tracking is on)
	correlationId groups related sagas
	spanId        per-hop trace id
	source        emitting component
	version       schema version, currently "1.0"

# Error Taxonomy

Errors cross component boundaries as *types.Error with a Kind:

	schema_error        invalid event or payload shape; not retried
	not_found           missing saga / namespace / key; not retried
	conflict            version mismatch, lock held; retriable after re-read
	timeout             state, message, lock, or transaction timed out
	rate_limited        admission or rate limiter denied; back off
	queue_full          backpressure from a bounded queue
	resource_exhausted  concurrency or capacity cap reached
	cancelled           cooperative cancellation
	policy_violation    admission, compliance, or rule denial
	internal            bug or invariant break

errors.Is / errors.As work across wrapping; Retriable(err) encodes the
caller-side retry policy.
*/
package types
