/*
Package bus implements the topic-addressed event bus at the heart of the
orchestration core.

Delivery is at-least-once. Each subscription owns a set of FIFO lanes, one
per sagaId: a lane is a bounded channel drained by a single goroutine, so
two events with the same sagaId are never reordered for a given subscriber,
while events for different sagas (and different subscribers) are delivered
concurrently. Idle lanes reclaim their goroutine after two minutes.

A failing handler is retried up to MaxRetries times with exponential
backoff (base * 2^(attempt-1)) plus up to 100ms of jitter. Exhausted
deliveries become DeadLetter records; a "dlq-message" event announces each
one on the internal channel. Dead letters are terminal and removed only by
AckDLQ.

Publish validates the event schema first: type, payload, timestamp and
version are always required, sagaId and correlationId additionally so for
domain topics when correlation tracking is enabled. RegisterSchema installs
per-topic payload validators so malformed payload shapes are rejected at
the boundary rather than inside a handler.

A bounded ring keeps the most recent events; History returns up to 100
matching a saga/type/time filter.

Backpressure: a lane over its high-water mark routes further events for
that (subscriber, saga) pair to the DLQ instead of buffering without
bound. Publishers are never blocked indefinitely.
*/
package bus
