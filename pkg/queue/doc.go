// Package queue implements the queue manager: named priority queues with
// per-queue dispatch loops, dual-window token-bucket rate limits, bounded
// retries, dead-letter routing, and health monitoring.
//
// Each queue is pre-configured with a priority class, capacity, processing
// timeout, retry budget, batch size, concurrency, and rate limits. The
// processor loop selects ready messages (delay elapsed, TTL not exceeded),
// orders them by priority then enqueue time, and dispatches up to the
// concurrency limit. Messages either run through a registered in-process
// Handler or are routed to agents as events on the bus, in which case the
// harness resolves them with Ack or Fail.
//
// A failed message retries after the configured delay until its attempt
// budget is spent, then moves to the queue's dead-letter queue with its
// error history attached. Dead-letter queues are terminal: they have no
// processor and nothing redispatches their messages automatically.
//
// Queues marked persistent journal pending messages to bbolt and recover
// them at startup.
package queue
