/*
Package metrics provides Prometheus metrics collection and exposition for
the planning core.

All metrics are defined as package-level collectors, registered against the
default registry at init, and exposed through the promhttp handler. A
Collector samples the core components on a fixed interval and copies their
counters into the gauges, so components stay free of Prometheus types.

	┌──────────────── METRICS FLOW ────────────────┐
	│                                               │
	│  bus / queues / state / policy / workflow     │
	│                  │ Stats()                    │
	│                  ▼                            │
	│  Collector (15s ticker) ──► Prometheus vars   │
	│                  │                            │
	│                  ▼                            │
	│  /metrics (promhttp, text exposition)         │
	└───────────────────────────────────────────────┘

Metric categories:

  - Bus: events published, delivered, delivery failures, DLQ depth,
    subscriber count
  - Queues: depth, in-flight, processed, dead-lettered, average processing
    time per queue
  - State: keys, hits, misses, evictions per namespace
  - Workflow: active, completed, failed sagas and the duration average
  - Policy: violation ledger size, admitted sagas, breaker open flags
  - Boundary: plan submissions by outcome and handling latency

The package also carries process health endpoints (/health, /ready,
/livez): components report lifecycle status through RegisterComponent, and
readiness additionally runs live gates (RegisterGate) sampling signals like
dead-letter backlog and queue saturation.

Timers wrap histogram observation:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PlanRequestDuration)
*/
package metrics
