// Package policy implements the policy engine: admission control,
// compliance validation, business rules, and circuit breaking.
//
// Admission combines a per-client sliding-window rate limit with
// concurrency and queue-depth caps; approved sagas enter an active set that
// Release drains on completion. Compliance validation strips forbidden
// fields (redaction proceeds even while the breach is reported), checks
// consent flags, retention ages, and token validity. Business rules are a
// registry of named checks covering price drift, confidence bounds, timeout
// overruns, revision caps, and license presence.
//
// Circuit breakers wrap outbound service calls via sony/gobreaker: a
// breaker opens when the error ratio crosses the configured threshold,
// cools down, admits a limited number of half-open probes, and closes after
// enough consecutive successes. Successful calls slower than the slow-call
// threshold count as failures.
//
// Every denial or breach lands in a bounded violation ledger and is also
// published as a policy-violation event for downstream audit.
package policy
