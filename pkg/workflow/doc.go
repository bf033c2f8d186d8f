// Package workflow implements the saga engine that drives travel plans
// through the processing pipeline.
//
// Two templates exist: CREATE walks admission, candidate generation,
// verification, ranking, selection, enrichment, output build, final
// verification, and packaging; REVISE inserts an analysis stage after
// admission. Each non-terminal state dispatches a task onto a stage queue
// on entry and waits for the stage agent's completion topic. Verification
// states carry a fallback edge taken when the agent reports a failed check.
//
// Every state is guarded by a one-shot timer. A lapse re-runs the entry
// action until the retry budget is spent, then fails the saga. Completion
// events that arrive for a state the saga has already left are dropped.
//
// A REVISION event received while a saga is active branches a sibling
// REVISE saga that shares the original's correlation id.
package workflow
