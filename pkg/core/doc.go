// Package core assembles the planning substrate: it constructs the event
// bus, state manager, queue manager, policy engine, workflow orchestrator,
// coordinator, and agent harness, and wires them together through narrow
// interfaces so no component imports another's concrete type. Start and
// Stop run in dependency order and Stop is idempotent.
package core
