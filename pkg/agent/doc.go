// Package agent hosts the harness that connects pipeline agents to the
// core. The queue manager routes each dispatched message as an event on the
// message type's topic; the harness invokes the bound agent, publishes its
// completion event with the saga and correlation ids carried over, and acks
// or fails the underlying queue message.
package agent
