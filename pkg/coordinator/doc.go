// Package coordinator is the boundary adapter between external callers and
// the planning core. A plan submission runs the admission checks, lands an
// intake task on the search-requests queue, and publishes the INTENT event
// that starts the saga. The caller gets back the saga and correlation ids,
// or the denial reason as a typed error.
package coordinator
