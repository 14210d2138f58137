// Package audit defines the engine's security event model and the
// asynchronous dispatcher that forwards events to a caller-supplied sink.
//
// Emission is fire-and-forget: a slow or failing sink can never block or
// fail an authentication flow. Events that cannot be buffered are counted
// and dropped.
package audit
