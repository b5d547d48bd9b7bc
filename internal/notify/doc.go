// Package notify delivers workflow progress events to external sinks.
//
// Sinks are fire-and-forget: a slow or unavailable sink must never
// stall or fail a domain workflow, so delivery errors are logged and
// swallowed. The NATS sink publishes one message per event on
// <prefix>.<run_id>.<domain>.
package notify
