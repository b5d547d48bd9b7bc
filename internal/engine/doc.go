// Package engine drives one domain's development workflow to a terminal
// state.
//
// # State machine
//
//	Developing → SafetyCheck → QA → Done
//	                 ↑          │
//	             Repairing ←────┤ (QA failed, attempts remain)
//	                            └→ Escalated
//
// Escalation routes:
//   - infrastructure failure in any collaborator call (including per-call
//     timeout): immediate, never retried
//   - safety score below the hard floor: immediate, regardless of the
//     remaining retry budget
//   - QA failure with the attempt budget exhausted
//   - run cancellation observed at a state-transition boundary
//
// Repair rounds wait a bounded exponential backoff before calling the
// development collaborator again: min(300, 2^attempt) seconds. The wait is
// a required minimum, not best-effort; only cancellation cuts it short.
//
// Every transition emits a fire-and-forget progress event. One Engine
// instance serves one domain in one run and owns its RetryContext and
// Result exclusively until termination.
package engine
