// Package collab defines the collaborator contracts crewd coordinates.
//
// # Overview
//
// crewd itself never generates code, scores safety, or runs tests. Those
// responsibilities belong to external collaborators plugged in behind the
// interfaces in this package:
//
//   - Developer produces a candidate ChangeSet for a domain task
//   - SafetyScorer scores a ChangeSet in [0, 1] and flags risky patterns
//   - Validator runs QA against a ChangeSet and returns a verdict
//   - Notifier receives fire-and-forget progress events
//   - WorkspaceProvider hands each domain an isolated working copy and
//     merges approved results into the integration branch
//
// # Error taxonomy
//
// Collaborator failures are classified with Error kinds:
//
//   - KindInfrastructure: the collaborator was unreachable or timed out.
//     Escalated immediately, never retried.
//   - KindQuality: QA rejected the change. Retried up to the configured
//     attempt budget.
//   - KindSafety: the change scored below the safety floor. Escalated
//     immediately regardless of remaining retries.
//
// Use Infra to wrap transport-level failures and IsInfrastructure /
// errors.Is to classify them.
package collab
