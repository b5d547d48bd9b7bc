package collab

import "context"

// Developer produces a candidate ChangeSet for a domain task.
//
// Repair rounds pass the previous QA feedback in Task.PriorFeedback.
// Transport-level failures must be wrapped with Infra so the workflow can
// distinguish infrastructure failures from quality defects.
type Developer interface {
	Develop(ctx context.Context, task Task) (*ChangeSet, error)
}

// SafetyScorer scores a ChangeSet in [0, 1] and reports flagged patterns.
type SafetyScorer interface {
	Score(ctx context.Context, cs *ChangeSet) (*ScoreReport, error)
}

// Validator runs QA against a ChangeSet and returns a verdict with
// feedback usable as repair guidance.
type Validator interface {
	Validate(ctx context.Context, task Task, cs *ChangeSet) (*Verdict, error)
}

// Notifier receives workflow progress events.
//
// Notify is fire-and-forget: implementations swallow delivery failures and
// must not block the calling workflow on an unavailable sink.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// WorkspaceProvider isolates domain working copies and integrates approved
// results.
//
// MergeToIntegration is invoked only after the consensus gate approves an
// automatic merge, once per domain in dependency order.
type WorkspaceProvider interface {
	Acquire(ctx context.Context, runID, domain string) (*Workspace, error)
	MergeToIntegration(ctx context.Context, runID, domain string, cs *ChangeSet) error
	Cleanup(ctx context.Context, runID string) error
}
