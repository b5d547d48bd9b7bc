package engine

import "github.com/fyrsmithlabs/crewd/pkg/collab"

// State names a workflow state. States are notified verbatim to progress
// sinks and recorded by the status tracker.
type State string

const (
	StateDeveloping  State = "developing"
	StateSafetyCheck State = "safety_check"
	StateQA          State = "qa"
	StateRepairing   State = "repairing"
	StateDone        State = "done"
	StateEscalated   State = "escalated"
)

// Terminal reports whether the state ends the workflow.
func (s State) Terminal() bool {
	return s == StateDone || s == StateEscalated
}

// Result is the finalized outcome of one domain's workflow. It is written
// exclusively by the engine that ran the domain and is immutable once the
// engine terminates.
type Result struct {
	Domain        string   `json:"domain"`
	FilesTouched  []string `json:"files_touched,omitempty"`
	TestsPassed   bool     `json:"tests_passed"`
	SafetyScore   float64  `json:"safety_score"`
	RetryCount    int      `json:"retry_count"`
	Escalated     bool     `json:"escalated"`
	FailureReason string   `json:"failure_reason,omitempty"`

	// ChangeSet is the last candidate change, kept for conflict detection
	// and the merge step. Nil when the domain never produced one.
	ChangeSet *collab.ChangeSet `json:"-"`
}

// retryContext tracks the repair budget for one domain. Owned exclusively
// by the engine running that domain; discarded at termination.
type retryContext struct {
	attempt     int
	maxAttempts int
	lastError   string
}

// backoffSeconds returns the bounded exponential backoff that must elapse
// before the next development call: min(300, 2^attempt) seconds.
func (r *retryContext) backoffSeconds() int {
	const cap = 300
	if r.attempt >= 9 { // 2^9 = 512 > 300
		return cap
	}
	n := 1 << uint(r.attempt)
	if n > cap {
		return cap
	}
	return n
}

// exhausted reports whether the repair budget is spent.
func (r *retryContext) exhausted() bool {
	return r.attempt >= r.maxAttempts
}
