package collab

import (
	"sort"
	"time"
)

// Task describes one unit of work handed to a Developer.
type Task struct {
	// RunID identifies the pipeline run this task belongs to.
	RunID string `json:"run_id"`

	// Domain is the business domain being developed (e.g. "payments").
	Domain string `json:"domain"`

	// Description is the human-written task statement from the manifest.
	Description string `json:"description"`

	// Workspace is the path of the domain's isolated working copy.
	Workspace string `json:"workspace,omitempty"`

	// PriorFeedback carries QA feedback from the previous attempt during
	// repair rounds. Empty on the first attempt.
	PriorFeedback string `json:"prior_feedback,omitempty"`

	// Attempt is the zero-based repair attempt counter.
	Attempt int `json:"attempt"`
}

// ChangeSet is a candidate change produced by a Developer.
//
// Files maps repository-relative paths to their full new content. Content
// is carried (not just paths) because the safety scorer scans it and the
// merge step applies it.
type ChangeSet struct {
	Domain string            `json:"domain"`
	Files  map[string]string `json:"files"`
}

// FilesTouched returns the sorted set of paths modified by the change.
func (c *ChangeSet) FilesTouched() []string {
	if c == nil || len(c.Files) == 0 {
		return nil
	}
	paths := make([]string, 0, len(c.Files))
	for p := range c.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Verdict is the outcome of a QA validation pass.
type Verdict struct {
	Passed   bool   `json:"passed"`
	Feedback string `json:"feedback,omitempty"`
}

// ScoreReport is the outcome of a safety scoring pass.
type ScoreReport struct {
	// Score is in [0, 1]; higher is safer.
	Score float64 `json:"score"`

	// Flagged lists the pattern or rule identifiers that reduced the score.
	Flagged []string `json:"flagged,omitempty"`
}

// Event is a progress notification emitted on every workflow state
// transition. Delivery is fire-and-forget; sinks must never fail the
// workflow.
type Event struct {
	RunID   string            `json:"run_id"`
	Domain  string            `json:"domain"`
	State   string            `json:"state"`
	Attempt int               `json:"attempt"`
	Meta    map[string]string `json:"meta,omitempty"`
	At      time.Time         `json:"at"`
}

// Workspace is an isolated working copy for one domain in one run.
type Workspace struct {
	// Path is the checkout directory the domain's collaborators work in.
	Path string `json:"path"`

	// Branch is the isolation branch name, keyed by (runID, domain).
	Branch string `json:"branch"`
}
