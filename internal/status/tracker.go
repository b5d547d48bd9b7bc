package status

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

// DomainStatus is the last observed state of one domain in a run.
type DomainStatus struct {
	Domain    string    `json:"domain"`
	State     string    `json:"state"`
	Attempt   int       `json:"attempt"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunStatus is a point-in-time snapshot of one run.
type RunStatus struct {
	RunID     string         `json:"run_id"`
	Domains   []DomainStatus `json:"domains"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Tracker aggregates workflow events into queryable run snapshots.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]*runState
}

type runState struct {
	startedAt time.Time
	updatedAt time.Time
	domains   map[string]DomainStatus
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]*runState)}
}

// Notify implements collab.Notifier.
func (t *Tracker) Notify(_ context.Context, ev collab.Event) {
	if ev.RunID == "" || ev.Domain == "" {
		return
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[ev.RunID]
	if !ok {
		run = &runState{startedAt: at, domains: make(map[string]DomainStatus)}
		t.runs[ev.RunID] = run
	}
	run.updatedAt = at
	run.domains[ev.Domain] = DomainStatus{
		Domain:    ev.Domain,
		State:     ev.State,
		Attempt:   ev.Attempt,
		Reason:    ev.Meta["reason"],
		UpdatedAt: at,
	}
}

// Snapshot returns a copy of the run's current state.
func (t *Tracker) Snapshot(runID string) (RunStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	run, ok := t.runs[runID]
	if !ok {
		return RunStatus{}, false
	}

	domains := make([]DomainStatus, 0, len(run.domains))
	for _, d := range run.domains {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].Domain < domains[j].Domain })

	return RunStatus{
		RunID:     runID,
		Domains:   domains,
		StartedAt: run.startedAt,
		UpdatedAt: run.updatedAt,
	}, true
}

// Runs lists known run IDs, sorted.
func (t *Tracker) Runs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.runs))
	for id := range t.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Forget drops a run's state, typically after its results are archived.
func (t *Tracker) Forget(runID string) {
	t.mu.Lock()
	delete(t.runs, runID)
	t.mu.Unlock()
}
