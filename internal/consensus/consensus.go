package consensus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/crewd/internal/conflict"
	"github.com/fyrsmithlabs/crewd/internal/engine"
)

// MergeType tells the caller how the run's output reaches integration.
type MergeType string

const (
	// MergeAuto merges without human involvement.
	MergeAuto MergeType = "auto"
	// MergeManual requires a human to review and merge.
	MergeManual MergeType = "manual"
)

// Decision is the consensus verdict over a completed run.
type Decision struct {
	MergeApproved      bool                `json:"merge_approved"`
	MergeType          MergeType           `json:"merge_type"`
	NeedsHuman         bool                `json:"needs_human"`
	AverageSafetyScore float64             `json:"average_safety_score"`
	FailedDomains      []string            `json:"failed_domains,omitempty"`
	Conflicts          []conflict.Conflict `json:"conflicts,omitempty"`
	// EscalationReason concatenates only the gate checks that failed.
	EscalationReason string `json:"escalation_reason,omitempty"`
}

// Config tunes the merge gate.
type Config struct {
	// SafetyAverageThreshold is the minimum run-wide average safety
	// score for an automatic merge (default 0.85).
	SafetyAverageThreshold float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{SafetyAverageThreshold: 0.85}
}

// Decide evaluates the merge gate over per-domain results and detected
// conflicts. Decide is pure: it never mutates its inputs.
func Decide(results map[string]*engine.Result, conflicts []conflict.Conflict, cfg Config) Decision {
	if cfg.SafetyAverageThreshold <= 0 {
		cfg.SafetyAverageThreshold = DefaultConfig().SafetyAverageThreshold
	}

	d := Decision{Conflicts: conflicts}

	var failed []string
	var sum float64
	for name, res := range results {
		sum += res.SafetyScore
		if res.Escalated || !res.TestsPassed {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	d.FailedDomains = failed
	if len(results) > 0 {
		d.AverageSafetyScore = sum / float64(len(results))
	}

	var reasons []string
	if len(failed) > 0 {
		reasons = append(reasons, fmt.Sprintf("domains failed: %s", strings.Join(failed, ", ")))
	}
	if len(results) == 0 {
		reasons = append(reasons, "no domain results")
	} else if d.AverageSafetyScore < cfg.SafetyAverageThreshold {
		reasons = append(reasons, fmt.Sprintf("average safety score %.2f below threshold %.2f",
			d.AverageSafetyScore, cfg.SafetyAverageThreshold))
	}
	if blocking := blockingPaths(conflicts); len(blocking) > 0 {
		reasons = append(reasons, fmt.Sprintf("blocking conflicts: %s", strings.Join(blocking, ", ")))
	}

	if len(reasons) == 0 {
		d.MergeApproved = true
		d.MergeType = MergeAuto
		return d
	}

	d.MergeType = MergeManual
	d.NeedsHuman = true
	d.EscalationReason = strings.Join(reasons, "; ")
	return d
}

func blockingPaths(conflicts []conflict.Conflict) []string {
	var paths []string
	for _, c := range conflicts {
		if c.Severity == conflict.SeverityBlocking {
			paths = append(paths, c.Path)
		}
	}
	return paths
}
