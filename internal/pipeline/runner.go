package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/crewd/internal/conflict"
	"github.com/fyrsmithlabs/crewd/internal/consensus"
	"github.com/fyrsmithlabs/crewd/internal/engine"
	"github.com/fyrsmithlabs/crewd/internal/executor"
	"github.com/fyrsmithlabs/crewd/internal/logging"
	"github.com/fyrsmithlabs/crewd/internal/monitor"
	"github.com/fyrsmithlabs/crewd/internal/plan"
	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

const instrumentationName = "github.com/fyrsmithlabs/crewd/internal/pipeline"

// Config tunes the run-level gates.
type Config struct {
	Consensus consensus.Config
	// CleanupWorkspaces removes domain clones after the run completes.
	CleanupWorkspaces bool
}

// Report is the full outcome of one run.
type Report struct {
	RunID    string                    `json:"run_id"`
	Decision consensus.Decision        `json:"decision"`
	Results  map[string]*engine.Result `json:"results"`
	// Merged lists the domains committed to integration, in order.
	Merged []string `json:"merged,omitempty"`
}

// Runner executes complete pipeline runs.
type Runner struct {
	executor   *executor.Executor
	detector   *conflict.Detector
	workspaces collab.WorkspaceProvider
	metrics    *monitor.Metrics
	cfg        Config
	logger     *logging.Logger
	tracer     trace.Tracer
}

// New creates a runner. Metrics may be nil.
func New(exec *executor.Executor, detector *conflict.Detector, workspaces collab.WorkspaceProvider, metrics *monitor.Metrics, cfg Config, logger *logging.Logger) (*Runner, error) {
	if exec == nil {
		return nil, errors.New("executor is required")
	}
	if detector == nil {
		return nil, errors.New("conflict detector is required")
	}
	if workspaces == nil {
		return nil, errors.New("workspace provider is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{
		executor:   exec,
		detector:   detector,
		workspaces: workspaces,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
	}, nil
}

// Run executes the manifest's domains end to end and returns the report.
// Run fails only on planning or internal wiring errors; domain failures
// are absorbed into the consensus decision.
func (r *Runner) Run(ctx context.Context, descs []plan.Descriptor) (*Report, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	ctx, span := r.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("domains", len(descs)),
		))
	defer span.End()

	ep, err := r.resolve(descs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	r.logger.Info(ctx, "execution plan resolved",
		zap.Int("layers", len(ep.Layers)),
		zap.Strings("order", ep.SortedOrder))

	results, err := r.executor.Execute(ctx, runID, descs, ep)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	r.recordDomains(results)

	conflicts := r.detectConflicts(results)
	decision := consensus.Decide(results, conflicts, r.cfg.Consensus)

	report := &Report{RunID: runID, Results: results}

	if decision.MergeApproved {
		merged, mergeErr := r.merge(ctx, runID, ep.SortedOrder, results)
		report.Merged = merged
		if mergeErr != nil {
			// A partial merge is a human problem, not a retryable one.
			decision.MergeApproved = false
			decision.MergeType = consensus.MergeManual
			decision.NeedsHuman = true
			decision.EscalationReason = fmt.Sprintf("integration merge failed: %v", mergeErr)
		}
	}
	report.Decision = decision

	if r.metrics != nil {
		r.metrics.RecordRun(string(decision.MergeType))
	}
	if r.cfg.CleanupWorkspaces {
		if err := r.workspaces.Cleanup(ctx, runID); err != nil {
			r.logger.Warn(ctx, "workspace cleanup failed", zap.Error(err))
		}
	}

	if decision.NeedsHuman {
		span.SetStatus(codes.Error, decision.EscalationReason)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	r.logger.Info(ctx, "run completed",
		zap.String("merge_type", string(decision.MergeType)),
		zap.Bool("needs_human", decision.NeedsHuman),
		zap.Float64("avg_safety", decision.AverageSafetyScore))

	return report, nil
}

func (r *Runner) resolve(descs []plan.Descriptor) (*plan.ExecutionPlan, error) {
	if len(descs) == 0 {
		return nil, errors.New("no domains to run")
	}
	names := make([]string, 0, len(descs))
	deps := make(map[string][]string)
	for _, d := range descs {
		names = append(names, d.Name)
		if len(d.DependsOn) > 0 {
			deps[d.Name] = d.DependsOn
		}
	}
	ep, err := plan.Resolve(names, deps)
	if err != nil {
		return nil, fmt.Errorf("resolving execution plan: %w", err)
	}
	return ep, nil
}

// detectConflicts classifies path overlap across every proposed change
// set, escalated domains included: their proposals still collide.
func (r *Runner) detectConflicts(results map[string]*engine.Result) []conflict.Conflict {
	touched := make(map[string][]string, len(results))
	for name, res := range results {
		if len(res.FilesTouched) > 0 {
			touched[name] = res.FilesTouched
		}
	}
	conflicts := r.detector.Detect(touched)
	if r.metrics != nil {
		for _, c := range conflicts {
			r.metrics.RecordConflict(string(c.Severity))
		}
	}
	return conflicts
}

// merge commits approved change sets in dependency order, stopping at
// the first failure.
func (r *Runner) merge(ctx context.Context, runID string, order []string, results map[string]*engine.Result) ([]string, error) {
	var merged []string
	for _, name := range order {
		res := results[name]
		if res == nil || res.ChangeSet == nil {
			return merged, fmt.Errorf("domain %s has no change set", name)
		}
		if err := r.workspaces.MergeToIntegration(ctx, runID, name, res.ChangeSet); err != nil {
			return merged, fmt.Errorf("merging %s: %w", name, err)
		}
		merged = append(merged, name)
	}
	return merged, nil
}

func (r *Runner) recordDomains(results map[string]*engine.Result) {
	if r.metrics == nil {
		return
	}
	for _, res := range results {
		outcome := "done"
		if res.Escalated || !res.TestsPassed {
			outcome = "escalated"
		}
		r.metrics.RecordDomain(outcome, res.RetryCount, res.SafetyScore)
	}
}

// NewRunID exposes the run identifier scheme for callers that need to
// pre-allocate one (e.g. dry runs).
func NewRunID() string {
	return uuid.NewString()
}
