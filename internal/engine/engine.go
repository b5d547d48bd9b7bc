package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/crewd/internal/logging"
	"github.com/fyrsmithlabs/crewd/internal/plan"
	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

const instrumentationName = "github.com/fyrsmithlabs/crewd/internal/engine"

// Config bounds one domain workflow.
type Config struct {
	// MaxAttempts is the repair budget per domain (default 3).
	MaxAttempts int

	// SafetyFloor escalates any change scoring below it (default 0.30).
	SafetyFloor float64

	// PerCallTimeout bounds every collaborator call. Zero disables the
	// bound (the run context still applies).
	PerCallTimeout time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		SafetyFloor:    0.30,
		PerCallTimeout: 10 * time.Minute,
	}
}

// Engine runs one domain's workflow to a terminal state.
type Engine struct {
	developer collab.Developer
	scorer    collab.SafetyScorer
	validator collab.Validator
	notifier  collab.Notifier
	cfg       Config
	logger    *logging.Logger
	tracer    trace.Tracer

	// sleep waits at least d unless ctx is cancelled. Replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleep overrides the backoff wait (for tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// New creates an engine. All collaborators are required except the
// notifier, which defaults to a no-op sink.
func New(dev collab.Developer, scorer collab.SafetyScorer, validator collab.Validator, notifier collab.Notifier, cfg Config, logger *logging.Logger, opts ...Option) (*Engine, error) {
	if dev == nil || scorer == nil || validator == nil {
		return nil, errors.New("developer, scorer and validator are required")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.SafetyFloor <= 0 {
		cfg.SafetyFloor = DefaultConfig().SafetyFloor
	}

	e := &Engine{
		developer: dev,
		scorer:    scorer,
		validator: validator,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		sleep:     sleepAtLeast,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run drives the domain to a terminal state and returns its finalized
// result. Run never returns an error: every failure mode is absorbed into
// the result so sibling domains are unaffected.
func (e *Engine) Run(ctx context.Context, runID string, desc plan.Descriptor, workspace string) *Result {
	ctx, span := e.tracer.Start(ctx, "engine.run",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("domain", desc.Name),
		))
	defer span.End()

	logger := e.logger.With(zap.String("run_id", runID), zap.String("domain", desc.Name))

	result := &Result{Domain: desc.Name}
	retry := &retryContext{maxAttempts: e.cfg.MaxAttempts}

	task := collab.Task{
		RunID:       runID,
		Domain:      desc.Name,
		Description: desc.Task,
		Workspace:   workspace,
	}

	state := StateDeveloping
	var cs *collab.ChangeSet

	for !state.Terminal() {
		e.notify(ctx, runID, desc.Name, state, retry.attempt, nil)

		if err := ctx.Err(); err != nil {
			e.escalate(ctx, span, logger, runID, result, retry, "cancelled")
			return result
		}

		switch state {
		case StateDeveloping, StateRepairing:
			task.Attempt = retry.attempt
			var err error
			cs, err = e.develop(ctx, task)
			if err != nil {
				// Infrastructure failure, not a quality defect: escalate
				// without touching the retry budget.
				e.escalate(ctx, span, logger, runID, result, retry,
					fmt.Sprintf("development failed: %v", err))
				return result
			}
			result.ChangeSet = cs
			result.FilesTouched = cs.FilesTouched()
			state = StateSafetyCheck

		case StateSafetyCheck:
			report, err := e.score(ctx, cs)
			if err != nil {
				e.escalate(ctx, span, logger, runID, result, retry,
					fmt.Sprintf("safety scoring failed: %v", err))
				return result
			}
			result.SafetyScore = report.Score
			if report.Score < e.cfg.SafetyFloor {
				// Unsafe output is never retried into acceptance.
				e.escalate(ctx, span, logger, runID, result, retry,
					fmt.Sprintf("safety score %.2f below floor %.2f (flagged: %v)",
						report.Score, e.cfg.SafetyFloor, report.Flagged))
				return result
			}
			state = StateQA

		case StateQA:
			verdict, err := e.validate(ctx, task, cs)
			if err != nil {
				e.escalate(ctx, span, logger, runID, result, retry,
					fmt.Sprintf("validation failed: %v", err))
				return result
			}
			result.TestsPassed = verdict.Passed
			if verdict.Passed {
				state = StateDone
				break
			}

			retry.lastError = verdict.Feedback
			if retry.exhausted() {
				e.escalate(ctx, span, logger, runID, result, retry,
					fmt.Sprintf("qa failed after %d attempts: %s", retry.attempt, verdict.Feedback))
				return result
			}

			retry.attempt++
			result.RetryCount = retry.attempt
			backoff := time.Duration(retry.backoffSeconds()) * time.Second
			logger.Info(ctx, "qa rejected change, scheduling repair",
				zap.Int("attempt", retry.attempt),
				zap.Duration("backoff", backoff))
			if err := e.sleep(ctx, backoff); err != nil {
				e.escalate(ctx, span, logger, runID, result, retry, "cancelled")
				return result
			}
			task.PriorFeedback = verdict.Feedback
			state = StateRepairing
		}
	}

	result.RetryCount = retry.attempt
	e.notify(ctx, runID, desc.Name, StateDone, retry.attempt, map[string]string{
		"safety_score": strconv.FormatFloat(result.SafetyScore, 'f', 2, 64),
	})
	logger.Info(ctx, "domain workflow completed",
		zap.Float64("safety_score", result.SafetyScore),
		zap.Int("retries", result.RetryCount))
	span.SetStatus(codes.Ok, "")
	return result
}

// develop calls the development collaborator under the per-call timeout.
func (e *Engine) develop(ctx context.Context, task collab.Task) (*collab.ChangeSet, error) {
	ctx, span := e.tracer.Start(ctx, "engine.develop")
	defer span.End()

	ctx, cancel := e.callContext(ctx)
	defer cancel()

	cs, err := e.developer.Develop(ctx, task)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if cs == nil {
		return nil, collab.Infra("develop", errors.New("developer returned no change set"))
	}
	return cs, nil
}

func (e *Engine) score(ctx context.Context, cs *collab.ChangeSet) (*collab.ScoreReport, error) {
	ctx, span := e.tracer.Start(ctx, "engine.safety_check")
	defer span.End()

	ctx, cancel := e.callContext(ctx)
	defer cancel()

	report, err := e.scorer.Score(ctx, cs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Float64("safety_score", report.Score))
	return report, nil
}

func (e *Engine) validate(ctx context.Context, task collab.Task, cs *collab.ChangeSet) (*collab.Verdict, error) {
	ctx, span := e.tracer.Start(ctx, "engine.qa")
	defer span.End()

	ctx, cancel := e.callContext(ctx)
	defer cancel()

	verdict, err := e.validator.Validate(ctx, task, cs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("passed", verdict.Passed))
	return verdict, nil
}

// callContext bounds a single collaborator call.
func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.PerCallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.PerCallTimeout)
}

// escalate finalizes the result as escalated and emits the terminal event.
func (e *Engine) escalate(ctx context.Context, span trace.Span, logger *logging.Logger, runID string, result *Result, retry *retryContext, reason string) {
	result.Escalated = true
	result.TestsPassed = false
	result.FailureReason = reason
	result.RetryCount = retry.attempt

	// The run context may already be cancelled; the terminal event still
	// has to go out.
	e.notify(context.WithoutCancel(ctx), runID, result.Domain, StateEscalated, retry.attempt, map[string]string{
		"reason": reason,
	})
	logger.Warn(ctx, "domain escalated",
		zap.String("reason", reason),
		zap.Int("retries", retry.attempt))
	span.SetStatus(codes.Error, reason)
}

func (e *Engine) notify(ctx context.Context, runID, domain string, state State, attempt int, meta map[string]string) {
	e.notifier.Notify(ctx, collab.Event{
		RunID:   runID,
		Domain:  domain,
		State:   string(state),
		Attempt: attempt,
		Meta:    meta,
		At:      time.Now().UTC(),
	})
}

// sleepAtLeast blocks for at least d or until ctx is cancelled.
func sleepAtLeast(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, collab.Event) {}
