package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/crewd/internal/engine"
	"github.com/fyrsmithlabs/crewd/internal/logging"
	"github.com/fyrsmithlabs/crewd/internal/plan"
	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

const instrumentationName = "github.com/fyrsmithlabs/crewd/internal/executor"

// ReasonUpstreamEscalated marks domains blocked by an escalated dependency.
const ReasonUpstreamEscalated = "upstream dependency escalated"

// DomainRunner runs one domain workflow to its terminal state.
type DomainRunner interface {
	Run(ctx context.Context, runID string, desc plan.Descriptor, workspace string) *engine.Result
}

// Config bounds layer execution.
type Config struct {
	// WorkerPoolSize caps concurrently running domains within a layer.
	WorkerPoolSize int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{WorkerPoolSize: 4}
}

// Executor drives an execution plan layer by layer.
type Executor struct {
	runner     DomainRunner
	workspaces collab.WorkspaceProvider
	notifier   collab.Notifier
	cfg        Config
	logger     *logging.Logger
	tracer     trace.Tracer

	// layerObserver, when set, receives per-layer timings.
	layerObserver func(index, size int, elapsed time.Duration)
}

// Option configures an Executor.
type Option func(*Executor)

// WithLayerObserver registers a callback receiving per-layer timings.
func WithLayerObserver(fn func(index, size int, elapsed time.Duration)) Option {
	return func(x *Executor) { x.layerObserver = fn }
}

// New creates an executor. The workspace provider is required; the
// notifier is optional and receives events for domains that never start.
func New(runner DomainRunner, workspaces collab.WorkspaceProvider, notifier collab.Notifier, cfg Config, logger *logging.Logger, opts ...Option) (*Executor, error) {
	if runner == nil {
		return nil, errors.New("domain runner is required")
	}
	if workspaces == nil {
		return nil, errors.New("workspace provider is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = DefaultConfig().WorkerPoolSize
	}

	x := &Executor{
		runner:     runner,
		workspaces: workspaces,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// Execute runs every domain of the plan and returns results keyed by
// domain name. The returned map always covers every planned domain, even
// when the context is cancelled mid-run.
func (x *Executor) Execute(ctx context.Context, runID string, descs []plan.Descriptor, ep *plan.ExecutionPlan) (map[string]*engine.Result, error) {
	ctx, span := x.tracer.Start(ctx, "executor.execute",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("layers", len(ep.Layers)),
			attribute.Int("domains", len(ep.SortedOrder)),
		))
	defer span.End()

	byName := make(map[string]plan.Descriptor, len(descs))
	for _, d := range descs {
		byName[d.Name] = d
	}
	for _, name := range ep.SortedOrder {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("plan references domain %q with no descriptor", name)
		}
	}

	results := make(map[string]*engine.Result, len(ep.SortedOrder))
	var mu sync.Mutex

	for i, layer := range ep.Layers {
		start := time.Now()
		x.runLayer(ctx, runID, i, layer, byName, results, &mu)
		elapsed := time.Since(start)

		x.logger.Info(ctx, "layer completed",
			zap.String("run_id", runID),
			zap.Int("layer", i),
			zap.Int("domains", len(layer)),
			zap.Duration("elapsed", elapsed))
		if x.layerObserver != nil {
			x.layerObserver(i, len(layer), elapsed)
		}
	}

	return results, nil
}

// runLayer executes one layer's domains under the worker pool. Blocked
// and cancelled domains are settled without dispatch.
func (x *Executor) runLayer(ctx context.Context, runID string, index int, layer []string, byName map[string]plan.Descriptor, results map[string]*engine.Result, mu *sync.Mutex) {
	ctx, span := x.tracer.Start(ctx, "executor.layer",
		trace.WithAttributes(attribute.Int("layer", index)))
	defer span.End()

	sem := semaphore.NewWeighted(int64(x.cfg.WorkerPoolSize))
	g, gctx := errgroup.WithContext(ctx)

	for _, name := range layer {
		desc := byName[name]

		if blocked, dep := x.upstreamEscalated(desc, results, mu); blocked {
			x.settle(ctx, runID, desc.Name, &engine.Result{
				Domain:        desc.Name,
				Escalated:     true,
				FailureReason: ReasonUpstreamEscalated,
			}, results, mu)
			x.logger.Warn(ctx, "domain blocked by escalated dependency",
				zap.String("run_id", runID),
				zap.String("domain", desc.Name),
				zap.String("dependency", dep))
			continue
		}

		if ctx.Err() != nil {
			x.settle(ctx, runID, desc.Name, &engine.Result{
				Domain:        desc.Name,
				Escalated:     true,
				FailureReason: "cancelled",
			}, results, mu)
			continue
		}

		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				x.settle(ctx, runID, desc.Name, &engine.Result{
					Domain:        desc.Name,
					Escalated:     true,
					FailureReason: "cancelled",
				}, results, mu)
				return nil
			}
			defer sem.Release(1)

			res := x.runDomain(gctx, runID, desc)
			mu.Lock()
			results[desc.Name] = res
			mu.Unlock()
			return nil
		})
	}

	// Goroutines absorb their own failures; Wait only synchronizes.
	_ = g.Wait()
}

// runDomain provisions an isolated workspace and hands off to the runner.
func (x *Executor) runDomain(ctx context.Context, runID string, desc plan.Descriptor) *engine.Result {
	ws, err := x.workspaces.Acquire(ctx, runID, desc.Name)
	if err != nil {
		return &engine.Result{
			Domain:        desc.Name,
			Escalated:     true,
			FailureReason: fmt.Sprintf("workspace acquisition failed: %v", err),
		}
	}
	return x.runner.Run(ctx, runID, desc, ws.Path)
}

// upstreamEscalated reports whether any dependency of desc escalated,
// returning the first such dependency name.
func (x *Executor) upstreamEscalated(desc plan.Descriptor, results map[string]*engine.Result, mu *sync.Mutex) (bool, string) {
	mu.Lock()
	defer mu.Unlock()
	for _, dep := range desc.DependsOn {
		if r, ok := results[dep]; ok && r.Escalated {
			return true, dep
		}
	}
	return false, ""
}

// settle records a result for a domain that never ran and emits its
// terminal event so progress consumers still see it.
func (x *Executor) settle(ctx context.Context, runID, domain string, res *engine.Result, results map[string]*engine.Result, mu *sync.Mutex) {
	mu.Lock()
	results[domain] = res
	mu.Unlock()

	if x.notifier != nil {
		x.notifier.Notify(context.WithoutCancel(ctx), collab.Event{
			RunID:  runID,
			Domain: domain,
			State:  string(engine.StateEscalated),
			Meta:   map[string]string{"reason": res.FailureReason},
			At:     time.Now().UTC(),
		})
	}
}
