package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/crewd/internal/logging"
	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

// Config configures the script workers.
type Config struct {
	// DevelopCommand is the develop worker argv.
	DevelopCommand []string
	// ValidateCommand is the QA worker argv.
	ValidateCommand []string
	// RateLimit caps worker invocations per second across all domains.
	// Zero disables limiting.
	RateLimit float64
	// RateBurst is the limiter burst size (minimum 1).
	RateBurst int

	// MaxOutputBytes caps worker stdout (default 8MB).
	MaxOutputBytes int64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		RateBurst:      1,
		MaxOutputBytes: 8 << 20,
	}
}

// runner executes worker commands under a shared rate limiter.
type runner struct {
	limiter *rate.Limiter
	maxOut  int64
	logger  *logging.Logger
}

func newRunner(cfg Config, logger *logging.Logger) *runner {
	if logger == nil {
		logger = logging.Nop()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	maxOut := cfg.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = DefaultConfig().MaxOutputBytes
	}
	return &runner{limiter: limiter, maxOut: maxOut, logger: logger}
}

// run executes argv with input on stdin and decodes stdout into out.
func (r *runner) run(ctx context.Context, op string, argv []string, dir string, input, out any) error {
	if len(argv) == 0 {
		return collab.Infra(op, errors.New("no worker command configured"))
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return collab.Infra(op, fmt.Errorf("rate limiter: %w", err))
		}
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return collab.Infra(op, fmt.Errorf("encoding request: %w", err))
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return collab.Infra(op, ctxErr)
		}
		r.logger.Warn(ctx, "worker command failed",
			zap.String("op", op),
			zap.String("command", argv[0]),
			zap.String("stderr", stderr.String()))
		return collab.Infra(op, fmt.Errorf("worker %s: %w (stderr: %s)", argv[0], err, stderr.String()))
	}

	if int64(stdout.Len()) > r.maxOut {
		return collab.Infra(op, fmt.Errorf("worker output exceeds %d bytes", r.maxOut))
	}
	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return collab.Infra(op, fmt.Errorf("decoding worker response: %w", err))
	}
	return nil
}

// ScriptDeveloper implements collab.Developer over an external worker.
type ScriptDeveloper struct {
	argv   []string
	runner *runner
}

// ScriptValidator implements collab.Validator over an external worker.
type ScriptValidator struct {
	argv   []string
	runner *runner
}

// New builds the developer and validator sharing one rate limiter.
func New(cfg Config, logger *logging.Logger) (*ScriptDeveloper, *ScriptValidator, error) {
	if len(cfg.DevelopCommand) == 0 {
		return nil, nil, errors.New("develop command is required")
	}
	if len(cfg.ValidateCommand) == 0 {
		return nil, nil, errors.New("validate command is required")
	}
	r := newRunner(cfg, logger)
	return &ScriptDeveloper{argv: cfg.DevelopCommand, runner: r},
		&ScriptValidator{argv: cfg.ValidateCommand, runner: r},
		nil
}

// Develop invokes the develop worker in the task's workspace.
func (d *ScriptDeveloper) Develop(ctx context.Context, task collab.Task) (*collab.ChangeSet, error) {
	var cs collab.ChangeSet
	if err := d.runner.run(ctx, "agent.develop", d.argv, task.Workspace, task, &cs); err != nil {
		return nil, err
	}
	if cs.Domain == "" {
		cs.Domain = task.Domain
	}
	if len(cs.Files) == 0 {
		return nil, collab.Infra("agent.develop", errors.New("worker returned empty change set"))
	}
	return &cs, nil
}

// validateRequest is the QA worker's stdin payload.
type validateRequest struct {
	Task      collab.Task       `json:"task"`
	ChangeSet *collab.ChangeSet `json:"change_set"`
}

// Validate invokes the QA worker against the candidate change set.
func (v *ScriptValidator) Validate(ctx context.Context, task collab.Task, cs *collab.ChangeSet) (*collab.Verdict, error) {
	var verdict collab.Verdict
	req := validateRequest{Task: task, ChangeSet: cs}
	if err := v.runner.run(ctx, "agent.validate", v.argv, task.Workspace, req, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}
