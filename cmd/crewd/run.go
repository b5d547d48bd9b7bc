package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/crewd/internal/agent"
	"github.com/fyrsmithlabs/crewd/internal/config"
	"github.com/fyrsmithlabs/crewd/internal/conflict"
	"github.com/fyrsmithlabs/crewd/internal/consensus"
	"github.com/fyrsmithlabs/crewd/internal/engine"
	"github.com/fyrsmithlabs/crewd/internal/executor"
	"github.com/fyrsmithlabs/crewd/internal/gitspace"
	"github.com/fyrsmithlabs/crewd/internal/logging"
	"github.com/fyrsmithlabs/crewd/internal/monitor"
	"github.com/fyrsmithlabs/crewd/internal/notify"
	"github.com/fyrsmithlabs/crewd/internal/pipeline"
	"github.com/fyrsmithlabs/crewd/internal/plan"
	"github.com/fyrsmithlabs/crewd/internal/safety"
	"github.com/fyrsmithlabs/crewd/internal/server"
	"github.com/fyrsmithlabs/crewd/internal/status"
	"github.com/fyrsmithlabs/crewd/internal/telemetry"
	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

var (
	keepWorkspaces bool
)

var runCmd = &cobra.Command{
	Use:   "run <manifest>",
	Short: "Execute a full pipeline run from a manifest",
	Long: `Run every domain declared in the manifest through the development
pipeline and print the run report as JSON.

The command exits non-zero when the run needs human review.

Examples:
  crewd run crew.yaml
  crewd run --config crewd.yaml --keep-workspaces crew.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&keepWorkspaces, "keep-workspaces", false, "keep per-domain clones after the run")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	manifest, err := plan.LoadManifest(args[0])
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry))
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger, err := buildLogger(cfg, tel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics := monitor.New()
	tracker := status.NewTracker()

	sinks := []collab.Notifier{tracker}
	if cfg.NATS.Enabled {
		nn, err := notify.NewNATS(notify.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Token:         cfg.NATS.Credentials.Value(),
		}, logger)
		if err != nil {
			return err
		}
		defer nn.Close()
		sinks = append(sinks, nn)
	}
	notifier := notify.Multi(sinks...)

	runner, err := buildRunner(cfg, logger, metrics, notifier)
	if err != nil {
		return err
	}

	if cfg.Server.Enabled {
		srv, err := server.New(server.Config{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		}, tracker, metrics)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Warn(ctx, "status server stopped", zap.Error(err))
			}
		}()
	}

	report, err := runner.Run(ctx, manifest.Descriptors())
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if report.Decision.NeedsHuman {
		return fmt.Errorf("run %s needs human review: %s", report.RunID, report.Decision.EscalationReason)
	}
	return nil
}

// buildRunner wires the pipeline from configuration.
func buildRunner(cfg *config.Config, logger *logging.Logger, metrics *monitor.Metrics, notifier collab.Notifier) (*pipeline.Runner, error) {
	scorer, err := safety.New(safety.Config{
		DenyPatterns:   cfg.Safety.DenyPatterns,
		FindingPenalty: cfg.Safety.FindingPenalty,
		DenyPenalty:    cfg.Safety.DenyPenalty,
	}, logger)
	if err != nil {
		return nil, err
	}

	dev, val, err := agent.New(agent.Config{
		DevelopCommand:  cfg.Agent.DevelopCommand,
		ValidateCommand: cfg.Agent.ValidateCommand,
		RateLimit:       cfg.Agent.RateLimit,
		RateBurst:       cfg.Agent.RateBurst,
	}, logger)
	if err != nil {
		return nil, err
	}

	sourceRepo := cfg.Git.SourceRepo
	if sourceRepo == "" {
		sourceRepo = "."
	}
	workspaces, err := gitspace.New(gitspace.Config{
		SourceRepo:        sourceRepo,
		WorkRoot:          cfg.Git.WorkRoot,
		IntegrationBranch: cfg.Git.IntegrationBranch,
		AuthorName:        cfg.Git.AuthorName,
		AuthorEmail:       cfg.Git.AuthorEmail,
	}, logger)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(dev, scorer, val, notifier, engine.Config{
		MaxAttempts:    cfg.Pipeline.MaxAttemptsPerDomain,
		SafetyFloor:    cfg.Pipeline.SafetyFloor,
		PerCallTimeout: cfg.Pipeline.PerCallTimeout.Duration(),
	}, logger)
	if err != nil {
		return nil, err
	}

	exec, err := executor.New(eng, workspaces, notifier, executor.Config{
		WorkerPoolSize: cfg.Pipeline.WorkerPoolSize,
	}, logger, executor.WithLayerObserver(metrics.ObserveLayer))
	if err != nil {
		return nil, err
	}

	detector, err := conflict.New(conflict.Config{
		SchemaPatterns:   cfg.Pipeline.Conflicts.SchemaPatterns,
		APIPatterns:      cfg.Pipeline.Conflicts.APIPatterns,
		BlockingPatterns: cfg.Pipeline.Conflicts.BlockingPatterns,
	})
	if err != nil {
		return nil, err
	}

	runner, err := pipeline.New(exec, detector, workspaces, metrics, pipeline.Config{
		Consensus: consensus.Config{
			SafetyAverageThreshold: cfg.Pipeline.SafetyAverageThreshold,
		},
		CleanupWorkspaces: !keepWorkspaces,
	}, logger)
	if err != nil {
		return nil, err
	}
	return runner, nil
}

// buildLogger maps the flat logging section onto the logging package.
func buildLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := logging.LevelFromString(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		logCfg.Level = level
	}
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	logCfg.Output.OTEL = cfg.Logging.OTEL
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}
