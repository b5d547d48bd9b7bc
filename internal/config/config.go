package config

import (
	"fmt"
	"regexp"
	"time"
)

// Config is the root configuration for crewd.
type Config struct {
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Safety    SafetyConfig    `koanf:"safety"`
	Agent     AgentConfig     `koanf:"agent"`
	Git       GitConfig       `koanf:"git"`
	NATS      NATSConfig      `koanf:"nats"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// PipelineConfig tunes the per-domain lifecycle and the layered executor.
type PipelineConfig struct {
	// MaxAttemptsPerDomain bounds QA-driven repair loops per domain.
	MaxAttemptsPerDomain int `koanf:"max_attempts_per_domain"`
	// SafetyFloor is the per-domain minimum safety score; below it the
	// domain escalates without retry.
	SafetyFloor float64 `koanf:"safety_floor"`
	// SafetyAverageThreshold is the run-wide average safety score required
	// for an automatic merge.
	SafetyAverageThreshold float64 `koanf:"safety_average_threshold"`
	// WorkerPoolSize caps concurrently executing domains within a layer.
	WorkerPoolSize int      `koanf:"worker_pool_size"`
	PerCallTimeout Duration `koanf:"per_call_timeout"`
	Conflicts      ConflictConfig `koanf:"conflicts"`
}

// ConflictConfig classifies overlapping file paths between domains.
type ConflictConfig struct {
	// SchemaPatterns mark paths whose overlap is a schema conflict.
	SchemaPatterns []string `koanf:"schema_patterns"`
	// APIPatterns mark paths whose overlap is an API contract conflict.
	APIPatterns []string `koanf:"api_patterns"`
	// BlockingPatterns escalate a conflict from warning to blocking.
	BlockingPatterns []string `koanf:"blocking_patterns"`
}

// SafetyConfig tunes the change-set safety scorer.
type SafetyConfig struct {
	// DenyPatterns are regular expressions; content matching one is
	// penalized during scoring.
	DenyPatterns []string `koanf:"deny_patterns"`
	// FindingPenalty is subtracted from the score per secret finding.
	FindingPenalty float64 `koanf:"finding_penalty"`
	// DenyPenalty is subtracted from the score per deny-pattern match.
	DenyPenalty float64 `koanf:"deny_penalty"`
}

// AgentConfig configures the script-backed developer and validator.
type AgentConfig struct {
	// DevelopCommand is executed once per develop call. The task arrives
	// as JSON on stdin; the change set is expected as JSON on stdout.
	DevelopCommand []string `koanf:"develop_command"`
	// ValidateCommand is executed once per QA call with the same protocol.
	ValidateCommand []string `koanf:"validate_command"`
	// RateLimit caps agent invocations per second across all domains.
	// Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// GitConfig configures workspace isolation and integration merging.
type GitConfig struct {
	// SourceRepo is the path of the repository domains work against.
	SourceRepo string `koanf:"source_repo"`
	// WorkRoot is where per-domain clones are created.
	WorkRoot string `koanf:"work_root"`
	// IntegrationBranch receives merged change sets.
	IntegrationBranch string `koanf:"integration_branch"`
	AuthorName        string `koanf:"author_name"`
	AuthorEmail       string `koanf:"author_email"`
}

// NATSConfig configures the event notifier.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	Credentials   Secret `koanf:"credentials"`
}

// ServerConfig configures the HTTP status server.
type ServerConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig carries the logging options that map onto the logging
// package's own config. Kept flat here so config stays a leaf package.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Endpoint    string   `koanf:"endpoint"`
	Protocol    string   `koanf:"protocol"` // "grpc" or "http"
	Insecure    bool     `koanf:"insecure"`
	ServiceName string   `koanf:"service_name"`
	SampleRate  float64  `koanf:"sample_rate"`
	Interval    Duration `koanf:"interval"`
}

// NewDefaultConfig returns the documented defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MaxAttemptsPerDomain:   3,
			SafetyFloor:            0.30,
			SafetyAverageThreshold: 0.85,
			WorkerPoolSize:         4,
			PerCallTimeout:         Duration(10 * time.Minute),
			Conflicts: ConflictConfig{
				SchemaPatterns:   []string{"**/migrations/**", "**/schema/**"},
				APIPatterns:      []string{"**/api/**", "**/*.proto", "**/openapi*"},
				BlockingPatterns: []string{"**/migrations/**", "**/*.proto"},
			},
		},
		Safety: SafetyConfig{
			FindingPenalty: 0.40,
			DenyPenalty:    0.25,
		},
		Agent: AgentConfig{
			RateLimit: 0,
			RateBurst: 1,
		},
		Git: GitConfig{
			WorkRoot:          "",
			IntegrationBranch: "integration",
			AuthorName:        "crewd",
			AuthorEmail:       "crewd@localhost",
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "crewd.events",
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            8420,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			OTEL:   false,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "crewd",
			SampleRate:  1.0,
			Interval:    Duration(30 * time.Second),
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Pipeline.MaxAttemptsPerDomain < 1 {
		return fmt.Errorf("pipeline.max_attempts_per_domain must be at least 1, got %d", c.Pipeline.MaxAttemptsPerDomain)
	}
	if c.Pipeline.SafetyFloor < 0 || c.Pipeline.SafetyFloor > 1 {
		return fmt.Errorf("pipeline.safety_floor must be in [0,1], got %v", c.Pipeline.SafetyFloor)
	}
	if c.Pipeline.SafetyAverageThreshold < 0 || c.Pipeline.SafetyAverageThreshold > 1 {
		return fmt.Errorf("pipeline.safety_average_threshold must be in [0,1], got %v", c.Pipeline.SafetyAverageThreshold)
	}
	if c.Pipeline.SafetyFloor > c.Pipeline.SafetyAverageThreshold {
		return fmt.Errorf("pipeline.safety_floor (%v) exceeds safety_average_threshold (%v)", c.Pipeline.SafetyFloor, c.Pipeline.SafetyAverageThreshold)
	}
	if c.Pipeline.WorkerPoolSize < 1 {
		return fmt.Errorf("pipeline.worker_pool_size must be at least 1, got %d", c.Pipeline.WorkerPoolSize)
	}
	if c.Pipeline.PerCallTimeout.Duration() <= 0 {
		return fmt.Errorf("pipeline.per_call_timeout must be positive")
	}
	for _, pat := range c.Safety.DenyPatterns {
		if _, err := regexp.Compile(pat); err != nil {
			return fmt.Errorf("safety.deny_patterns: invalid pattern %q: %w", pat, err)
		}
	}
	if c.Agent.RateLimit < 0 {
		return fmt.Errorf("agent.rate_limit cannot be negative")
	}
	if c.Git.IntegrationBranch == "" {
		return fmt.Errorf("git.integration_branch cannot be empty")
	}
	if c.Server.Enabled {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
		}
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint required when telemetry is enabled")
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry.sample_rate must be in [0,1], got %v", c.Telemetry.SampleRate)
		}
	}
	return nil
}
