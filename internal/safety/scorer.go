package safety

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/zricethezav/gitleaks/v8/detect"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/crewd/internal/logging"
	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

// Config tunes the scorer's penalties.
type Config struct {
	// DenyPatterns are regular expressions applied to file content.
	DenyPatterns []string
	// FindingPenalty is subtracted per secret finding (default 0.40).
	FindingPenalty float64
	// DenyPenalty is subtracted per deny-pattern match (default 0.25).
	DenyPenalty float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		FindingPenalty: 0.40,
		DenyPenalty:    0.25,
	}
}

// Scorer implements collab.SafetyScorer over the Gitleaks ruleset plus
// configured deny patterns.
type Scorer struct {
	detector *detect.Detector
	deny     []*regexp.Regexp
	cfg      Config
	logger   *logging.Logger
}

// New creates a scorer. The Gitleaks detector is built once; deny
// patterns are compiled up front.
func New(cfg Config, logger *logging.Logger) (*Scorer, error) {
	if cfg.FindingPenalty <= 0 {
		cfg.FindingPenalty = DefaultConfig().FindingPenalty
	}
	if cfg.DenyPenalty <= 0 {
		cfg.DenyPenalty = DefaultConfig().DenyPenalty
	}
	if logger == nil {
		logger = logging.Nop()
	}

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("building secret detector: %w", err)
	}

	deny := make([]*regexp.Regexp, 0, len(cfg.DenyPatterns))
	for _, pat := range cfg.DenyPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("compiling deny pattern %q: %w", pat, err)
		}
		deny = append(deny, re)
	}

	return &Scorer{
		detector: detector,
		deny:     deny,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Score scans every file of the change set and returns the penalized
// score with the rules and patterns that fired.
func (s *Scorer) Score(ctx context.Context, cs *collab.ChangeSet) (*collab.ScoreReport, error) {
	if cs == nil {
		return nil, collab.Infra("safety.score", fmt.Errorf("nil change set"))
	}

	paths := make([]string, 0, len(cs.Files))
	for p := range cs.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	score := 1.0
	flaggedSet := make(map[string]bool)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, collab.Infra("safety.score", err)
		}
		content := cs.Files[path]

		for _, finding := range s.detector.DetectString(content) {
			score -= s.cfg.FindingPenalty
			flaggedSet[finding.RuleID] = true
			s.logger.Warn(ctx, "secret detected in change set",
				zap.String("domain", cs.Domain),
				zap.String("path", path),
				zap.String("rule", finding.RuleID))
		}

		for _, re := range s.deny {
			if re.MatchString(content) {
				score -= s.cfg.DenyPenalty
				flaggedSet["deny:"+re.String()] = true
				s.logger.Warn(ctx, "deny pattern matched in change set",
					zap.String("domain", cs.Domain),
					zap.String("path", path),
					zap.String("pattern", re.String()))
			}
		}
	}

	if score < 0 {
		score = 0
	}

	flagged := make([]string, 0, len(flaggedSet))
	for f := range flaggedSet {
		flagged = append(flagged, f)
	}
	sort.Strings(flagged)

	return &collab.ScoreReport{Score: score, Flagged: flagged}, nil
}
