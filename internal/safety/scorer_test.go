package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

func newScorer(t *testing.T, cfg Config) *Scorer {
	t.Helper()
	s, err := New(cfg, nil)
	require.NoError(t, err)
	return s
}

func TestScore_CleanChangeSet(t *testing.T) {
	s := newScorer(t, DefaultConfig())

	report, err := s.Score(context.Background(), &collab.ChangeSet{
		Domain: "auth",
		Files: map[string]string{
			"internal/auth/login.go": "package auth\n\nfunc Login() error { return nil }\n",
			"internal/auth/doc.go":   "// Package auth handles sessions.\npackage auth\n",
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, report.Score, 1e-9)
	assert.Empty(t, report.Flagged)
}

func TestScore_SecretLowersScore(t *testing.T) {
	s := newScorer(t, DefaultConfig())

	report, err := s.Score(context.Background(), &collab.ChangeSet{
		Domain: "payments",
		Files: map[string]string{
			"config.go": `package payments

const awsAccessKeyID = "AKIAQ3R7T9W2X5Z8B4C6"
`,
		},
	})
	require.NoError(t, err)
	assert.Less(t, report.Score, 1.0)
	assert.NotEmpty(t, report.Flagged)
}

func TestScore_DenyPatternMatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DenyPatterns = []string{`(?i)drop\s+table`}
	s := newScorer(t, cfg)

	report, err := s.Score(context.Background(), &collab.ChangeSet{
		Domain: "db",
		Files: map[string]string{
			"migrations/0007.sql": "DROP TABLE users;\n",
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, report.Score, 1e-9)
	assert.Equal(t, []string{`deny:(?i)drop\s+table`}, report.Flagged)
}

func TestScore_MultipleMatchesClampToZero(t *testing.T) {
	cfg := Config{
		DenyPatterns: []string{"password", "secret", "token", "apikey", "credential"},
		DenyPenalty:  0.25,
	}
	s := newScorer(t, cfg)

	report, err := s.Score(context.Background(), &collab.ChangeSet{
		Domain: "auth",
		Files: map[string]string{
			"bad.go": "password secret token apikey credential\n",
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, report.Score, 1e-9)
	assert.Len(t, report.Flagged, 5)
}

func TestScore_FlaggedDeterministic(t *testing.T) {
	cfg := Config{DenyPatterns: []string{"zzz", "aaa"}, DenyPenalty: 0.1}
	s := newScorer(t, cfg)

	cs := &collab.ChangeSet{
		Domain: "x",
		Files:  map[string]string{"f.txt": "aaa zzz"},
	}
	first, err := s.Score(context.Background(), cs)
	require.NoError(t, err)
	second, err := s.Score(context.Background(), cs)
	require.NoError(t, err)
	assert.Equal(t, first.Flagged, second.Flagged)
	assert.Equal(t, []string{"deny:aaa", "deny:zzz"}, first.Flagged)
}

func TestScore_NilChangeSet(t *testing.T) {
	s := newScorer(t, DefaultConfig())
	_, err := s.Score(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, collab.IsInfrastructure(err))
}

func TestScore_CancelledContext(t *testing.T) {
	s := newScorer(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Score(ctx, &collab.ChangeSet{
		Domain: "x",
		Files:  map[string]string{"f.txt": "content"},
	})
	require.Error(t, err)
	assert.True(t, collab.IsInfrastructure(err))
}

func TestNew_InvalidDenyPattern(t *testing.T) {
	_, err := New(Config{DenyPatterns: []string{"("}}, nil)
	assert.ErrorContains(t, err, "compiling deny pattern")
}
