package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/crewd/internal/conflict"
	"github.com/fyrsmithlabs/crewd/internal/consensus"
	"github.com/fyrsmithlabs/crewd/internal/engine"
	"github.com/fyrsmithlabs/crewd/internal/executor"
	"github.com/fyrsmithlabs/crewd/internal/monitor"
	"github.com/fyrsmithlabs/crewd/internal/plan"
	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

// stubRunner returns canned per-domain results.
type stubRunner struct {
	results map[string]*engine.Result
}

func (s *stubRunner) Run(_ context.Context, _ string, desc plan.Descriptor, _ string) *engine.Result {
	if res, ok := s.results[desc.Name]; ok {
		return res
	}
	return &engine.Result{Domain: desc.Name, TestsPassed: true, SafetyScore: 0.95}
}

type stubWorkspaces struct {
	mu       sync.Mutex
	merges   []string
	mergeErr map[string]error
	cleaned  []string
}

func (s *stubWorkspaces) Acquire(_ context.Context, runID, domain string) (*collab.Workspace, error) {
	return &collab.Workspace{Path: "/work/" + domain}, nil
}

func (s *stubWorkspaces) MergeToIntegration(_ context.Context, _ string, domain string, _ *collab.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mergeErr[domain]; err != nil {
		return err
	}
	s.merges = append(s.merges, domain)
	return nil
}

func (s *stubWorkspaces) Cleanup(_ context.Context, runID string) error {
	s.mu.Lock()
	s.cleaned = append(s.cleaned, runID)
	s.mu.Unlock()
	return nil
}

func passingResult(domain string, score float64, files ...string) *engine.Result {
	cs := &collab.ChangeSet{Domain: domain, Files: map[string]string{}}
	for _, f := range files {
		cs.Files[f] = "content"
	}
	return &engine.Result{
		Domain:       domain,
		TestsPassed:  true,
		SafetyScore:  score,
		FilesTouched: cs.FilesTouched(),
		ChangeSet:    cs,
	}
}

func newRunner(t *testing.T, results map[string]*engine.Result, ws *stubWorkspaces, cfg Config) *Runner {
	t.Helper()
	exec, err := executor.New(&stubRunner{results: results}, ws, nil, executor.DefaultConfig(), nil)
	require.NoError(t, err)
	detector, err := conflict.New(conflict.DefaultConfig())
	require.NoError(t, err)
	r, err := New(exec, detector, ws, monitor.New(), cfg, nil)
	require.NoError(t, err)
	return r
}

func TestRun_AutoMergeInDependencyOrder(t *testing.T) {
	ws := &stubWorkspaces{}
	r := newRunner(t, map[string]*engine.Result{
		"auth":     passingResult("auth", 0.95, "internal/auth/login.go"),
		"payments": passingResult("payments", 0.90, "internal/payments/charge.go"),
		"checkout": passingResult("checkout", 0.92, "internal/checkout/flow.go"),
	}, ws, Config{})

	report, err := r.Run(context.Background(), []plan.Descriptor{
		{Name: "checkout", DependsOn: []string{"payments"}},
		{Name: "payments", DependsOn: []string{"auth"}},
		{Name: "auth"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.True(t, report.Decision.MergeApproved)
	assert.Equal(t, consensus.MergeAuto, report.Decision.MergeType)
	assert.Equal(t, []string{"auth", "payments", "checkout"}, report.Merged)
	assert.Equal(t, []string{"auth", "payments", "checkout"}, ws.merges)
}

func TestRun_FailedDomainSkipsMerge(t *testing.T) {
	ws := &stubWorkspaces{}
	failed := passingResult("payments", 0.90, "p.go")
	failed.TestsPassed = false
	r := newRunner(t, map[string]*engine.Result{
		"auth":     passingResult("auth", 0.95, "a.go"),
		"payments": failed,
	}, ws, Config{})

	report, err := r.Run(context.Background(), []plan.Descriptor{
		{Name: "auth"}, {Name: "payments"},
	})
	require.NoError(t, err)

	assert.False(t, report.Decision.MergeApproved)
	assert.True(t, report.Decision.NeedsHuman)
	assert.Contains(t, report.Decision.EscalationReason, "payments")
	assert.Empty(t, ws.merges)
}

func TestRun_BlockingConflictVetoesMerge(t *testing.T) {
	ws := &stubWorkspaces{}
	r := newRunner(t, map[string]*engine.Result{
		"auth":     passingResult("auth", 0.95, "db/migrations/0001.sql"),
		"payments": passingResult("payments", 0.95, "db/migrations/0001.sql"),
	}, ws, Config{})

	report, err := r.Run(context.Background(), []plan.Descriptor{
		{Name: "auth"}, {Name: "payments"},
	})
	require.NoError(t, err)

	assert.False(t, report.Decision.MergeApproved)
	require.Len(t, report.Decision.Conflicts, 1)
	assert.Equal(t, conflict.SeverityBlocking, report.Decision.Conflicts[0].Severity)
	assert.Empty(t, ws.merges)
}

func TestRun_WarningConflictStillMerges(t *testing.T) {
	ws := &stubWorkspaces{}
	r := newRunner(t, map[string]*engine.Result{
		"auth":     passingResult("auth", 0.95, "README.md"),
		"payments": passingResult("payments", 0.95, "README.md"),
	}, ws, Config{})

	report, err := r.Run(context.Background(), []plan.Descriptor{
		{Name: "auth"}, {Name: "payments"},
	})
	require.NoError(t, err)

	assert.True(t, report.Decision.MergeApproved)
	require.Len(t, report.Decision.Conflicts, 1)
	assert.Equal(t, conflict.SeverityWarning, report.Decision.Conflicts[0].Severity)
	assert.Len(t, ws.merges, 2)
}

func TestRun_MergeFailureNeedsHuman(t *testing.T) {
	ws := &stubWorkspaces{mergeErr: map[string]error{"payments": errors.New("worktree dirty")}}
	r := newRunner(t, map[string]*engine.Result{
		"auth":     passingResult("auth", 0.95, "a.go"),
		"payments": passingResult("payments", 0.95, "p.go"),
	}, ws, Config{})

	report, err := r.Run(context.Background(), []plan.Descriptor{
		{Name: "auth"}, {Name: "payments", DependsOn: []string{"auth"}},
	})
	require.NoError(t, err)

	assert.False(t, report.Decision.MergeApproved)
	assert.True(t, report.Decision.NeedsHuman)
	assert.Contains(t, report.Decision.EscalationReason, "integration merge failed")
	assert.Equal(t, []string{"auth"}, report.Merged)
}

func TestRun_CircularDependency(t *testing.T) {
	r := newRunner(t, nil, &stubWorkspaces{}, Config{})

	_, err := r.Run(context.Background(), []plan.Descriptor{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	})
	require.Error(t, err)

	var cycleErr *plan.CircularDependencyError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestRun_NoDomains(t *testing.T) {
	r := newRunner(t, nil, &stubWorkspaces{}, Config{})
	_, err := r.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "no domains")
}

func TestRun_CleanupWhenConfigured(t *testing.T) {
	ws := &stubWorkspaces{}
	r := newRunner(t, map[string]*engine.Result{
		"auth": passingResult("auth", 0.95, "a.go"),
	}, ws, Config{CleanupWorkspaces: true})

	report, err := r.Run(context.Background(), []plan.Descriptor{{Name: "auth"}})
	require.NoError(t, err)
	assert.Equal(t, []string{report.RunID}, ws.cleaned)
}

func TestNew_Validation(t *testing.T) {
	detector, err := conflict.New(conflict.DefaultConfig())
	require.NoError(t, err)
	ws := &stubWorkspaces{}
	exec, err := executor.New(&stubRunner{}, ws, nil, executor.DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = New(nil, detector, ws, nil, Config{}, nil)
	assert.Error(t, err)
	_, err = New(exec, nil, ws, nil, Config{}, nil)
	assert.Error(t, err)
	_, err = New(exec, detector, nil, nil, Config{}, nil)
	assert.Error(t, err)
}
