package gitspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/crewd/internal/logging"
	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

// Config configures the provider.
type Config struct {
	// SourceRepo is the path or URL of the repository domains work against.
	SourceRepo string
	// WorkRoot is where per-run directories are created. Defaults to a
	// crewd directory under the system temp dir.
	WorkRoot string
	// IntegrationBranch receives approved change sets (default "integration").
	IntegrationBranch string
	AuthorName        string
	AuthorEmail       string
}

// Provider implements collab.WorkspaceProvider over git clones.
type Provider struct {
	cfg    Config
	logger *logging.Logger

	// mu serializes integration merges; domain commits must land one at
	// a time in dependency order.
	mu sync.Mutex
}

// New creates a provider.
func New(cfg Config, logger *logging.Logger) (*Provider, error) {
	if cfg.SourceRepo == "" {
		return nil, errors.New("source repository is required")
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), "crewd")
	}
	if cfg.IntegrationBranch == "" {
		cfg.IntegrationBranch = "integration"
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = "crewd"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "crewd@localhost"
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Provider{cfg: cfg, logger: logger}, nil
}

// Acquire clones the source repository and checks out the domain's
// isolation branch crewd/<runID>/<domain>.
func (p *Provider) Acquire(ctx context.Context, runID, domain string) (*collab.Workspace, error) {
	dir := filepath.Join(p.cfg.WorkRoot, runID, "domains", domain)
	branch := fmt.Sprintf("crewd/%s/%s", runID, domain)

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL: p.cfg.SourceRepo,
	})
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", p.cfg.SourceRepo, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	}); err != nil {
		return nil, fmt.Errorf("creating branch %s: %w", branch, err)
	}

	p.logger.Debug(ctx, "workspace acquired",
		zap.String("run_id", runID),
		zap.String("domain", domain),
		zap.String("path", dir))

	return &collab.Workspace{Path: dir, Branch: branch}, nil
}

// MergeToIntegration commits the change set onto the integration branch
// of the run's integration clone, one commit per domain.
func (p *Provider) MergeToIntegration(ctx context.Context, runID, domain string, cs *collab.ChangeSet) error {
	if cs == nil || len(cs.Files) == 0 {
		return fmt.Errorf("domain %s has no change set to merge", domain)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	repo, dir, err := p.integrationClone(ctx, runID)
	if err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening integration worktree: %w", err)
	}

	for _, path := range cs.FilesTouched() {
		full := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(full, []byte(cs.Files[path]), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		if _, err := wt.Add(path); err != nil {
			return fmt.Errorf("staging %s: %w", path, err)
		}
	}

	hash, err := wt.Commit(fmt.Sprintf("%s: apply approved change set (%s)", domain, runID), &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.cfg.AuthorName,
			Email: p.cfg.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("committing %s changes: %w", domain, err)
	}

	p.logger.Info(ctx, "change set merged to integration",
		zap.String("run_id", runID),
		zap.String("domain", domain),
		zap.String("commit", hash.String()),
		zap.Int("files", len(cs.Files)))
	return nil
}

// Cleanup removes the run's domain clones. The integration clone is
// kept; it holds the run's merged output.
func (p *Provider) Cleanup(ctx context.Context, runID string) error {
	dir := filepath.Join(p.cfg.WorkRoot, runID, "domains")
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing domain workspaces: %w", err)
	}
	p.logger.Debug(ctx, "domain workspaces removed", zap.String("run_id", runID))
	return nil
}

// IntegrationPath returns where the run's integration clone lives.
func (p *Provider) IntegrationPath(runID string) string {
	return filepath.Join(p.cfg.WorkRoot, runID, "integration")
}

// integrationClone opens the run's integration clone, creating it and
// its branch on first use.
func (p *Provider) integrationClone(ctx context.Context, runID string) (*git.Repository, string, error) {
	dir := p.IntegrationPath(runID)

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL: p.cfg.SourceRepo,
		})
		if err != nil {
			return nil, "", fmt.Errorf("cloning integration workspace: %w", err)
		}
		wt, wErr := repo.Worktree()
		if wErr != nil {
			return nil, "", fmt.Errorf("opening integration worktree: %w", wErr)
		}
		if err := wt.Checkout(&git.CheckoutOptions{
			Branch: plumbing.NewBranchReferenceName(p.cfg.IntegrationBranch),
			Create: true,
		}); err != nil {
			return nil, "", fmt.Errorf("creating integration branch: %w", err)
		}
		return repo, dir, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("opening integration workspace: %w", err)
	}
	return repo, dir, nil
}
