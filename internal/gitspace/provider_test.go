package gitspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

// initSourceRepo creates a repository with one commit to clone from.
func initSourceRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# demo\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@localhost", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func newProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{
		SourceRepo: initSourceRepo(t),
		WorkRoot:   t.TempDir(),
	}, nil)
	require.NoError(t, err)
	return p
}

func TestAcquire_IsolatedClone(t *testing.T) {
	p := newProvider(t)

	ws, err := p.Acquire(context.Background(), "r1", "auth")
	require.NoError(t, err)

	assert.Equal(t, "crewd/r1/auth", ws.Branch)
	assert.FileExists(t, filepath.Join(ws.Path, "README.md"))

	repo, err := git.PlainOpen(ws.Path)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/crewd/r1/auth", head.Name().String())
}

func TestAcquire_DomainsDoNotShareWorkspaces(t *testing.T) {
	p := newProvider(t)

	wsA, err := p.Acquire(context.Background(), "r1", "auth")
	require.NoError(t, err)
	wsB, err := p.Acquire(context.Background(), "r1", "payments")
	require.NoError(t, err)

	require.NotEqual(t, wsA.Path, wsB.Path)

	// An edit in one clone is invisible to the other.
	require.NoError(t, os.WriteFile(filepath.Join(wsA.Path, "auth.go"), []byte("package auth\n"), 0o644))
	assert.NoFileExists(t, filepath.Join(wsB.Path, "auth.go"))
}

func TestMergeToIntegration_CommitsChangeSet(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	cs := &collab.ChangeSet{
		Domain: "auth",
		Files: map[string]string{
			"internal/auth/login.go": "package auth\n",
			"db/migrations/0001.sql": "CREATE TABLE users;\n",
		},
	}
	require.NoError(t, p.MergeToIntegration(ctx, "r1", "auth", cs))

	dir := p.IntegrationPath("r1")
	assert.FileExists(t, filepath.Join(dir, "internal", "auth", "login.go"))

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/integration", head.Name().String())

	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Contains(t, commit.Message, "auth: apply approved change set")
	assert.Equal(t, "crewd", commit.Author.Name)
}

func TestMergeToIntegration_OneCommitPerDomain(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	require.NoError(t, p.MergeToIntegration(ctx, "r1", "auth", &collab.ChangeSet{
		Domain: "auth",
		Files:  map[string]string{"auth.go": "package auth\n"},
	}))
	require.NoError(t, p.MergeToIntegration(ctx, "r1", "payments", &collab.ChangeSet{
		Domain: "payments",
		Files:  map[string]string{"payments.go": "package payments\n"},
	}))

	repo, err := git.PlainOpen(p.IntegrationPath("r1"))
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	require.NoError(t, err)
	var messages []string
	require.NoError(t, iter.ForEach(func(c *object.Commit) error {
		messages = append(messages, c.Message)
		return nil
	}))

	// Newest first: payments, auth, initial.
	require.Len(t, messages, 3)
	assert.Contains(t, messages[0], "payments")
	assert.Contains(t, messages[1], "auth")

	// Both domains' files are present in the final tree.
	assert.FileExists(t, filepath.Join(p.IntegrationPath("r1"), "auth.go"))
	assert.FileExists(t, filepath.Join(p.IntegrationPath("r1"), "payments.go"))
}

func TestMergeToIntegration_EmptyChangeSet(t *testing.T) {
	p := newProvider(t)
	err := p.MergeToIntegration(context.Background(), "r1", "auth", nil)
	assert.ErrorContains(t, err, "no change set")
}

func TestCleanup_RemovesDomainsKeepsIntegration(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	ws, err := p.Acquire(ctx, "r1", "auth")
	require.NoError(t, err)
	require.NoError(t, p.MergeToIntegration(ctx, "r1", "auth", &collab.ChangeSet{
		Domain: "auth",
		Files:  map[string]string{"auth.go": "package auth\n"},
	}))

	require.NoError(t, p.Cleanup(ctx, "r1"))

	assert.NoDirExists(t, ws.Path)
	assert.DirExists(t, p.IntegrationPath("r1"))
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
