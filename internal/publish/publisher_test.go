package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/internal/config"
)

func publishConfig() config.PublishConfig {
	return config.PublishConfig{
		RemoteName:    "origin",
		CommitMessage: "ci: automated workflow remediation",
		AuthorName:    "remedyd",
		AuthorEmail:   "remedyd@fyrsmithlabs.com",
	}
}

// initRepo creates a working repository with one commit and a local bare
// remote it can push to.
func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("numpy\n"), 0o644))
	worktree, err := repo.Worktree()
	require.NoError(t, err)
	_, err = worktree.Add("requirements.txt")
	require.NoError(t, err)
	_, err = worktree.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	bareDir := t.TempDir()
	_, err = git.PlainInit(bareDir, true)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{bareDir},
	})
	require.NoError(t, err)

	return dir, repo
}

func TestNewGitPublisher(t *testing.T) {
	t.Run("rejects non-repository directory", func(t *testing.T) {
		_, err := NewGitPublisher(t.TempDir(), publishConfig(), "", nil)
		require.Error(t, err)
	})

	t.Run("opens repository", func(t *testing.T) {
		dir, _ := initRepo(t)
		p, err := NewGitPublisher(dir, publishConfig(), "", nil)
		require.NoError(t, err)
		require.NotNil(t, p)
	})
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("commits and pushes pending changes", func(t *testing.T) {
		dir, repo := initRepo(t)
		p, err := NewGitPublisher(dir, publishConfig(), "", nil)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("numpy\nrequests\n"), 0o644))

		require.NoError(t, p.Publish(ctx, "fixed: missing_dependency"))

		worktree, err := repo.Worktree()
		require.NoError(t, err)
		status, err := worktree.Status()
		require.NoError(t, err)
		assert.True(t, status.IsClean(), "publish must leave the tree clean")

		head, err := repo.Head()
		require.NoError(t, err)
		commit, err := repo.CommitObject(head.Hash())
		require.NoError(t, err)
		assert.Contains(t, commit.Message, "ci: automated workflow remediation")
		assert.Contains(t, commit.Message, "fixed: missing_dependency")
		assert.Equal(t, "remedyd", commit.Author.Name)
	})

	t.Run("clean tree is a no-op success", func(t *testing.T) {
		dir, repo := initRepo(t)
		p, err := NewGitPublisher(dir, publishConfig(), "", nil)
		require.NoError(t, err)

		headBefore, err := repo.Head()
		require.NoError(t, err)

		require.NoError(t, p.Publish(ctx, ""))

		headAfter, err := repo.Head()
		require.NoError(t, err)
		assert.Equal(t, headBefore.Hash(), headAfter.Hash())
	})

	t.Run("push failure surfaces as error", func(t *testing.T) {
		dir, repo := initRepo(t)
		_ = repo.DeleteRemote("origin")
		_, err := repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: "origin",
			URLs: []string{filepath.Join(t.TempDir(), "missing")},
		})
		require.NoError(t, err)

		p, err := NewGitPublisher(dir, publishConfig(), "", nil)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("changed\n"), 0o644))
		assert.Error(t, p.Publish(ctx, ""))
	})
}

func TestFingerprint(t *testing.T) {
	ctx := context.Background()

	dir, _ := initRepo(t)
	p, err := NewGitPublisher(dir, publishConfig(), "", nil)
	require.NoError(t, err)

	clean, err := p.Fingerprint(ctx)
	require.NoError(t, err)

	stable, err := p.Fingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, clean, stable, "fingerprint must be stable on an unchanged tree")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("numpy\nrequests\n"), 0o644))
	modified, err := p.Fingerprint(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, clean, modified, "modifying a file must change the fingerprint")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("numpy\nrequests\npandas\n"), 0o644))
	modifiedAgain, err := p.Fingerprint(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, modified, modifiedAgain, "further edits to an already-dirty file must change the fingerprint")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new_file.py"), []byte("print('hi')\n"), 0o644))
	withUntracked, err := p.Fingerprint(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, modifiedAgain, withUntracked, "untracked files must change the fingerprint")
}
