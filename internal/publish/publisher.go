// Package publish commits and pushes working-tree mutations made by fix
// actions, triggering a new CI run.
package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/config"
)

// GitPublisher commits all pending local changes with the standard message
// and pushes them to the tracked remote branch.
//
// The mutex serializes worktree access between Publish and Fingerprint so
// callers may poll concurrently in the future.
type GitPublisher struct {
	dir    string
	cfg    config.PublishConfig
	token  config.Secret
	logger *zap.Logger
	mu     sync.Mutex
}

// NewGitPublisher creates a publisher for the repository at dir. The token
// authenticates pushes over HTTPS; it may be empty for local remotes.
func NewGitPublisher(dir string, cfg config.PublishConfig, token config.Secret, logger *zap.Logger) (*GitPublisher, error) {
	if _, err := git.PlainOpen(dir); err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitPublisher{
		dir:    dir,
		cfg:    cfg,
		token:  token,
		logger: logger.Named("publish"),
	}, nil
}

// Publish stages every pending change, commits with the standard message,
// and pushes to the configured remote. A clean working tree is a no-op
// success. Push failures surface as errors so the caller can retry the
// same fix set next cycle.
func (p *GitPublisher) Publish(ctx context.Context, details string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	repo, err := git.PlainOpen(p.dir)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if status.IsClean() {
		p.logger.Debug("nothing to publish, working tree clean")
		return nil
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}

	message := p.cfg.CommitMessage
	if details != "" {
		message += "\n\n" + details
	}

	commit, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.cfg.AuthorName,
			Email: p.cfg.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	pushOpts := &git.PushOptions{RemoteName: p.cfg.RemoteName}
	if p.token.IsSet() {
		pushOpts.Auth = &githttp.BasicAuth{
			Username: "x-access-token",
			Password: p.token.Value(),
		}
	}

	if err := repo.PushContext(ctx, pushOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push: %w", err)
	}

	p.logger.Info("published remediation commit",
		zap.String("commit", commit.String()),
		zap.String("remote", p.cfg.RemoteName),
	)
	return nil
}

// Fingerprint hashes the working tree's dirty state: the status codes of
// every non-clean path plus the content of changed files. Fix actions use
// it to tell whether a command changed anything.
func (p *GitPublisher) Fingerprint(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	repo, err := git.PlainOpen(p.dir)
	if err != nil {
		return "", fmt.Errorf("failed to open repository: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return "", fmt.Errorf("failed to get status: %w", err)
	}

	paths := make([]string, 0, len(status))
	for path := range status {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, path := range paths {
		fileStatus := status[path]
		fmt.Fprintf(h, "%s\x00%c%c\x00", path, fileStatus.Staging, fileStatus.Worktree)

		if fileStatus.Worktree == git.Deleted {
			continue
		}
		f, err := os.Open(filepath.Join(p.dir, path))
		if err != nil {
			// Races with concurrent deletions are fine, the status codes
			// above already changed.
			continue
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsAuthError reports whether a publish failure was an authentication
// problem, which deserves a louder log than a transient network error.
func IsAuthError(err error) bool {
	return errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed)
}
