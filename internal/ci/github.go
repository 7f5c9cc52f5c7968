// Package ci adapts the GitHub Actions API to the narrow run-source
// interface the controller polls. All calls are bounded by a request
// timeout and rate-limited; transient API errors are retried with
// exponential backoff and surface as recoverable errors, never panics.
package ci

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/remedyd/internal/config"
)

const (
	// maxLogArchiveSize caps the downloaded log zip per run.
	maxLogArchiveSize = 50 << 20 // 50MB

	// maxLogTextSize caps the concatenated log text returned per run.
	maxLogTextSize = 4 << 20 // 4MB

	// logRedirects is how many redirects to follow for the log archive URL.
	logRedirects = 3
)

// GitHubSource fetches workflow runs and their logs from the GitHub
// Actions API.
type GitHubSource struct {
	client     *github.Client
	httpClient *http.Client
	owner      string
	repo       string
	branch     string
	timeout    config.Duration
	limiter    *rate.Limiter
	retry      *RetryConfig
	logger     *zap.Logger
}

// NewGitHubSource creates a run source authenticated with the configured
// token. A missing token is a fatal configuration error.
func NewGitHubSource(cfg config.GitHubConfig, logger *zap.Logger) (*GitHubSource, error) {
	if !cfg.Token.IsSet() {
		return nil, errors.New("GitHub token not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
	tc := oauth2.NewClient(context.Background(), ts)

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	return &GitHubSource{
		client:     github.NewClient(tc),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout.Duration()},
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		branch:     cfg.Branch,
		timeout:    cfg.RequestTimeout,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retry:      DefaultRetryConfig(),
		logger:     logger.Named("ci"),
	}, nil
}

// RecentRuns returns up to limit recent workflow runs, most recent first.
func (s *GitHubSource) RecentRuns(ctx context.Context, limit int) ([]WorkflowRun, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout.Duration())
	defer cancel()

	var page *github.WorkflowRuns
	_, err := retryOperation(ctx, s.retry, s.logger, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		page, resp, err = s.client.Actions.ListRepositoryWorkflowRuns(ctx, s.owner, s.repo,
			&github.ListWorkflowRunsOptions{
				Branch:      s.branch,
				ListOptions: github.ListOptions{PerPage: limit},
			})
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow runs: %w", err)
	}

	runs := make([]WorkflowRun, 0, len(page.WorkflowRuns))
	for _, wr := range page.WorkflowRuns {
		runs = append(runs, runFromGitHub(wr))
	}
	return runs, nil
}

// RunLogs returns the concatenated raw log text for a run. The Actions API
// serves logs as a zip archive behind a redirect; entries are concatenated
// in archive order.
func (s *GitHubSource) RunLogs(ctx context.Context, runID int64) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout.Duration())
	defer cancel()

	var logsURL string
	_, err := retryOperation(ctx, s.retry, s.logger, func() (*github.Response, error) {
		u, resp, err := s.client.Actions.GetWorkflowRunLogs(ctx, s.owner, s.repo, runID, logRedirects)
		if err == nil {
			logsURL = u.String()
		}
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve logs for run %d: %w", runID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logsURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build log request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download logs for run %d: %w", runID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("log download for run %d returned status %d", runID, resp.StatusCode)
	}

	archive, err := io.ReadAll(io.LimitReader(resp.Body, maxLogArchiveSize))
	if err != nil {
		return "", fmt.Errorf("failed to read log archive for run %d: %w", runID, err)
	}

	text, err := extractLogText(archive)
	if err != nil {
		return "", fmt.Errorf("failed to extract logs for run %d: %w", runID, err)
	}
	return text, nil
}

// runFromGitHub maps the API representation to the local snapshot type.
// Unrecognized status or conclusion values map to the unknown conclusion
// rather than failing the poll.
func runFromGitHub(wr *github.WorkflowRun) WorkflowRun {
	run := WorkflowRun{
		ID:        wr.GetID(),
		Name:      wr.GetName(),
		Branch:    wr.GetHeadBranch(),
		CommitSHA: wr.GetHeadSHA(),
		CreatedAt: wr.GetCreatedAt().Time,
		UpdatedAt: wr.GetUpdatedAt().Time,
	}

	switch Status(wr.GetStatus()) {
	case StatusQueued, StatusInProgress, StatusCompleted:
		run.Status = Status(wr.GetStatus())
	default:
		run.Status = StatusQueued
	}

	// Conclusion is defined only for completed runs.
	if run.Status == StatusCompleted {
		switch Conclusion(wr.GetConclusion()) {
		case ConclusionSuccess, ConclusionFailure, ConclusionCancelled, ConclusionSkipped:
			run.Conclusion = Conclusion(wr.GetConclusion())
		default:
			run.Conclusion = ConclusionUnknown
		}
	}

	return run
}

// extractLogText concatenates the text entries of a log zip archive.
func extractLogText(archive []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		if sb.Len() >= maxLogTextSize {
			break
		}

		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		content, err := io.ReadAll(io.LimitReader(rc, int64(maxLogTextSize-sb.Len())))
		rc.Close()
		if err != nil {
			return "", err
		}

		sb.Write(content)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
