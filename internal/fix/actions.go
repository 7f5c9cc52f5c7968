package fix

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/classify"
	"github.com/fyrsmithlabs/remedyd/internal/config"
)

// moduleNamePattern extracts the missing module from classifier evidence.
var moduleNamePattern = regexp.MustCompile(`No module named '([^']+)'`)

// importToPackage maps Python import names to pip package names where the
// two differ.
var importToPackage = map[string]string{
	"cv2":     "opencv-python",
	"dotenv":  "python-dotenv",
	"PIL":     "pillow",
	"sklearn": "scikit-learn",
	"yaml":    "pyyaml",
}

// RequirementsAction adds missing packages to the dependency manifest.
// Already-listed packages are left untouched, so re-applying after the
// first pass resolved the condition reports no change.
type RequirementsAction struct {
	path   string
	logger *zap.Logger
}

// NewRequirementsAction creates the missing-dependency fix for the manifest
// at repoDir/manifest.
func NewRequirementsAction(repoDir, manifest string, logger *zap.Logger) *RequirementsAction {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequirementsAction{
		path:   filepath.Join(repoDir, manifest),
		logger: logger,
	}
}

// Type implements Action.
func (a *RequirementsAction) Type() classify.IssueType {
	return classify.IssueMissingDependency
}

// Apply implements Action.
func (a *RequirementsAction) Apply(_ context.Context, issues []classify.Issue) (bool, error) {
	missing := missingPackages(issues)
	if len(missing) == 0 {
		return false, nil
	}

	content, err := os.ReadFile(a.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to read %s: %w", a.path, err)
	}

	listed := listedPackages(string(content))
	var added []string
	for _, pkg := range missing {
		if !listed[normalizePackage(pkg)] {
			added = append(added, pkg)
		}
	}
	if len(added) == 0 {
		return false, nil
	}

	var sb strings.Builder
	sb.Write(content)
	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		sb.WriteByte('\n')
	}
	for _, pkg := range added {
		sb.WriteString(pkg)
		sb.WriteByte('\n')
	}

	if err := os.WriteFile(a.path, []byte(sb.String()), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", a.path, err)
	}

	a.logger.Info("added missing dependencies",
		zap.String("manifest", a.path),
		zap.Strings("packages", added),
	)
	return true, nil
}

// missingPackages extracts the deduplicated, sorted pip package names from
// the issues' evidence.
func missingPackages(issues []classify.Issue) []string {
	seen := make(map[string]bool)
	var pkgs []string
	for _, issue := range issues {
		m := moduleNamePattern.FindStringSubmatch(issue.Evidence)
		if m == nil {
			continue
		}
		// Namespaced imports resolve to the top-level package.
		module := strings.SplitN(m[1], ".", 2)[0]
		pkg, ok := importToPackage[module]
		if !ok {
			pkg = module
		}
		if !seen[normalizePackage(pkg)] {
			seen[normalizePackage(pkg)] = true
			pkgs = append(pkgs, pkg)
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

// listedPackages parses a requirements file into the set of normalized
// package names already present.
func listedPackages(content string) map[string]bool {
	listed := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		// Strip version specifiers, extras and environment markers.
		if i := strings.IndexAny(line, " =<>!~[;"); i >= 0 {
			line = line[:i]
		}
		if line != "" {
			listed[normalizePackage(line)] = true
		}
	}
	return listed
}

// normalizePackage lowercases and collapses separators per PEP 503.
func normalizePackage(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	return name
}

// CommandAction fixes an issue type by running an external tool (a
// formatter, an audit tool with --fix, ...). The tools themselves are
// idempotent; whether anything changed is decided by fingerprinting the
// working tree before and after the run.
type CommandAction struct {
	issueType classify.IssueType
	dir       string
	command   []string
	runner    CommandRunner
	observer  WorktreeObserver
	logger    *zap.Logger
}

// NewCommandAction creates a command-backed fix action.
func NewCommandAction(issueType classify.IssueType, dir string, command []string, runner CommandRunner, observer WorktreeObserver, logger *zap.Logger) (*CommandAction, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command for %s action", issueType)
	}
	if runner == nil || observer == nil {
		return nil, errors.New("runner and observer are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandAction{
		issueType: issueType,
		dir:       dir,
		command:   command,
		runner:    runner,
		observer:  observer,
		logger:    logger,
	}, nil
}

// Type implements Action.
func (a *CommandAction) Type() classify.IssueType {
	return a.issueType
}

// Apply implements Action.
func (a *CommandAction) Apply(ctx context.Context, _ []classify.Issue) (bool, error) {
	before, err := a.observer.Fingerprint(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to fingerprint working tree: %w", err)
	}

	output, err := a.runner.Run(ctx, a.dir, a.command[0], a.command[1:]...)
	if err != nil {
		return false, fmt.Errorf("%s failed: %w: %s", a.command[0], err, truncate(string(output), 500))
	}

	after, err := a.observer.Fingerprint(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to fingerprint working tree: %w", err)
	}

	applied := before != after
	a.logger.Debug("fix command finished",
		zap.String("issue_type", string(a.issueType)),
		zap.String("command", a.command[0]),
		zap.Bool("applied", applied),
	)
	return applied, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// BuildActions assembles the action set from configuration: the manifest
// action for missing dependencies plus one command action per configured
// issue type. Issue types without a command have no registered action.
func BuildActions(cfg config.FixConfig, runner CommandRunner, observer WorktreeObserver, logger *zap.Logger) ([]Action, error) {
	actions := []Action{
		NewRequirementsAction(cfg.RepoDir, cfg.RequirementsFile, logger),
	}

	for name, command := range cfg.Commands {
		issueType := classify.IssueType(name)
		if !issueType.AutoFixable() {
			return nil, fmt.Errorf("fix command configured for unfixable issue type %q", name)
		}
		if issueType == classify.IssueMissingDependency {
			return nil, errors.New("missing_dependency is handled by the manifest action, not a command")
		}
		action, err := NewCommandAction(issueType, cfg.RepoDir, command, runner, observer, logger)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	return actions, nil
}
