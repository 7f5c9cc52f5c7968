// Package controller runs the remediation control loop: poll workflow
// runs, classify failures, apply fixes, publish, and repeat until the
// pipeline converges or the process is told to stop.
//
// # State machine
//
// The loop has three states. RUNNING cycles poll and remediate;
// AWAITING_REBUILD is entered after a fix was pushed, waiting out the
// extended interval so the new CI run can execute; STOPPED is terminal,
// entered on cancellation or convergence.
//
// # Cancellation
//
// Cancellation is cooperative: the context is checked at the top of each
// cycle and inside every sleep, so shutdown latency is bounded by the
// in-flight cycle, never by the full interval. Fix application itself is
// deliberately detached from cancellation (see the fix package) so a
// shutdown never leaves a half-applied fix uncommitted.
package controller

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/ci"
	"github.com/fyrsmithlabs/remedyd/internal/classify"
	"github.com/fyrsmithlabs/remedyd/internal/converge"
	"github.com/fyrsmithlabs/remedyd/internal/fix"
)

// State is the loop's position in its state machine.
type State string

const (
	StateRunning         State = "running"
	StateAwaitingRebuild State = "awaiting_rebuild"
	StateStopped         State = "stopped"
)

// ErrChecksFailed is returned by a single-shot run that found failing
// workflow runs; the process exits non-zero.
var ErrChecksFailed = errors.New("workflow checks failing")

// RunSource fetches recent workflow runs and their logs.
type RunSource interface {
	// RecentRuns returns up to limit runs, most recent first. An error is
	// a cycle-local, recoverable condition.
	RecentRuns(ctx context.Context, limit int) ([]ci.WorkflowRun, error)

	// RunLogs returns the raw log text for a run, empty on failure.
	RunLogs(ctx context.Context, runID int64) (string, error)
}

// Classifier maps a failing run's log text to typed issues.
type Classifier interface {
	Classify(runID int64, logs string) []classify.Issue
}

// FixApplier applies fix actions for the cycle's issues.
type FixApplier interface {
	Apply(ctx context.Context, issues []classify.Issue) fix.AppliedFixes
}

// ChangePublisher commits and pushes pending working-tree changes.
type ChangePublisher interface {
	Publish(ctx context.Context, details string) error
}

// Config holds the loop's cadence and scope settings.
type Config struct {
	// Continuous keeps polling until convergence or cancellation. When
	// false the loop performs a single check-and-exit cycle.
	Continuous bool

	// Interval is the base sleep between cycles.
	Interval time.Duration

	// RebuildInterval is the extended sleep after a fix was published.
	RebuildInterval time.Duration

	// RunLimit is how many recent runs to fetch per cycle.
	RunLimit int

	// ConvergenceThreshold is the consecutive all-passing count required
	// to stop.
	ConvergenceThreshold int

	// ExcludedWorkflows are workflow names ignored when judging whether
	// all runs pass.
	ExcludedWorkflows []string
}

// Loop is the orchestrator: it owns the polling cadence, wires the
// collaborators together, tracks the session statistics, and handles
// cancellation.
type Loop struct {
	cfg        Config
	source     RunSource
	classifier Classifier
	applier    FixApplier
	publisher  ChangePublisher
	tracker    *converge.Tracker
	session    *Session
	state      State
	logger     *zap.Logger
	metrics    *loopMetrics
}

// New creates a control loop. All collaborators are required.
func New(cfg Config, source RunSource, classifier Classifier, applier FixApplier, publisher ChangePublisher, logger *zap.Logger) (*Loop, error) {
	if source == nil {
		return nil, errors.New("run source is required")
	}
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if applier == nil {
		return nil, errors.New("fix applier is required")
	}
	if publisher == nil {
		return nil, errors.New("change publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.RebuildInterval < cfg.Interval {
		cfg.RebuildInterval = cfg.Interval
	}
	if cfg.RunLimit <= 0 {
		cfg.RunLimit = 10
	}

	return &Loop{
		cfg:        cfg,
		source:     source,
		classifier: classifier,
		applier:    applier,
		publisher:  publisher,
		tracker:    converge.NewTracker(cfg.ConvergenceThreshold),
		session:    NewSession(),
		state:      StateStopped,
		logger:     logger.Named("controller"),
		metrics:    newLoopMetrics(logger),
	}, nil
}

// Session returns the loop's session statistics.
func (l *Loop) Session() *Session {
	return l.session
}

// State returns the loop's current state.
func (l *Loop) State() State {
	return l.state
}

// Run executes the control loop until convergence, cancellation, or (in
// single-shot mode) the first cycle. The returned report is always valid;
// the error is nil on convergence and clean single-shot passes,
// ErrChecksFailed for a failing single-shot check, and the context error
// on cancellation.
func (l *Loop) Run(ctx context.Context) (Report, error) {
	l.state = StateRunning
	l.logger.Info("controller starting",
		zap.String("session_id", l.session.ID),
		zap.Bool("continuous", l.cfg.Continuous),
		zap.Duration("interval", l.cfg.Interval),
		zap.Int("convergence_threshold", l.tracker.Threshold()),
	)

	for {
		if ctx.Err() != nil {
			return l.finish(false, ctx.Err())
		}

		outcome := l.runCycle(ctx)

		if outcome.converged {
			l.logger.Info("pipeline converged",
				zap.Int("consecutive_passes", l.session.ConsecutivePasses),
			)
			return l.finish(true, nil)
		}

		if !l.cfg.Continuous {
			if outcome.failing > 0 || outcome.err != nil {
				return l.finish(false, ErrChecksFailed)
			}
			return l.finish(false, nil)
		}

		wait := l.cfg.Interval
		if outcome.published {
			// A new CI run must execute before results mean anything.
			l.state = StateAwaitingRebuild
			wait = l.cfg.RebuildInterval
			l.logger.Info("awaiting rebuild", zap.Duration("wait", wait))
		}

		if !l.sleep(ctx, wait) {
			return l.finish(false, ctx.Err())
		}
		l.state = StateRunning
	}
}

// cycleOutcome summarizes one poll cycle.
type cycleOutcome struct {
	failing   int
	published bool
	converged bool
	err       error
}

// runCycle performs one poll-classify-fix-publish pass.
func (l *Loop) runCycle(ctx context.Context) cycleOutcome {
	l.session.ChecksPerformed++
	l.session.LastCheckTime = time.Now()
	l.metrics.recordCycle(ctx)
	check := l.session.ChecksPerformed

	runs, err := l.source.RecentRuns(ctx, l.cfg.RunLimit)
	if err != nil {
		l.logger.Warn("failed to fetch workflow runs, skipping cycle",
			zap.Int("check", check),
			zap.Error(err),
		)
		return cycleOutcome{err: err}
	}

	completed, failing := l.partition(runs)
	if len(completed) == 0 {
		l.logger.Info("no completed workflow runs",
			zap.Int("check", check),
			zap.Int("runs_found", len(runs)),
		)
		return cycleOutcome{}
	}

	if len(failing) == 0 {
		l.session.ConsecutivePasses = l.tracker.Observe(true)
		l.logger.Info("all workflow runs passing",
			zap.Int("check", check),
			zap.Int("runs", len(completed)),
			zap.Int("consecutive_passes", l.session.ConsecutivePasses),
			zap.Int("threshold", l.tracker.Threshold()),
		)
		return cycleOutcome{converged: l.tracker.Converged()}
	}

	l.session.ConsecutivePasses = l.tracker.Observe(false)

	issues := l.classifyRuns(ctx, failing)
	l.logger.Info("classified failing runs",
		zap.Int("check", check),
		zap.Int("failing_runs", len(failing)),
		zap.Int("issues", len(issues)),
		zap.Strings("issue_types", issueTypeNames(issues)),
	)

	fixes := l.applier.Apply(ctx, issues)
	for _, result := range fixes.Results {
		if result.Applied {
			l.metrics.recordFix(ctx, string(result.Type))
		}
	}
	applied := fixes.AppliedCount()
	l.session.FixesApplied += applied
	if applied > 0 {
		l.session.WorkflowsFixed += len(failing)
	}

	if !fixes.AnyApplied() {
		l.logger.Info("no fixes applied",
			zap.Int("check", check),
			zap.Bool("speculative", fixes.Speculative),
		)
		return cycleOutcome{failing: len(failing)}
	}

	details := publishDetails(fixes)
	if err := l.publisher.Publish(ctx, details); err != nil {
		// Stay RUNNING so the same fix set is retried next cycle; the
		// actions are idempotent against repeated application.
		l.metrics.recordPublish(ctx, "failure")
		l.logger.Warn("failed to publish fixes, will retry next cycle",
			zap.Int("check", check),
			zap.Error(err),
		)
		return cycleOutcome{failing: len(failing)}
	}

	l.metrics.recordPublish(ctx, "success")
	l.logger.Info("published fixes",
		zap.Int("check", check),
		zap.Int("fixes_applied", applied),
	)
	return cycleOutcome{failing: len(failing), published: true}
}

// partition filters runs down to completed, non-excluded ones and the
// failing subset.
func (l *Loop) partition(runs []ci.WorkflowRun) (completed, failing []ci.WorkflowRun) {
	for _, run := range runs {
		if !run.Completed() || slices.Contains(l.cfg.ExcludedWorkflows, run.Name) {
			continue
		}
		completed = append(completed, run)
		if run.Failed() {
			failing = append(failing, run)
		}
	}
	return completed, failing
}

// classifyRuns fetches each failing run's logs and merges the classified
// issues. A log fetch failure yields empty text, which classifies as
// unknown rather than aborting the cycle.
func (l *Loop) classifyRuns(ctx context.Context, failing []ci.WorkflowRun) []classify.Issue {
	var issues []classify.Issue
	for _, run := range failing {
		logs, err := l.source.RunLogs(ctx, run.ID)
		if err != nil {
			l.logger.Warn("failed to fetch run logs",
				zap.Int64("run_id", run.ID),
				zap.String("workflow", run.Name),
				zap.Error(err),
			)
		}
		for _, issue := range l.classifier.Classify(run.ID, logs) {
			l.metrics.recordIssue(ctx, string(issue.Type))
			issues = append(issues, issue)
		}
	}
	return issues
}

// sleep waits for d or until the context is cancelled. Returns false on
// cancellation.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// finish transitions to STOPPED and snapshots the final report.
func (l *Loop) finish(converged bool, err error) (Report, error) {
	l.state = StateStopped
	report := l.session.Report(converged, time.Now())
	l.logger.Info("controller stopped",
		zap.String("session_id", l.session.ID),
		zap.Int("checks_performed", report.ChecksPerformed),
		zap.Int("fixes_applied", report.FixesApplied),
		zap.Int("workflows_fixed", report.WorkflowsFixed),
		zap.String("runtime", report.Runtime),
		zap.Bool("converged", converged),
	)
	return report, err
}

func issueTypeNames(issues []classify.Issue) []string {
	names := make([]string, 0, len(issues))
	for _, issue := range issues {
		names = append(names, string(issue.Type))
	}
	return names
}

func publishDetails(fixes fix.AppliedFixes) string {
	var parts []string
	for _, t := range fixes.AppliedTypes() {
		parts = append(parts, string(t))
	}
	return "fixed: " + strings.Join(parts, ", ")
}
