package fix

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/classify"
)

// fixOrder is the canonical application order: cheaper structural fixes
// (dependencies) run before style and security passes that would otherwise
// operate on an inconsistent tree.
var fixOrder = []classify.IssueType{
	classify.IssueMissingDependency,
	classify.IssueTestFailure,
	classify.IssueLintFailure,
	classify.IssueSecurityFinding,
	classify.IssueBuildFailure,
}

// speculativeTypes are the three lowest-risk categories, invoked when a run
// failed but nothing auto-fixable was classified.
var speculativeTypes = []classify.IssueType{
	classify.IssueMissingDependency,
	classify.IssueTestFailure,
	classify.IssueLintFailure,
}

// Result records one action invocation within a cycle.
type Result struct {
	// Type is the issue type the action addresses.
	Type classify.IssueType `json:"issue_type"`

	// Applied is true only if the action changed the working tree.
	Applied bool `json:"applied"`

	// Err holds the action's failure, if any. A failed action is recorded
	// as not applied and does not abort the remaining actions.
	Err error `json:"-"`
}

// AppliedFixes lists which issue types had a fix invoked this cycle and
// whether each reported a change.
type AppliedFixes struct {
	// Results are in application order.
	Results []Result `json:"results"`

	// Speculative is true when the fallback policy selected the actions
	// because no auto-fixable issue was classified.
	Speculative bool `json:"speculative"`
}

// AppliedCount returns how many actions changed the working tree.
func (f AppliedFixes) AppliedCount() int {
	n := 0
	for _, r := range f.Results {
		if r.Applied {
			n++
		}
	}
	return n
}

// AnyApplied reports whether any action changed the working tree.
func (f AppliedFixes) AnyApplied() bool {
	return f.AppliedCount() > 0
}

// AppliedTypes returns the issue types whose actions reported a change.
func (f AppliedFixes) AppliedTypes() []classify.IssueType {
	var types []classify.IssueType
	for _, r := range f.Results {
		if r.Applied {
			types = append(types, r.Type)
		}
	}
	return types
}

// Applier invokes fix actions for the issues classified in a cycle.
type Applier struct {
	actions     map[classify.IssueType]Action
	timeout     time.Duration
	speculative bool
	logger      *zap.Logger
}

// NewApplier creates an applier over the given actions. actionTimeout
// bounds each individual action; speculativeFallback enables the
// best-effort policy for unclassified failures.
func NewApplier(actions []Action, actionTimeout time.Duration, speculativeFallback bool, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	byType := make(map[classify.IssueType]Action, len(actions))
	for _, action := range actions {
		byType[action.Type()] = action
	}
	return &Applier{
		actions:     byType,
		timeout:     actionTimeout,
		speculative: speculativeFallback,
		logger:      logger.Named("fix"),
	}
}

// Apply invokes exactly one action per distinct auto-fixable issue type
// present, in the fixed order, regardless of how many issues of that type
// were found. When the cycle classified no auto-fixable issue at all (the
// run failed for an unknown reason) and the speculative fallback is
// enabled, the three lowest-risk actions are invoked instead; this is a
// deliberate best-effort-when-cause-is-unknown policy.
//
// Actions run to completion even if the caller is shutting down: a
// half-applied fix left uncommitted is worse than a slightly delayed
// shutdown. Each action is still bounded by the configured timeout.
func (a *Applier) Apply(ctx context.Context, issues []classify.Issue) AppliedFixes {
	byType := make(map[classify.IssueType][]classify.Issue)
	for _, issue := range issues {
		if issue.Type.AutoFixable() {
			byType[issue.Type] = append(byType[issue.Type], issue)
		}
	}

	order := fixOrder
	var fixes AppliedFixes
	if len(byType) == 0 {
		if !a.speculative || len(issues) == 0 {
			return fixes
		}
		fixes.Speculative = true
		order = speculativeTypes
		for _, t := range order {
			byType[t] = nil
		}
		a.logger.Info("no auto-fixable issue classified, applying speculative fixes")
	}

	for _, issueType := range order {
		typeIssues, present := byType[issueType]
		if !present {
			continue
		}
		action, registered := a.actions[issueType]
		if !registered {
			a.logger.Debug("no fix action registered", zap.String("issue_type", string(issueType)))
			continue
		}

		applied, err := a.applyOne(ctx, action, typeIssues)
		fixes.Results = append(fixes.Results, Result{Type: issueType, Applied: applied, Err: err})

		if err != nil {
			a.logger.Warn("fix action failed",
				zap.String("issue_type", string(issueType)),
				zap.Error(err),
			)
			continue
		}
		a.logger.Info("fix action finished",
			zap.String("issue_type", string(issueType)),
			zap.Bool("applied", applied),
			zap.Int("issue_count", len(typeIssues)),
		)
	}

	return fixes
}

// applyOne runs a single action detached from the caller's cancellation but
// bounded by the action timeout.
func (a *Applier) applyOne(ctx context.Context, action Action, issues []classify.Issue) (bool, error) {
	actionCtx := context.WithoutCancel(ctx)
	if a.timeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(actionCtx, a.timeout)
		defer cancel()
	}
	return action.Apply(actionCtx, issues)
}
