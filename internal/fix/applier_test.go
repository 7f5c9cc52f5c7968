package fix

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/internal/classify"
)

// fakeAction records invocations and returns scripted results.
type fakeAction struct {
	issueType classify.IssueType
	applied   bool
	err       error

	calls  int
	issues [][]classify.Issue
}

func (f *fakeAction) Type() classify.IssueType { return f.issueType }

func (f *fakeAction) Apply(_ context.Context, issues []classify.Issue) (bool, error) {
	f.calls++
	f.issues = append(f.issues, issues)
	return f.applied, f.err
}

func issueOf(t classify.IssueType) classify.Issue {
	return classify.Issue{Type: t, AutoFixable: t.AutoFixable(), SourceRunID: 1}
}

func newTestApplier(speculative bool, actions ...Action) *Applier {
	return NewApplier(actions, time.Second, speculative, nil)
}

func TestApplyInvokesOneActionPerType(t *testing.T) {
	dep := &fakeAction{issueType: classify.IssueMissingDependency, applied: true}
	lint := &fakeAction{issueType: classify.IssueLintFailure, applied: true}
	applier := newTestApplier(false, dep, lint)

	// Three issues of the same type must not amplify into three invocations.
	fixes := applier.Apply(context.Background(), []classify.Issue{
		issueOf(classify.IssueMissingDependency),
		issueOf(classify.IssueMissingDependency),
		issueOf(classify.IssueMissingDependency),
		issueOf(classify.IssueLintFailure),
	})

	assert.Equal(t, 1, dep.calls)
	assert.Equal(t, 1, lint.calls)
	require.Len(t, dep.issues[0], 3)
	assert.Equal(t, 2, fixes.AppliedCount())
	assert.False(t, fixes.Speculative)
}

func TestApplyFixedOrder(t *testing.T) {
	var order []classify.IssueType
	mk := func(t classify.IssueType) Action {
		return actionFunc{t, func() { order = append(order, t) }}
	}
	applier := newTestApplier(false,
		mk(classify.IssueBuildFailure),
		mk(classify.IssueMissingDependency),
		mk(classify.IssueSecurityFinding),
		mk(classify.IssueTestFailure),
		mk(classify.IssueLintFailure),
	)

	// Issues arrive in reverse order; application order must not follow it.
	applier.Apply(context.Background(), []classify.Issue{
		issueOf(classify.IssueBuildFailure),
		issueOf(classify.IssueSecurityFinding),
		issueOf(classify.IssueLintFailure),
		issueOf(classify.IssueTestFailure),
		issueOf(classify.IssueMissingDependency),
	})

	assert.Equal(t, []classify.IssueType{
		classify.IssueMissingDependency,
		classify.IssueTestFailure,
		classify.IssueLintFailure,
		classify.IssueSecurityFinding,
		classify.IssueBuildFailure,
	}, order)
}

// actionFunc is a minimal Action for ordering tests.
type actionFunc struct {
	issueType classify.IssueType
	fn        func()
}

func (a actionFunc) Type() classify.IssueType { return a.issueType }
func (a actionFunc) Apply(context.Context, []classify.Issue) (bool, error) {
	a.fn()
	return true, nil
}

func TestApplyOnlyPresentTypes(t *testing.T) {
	dep := &fakeAction{issueType: classify.IssueMissingDependency, applied: true}
	lint := &fakeAction{issueType: classify.IssueLintFailure, applied: true}
	applier := newTestApplier(false, dep, lint)

	applier.Apply(context.Background(), []classify.Issue{issueOf(classify.IssueMissingDependency)})

	assert.Equal(t, 1, dep.calls)
	assert.Equal(t, 0, lint.calls, "no fix may run for a type not present")
}

func TestApplyActionFailureDoesNotAbortCycle(t *testing.T) {
	dep := &fakeAction{issueType: classify.IssueMissingDependency, err: errors.New("disk full")}
	lint := &fakeAction{issueType: classify.IssueLintFailure, applied: true}
	applier := newTestApplier(false, dep, lint)

	fixes := applier.Apply(context.Background(), []classify.Issue{
		issueOf(classify.IssueMissingDependency),
		issueOf(classify.IssueLintFailure),
	})

	assert.Equal(t, 1, lint.calls, "later actions must still run")
	require.Len(t, fixes.Results, 2)
	assert.Error(t, fixes.Results[0].Err)
	assert.False(t, fixes.Results[0].Applied)
	assert.True(t, fixes.Results[1].Applied)
	assert.Equal(t, []classify.IssueType{classify.IssueLintFailure}, fixes.AppliedTypes())
}

func TestApplySpeculativeFallback(t *testing.T) {
	t.Run("unknown-only issues trigger low-risk actions", func(t *testing.T) {
		dep := &fakeAction{issueType: classify.IssueMissingDependency}
		test := &fakeAction{issueType: classify.IssueTestFailure}
		lint := &fakeAction{issueType: classify.IssueLintFailure}
		sec := &fakeAction{issueType: classify.IssueSecurityFinding}
		applier := newTestApplier(true, dep, test, lint, sec)

		fixes := applier.Apply(context.Background(), []classify.Issue{issueOf(classify.IssueUnknown)})

		assert.True(t, fixes.Speculative)
		assert.Equal(t, 1, dep.calls)
		assert.Equal(t, 1, test.calls)
		assert.Equal(t, 1, lint.calls)
		assert.Equal(t, 0, sec.calls, "higher-risk actions stay out of the fallback")
		assert.Empty(t, dep.issues[0], "speculative invocation carries no issues")
	})

	t.Run("disabled policy does nothing", func(t *testing.T) {
		dep := &fakeAction{issueType: classify.IssueMissingDependency}
		applier := newTestApplier(false, dep)

		fixes := applier.Apply(context.Background(), []classify.Issue{issueOf(classify.IssueUnknown)})

		assert.Equal(t, 0, dep.calls)
		assert.Empty(t, fixes.Results)
	})

	t.Run("no issues at all does nothing", func(t *testing.T) {
		dep := &fakeAction{issueType: classify.IssueMissingDependency}
		applier := newTestApplier(true, dep)

		fixes := applier.Apply(context.Background(), nil)

		assert.Equal(t, 0, dep.calls)
		assert.Empty(t, fixes.Results)
	})

	t.Run("any fixable issue suppresses the fallback", func(t *testing.T) {
		dep := &fakeAction{issueType: classify.IssueMissingDependency}
		lint := &fakeAction{issueType: classify.IssueLintFailure}
		applier := newTestApplier(true, dep, lint)

		fixes := applier.Apply(context.Background(), []classify.Issue{
			issueOf(classify.IssueUnknown),
			issueOf(classify.IssueLintFailure),
		})

		assert.False(t, fixes.Speculative)
		assert.Equal(t, 0, dep.calls)
		assert.Equal(t, 1, lint.calls)
	})
}

func TestApplySurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawLiveContext bool
	action := contextProbe{classify.IssueLintFailure, &sawLiveContext}
	applier := newTestApplier(false, action)

	fixes := applier.Apply(ctx, []classify.Issue{issueOf(classify.IssueLintFailure)})

	require.Len(t, fixes.Results, 1)
	assert.True(t, sawLiveContext, "action context must be detached from caller cancellation")
}

type contextProbe struct {
	issueType classify.IssueType
	alive     *bool
}

func (p contextProbe) Type() classify.IssueType { return p.issueType }
func (p contextProbe) Apply(ctx context.Context, _ []classify.Issue) (bool, error) {
	*p.alive = ctx.Err() == nil
	return false, nil
}
