// Package fix applies idempotent remediations to the local working tree.
//
// Each action is tied to one issue type and reports whether it actually
// changed anything. Re-invoking an action with nothing left to fix is a
// no-op success, so a fix set can safely be re-applied when a publish
// fails and the same issues come around again next cycle.
package fix

import (
	"context"
	"os/exec"

	"github.com/fyrsmithlabs/remedyd/internal/classify"
)

// Action is a named, idempotent remediation for one issue type.
type Action interface {
	// Type is the issue type this action addresses.
	Type() classify.IssueType

	// Apply runs the remediation against the working tree. issues holds the
	// current cycle's issues of this action's type; it is empty when the
	// action runs speculatively. applied is true only if the working tree
	// was changed.
	Apply(ctx context.Context, issues []classify.Issue) (applied bool, err error)
}

// CommandRunner executes an external command in a directory. Extracted so
// applier tests run without spawning processes.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// WorktreeObserver fingerprints the local working tree so command-based
// actions can tell whether they changed anything.
type WorktreeObserver interface {
	Fingerprint(ctx context.Context) (string, error)
}

type execRunner struct{}

// NewExecRunner returns a CommandRunner backed by os/exec.
func NewExecRunner() CommandRunner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}
