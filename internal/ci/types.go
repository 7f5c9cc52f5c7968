package ci

import "time"

// Status is the lifecycle state of a workflow run.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Conclusion is the result of a completed workflow run. It is meaningful
// only when Status is StatusCompleted.
type Conclusion string

const (
	ConclusionSuccess   Conclusion = "success"
	ConclusionFailure   Conclusion = "failure"
	ConclusionCancelled Conclusion = "cancelled"
	ConclusionSkipped   Conclusion = "skipped"
	ConclusionUnknown   Conclusion = "unknown"
)

// WorkflowRun is an immutable snapshot of one CI execution, fetched per
// poll and never mutated locally.
type WorkflowRun struct {
	ID         int64      `json:"run_id"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	Conclusion Conclusion `json:"conclusion"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Branch     string     `json:"branch"`
	CommitSHA  string     `json:"commit_sha"`
}

// Completed reports whether the run has finished.
func (r WorkflowRun) Completed() bool {
	return r.Status == StatusCompleted
}

// Failed reports whether the run completed with a failure conclusion.
// Cancelled and skipped runs are not failures.
func (r WorkflowRun) Failed() bool {
	return r.Completed() && r.Conclusion == ConclusionFailure
}

// Passed reports whether the run completed successfully.
func (r WorkflowRun) Passed() bool {
	return r.Completed() && r.Conclusion == ConclusionSuccess
}
