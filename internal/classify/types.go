package classify

// IssueType is the category a failure is classified into.
type IssueType string

const (
	// IssueMissingDependency is a missing package or import at install/run time.
	IssueMissingDependency IssueType = "missing_dependency"
	// IssueTestFailure is a failing test suite.
	IssueTestFailure IssueType = "test_failure"
	// IssueLintFailure is a style or static-analysis failure.
	IssueLintFailure IssueType = "lint_failure"
	// IssueSecurityFinding is a vulnerability or security-scan finding.
	IssueSecurityFinding IssueType = "security_finding"
	// IssueBuildFailure is a compilation or build-step failure.
	IssueBuildFailure IssueType = "build_failure"
	// IssueUnknown is assigned when no specific signature matches.
	IssueUnknown IssueType = "unknown"
)

// Severity ranks how serious an issue is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AutoFixable reports whether issues of this type have an automated fix.
// This is a static property of the type, not of an individual occurrence.
func (t IssueType) AutoFixable() bool {
	switch t {
	case IssueMissingDependency, IssueTestFailure, IssueLintFailure,
		IssueSecurityFinding, IssueBuildFailure:
		return true
	default:
		return false
	}
}

// Issue is a classified failure extracted from run logs.
type Issue struct {
	// Type is the issue category.
	Type IssueType `json:"issue_type"`

	// Severity ranks the issue.
	Severity Severity `json:"severity"`

	// AutoFixable mirrors Type.AutoFixable() for serialized consumers.
	AutoFixable bool `json:"auto_fixable"`

	// SourceRunID is the workflow run the issue was classified from.
	SourceRunID int64 `json:"source_run_id"`

	// Evidence is the log excerpt that matched the signature.
	Evidence string `json:"evidence"`
}
