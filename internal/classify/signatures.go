package classify

import "regexp"

// Signature maps a log pattern to an issue type. Signatures are evaluated in
// order; the first signature matching for a given type supplies the evidence.
type Signature struct {
	// ID names the signature for logs and tests.
	ID string

	// Type is the issue type a match produces.
	Type IssueType

	// Pattern is the compiled signature. Stable error tokens (exception class
	// names, tool prefixes) are case-sensitive; prose phrases carry (?i).
	Pattern *regexp.Regexp

	// Severity assigned to matching issues.
	Severity Severity
}

// DefaultSignatures returns the ordered signature table. Specific signatures
// come before generic ones: a log that matches any entry here is never
// classified unknown.
func DefaultSignatures() []Signature {
	return []Signature{
		// Missing dependencies: cheap, structural, fixed first.
		{
			ID:       "python-module-not-found",
			Type:     IssueMissingDependency,
			Pattern:  regexp.MustCompile(`ModuleNotFoundError: No module named '[^']+'`),
			Severity: SeverityHigh,
		},
		{
			ID:       "python-import-error",
			Type:     IssueMissingDependency,
			Pattern:  regexp.MustCompile(`ImportError: cannot import name`),
			Severity: SeverityHigh,
		},
		{
			ID:       "pip-no-distribution",
			Type:     IssueMissingDependency,
			Pattern:  regexp.MustCompile(`(?i)no matching distribution found for`),
			Severity: SeverityHigh,
		},
		{
			ID:       "node-module-not-found",
			Type:     IssueMissingDependency,
			Pattern:  regexp.MustCompile(`(?i)cannot find module '[^']+'`),
			Severity: SeverityHigh,
		},

		// Test failures.
		{
			ID:       "pytest-failed",
			Type:     IssueTestFailure,
			Pattern:  regexp.MustCompile(`FAILED [\w/.\\-]+::`),
			Severity: SeverityHigh,
		},
		{
			ID:       "assertion-error",
			Type:     IssueTestFailure,
			Pattern:  regexp.MustCompile(`AssertionError`),
			Severity: SeverityHigh,
		},
		{
			ID:       "pytest-summary-failed",
			Type:     IssueTestFailure,
			Pattern:  regexp.MustCompile(`(?i)=+ .*\d+ failed`),
			Severity: SeverityHigh,
		},
		{
			ID:       "go-test-fail",
			Type:     IssueTestFailure,
			Pattern:  regexp.MustCompile(`--- FAIL:`),
			Severity: SeverityHigh,
		},

		// Lint failures.
		{
			ID:       "black-would-reformat",
			Type:     IssueLintFailure,
			Pattern:  regexp.MustCompile(`(?i)would reformat`),
			Severity: SeverityLow,
		},
		{
			ID:       "flake8-error-code",
			Type:     IssueLintFailure,
			Pattern:  regexp.MustCompile(`:\d+:\d+: [EWF]\d{3} `),
			Severity: SeverityLow,
		},
		{
			ID:       "lint-failed-prose",
			Type:     IssueLintFailure,
			Pattern:  regexp.MustCompile(`(?i)lint(?:ing)? (?:check )?(?:failed|error)`),
			Severity: SeverityLow,
		},

		// Security findings.
		{
			ID:       "cve-reference",
			Type:     IssueSecurityFinding,
			Pattern:  regexp.MustCompile(`CVE-\d{4}-\d+`),
			Severity: SeverityCritical,
		},
		{
			ID:       "vulnerability-prose",
			Type:     IssueSecurityFinding,
			Pattern:  regexp.MustCompile(`(?i)(?:known )?vulnerab(?:ility|ilities|le)`),
			Severity: SeverityCritical,
		},
		{
			ID:       "bandit-issue",
			Type:     IssueSecurityFinding,
			Pattern:  regexp.MustCompile(`Issue: \[B\d{3}`),
			Severity: SeverityHigh,
		},

		// Build failures.
		{
			ID:       "python-syntax-error",
			Type:     IssueBuildFailure,
			Pattern:  regexp.MustCompile(`SyntaxError: `),
			Severity: SeverityCritical,
		},
		{
			ID:       "build-failed-prose",
			Type:     IssueBuildFailure,
			Pattern:  regexp.MustCompile(`(?i)(?:build|compilation) (?:failed|error)`),
			Severity: SeverityHigh,
		},
		{
			ID:       "permission-denied",
			Type:     IssueBuildFailure,
			Pattern:  regexp.MustCompile(`(?i)permission denied`),
			Severity: SeverityMedium,
		},
	}
}
