// Package classify maps raw CI log text to typed issues.
//
// Classification is a pure function over the log text: identical input yields
// an identical issue set, with no I/O. The classifier scans an explicit
// ordered signature table; the unknown type is assigned only when no specific
// signature matches anywhere in the text.
package classify

import "strings"

// maxEvidenceLen caps the stored log excerpt per issue.
const maxEvidenceLen = 200

// Classifier scans log text against an ordered signature table.
type Classifier struct {
	signatures []Signature
}

// NewClassifier creates a classifier. A nil or empty signature list falls
// back to the default table.
func NewClassifier(signatures []Signature) *Classifier {
	if len(signatures) == 0 {
		signatures = DefaultSignatures()
	}
	return &Classifier{signatures: signatures}
}

// Classify returns the issues found in the given run's log text,
// deduplicated by issue type. When nothing matches (including empty input)
// it returns a single unknown, non-fixable issue so the caller always sees
// why a failing run produced no fix.
func (c *Classifier) Classify(runID int64, logs string) []Issue {
	var issues []Issue
	seen := make(map[IssueType]bool)

	for _, sig := range c.signatures {
		if seen[sig.Type] {
			continue
		}
		loc := sig.Pattern.FindStringIndex(logs)
		if loc == nil {
			continue
		}

		seen[sig.Type] = true
		issues = append(issues, Issue{
			Type:        sig.Type,
			Severity:    sig.Severity,
			AutoFixable: sig.Type.AutoFixable(),
			SourceRunID: runID,
			Evidence:    evidenceAt(logs, loc),
		})
	}

	if len(issues) == 0 {
		issues = append(issues, Issue{
			Type:        IssueUnknown,
			Severity:    SeverityMedium,
			AutoFixable: false,
			SourceRunID: runID,
		})
	}

	return issues
}

// evidenceAt extracts the log line containing the match, truncated to
// maxEvidenceLen.
func evidenceAt(logs string, loc []int) string {
	start := strings.LastIndexByte(logs[:loc[0]], '\n') + 1
	end := strings.IndexByte(logs[loc[1]:], '\n')
	if end < 0 {
		end = len(logs)
	} else {
		end += loc[1]
	}

	line := strings.TrimSpace(logs[start:end])
	if len(line) > maxEvidenceLen {
		line = line[:maxEvidenceLen]
	}
	return line
}
