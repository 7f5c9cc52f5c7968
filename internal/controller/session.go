package controller

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Session is the process-wide state scoped to one controller run. It is
// owned by the loop, updated every cycle, and reported at shutdown; a
// restart starts a fresh session.
type Session struct {
	// ID uniquely identifies this invocation.
	ID string `json:"session_id"`

	// StartTime is when the controller started.
	StartTime time.Time `json:"start_time"`

	// LastCheckTime is when the most recent cycle ran.
	LastCheckTime time.Time `json:"last_check_time"`

	// ChecksPerformed counts completed poll cycles.
	ChecksPerformed int `json:"checks_performed"`

	// FixesApplied counts fix actions that changed the working tree.
	FixesApplied int `json:"fixes_applied"`

	// WorkflowsFixed counts failing runs present in cycles where at least
	// one fix was applied.
	WorkflowsFixed int `json:"workflows_fixed"`

	// ConsecutivePasses mirrors the convergence tracker's current count.
	ConsecutivePasses int `json:"consecutive_passes"`
}

// NewSession creates a fresh session starting now.
func NewSession() *Session {
	return &Session{
		ID:        uuid.New().String(),
		StartTime: time.Now(),
	}
}

// Report is the structured session summary written at shutdown, one file
// per invocation, for audit and inspection. It is observational only.
type Report struct {
	Session
	EndTime   time.Time `json:"end_time"`
	Runtime   string    `json:"runtime"`
	Converged bool      `json:"converged"`
}

// Report snapshots the session into a shutdown report.
func (s *Session) Report(converged bool, now time.Time) Report {
	return Report{
		Session:   *s,
		EndTime:   now,
		Runtime:   now.Sub(s.StartTime).Round(time.Millisecond).String(),
		Converged: converged,
	}
}

// WriteReport writes the report as indented JSON into dir and returns the
// file path. The directory is created if needed.
func WriteReport(dir string, report Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("remedyd-report-%s.json", report.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
