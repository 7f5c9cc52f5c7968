// Package config provides configuration loading for remedyd.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables. The GitHub token is only ever read from the environment
// (GITHUB_TOKEN) so it never lands in a config file on disk.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete remedyd configuration.
type Config struct {
	GitHub     GitHubConfig     `koanf:"github"`
	Controller ControllerConfig `koanf:"controller"`
	Fix        FixConfig        `koanf:"fix"`
	Publish    PublishConfig    `koanf:"publish"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// GitHubConfig holds the CI platform connection settings.
type GitHubConfig struct {
	// Owner is the repository owner (user or organization).
	Owner string `koanf:"owner"`

	// Repo is the repository name.
	Repo string `koanf:"repo"`

	// Branch limits run polling to a single branch. Empty means all branches.
	Branch string `koanf:"branch"`

	// Token authenticates against the GitHub API. Loaded from GITHUB_TOKEN.
	Token Secret `koanf:"token"`

	// RequestTimeout bounds every single API call (default: 30s).
	RequestTimeout Duration `koanf:"request_timeout"`

	// RunLimit is how many recent workflow runs to fetch per cycle (default: 10).
	RunLimit int `koanf:"run_limit"`

	// RequestsPerSecond rate-limits outgoing API calls (default: 2).
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// ControllerConfig holds the polling loop settings.
type ControllerConfig struct {
	// Continuous keeps polling until convergence or shutdown instead of
	// performing a single check-and-exit pass.
	Continuous bool `koanf:"continuous"`

	// Interval is the base poll interval between cycles (default: 30s).
	Interval Duration `koanf:"interval"`

	// RebuildInterval is the extended wait after a fix was pushed, giving the
	// new CI run time to execute (default: 90s).
	RebuildInterval Duration `koanf:"rebuild_interval"`

	// ConvergenceThreshold is how many consecutive all-passing checks are
	// required before the loop declares convergence (default: 3).
	ConvergenceThreshold int `koanf:"convergence_threshold"`

	// SpeculativeFallback enables invoking the low-risk fix actions when a
	// failed run yields no auto-fixable classification.
	SpeculativeFallback bool `koanf:"speculative_fallback"`

	// ExcludedWorkflows lists workflow names ignored when judging whether all
	// runs pass (known-flaky or third-party workflows).
	ExcludedWorkflows []string `koanf:"excluded_workflows"`

	// ReportDir is where the session report is written at shutdown
	// (default: current directory).
	ReportDir string `koanf:"report_dir"`
}

// FixConfig holds fix action settings.
type FixConfig struct {
	// RepoDir is the local working tree the fix actions mutate (default: ".").
	RepoDir string `koanf:"repo_dir"`

	// RequirementsFile is the dependency manifest the missing-dependency
	// action maintains, relative to RepoDir (default: requirements.txt).
	RequirementsFile string `koanf:"requirements_file"`

	// Commands maps an issue type to the command invoked to fix it.
	// Types without a command have no registered action.
	Commands map[string][]string `koanf:"commands"`

	// ActionTimeout bounds each individual fix action (default: 5m).
	ActionTimeout Duration `koanf:"action_timeout"`
}

// PublishConfig holds the commit/push settings.
type PublishConfig struct {
	// RemoteName is the git remote pushed to (default: origin).
	RemoteName string `koanf:"remote_name"`

	// CommitMessage is the standard message used for remediation commits.
	CommitMessage string `koanf:"commit_message"`

	// AuthorName and AuthorEmail identify the remediation commits.
	AuthorName  string `koanf:"author_name"`
	AuthorEmail string `koanf:"author_email"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `koanf:"level"`

	// Format selects the encoder: "console" or "json".
	Format string `koanf:"format"`
}

// TelemetryConfig holds the metrics endpoint settings.
type TelemetryConfig struct {
	// Enabled turns on the Prometheus metrics endpoint in continuous mode.
	Enabled bool `koanf:"enabled"`

	// MetricsPort is the port the /metrics endpoint listens on (default: 9464).
	MetricsPort int `koanf:"metrics_port"`
}

// Default returns a Config populated with defaults. Loaded sources override
// these values.
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			RequestTimeout:    Duration(30 * time.Second),
			RunLimit:          10,
			RequestsPerSecond: 2,
		},
		Controller: ControllerConfig{
			Interval:             Duration(30 * time.Second),
			RebuildInterval:      Duration(90 * time.Second),
			ConvergenceThreshold: 3,
			SpeculativeFallback:  true,
			ReportDir:            ".",
		},
		Fix: FixConfig{
			RepoDir:          ".",
			RequirementsFile: "requirements.txt",
			Commands: map[string][]string{
				"lint_failure":     {"black", "."},
				"security_finding": {"pip-audit", "--fix"},
			},
			ActionTimeout: Duration(5 * time.Minute),
		},
		Publish: PublishConfig{
			RemoteName:    "origin",
			CommitMessage: "ci: automated workflow remediation",
			AuthorName:    "remedyd",
			AuthorEmail:   "remedyd@fyrsmithlabs.com",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			MetricsPort: 9464,
		},
	}
}

// Validate checks for fatal configuration errors. Any error returned here
// must stop the process at startup; no cycles run with a broken config.
func (c *Config) Validate() error {
	var errs []error

	if c.GitHub.Owner == "" {
		errs = append(errs, errors.New("github.owner is required"))
	}
	if c.GitHub.Repo == "" {
		errs = append(errs, errors.New("github.repo is required"))
	}
	if !c.GitHub.Token.IsSet() {
		errs = append(errs, errors.New("GITHUB_TOKEN environment variable is required"))
	}
	if c.GitHub.RunLimit <= 0 {
		errs = append(errs, fmt.Errorf("github.run_limit must be positive, got %d", c.GitHub.RunLimit))
	}
	if c.Controller.Interval.Duration() <= 0 {
		errs = append(errs, errors.New("controller.interval must be positive"))
	}
	if c.Controller.RebuildInterval.Duration() < c.Controller.Interval.Duration() {
		errs = append(errs, errors.New("controller.rebuild_interval must not be shorter than controller.interval"))
	}
	if c.Controller.ConvergenceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("controller.convergence_threshold must be positive, got %d", c.Controller.ConvergenceThreshold))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
