// Remedyd watches a repository's CI workflow runs, classifies failures
// from their logs, applies automated fixes to the local checkout, and
// pushes them so the pipeline can rebuild.
//
// Usage:
//
//	# Single check-and-fix pass against the current directory's repo
//	GITHUB_TOKEN=... remedyd --owner acme --repo widgets
//
//	# Keep remediating until three consecutive clean passes
//	GITHUB_TOKEN=... remedyd --owner acme --repo widgets --continuous --interval 30s
//
// Configuration is loaded from ~/.config/remedyd/config.yaml (override
// with --config) and GITHUB_*, CONTROLLER_*, FIX_*, PUBLISH_*, LOGGING_*
// and TELEMETRY_* environment variables; flags win over both.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/ci"
	"github.com/fyrsmithlabs/remedyd/internal/classify"
	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/controller"
	"github.com/fyrsmithlabs/remedyd/internal/fix"
	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/publish"
	"github.com/fyrsmithlabs/remedyd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	flagConfig     string
	flagOwner      string
	flagRepo       string
	flagBranch     string
	flagRepoDir    string
	flagContinuous bool
	flagInterval   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "remedyd",
	Short: "Continuous CI workflow remediation",
	Long: `Remedyd polls a repository's workflow runs, classifies failures from
their logs, applies automated fixes to the local checkout, and pushes
them so the pipeline can rebuild.

By default it performs a single check-and-fix pass and exits non-zero
if any workflow run is failing. With --continuous it keeps cycling
until the pipeline passes enough consecutive checks to be considered
converged.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single check-and-fix pass",
	Long: `Check runs exactly one poll-classify-fix-publish cycle and exits.
The exit status is zero when every completed workflow run passes and
non-zero when any run is failing, so it can gate scripts and hooks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		forceSingleShot = true
		return runRoot(cmd, args)
	},
}

// forceSingleShot pins single-shot mode regardless of the config file.
var forceSingleShot bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("remedyd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "config file path (default ~/.config/remedyd/config.yaml)")
	flags.StringVar(&flagOwner, "owner", "", "repository owner")
	flags.StringVar(&flagRepo, "repo", "", "repository name")
	flags.StringVar(&flagBranch, "branch", "", "limit polling to one branch")
	flags.StringVar(&flagRepoDir, "repo-dir", "", "local checkout to fix (default current directory)")
	rootCmd.Flags().BoolVar(&flagContinuous, "continuous", false, "keep polling until the pipeline converges")
	flags.DurationVar(&flagInterval, "interval", 30*time.Second, "base delay between poll cycles")
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "remedyd: %v\n", err)
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger)
}

// applyFlags layers explicitly-set flags over the loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("owner") {
		cfg.GitHub.Owner = flagOwner
	}
	if flags.Changed("repo") {
		cfg.GitHub.Repo = flagRepo
	}
	if flags.Changed("branch") {
		cfg.GitHub.Branch = flagBranch
	}
	if flags.Changed("repo-dir") {
		cfg.Fix.RepoDir = flagRepoDir
	}
	if flags.Changed("interval") {
		cfg.Controller.Interval = config.Duration(flagInterval)
		if cfg.Controller.RebuildInterval.Duration() < flagInterval {
			cfg.Controller.RebuildInterval = config.Duration(flagInterval)
		}
	}
	if forceSingleShot {
		cfg.Controller.Continuous = false
	} else if flags.Changed("continuous") {
		cfg.Controller.Continuous = flagContinuous
	}
}

// run wires the collaborators and drives the control loop to completion.
//
// Exit semantics: nil on convergence, a clean single-shot pass, or a
// signal-initiated shutdown; an error (non-zero exit) when a single-shot
// check found failing runs or startup wiring failed.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tel, err := telemetry.New(cfg.Telemetry, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()
	tel.Serve()

	source, err := ci.NewGitHubSource(cfg.GitHub, logger)
	if err != nil {
		return err
	}

	publisher, err := publish.NewGitPublisher(cfg.Fix.RepoDir, cfg.Publish, cfg.GitHub.Token, logger)
	if err != nil {
		return err
	}

	actions, err := fix.BuildActions(cfg.Fix, fix.NewExecRunner(), publisher, logger)
	if err != nil {
		return err
	}
	applier := fix.NewApplier(actions, cfg.Fix.ActionTimeout.Duration(), cfg.Controller.SpeculativeFallback, logger)

	loop, err := controller.New(controller.Config{
		Continuous:           cfg.Controller.Continuous,
		Interval:             cfg.Controller.Interval.Duration(),
		RebuildInterval:      cfg.Controller.RebuildInterval.Duration(),
		RunLimit:             cfg.GitHub.RunLimit,
		ConvergenceThreshold: cfg.Controller.ConvergenceThreshold,
		ExcludedWorkflows:    cfg.Controller.ExcludedWorkflows,
	}, source, classify.NewClassifier(nil), applier, publisher, logger)
	if err != nil {
		return err
	}

	report, runErr := loop.Run(ctx)

	if path, err := controller.WriteReport(cfg.Controller.ReportDir, report); err != nil {
		logger.Warn("failed to write session report", zap.Error(err))
	} else {
		logger.Info("session report written", zap.String("path", path))
	}

	// An operator-initiated shutdown is a clean exit.
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
