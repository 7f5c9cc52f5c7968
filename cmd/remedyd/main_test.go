package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/internal/config"
)

func TestApplyFlagsOverridesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.GitHub.Owner = "from-config"
	cfg.GitHub.Repo = "from-config"

	cmd := rootCmd
	require.NoError(t, cmd.ParseFlags([]string{
		"--owner=acme", "--repo=widgets", "--interval=2m", "--continuous",
	}))

	applyFlags(cmd, cfg)

	assert.Equal(t, "acme", cfg.GitHub.Owner)
	assert.Equal(t, "widgets", cfg.GitHub.Repo)
	assert.True(t, cfg.Controller.Continuous)
	assert.Equal(t, 2*time.Minute, cfg.Controller.Interval.Duration())
	assert.Equal(t, 2*time.Minute, cfg.Controller.RebuildInterval.Duration(),
		"rebuild interval must never undercut the base interval")
}

func TestApplyFlagsLeavesUnsetValues(t *testing.T) {
	cfg := config.Default()
	cfg.GitHub.Owner = "from-config"
	cfg.GitHub.Branch = "main"

	applyFlags(&cobra.Command{}, cfg)

	assert.Equal(t, "from-config", cfg.GitHub.Owner)
	assert.Equal(t, "main", cfg.GitHub.Branch)
	assert.Equal(t, 30*time.Second, cfg.Controller.Interval.Duration())
}
