package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from a YAML file, then overrides with environment
// variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (GITHUB_OWNER, CONTROLLER_INTERVAL, ...)
//  2. YAML config file (~/.config/remedyd/config.yaml by default)
//  3. Hardcoded defaults
//
// Environment variables use underscore separators and are uppercased. The
// first underscore splits section from field:
//
//	GITHUB_OWNER          -> github.owner
//	GITHUB_TOKEN          -> github.token
//	CONTROLLER_INTERVAL   -> controller.interval
//	FIX_REPO_DIR          -> fix.repo_dir
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path is used; a missing file is not an error (env and defaults
// still apply).
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "remedyd", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// envToKey maps an environment variable name to a config key.
// Splits on the first underscore only (section.field_name pattern), so
// CONTROLLER_REBUILD_INTERVAL maps to controller.rebuild_interval.
func envToKey(s string) string {
	// Only variables whose section prefix matches a known config section are
	// mapped; everything else in the environment is ignored.
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 {
		return ""
	}

	switch parts[0] {
	case "github", "controller", "fix", "publish", "logging", "telemetry":
		return parts[0] + "." + parts[1]
	}
	return ""
}

// readConfigFile opens and reads a config file with a size cap. The open
// file descriptor is used for both stat and read to avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
