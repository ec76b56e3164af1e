// Package config holds the run configuration of the go-xcsign command.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/aluedeke/go-xcsign/pkg/signing"
)

const (
	DefaultResultPath        = "use-profiles-result.json"
	DefaultExportOptionsPath = "export_options.plist"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"

	// DefaultProfilePattern is where Xcode keeps installed profiles
	DefaultProfilePattern = "~/Library/MobileDevice/Provisioning Profiles/*.mobileprovision"
)

// Config is the run configuration. Command line flags override environment
// variables, which override the configuration file.
type Config struct {
	// Paths or glob patterns of .mobileprovision files
	Profiles []string `yaml:"profiles"`
	// Inline profile records, used in addition to Profiles
	ProfileRecords []signing.Profile `yaml:"profile_records"`
	// PEM or P12 files with the signing certificates
	Certificates   []string `yaml:"certificates"`
	Password       string   `yaml:"password"`
	Result         string   `yaml:"result"`
	ExportOptions  string   `yaml:"export_options"`
	UnmatchedTests string   `yaml:"unmatched_tests"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
	// JSON or plist file merged over the generated export options
	CustomExportOptions string `yaml:"custom_export_options"`
}

// Load reads and parses a configuration file
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv fills settings from the environment. A value from the
// environment replaces the one from the configuration file.
func (c *Config) ApplyEnv() {
	if profile := os.Getenv("CODESIGN_PROFILE"); profile != "" {
		c.Profiles = filepath.SplitList(profile)
	}
	if p12 := os.Getenv("CODESIGN_P12"); p12 != "" {
		c.Certificates = filepath.SplitList(p12)
	}
	if password := os.Getenv("CODESIGN_PASSWORD"); password != "" {
		c.Password = password
	}
}

// ApplyDefaults sets defaults for every unset value
func (c *Config) ApplyDefaults() {
	if len(c.Profiles) == 0 && len(c.ProfileRecords) == 0 {
		c.Profiles = []string{DefaultProfilePattern}
	}
	if c.Result == "" {
		c.Result = DefaultResultPath
	}
	if c.ExportOptions == "" {
		c.ExportOptions = DefaultExportOptionsPath
	}
	if c.UnmatchedTests == "" {
		c.UnmatchedTests = string(signing.SkipUnmatchedTests)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// Validate checks the enumerated settings
func (c *Config) Validate() error {
	if _, err := c.TestPolicy(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}
	if len(c.Profiles) == 0 && len(c.ProfileRecords) == 0 {
		return fmt.Errorf("no provisioning profiles configured")
	}
	return nil
}

// TestPolicy returns the policy for test targets without a profile
func (c *Config) TestPolicy() (signing.TestPolicy, error) {
	switch policy := signing.TestPolicy(strings.ToLower(c.UnmatchedTests)); policy {
	case signing.SkipUnmatchedTests, signing.KeepUnmatchedTests:
		return policy, nil
	case "":
		return signing.SkipUnmatchedTests, nil
	default:
		return "", fmt.Errorf("invalid unmatched tests policy %q (must be skip or keep)", c.UnmatchedTests)
	}
}

// Level returns the configured log level
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// ProfilePaths expands the configured profile patterns into file paths. A
// leading ~ is the home directory. Paths without glob characters are kept
// even when they do not exist.
func (c *Config) ProfilePaths() ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}

	for _, pattern := range c.Profiles {
		if pattern == "~" || strings.HasPrefix(pattern, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to expand %s: %w", pattern, err)
			}
			pattern = filepath.Join(home, pattern[1:])
		}
		if !strings.ContainsAny(pattern, "*?[{") {
			add(pattern)
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid profile pattern %s: %w", pattern, err)
		}
		for _, match := range matches {
			add(match)
		}
	}
	return paths, nil
}
