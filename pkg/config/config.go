package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultReportsDir is the default directory for analysis reports.
	DefaultReportsDir = "./reports"

	// DefaultMetricKey is the default score metric analysed per test.
	DefaultMetricKey = "kld"

	// DefaultScale is the default score scale.
	DefaultScale = "linear"

	// DefaultPenalty is the default per-changepoint penalty.
	DefaultPenalty = 3.0

	// DefaultMinSegmentLength is the default minimum segment length.
	DefaultMinSegmentLength = 2

	// DefaultNearEndThreshold is the default trailing window, in
	// observations, within which a changepoint raises an alarm.
	DefaultNearEndThreshold = 5

	// DefaultCommitWindow is the default number of surrounding runs
	// searched for candidate causal commits.
	DefaultCommitWindow = 3

	// DefaultTestTimeout bounds a single test execution.
	DefaultTestTimeout = 2 * time.Hour

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"
)

// Config is the root configuration for regressoor.
type Config struct {
	Global   GlobalConfig   `yaml:"global"`
	Database DatabaseConfig `yaml:"database"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Tests    []TestConfig   `yaml:"tests"`
	Server   ServerConfig   `yaml:"server"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel   string `yaml:"log_level"`
	ReportsDir string `yaml:"reports_dir"`
	LibraryDir string `yaml:"library_dir"`
	HarnessDir string `yaml:"harness_dir"`
}

// DatabaseConfig selects and configures the results database backend.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains SQLite settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// AnalysisConfig holds changepoint and alarm parameters. Every field can
// be overridden per test; unset test fields fall back to these values.
type AnalysisConfig struct {
	MetricKey        string   `yaml:"metric_key"`
	Scale            string   `yaml:"scale"`
	Penalty          *float64 `yaml:"penalty"`
	MinSegmentLength int      `yaml:"min_segment_length"`
	NearEndThreshold int      `yaml:"near_end_threshold"`
	CommitWindow     int      `yaml:"commit_window"`
}

// TestConfig defines a single functional test. The command is an opaque
// test body: it is expected to write its metrics to the file named by the
// REGRESSOOR_RESULT environment variable.
type TestConfig struct {
	Name           string   `yaml:"name"`
	Command        []string `yaml:"command"`
	Workdir        string   `yaml:"workdir,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`

	// Per-test analysis overrides.
	MetricKey        string   `yaml:"metric_key,omitempty"`
	Scale            string   `yaml:"scale,omitempty"`
	Penalty          *float64 `yaml:"penalty,omitempty"`
	MinSegmentLength int      `yaml:"min_segment_length,omitempty"`
	NearEndThreshold int      `yaml:"near_end_threshold,omitempty"`
	CommitWindow     int      `yaml:"commit_window,omitempty"`
}

// RateLimitConfig configures per-IP API rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// ServerConfig contains API server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Global.ReportsDir == "" {
		c.Global.ReportsDir = DefaultReportsDir
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "./regressoor.db"
	}

	if c.Analysis.MetricKey == "" {
		c.Analysis.MetricKey = DefaultMetricKey
	}

	if c.Analysis.Scale == "" {
		c.Analysis.Scale = DefaultScale
	}

	if c.Analysis.Penalty == nil {
		penalty := DefaultPenalty
		c.Analysis.Penalty = &penalty
	}

	if c.Analysis.MinSegmentLength == 0 {
		c.Analysis.MinSegmentLength = DefaultMinSegmentLength
	}

	if c.Analysis.NearEndThreshold == 0 {
		c.Analysis.NearEndThreshold = DefaultNearEndThreshold
	}

	if c.Analysis.CommitWindow == 0 {
		c.Analysis.CommitWindow = DefaultCommitWindow
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
}

// validScales is the set of supported score scales.
var validScales = map[string]struct{}{
	"linear": {},
	"log":    {},
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if _, ok := validScales[c.Analysis.Scale]; !ok {
		return fmt.Errorf("unknown scale %q (use \"linear\" or \"log\")",
			c.Analysis.Scale)
	}

	if *c.Analysis.Penalty < 0 {
		return fmt.Errorf("penalty must be >= 0, got %v", *c.Analysis.Penalty)
	}

	if c.Analysis.MinSegmentLength < 1 {
		return fmt.Errorf("min_segment_length must be >= 1, got %d",
			c.Analysis.MinSegmentLength)
	}

	seen := make(map[string]struct{}, len(c.Tests))

	for i, test := range c.Tests {
		if test.Name == "" {
			return fmt.Errorf("test %d: name is required", i)
		}

		if _, exists := seen[test.Name]; exists {
			return fmt.Errorf("test %d: duplicate name %q", i, test.Name)
		}

		seen[test.Name] = struct{}{}

		if len(test.Command) == 0 {
			return fmt.Errorf("test %q: command is required", test.Name)
		}

		if test.Scale != "" {
			if _, ok := validScales[test.Scale]; !ok {
				return fmt.Errorf("test %q: unknown scale %q", test.Name, test.Scale)
			}
		}

		if test.Penalty != nil && *test.Penalty < 0 {
			return fmt.Errorf("test %q: penalty must be >= 0", test.Name)
		}
	}

	return nil
}

// TestNames returns the configured test names in declaration order.
func (c *Config) TestNames() []string {
	names := make([]string, 0, len(c.Tests))
	for _, t := range c.Tests {
		names = append(names, t.Name)
	}

	return names
}

// Test returns the configuration for a named test.
func (c *Config) Test(name string) (*TestConfig, bool) {
	for i := range c.Tests {
		if c.Tests[i].Name == name {
			return &c.Tests[i], true
		}
	}

	return nil, false
}

// AnalysisFor resolves the effective analysis parameters for a test,
// applying per-test overrides on top of the global defaults.
func (c *Config) AnalysisFor(name string) AnalysisConfig {
	resolved := c.Analysis

	test, ok := c.Test(name)
	if !ok {
		return resolved
	}

	if test.MetricKey != "" {
		resolved.MetricKey = test.MetricKey
	}

	if test.Scale != "" {
		resolved.Scale = test.Scale
	}

	if test.Penalty != nil {
		resolved.Penalty = test.Penalty
	}

	if test.MinSegmentLength > 0 {
		resolved.MinSegmentLength = test.MinSegmentLength
	}

	if test.NearEndThreshold > 0 {
		resolved.NearEndThreshold = test.NearEndThreshold
	}

	if test.CommitWindow > 0 {
		resolved.CommitWindow = test.CommitWindow
	}

	return resolved
}

// Timeout returns the execution timeout for a test.
func (t *TestConfig) Timeout() time.Duration {
	if t.TimeoutSeconds > 0 {
		return time.Duration(t.TimeoutSeconds) * time.Second
	}

	return DefaultTestTimeout
}
