package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
tests:
  - name: mcmc_normal
    command: ["python", "-m", "functest", "run", "mcmc_normal"]
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Global.LogLevel)
	assert.Equal(t, "./reports", cfg.Global.ReportsDir)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./regressoor.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "kld", cfg.Analysis.MetricKey)
	assert.Equal(t, "linear", cfg.Analysis.Scale)
	require.NotNil(t, cfg.Analysis.Penalty)
	assert.Equal(t, 3.0, *cfg.Analysis.Penalty)
	assert.Equal(t, 2, cfg.Analysis.MinSegmentLength)
	assert.Equal(t, 5, cfg.Analysis.NearEndThreshold)
	assert.Equal(t, 3, cfg.Analysis.CommitWindow)
	assert.Equal(t, ":8080", cfg.Server.Listen)
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
global:
  log_level: debug
  reports_dir: /var/reports
  library_dir: /src/library
  harness_dir: /src/harness
database:
  driver: postgres
  postgres:
    host: db.internal
    port: 5433
    user: regressoor
    password: hunter2
    database: results
    ssl_mode: require
analysis:
  metric_key: rmse
  scale: log
  penalty: 7.5
  min_segment_length: 3
  near_end_threshold: 8
  commit_window: 5
server:
  listen: ":9090"
  cors_origins: ["https://dashboard.example.com"]
  rate_limit:
    enabled: true
    requests_per_minute: 120
tests:
  - name: mcmc_normal
    command: ["./run.sh"]
    workdir: /tmp/work
    timeout_seconds: 600
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 5433, cfg.Database.Postgres.Port)
	assert.Equal(t, "rmse", cfg.Analysis.MetricKey)
	assert.Equal(t, "log", cfg.Analysis.Scale)
	assert.Equal(t, 7.5, *cfg.Analysis.Penalty)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.Server.RateLimit.RequestsPerMinute)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "tests: [unterminated"))
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	negative := -1.0

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "bad driver",
			mutate: func(c *Config) { c.Database.Driver = "oracle" },
			errMsg: "unsupported database driver",
		},
		{
			name:   "bad scale",
			mutate: func(c *Config) { c.Analysis.Scale = "cubic" },
			errMsg: "unknown scale",
		},
		{
			name:   "negative penalty",
			mutate: func(c *Config) { c.Analysis.Penalty = &negative },
			errMsg: "penalty must be >= 0",
		},
		{
			name:   "zero min segment length",
			mutate: func(c *Config) { c.Analysis.MinSegmentLength = -1 },
			errMsg: "min_segment_length must be >= 1",
		},
		{
			name:   "nameless test",
			mutate: func(c *Config) { c.Tests[0].Name = "" },
			errMsg: "name is required",
		},
		{
			name: "duplicate test names",
			mutate: func(c *Config) {
				c.Tests = append(c.Tests, c.Tests[0])
			},
			errMsg: "duplicate name",
		},
		{
			name:   "commandless test",
			mutate: func(c *Config) { c.Tests[0].Command = nil },
			errMsg: "command is required",
		},
		{
			name:   "bad per-test scale",
			mutate: func(c *Config) { c.Tests[0].Scale = "cubic" },
			errMsg: "unknown scale",
		},
		{
			name:   "negative per-test penalty",
			mutate: func(c *Config) { c.Tests[0].Penalty = &negative },
			errMsg: "penalty must be >= 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, `
tests:
  - name: mcmc_normal
    command: ["./run.sh"]
`))
			require.NoError(t, err)

			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAnalysisFor_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
analysis:
  metric_key: kld
  penalty: 3
tests:
  - name: plain
    command: ["./run.sh"]
  - name: tuned
    command: ["./run.sh"]
    metric_key: rmse
    scale: log
    penalty: 10
    min_segment_length: 4
    near_end_threshold: 12
    commit_window: 6
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	plain := cfg.AnalysisFor("plain")
	assert.Equal(t, "kld", plain.MetricKey)
	assert.Equal(t, "linear", plain.Scale)
	assert.Equal(t, 3.0, *plain.Penalty)
	assert.Equal(t, 2, plain.MinSegmentLength)

	tuned := cfg.AnalysisFor("tuned")
	assert.Equal(t, "rmse", tuned.MetricKey)
	assert.Equal(t, "log", tuned.Scale)
	assert.Equal(t, 10.0, *tuned.Penalty)
	assert.Equal(t, 4, tuned.MinSegmentLength)
	assert.Equal(t, 12, tuned.NearEndThreshold)
	assert.Equal(t, 6, tuned.CommitWindow)

	// Unknown tests resolve to the global parameters.
	unknown := cfg.AnalysisFor("missing")
	assert.Equal(t, "kld", unknown.MetricKey)
}

func TestTestNamesAndLookup(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
tests:
  - name: beta
    command: ["./b.sh"]
  - name: alpha
    command: ["./a.sh"]
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"beta", "alpha"}, cfg.TestNames())

	test, ok := cfg.Test("alpha")
	require.True(t, ok)
	assert.Equal(t, []string{"./a.sh"}, test.Command)

	_, ok = cfg.Test("gamma")
	assert.False(t, ok)
}

func TestTimeout(t *testing.T) {
	test := &TestConfig{}
	assert.Equal(t, 2*time.Hour, test.Timeout())

	test.TimeoutSeconds = 90
	assert.Equal(t, 90*time.Second, test.Timeout())
}
