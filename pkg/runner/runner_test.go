package runner

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/ethpandaops/regressoor/pkg/config"
	"github.com/ethpandaops/regressoor/pkg/metrics"
	"github.com/ethpandaops/regressoor/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s := store.NewStore(testLogger(), &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{
			Path: filepath.Join(t.TempDir(), "results.db"),
		},
	})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	return s
}

// shellTest wraps a shell body as a configured test.
func shellTest(name, body string) *config.TestConfig {
	return &config.TestConfig{
		Name:           name,
		Command:        []string{"sh", "-c", body},
		TimeoutSeconds: 30,
	}
}

func TestRunTest_RecordsReportedResult(t *testing.T) {
	s := newTestStore(t)
	r := NewRunner(testLogger(), &config.Config{}, s)

	test := shellTest("mcmc_normal", `
printf 'status: "passed"\nkld: 0.125\nseed_seen: %s\n' "$REGRESSOOR_SEED" \
  > "$REGRESSOOR_RESULT"
`)

	run, err := r.RunTest(context.Background(), test)
	require.NoError(t, err)

	assert.Equal(t, store.StatusPassed, run.Status)
	assert.Equal(t, "mcmc_normal", run.TestName)
	assert.NotZero(t, run.ID)

	payload, skipped := metrics.Decode([]byte(run.MetricsBlob))
	assert.Zero(t, skipped)

	score, ok := payload.Get("kld")
	require.True(t, ok)

	value, ok := score.AsFloat()
	require.True(t, ok)
	assert.Equal(t, 0.125, value)

	// The seed in the run row is the one the body saw.
	seen, ok := payload.Get("seed_seen")
	require.True(t, ok)
	assert.Equal(t, metrics.KindInt, seen.Kind())
	assert.Equal(t, run.Seed, seen.Int())

	// The run is queryable from the store afterwards.
	rows, err := s.Query(context.Background(), "mcmc_normal", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, store.StatusPassed, rows[0].Status)
}

func TestRunTest_BodyReportsFailure(t *testing.T) {
	r := NewRunner(testLogger(), &config.Config{}, newTestStore(t))

	test := shellTest("flaky", `
printf 'status: "failed"\nkld: 99.0\n' > "$REGRESSOOR_RESULT"
`)

	run, err := r.RunTest(context.Background(), test)
	require.NoError(t, err)

	// A failing test is still a recorded run, not an error.
	assert.Equal(t, store.StatusFailed, run.Status)
	assert.NotZero(t, run.ID)
}

func TestRunTest_NonZeroExitKeepsPartialMetrics(t *testing.T) {
	r := NewRunner(testLogger(), &config.Config{}, newTestStore(t))

	test := shellTest("crashes", `
printf 'kld: 0.5\n' > "$REGRESSOOR_RESULT"
exit 3
`)

	run, err := r.RunTest(context.Background(), test)
	require.NoError(t, err)

	assert.Equal(t, store.StatusError, run.Status)

	payload, _ := metrics.Decode([]byte(run.MetricsBlob))
	_, ok := payload.Get("kld")
	assert.True(t, ok)
}

func TestRunTest_NoResultFile(t *testing.T) {
	r := NewRunner(testLogger(), &config.Config{}, newTestStore(t))

	run, err := r.RunTest(context.Background(), shellTest("silent", "true"))
	require.NoError(t, err)

	assert.Equal(t, store.StatusError, run.Status)
	assert.Empty(t, run.MetricsBlob)
}

func TestRunTest_StatusNeverInferred(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "status missing",
			body: `printf 'kld: 0.5\n' > "$REGRESSOOR_RESULT"`,
		},
		{
			name: "status not a string",
			body: `printf 'status: 1\nkld: 0.5\n' > "$REGRESSOOR_RESULT"`,
		},
		{
			name: "status unknown",
			body: `printf 'status: "great"\n' > "$REGRESSOOR_RESULT"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(testLogger(), &config.Config{}, newTestStore(t))

			run, err := r.RunTest(
				context.Background(), shellTest("unstated", tt.body),
			)
			require.NoError(t, err)

			assert.Equal(t, store.StatusError, run.Status)
		})
	}
}

func TestRunTest_SeedsDiffer(t *testing.T) {
	r := NewRunner(testLogger(), &config.Config{}, newTestStore(t))

	test := shellTest("seeded", `
printf 'status: "passed"\n' > "$REGRESSOOR_RESULT"
`)

	seen := make(map[int64]struct{})

	for i := 0; i < 5; i++ {
		run, err := r.RunTest(context.Background(), test)
		require.NoError(t, err)

		seen[run.Seed] = struct{}{}
	}

	assert.Greater(t, len(seen), 1)
}
