// Package runner executes one functional test body and records its
// outcome. The body is opaque: a subprocess that writes its metrics,
// including its own pass/fail status, to the result file named in its
// environment. The runner only adds provenance and persistence.
package runner

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethpandaops/regressoor/pkg/config"
	"github.com/ethpandaops/regressoor/pkg/gitinfo"
	"github.com/ethpandaops/regressoor/pkg/metrics"
	"github.com/ethpandaops/regressoor/pkg/store"
	"github.com/sirupsen/logrus"
)

// Environment variables passed to the test body.
const (
	EnvResultFile = "REGRESSOOR_RESULT"
	EnvSeed       = "REGRESSOOR_SEED"
	EnvTestName   = "REGRESSOOR_TEST"
)

// Runner executes configured test bodies and appends their results.
type Runner struct {
	log   logrus.FieldLogger
	cfg   *config.Config
	store store.Store
}

// NewRunner creates a Runner over the given store.
func NewRunner(
	log logrus.FieldLogger, cfg *config.Config, s store.Store,
) *Runner {
	return &Runner{
		log:   log.WithField("component", "runner"),
		cfg:   cfg,
		store: s,
	}
}

// RunTest executes one test body, stamps provenance, and appends the
// recorded run. The returned run is also persisted on test failure;
// only storage problems surface as errors.
func (r *Runner) RunTest(
	ctx context.Context, test *config.TestConfig,
) (*store.TestRun, error) {
	seed := rand.Int64N(1 << 32)

	run := &store.TestRun{
		TestName:  test.Name,
		Timestamp: time.Now().UTC(),
		Seed:      seed,
	}

	r.stampProvenance(ctx, run)

	log := r.log.WithField("test", test.Name).WithField("seed", seed)
	log.Info("Running test")

	payload, execErr := r.execute(ctx, test, seed)

	if execErr != nil {
		log.WithError(execErr).Error("Test execution failed")

		run.Status = store.StatusError
	} else {
		run.Status = reportedStatus(payload)
	}

	if payload != nil {
		run.MetricsBlob = string(payload.Encode())
	}

	id, err := r.store.Append(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("recording run for %q: %w", test.Name, err)
	}

	log.WithField("run_id", id).
		WithField("status", run.Status).
		Info("Run recorded")

	return run, nil
}

// execute invokes the test body with a result file and seed in its
// environment, then reads back the metrics it wrote.
func (r *Runner) execute(
	ctx context.Context, test *config.TestConfig, seed int64,
) (*metrics.Metrics, error) {
	tmpDir, err := os.MkdirTemp("", "regressoor-run-")
	if err != nil {
		return nil, fmt.Errorf("creating run dir: %w", err)
	}

	defer os.RemoveAll(tmpDir)

	resultPath := filepath.Join(tmpDir, "result.txt")

	runCtx, cancel := context.WithTimeout(ctx, test.Timeout())
	defer cancel()

	cmd := exec.CommandContext(runCtx, test.Command[0], test.Command[1:]...)
	cmd.Dir = test.Workdir
	cmd.Env = append(os.Environ(),
		EnvResultFile+"="+resultPath,
		EnvSeed+"="+strconv.FormatInt(seed, 10),
		EnvTestName+"="+test.Name,
	)

	runErr := cmd.Run()

	data, readErr := os.ReadFile(resultPath)
	if readErr != nil {
		if runErr != nil {
			return nil, fmt.Errorf("running test body: %w", runErr)
		}

		return nil, fmt.Errorf("reading result file: %w", readErr)
	}

	payload, skipped := metrics.Decode(data)
	if skipped > 0 {
		r.log.WithField("test", test.Name).
			WithField("lines", skipped).
			Warn("Result file contained unparseable lines")
	}

	if runErr != nil {
		// Keep whatever metrics the body managed to write.
		return payload, fmt.Errorf("running test body: %w", runErr)
	}

	return payload, nil
}

// stampProvenance records the library and harness commits on the run.
// Missing repositories leave the fields empty rather than failing the
// run.
func (r *Runner) stampProvenance(ctx context.Context, run *store.TestRun) {
	if dir := r.cfg.Global.LibraryDir; dir != "" {
		commit, err := gitinfo.HeadCommit(ctx, dir)
		if err != nil {
			r.log.WithError(err).Warn("Could not resolve library commit")
		} else {
			run.LibraryCommit = commit
		}
	}

	if dir := r.cfg.Global.HarnessDir; dir != "" {
		commit, err := gitinfo.HeadCommit(ctx, dir)
		if err != nil {
			r.log.WithError(err).Warn("Could not resolve harness commit")
		} else {
			run.HarnessCommit = commit
		}
	}
}

// reportedStatus reads the status the test body recorded for itself.
// Status is never inferred from metrics; a body that does not report one
// is an engineering fault.
func reportedStatus(payload *metrics.Metrics) string {
	if payload == nil {
		return store.StatusError
	}

	value, ok := payload.Get("status")
	if !ok || value.Kind() != metrics.KindString {
		return store.StatusError
	}

	if !store.ValidStatus(value.Str()) {
		return store.StatusError
	}

	return value.Str()
}
