// Package analyzer runs the full detection pass for one or many tests:
// series extraction, changepoint segmentation, alarm evaluation, and
// report export.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethpandaops/regressoor/pkg/alarm"
	"github.com/ethpandaops/regressoor/pkg/changepoint"
	"github.com/ethpandaops/regressoor/pkg/config"
	"github.com/ethpandaops/regressoor/pkg/series"
	"github.com/ethpandaops/regressoor/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency bounds parallel per-test analysis. Each test's
// series is independent, so the passes share no mutable state.
const defaultConcurrency = 4

// Report is the per-test analysis output consumed by report and plot
// renderers.
type Report struct {
	Test        string                    `json:"test"`
	Metric      string                    `json:"metric"`
	Scale       string                    `json:"scale"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Points      int                       `json:"points"`
	Gaps        int                       `json:"gaps"`
	Segments    []float64                 `json:"segment_means"`
	Changes     []alarm.ChangepointRecord `json:"changepoints"`
	Alarm       alarm.Result              `json:"alarm"`
}

// Outcome pairs a test name with its report or failure. A triggered
// alarm is a successful detection, not a failure; Err is set only for
// engineering faults (empty series, storage, contract violations).
type Outcome struct {
	Test   string
	Report *Report
	Err    error
}

// Analyzer orchestrates analysis passes over the results store.
type Analyzer struct {
	log       logrus.FieldLogger
	cfg       *config.Config
	extractor *series.Extractor
}

// New creates an Analyzer over the given store.
func New(log logrus.FieldLogger, cfg *config.Config, s store.Store) *Analyzer {
	return &Analyzer{
		log:       log.WithField("component", "analyzer"),
		cfg:       cfg,
		extractor: series.NewExtractor(log, s),
	}
}

// AnalyzeTest runs the full pass for a single test.
func (a *Analyzer) AnalyzeTest(
	ctx context.Context, testName string,
) (*Report, error) {
	params := a.cfg.AnalysisFor(testName)

	scale, err := series.ParseScale(params.Scale)
	if err != nil {
		return nil, fmt.Errorf("analyzing %q: %w", testName, err)
	}

	s, err := a.extractor.Extract(ctx, testName, params.MetricKey, scale)
	if err != nil {
		return nil, err
	}

	seg, err := changepoint.Segment(
		s.Values, params.MinSegmentLength, *params.Penalty,
	)
	if err != nil {
		return nil, fmt.Errorf("segmenting %q: %w", testName, err)
	}

	result, err := alarm.Evaluate(
		s, seg, params.NearEndThreshold, params.CommitWindow,
	)
	if err != nil {
		return nil, fmt.Errorf("evaluating alarm for %q: %w", testName, err)
	}

	records, err := alarm.Export(s, seg, params.CommitWindow)
	if err != nil {
		return nil, fmt.Errorf("exporting changepoints for %q: %w", testName, err)
	}

	report := &Report{
		Test:        testName,
		Metric:      params.MetricKey,
		Scale:       params.Scale,
		GeneratedAt: time.Now().UTC(),
		Points:      s.Len(),
		Gaps:        s.Gaps,
		Segments:    seg.SegmentMeans,
		Changes:     records,
		Alarm:       result,
	}

	entry := a.log.WithField("test", testName).
		WithField("points", s.Len()).
		WithField("changepoints", len(seg.Changepoints))

	if result.Triggered {
		entry.WithField("commit", result.CommitMain).
			Warn("Regression alarm triggered")
	} else {
		entry.Info("Analysis completed")
	}

	return report, nil
}

// AnalyzeAll runs per-test passes in parallel. A failing test never
// aborts the others; each outcome carries its own report or error.
func (a *Analyzer) AnalyzeAll(
	ctx context.Context, testNames []string,
) []Outcome {
	outcomes := make([]Outcome, len(testNames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultConcurrency)

	for i, name := range testNames {
		g.Go(func() error {
			report, err := a.AnalyzeTest(gctx, name)
			outcomes[i] = Outcome{Test: name, Report: report, Err: err}

			if err != nil {
				a.log.WithError(err).WithField("test", name).
					Error("Analysis failed")
			}

			// Errors are reported per test, not propagated: one bad
			// series must not cancel the batch.
			return nil
		})
	}

	// Goroutines never return errors, so Wait only synchronizes.
	_ = g.Wait()

	return outcomes
}

// WriteReport persists a report as JSON under the configured reports
// directory, one file per test.
func (a *Analyzer) WriteReport(report *Report) (string, error) {
	dir := a.cfg.Global.ReportsDir

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating reports dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}

	path := filepath.Join(dir, report.Test+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	return path, nil
}
