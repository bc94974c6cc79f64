// Package series materializes a test's historical score series from the
// results store. The series is rebuilt from scratch on every analysis
// pass; the store is the single source of truth.
package series

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ethpandaops/regressoor/pkg/metrics"
	"github.com/ethpandaops/regressoor/pkg/store"
	"github.com/sirupsen/logrus"
)

// ErrEmptySeries is returned when a test has zero usable observations.
var ErrEmptySeries = errors.New("empty score series")

// Scale selects the axis the score metric is analysed on.
type Scale int

const (
	Linear Scale = iota
	Log
)

// ParseScale converts a config scale name to a Scale.
func ParseScale(name string) (Scale, error) {
	switch name {
	case "", "linear":
		return Linear, nil
	case "log":
		return Log, nil
	default:
		return Linear, fmt.Errorf("unknown scale %q", name)
	}
}

// ScoreSeries is an ordered numeric score series with parallel
// provenance. Values holds one strictly finite score per usable run, in
// store insertion order; Dates and Commits run parallel to it.
type ScoreSeries struct {
	Test   string
	Metric string

	Values  []float64
	Dates   []time.Time
	Commits []string

	// Gaps counts runs excluded because the score metric was missing,
	// non-numeric, or non-finite.
	Gaps int
}

// Len returns the number of usable observations.
func (s *ScoreSeries) Len() int {
	return len(s.Values)
}

// Extractor reads score series out of a results store.
type Extractor struct {
	log   logrus.FieldLogger
	store store.Store
}

// NewExtractor creates a series extractor.
func NewExtractor(log logrus.FieldLogger, s store.Store) *Extractor {
	return &Extractor{
		log:   log.WithField("component", "series"),
		store: s,
	}
}

// Extract builds the score series for a test and metric key. Runs whose
// metric is missing, non-numeric, or non-finite are skipped and counted
// as gaps, never coerced. Returns ErrEmptySeries when no usable points
// remain.
func (e *Extractor) Extract(
	ctx context.Context, testName, metricKey string, scale Scale,
) (*ScoreSeries, error) {
	runs, err := e.store.Query(ctx, testName, 0)
	if err != nil {
		return nil, fmt.Errorf("querying runs for %q: %w", testName, err)
	}

	out := &ScoreSeries{
		Test:   testName,
		Metric: metricKey,
	}

	for _, run := range runs {
		payload, skipped := metrics.Decode([]byte(run.MetricsBlob))
		if skipped > 0 {
			e.log.WithField("test", testName).
				WithField("run_id", run.ID).
				WithField("lines", skipped).
				Warn("Stored metrics contained unparseable lines")
		}

		value, ok := payload.Get(metricKey)
		if !ok {
			e.gap(testName, metricKey, run.ID, "metric missing")

			out.Gaps++

			continue
		}

		score, ok := value.AsFloat()
		if !ok {
			e.gap(testName, metricKey, run.ID, "metric not numeric")

			out.Gaps++

			continue
		}

		if !metrics.IsFinite(score) {
			e.gap(testName, metricKey, run.ID, "metric not finite")

			out.Gaps++

			continue
		}

		if scale == Log {
			if score <= 0 {
				e.gap(testName, metricKey, run.ID, "non-positive on log scale")

				out.Gaps++

				continue
			}

			score = math.Log10(score)
		}

		out.Values = append(out.Values, score)
		out.Dates = append(out.Dates, run.Timestamp)
		out.Commits = append(out.Commits, run.LibraryCommit)
	}

	if len(out.Values) == 0 {
		return nil, fmt.Errorf("extracting %q metric %q after %d gaps: %w",
			testName, metricKey, out.Gaps, ErrEmptySeries)
	}

	if out.Gaps > 0 {
		e.log.WithField("test", testName).
			WithField("metric", metricKey).
			WithField("gaps", out.Gaps).
			Warn("Excluded runs with unusable scores")
	}

	return out, nil
}

// gap logs a single excluded run.
func (e *Extractor) gap(testName, metricKey string, runID uint, why string) {
	e.log.WithField("test", testName).
		WithField("metric", metricKey).
		WithField("run_id", runID).
		Debug("Skipping run: " + why)
}
