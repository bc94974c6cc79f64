package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethpandaops/regressoor/pkg/analyzer"
	"github.com/ethpandaops/regressoor/pkg/series"
	"github.com/go-chi/chi/v5"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// testEntry is one row of the test list response.
type testEntry struct {
	Name    string     `json:"name"`
	LastRun *time.Time `json:"last_run"`
}

// handleListTests returns all known tests with their last run times.
func (s *server) handleListTests(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListTestNames(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Listing tests failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing tests"})

		return
	}

	entries := make([]testEntry, 0, len(names))

	for _, name := range names {
		last, err := s.store.LastRunTime(r.Context(), name)
		if err != nil {
			s.log.WithError(err).WithField("test", name).
				Error("Reading last run time failed")
			writeJSON(w, http.StatusInternalServerError,
				errorResponse{"reading last run time"})

			return
		}

		entries = append(entries, testEntry{Name: name, LastRun: last})
	}

	writeJSON(w, http.StatusOK, entries)
}

// handleRuns returns the recorded runs for a test, oldest first.
func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"limit must be a non-negative integer"})

			return
		}

		limit = parsed
	}

	runs, err := s.store.Query(r.Context(), name, limit)
	if err != nil {
		s.log.WithError(err).WithField("test", name).Error("Querying runs failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{"querying runs"})

		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// seriesResponse is the score series payload.
type seriesResponse struct {
	Test    string      `json:"test"`
	Metric  string      `json:"metric"`
	Values  []float64   `json:"values"`
	Dates   []time.Time `json:"dates"`
	Commits []string    `json:"commits"`
	Gaps    int         `json:"gaps"`
}

// handleSeries returns the extracted score series for a test.
func (s *server) handleSeries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	params := s.cfg.AnalysisFor(name)

	scale, err := series.ParseScale(params.Scale)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})

		return
	}

	extracted, err := s.extractor.Extract(
		r.Context(), name, params.MetricKey, scale,
	)
	if err != nil {
		if errors.Is(err, series.ErrEmptySeries) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"no usable observations for test"})

			return
		}

		s.log.WithError(err).WithField("test", name).Error("Extraction failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"extracting series"})

		return
	}

	writeJSON(w, http.StatusOK, seriesResponse{
		Test:    extracted.Test,
		Metric:  extracted.Metric,
		Values:  extracted.Values,
		Dates:   extracted.Dates,
		Commits: extracted.Commits,
		Gaps:    extracted.Gaps,
	})
}

// handleSegmentation returns the full analysis report for a test.
func (s *server) handleSegmentation(w http.ResponseWriter, r *http.Request) {
	report, ok := s.runAnalysis(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleAlarm returns only the alarm portion of a test's report.
func (s *server) handleAlarm(w http.ResponseWriter, r *http.Request) {
	report, ok := s.runAnalysis(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, report.Alarm)
}

// runAnalysis runs an analysis pass for the named test, writing the
// error response itself when the pass fails.
func (s *server) runAnalysis(
	w http.ResponseWriter, r *http.Request,
) (*analyzer.Report, bool) {
	name := chi.URLParam(r, "name")

	report, err := s.analyzer.AnalyzeTest(r.Context(), name)
	if err != nil {
		if errors.Is(err, series.ErrEmptySeries) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"no usable observations for test"})

			return nil, false
		}

		s.log.WithError(err).WithField("test", name).Error("Analysis failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"analyzing test"})

		return nil, false
	}

	return report, true
}
