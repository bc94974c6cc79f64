// Package alarm decides whether a detected changepoint is recent enough
// to surface, and correlates it back to a window of candidate causal
// commits.
package alarm

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethpandaops/regressoor/pkg/changepoint"
	"github.com/ethpandaops/regressoor/pkg/series"
)

// ErrContractViolation marks mismatched inputs. This is a programming
// error in the caller, not a runtime condition, and aborts the offending
// analysis immediately.
var ErrContractViolation = errors.New("contract violation")

// Result is the outcome of evaluating a segmentation against the
// recency-window alarm policy. When no changepoint exists, or none is
// recent, the diagnostic fields still describe the last changepoint if
// there is one; Triggered alone decides whether to raise an alert.
type Result struct {
	Triggered bool `json:"triggered"`

	ChangepointIndex int       `json:"changepoint_index"`
	Date             time.Time `json:"date"`
	CommitMain       string    `json:"commit_main"`
	CommitsNearby    []string  `json:"commits_nearby"`
}

// Evaluate applies the recency-window policy: the alarm triggers when
// the most recent changepoint lies within the last nearEndThreshold
// observations. It is a pure function over its inputs.
func Evaluate(
	s *series.ScoreSeries,
	seg *changepoint.Segmentation,
	nearEndThreshold, commitWindow int,
) (Result, error) {
	if err := checkLengths(s); err != nil {
		return Result{}, err
	}

	if len(seg.SegmentMeans) != len(seg.Changepoints)+1 {
		return Result{}, fmt.Errorf(
			"%w: %d segment means for %d changepoints",
			ErrContractViolation, len(seg.SegmentMeans), len(seg.Changepoints))
	}

	if len(seg.Changepoints) == 0 {
		return Result{CommitsNearby: []string{}}, nil
	}

	c := seg.Changepoints[len(seg.Changepoints)-1]
	if c < 1 || c > s.Len() {
		return Result{}, fmt.Errorf("%w: changepoint %d outside series of length %d",
			ErrContractViolation, c, s.Len())
	}

	res := Result{
		ChangepointIndex: c,
		Date:             s.Dates[c-1],
		CommitMain:       s.Commits[c-1],
		CommitsNearby:    nearbyCommits(s, c, commitWindow),
		Triggered:        s.Len()-c <= nearEndThreshold,
	}

	return res, nil
}

// nearbyCommits gathers the distinct commits recorded over the 1-based
// index window [c-w, c+w], clamped to the series, sorted for stable
// output.
func nearbyCommits(s *series.ScoreSeries, c, w int) []string {
	lo := c - w
	if lo < 1 {
		lo = 1
	}

	hi := c + w
	if hi > s.Len() {
		hi = s.Len()
	}

	seen := make(map[string]struct{}, hi-lo+1)
	out := make([]string, 0, hi-lo+1)

	for i := lo; i <= hi; i++ {
		commit := s.Commits[i-1]
		if commit == "" {
			continue
		}

		if _, dup := seen[commit]; dup {
			continue
		}

		seen[commit] = struct{}{}
		out = append(out, commit)
	}

	sort.Strings(out)

	return out
}

// checkLengths verifies the parallel series arrays line up.
func checkLengths(s *series.ScoreSeries) error {
	if len(s.Dates) != len(s.Values) || len(s.Commits) != len(s.Values) {
		return fmt.Errorf(
			"%w: series arrays disagree (values=%d dates=%d commits=%d)",
			ErrContractViolation, len(s.Values), len(s.Dates), len(s.Commits))
	}

	return nil
}
