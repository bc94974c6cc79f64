// Package scheduler selects which functional test to run next.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/regressoor/pkg/store"
)

// ErrNoTestsAvailable is returned when the test universe is empty.
var ErrNoTestsAvailable = errors.New("no tests available")

// PickNext returns the test that has gone longest without a run. A test
// that has never run is infinitely overdue. Ties are broken by
// lexicographic name order so selection is deterministic.
func PickNext(
	ctx context.Context, names []string, s store.Store,
) (string, error) {
	if len(names) == 0 {
		return "", ErrNoTestsAvailable
	}

	var (
		best     string
		bestTime *time.Time
		found    bool
	)

	for _, name := range names {
		last, err := s.LastRunTime(ctx, name)
		if err != nil {
			return "", fmt.Errorf("reading last run time for %q: %w", name, err)
		}

		if !found {
			best, bestTime, found = name, last, true

			continue
		}

		if older(name, last, best, bestTime) {
			best, bestTime = name, last
		}
	}

	return best, nil
}

// older reports whether candidate (name a, last run ta) is more overdue
// than the incumbent (name b, last run tb). A nil time sorts before any
// real time; equal times fall back to name order.
func older(a string, ta *time.Time, b string, tb *time.Time) bool {
	switch {
	case ta == nil && tb == nil:
		return a < b
	case ta == nil:
		return true
	case tb == nil:
		return false
	case ta.Equal(*tb):
		return a < b
	default:
		return ta.Before(*tb)
	}
}
