package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/regressoor/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore serves canned last-run times.
type fakeStore struct {
	store.Store

	lastRuns map[string]*time.Time
}

func (f *fakeStore) LastRunTime(
	_ context.Context, testName string,
) (*time.Time, error) {
	return f.lastRuns[testName], nil
}

func at(t time.Time) *time.Time { return &t }

func TestPickNext(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)

	tests := []struct {
		name     string
		names    []string
		lastRuns map[string]*time.Time
		want     string
	}{
		{
			name:  "never run wins",
			names: []string{"a", "b", "c"},
			lastRuns: map[string]*time.Time{
				"a": nil,
				"b": at(yesterday),
				"c": at(now),
			},
			want: "a",
		},
		{
			name:  "oldest run wins",
			names: []string{"b", "c"},
			lastRuns: map[string]*time.Time{
				"b": at(yesterday),
				"c": at(now),
			},
			want: "b",
		},
		{
			name:  "never-run tie breaks lexicographically",
			names: []string{"d", "a"},
			lastRuns: map[string]*time.Time{
				"d": nil,
				"a": nil,
			},
			want: "a",
		},
		{
			name:  "equal time tie breaks lexicographically",
			names: []string{"z", "m"},
			lastRuns: map[string]*time.Time{
				"z": at(yesterday),
				"m": at(yesterday),
			},
			want: "m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeStore{lastRuns: tt.lastRuns}

			got, err := PickNext(context.Background(), tt.names, s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPickNext_Deterministic(t *testing.T) {
	s := &fakeStore{lastRuns: map[string]*time.Time{
		"a": nil, "b": nil, "c": nil,
	}}

	for i := 0; i < 10; i++ {
		got, err := PickNext(context.Background(), []string{"c", "a", "b"}, s)
		require.NoError(t, err)
		assert.Equal(t, "a", got)
	}
}

func TestPickNext_EmptyUniverse(t *testing.T) {
	s := &fakeStore{lastRuns: map[string]*time.Time{}}

	_, err := PickNext(context.Background(), nil, s)
	assert.ErrorIs(t, err, ErrNoTestsAvailable)
}
