package alarm

import (
	"fmt"
	"time"

	"github.com/ethpandaops/regressoor/pkg/changepoint"
	"github.com/ethpandaops/regressoor/pkg/series"
)

// ChangepointRecord is one entry of the exported changepoint document,
// the contract consumed by report and plot renderers.
type ChangepointRecord struct {
	Changepoint   int      `json:"changepoint"`
	Date          string   `json:"date"`
	CommitMain    string   `json:"commit_main"`
	CommitsNearby []string `json:"commits_nearby"`
}

// Export renders every changepoint of a segmentation as an ordered list
// of records, each correlated with its own commit window.
func Export(
	s *series.ScoreSeries,
	seg *changepoint.Segmentation,
	commitWindow int,
) ([]ChangepointRecord, error) {
	if err := checkLengths(s); err != nil {
		return nil, err
	}

	records := make([]ChangepointRecord, 0, len(seg.Changepoints))

	for _, c := range seg.Changepoints {
		if c < 1 || c > s.Len() {
			return nil, fmt.Errorf(
				"%w: changepoint %d outside series of length %d",
				ErrContractViolation, c, s.Len())
		}

		records = append(records, ChangepointRecord{
			Changepoint:   c,
			Date:          s.Dates[c-1].UTC().Format(time.RFC3339),
			CommitMain:    s.Commits[c-1],
			CommitsNearby: nearbyCommits(s, c, commitWindow),
		})
	}

	return records, nil
}
