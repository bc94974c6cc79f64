// Package changepoint partitions a score series into contiguous segments
// of approximately constant mean. It minimizes the penalized sum of
// within-segment squared deviations with an exact pruned dynamic program
// (PELT), so results match exhaustive search over all partitions while
// staying near-linear on multi-year series.
package changepoint

import (
	"fmt"
	"math"
)

// Segmentation is an exact partition of a score series. Changepoints are
// 1-based indices marking the last observation of each segment except
// the final one; SegmentMeans holds one mean per segment, so
// len(SegmentMeans) == len(Changepoints)+1 always holds.
type Segmentation struct {
	Changepoints []int     `json:"changepoints"`
	SegmentMeans []float64 `json:"segment_means"`
}

// Segments returns the number of segments in the partition.
func (s *Segmentation) Segments() int {
	return len(s.SegmentMeans)
}

// Segment computes the partition of values minimizing
//
//	sum(segment costs) + penalty * (number of changepoints)
//
// where a segment's cost is the sum of squared deviations from its own
// mean. Segments shorter than minSegLen are disallowed. The computation
// is deterministic: identical inputs produce identical output.
func Segment(
	values []float64, minSegLen int, penalty float64,
) (*Segmentation, error) {
	n := len(values)

	if n < 1 {
		return nil, fmt.Errorf("segmenting: series must have at least one point")
	}

	if minSegLen < 1 {
		return nil, fmt.Errorf("segmenting: min segment length must be >= 1, got %d",
			minSegLen)
	}

	if penalty < 0 || math.IsNaN(penalty) {
		return nil, fmt.Errorf("segmenting: penalty must be >= 0, got %v", penalty)
	}

	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("segmenting: non-finite value at index %d", i)
		}
	}

	c := newCosts(values)

	// Series too short to split: one segment, no changepoints.
	if n < 2*minSegLen {
		return &Segmentation{
			Changepoints: []int{},
			SegmentMeans: []float64{c.mean(0, n)},
		}, nil
	}

	bounds := pelt(c, n, minSegLen, penalty)

	return fromBounds(c, bounds), nil
}

// costs provides O(1) closed-form segment costs via prefix sums.
type costs struct {
	sum   []float64
	sumsq []float64
}

func newCosts(values []float64) *costs {
	n := len(values)
	c := &costs{
		sum:   make([]float64, n+1),
		sumsq: make([]float64, n+1),
	}

	for i, v := range values {
		c.sum[i+1] = c.sum[i] + v
		c.sumsq[i+1] = c.sumsq[i] + v*v
	}

	return c
}

// cost returns the sum of squared deviations from the mean over the
// half-open range [a, b).
func (c *costs) cost(a, b int) float64 {
	n := float64(b - a)
	s := c.sum[b] - c.sum[a]

	cost := (c.sumsq[b] - c.sumsq[a]) - s*s/n
	if cost < 0 {
		// Guard against tiny negative values from float cancellation.
		return 0
	}

	return cost
}

// mean returns the mean over the half-open range [a, b).
func (c *costs) mean(a, b int) float64 {
	return (c.sum[b] - c.sum[a]) / float64(b-a)
}

// peltCand is one pruning candidate. dropAt is the first horizon at
// which the candidate may be discarded, zero while it still dominates.
type peltCand struct {
	tau    int
	dropAt int
}

// pelt runs the pruned exact linear time dynamic program and returns the
// segment boundaries as 0-based half-open range starts, including 0 and
// n. Candidates that can no longer start an optimal final segment are
// discarded; with a nonnegative L2 cost this pruning never removes the
// optimum, so the result equals exhaustive search.
func pelt(c *costs, n, minSegLen int, penalty float64) []int {
	// f[t] is the optimal objective for values[0:t]; the -penalty base
	// offsets the charge added with every candidate segment so that a
	// single unbroken segment carries no penalty.
	f := make([]float64, n+1)
	f[0] = -penalty

	prev := make([]int, n+1)
	cands := make([]peltCand, 1, 64)
	cands[0] = peltCand{tau: 0}

	for t := minSegLen; t <= n; t++ {
		// Discard candidates whose removal horizon has arrived.
		kept := cands[:0]

		for _, cand := range cands {
			if cand.dropAt == 0 || cand.dropAt > t {
				kept = append(kept, cand)
			}
		}

		cands = kept

		best := math.Inf(1)
		bestTau := 0

		for _, cand := range cands {
			if val := f[cand.tau] + c.cost(cand.tau, t) + penalty; val < best {
				best = val
				bestTau = cand.tau
			}
		}

		f[t] = best
		prev[t] = bestTau

		// Prune: a candidate whose partial objective already exceeds the
		// optimum at t can never win once a split at t is legal. That
		// takes a full segment after t, so removal waits minSegLen more
		// horizons; until then the candidate stays live.
		for i := range cands {
			if cands[i].dropAt == 0 &&
				f[cands[i].tau]+c.cost(cands[i].tau, t) > f[t] {
				cands[i].dropAt = t + minSegLen
			}
		}

		// tau = t-minSegLen+1 becomes a legal last-change candidate at
		// t+1. A change at tau also needs a full first segment before it,
		// so tau must itself be at least minSegLen.
		if tau := t + 1 - minSegLen; tau >= minSegLen {
			cands = append(cands, peltCand{tau: tau})
		}
	}

	// Backtrack boundaries from n to 0.
	bounds := []int{n}
	for t := n; t > 0; t = prev[t] {
		bounds = append(bounds, prev[t])
	}

	// Reverse into ascending order.
	for i, j := 0, len(bounds)-1; i < j; i, j = i+1, j-1 {
		bounds[i], bounds[j] = bounds[j], bounds[i]
	}

	return bounds
}

// fromBounds converts ascending boundaries (0, ..., n) into the exported
// Segmentation form.
func fromBounds(c *costs, bounds []int) *Segmentation {
	seg := &Segmentation{
		Changepoints: make([]int, 0, len(bounds)-2),
		SegmentMeans: make([]float64, 0, len(bounds)-1),
	}

	for i := 1; i < len(bounds); i++ {
		seg.SegmentMeans = append(seg.SegmentMeans, c.mean(bounds[i-1], bounds[i]))

		if i < len(bounds)-1 {
			// A 0-based range end is the 1-based index of the segment's
			// last observation.
			seg.Changepoints = append(seg.Changepoints, bounds[i])
		}
	}

	return seg
}
