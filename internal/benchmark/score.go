package benchmark

import (
	"math"
	"sort"
	"time"

	"github.com/normanking/quadrant/internal/quadrant"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONFUSION MATRIX
// ═══════════════════════════════════════════════════════════════════════════════

// Confusion counts predictions: rows are the true quadrant, columns the
// predicted one, both in quadrant.All() order. Cases that produced no
// prediction are counted in Missed by true quadrant.
type Confusion struct {
	Counts [4][4]int `json:"counts"`
	Missed [4]int    `json:"missed"`
}

// Add records one prediction.
func (c *Confusion) Add(truth, predicted quadrant.Quadrant) {
	t, p := truth.Index(), predicted.Index()
	if t < 0 {
		return
	}
	if p < 0 {
		c.Missed[t]++
		return
	}
	c.Counts[t][p]++
}

// Miss records a case with no usable prediction.
func (c *Confusion) Miss(truth quadrant.Quadrant) {
	if t := truth.Index(); t >= 0 {
		c.Missed[t]++
	}
}

// Correct returns the diagonal sum.
func (c *Confusion) Correct() int {
	n := 0
	for i := range c.Counts {
		n += c.Counts[i][i]
	}
	return n
}

// Total returns every recorded case, including misses.
func (c *Confusion) Total() int {
	n := 0
	for i := range c.Counts {
		for j := range c.Counts[i] {
			n += c.Counts[i][j]
		}
		n += c.Missed[i]
	}
	return n
}

// CategoryStats are the per-quadrant scores.
type CategoryStats struct {
	Quadrant       quadrant.Quadrant `json:"quadrant"`
	TruePositives  int               `json:"true_positives"`
	FalsePositives int               `json:"false_positives"`
	FalseNegatives int               `json:"false_negatives"`
	Support        int               `json:"support"`
	Precision      float64           `json:"precision"`
	Recall         float64           `json:"recall"`
}

// Category computes precision and recall for q. Misses are false negatives
// for their true quadrant. Zero denominators yield 0.
func (c *Confusion) Category(q quadrant.Quadrant) CategoryStats {
	i := q.Index()
	s := CategoryStats{Quadrant: q}
	if i < 0 {
		return s
	}
	s.TruePositives = c.Counts[i][i]
	for j := 0; j < 4; j++ {
		if j == i {
			continue
		}
		s.FalsePositives += c.Counts[j][i]
		s.FalseNegatives += c.Counts[i][j]
	}
	s.FalseNegatives += c.Missed[i]
	s.Support = s.TruePositives + s.FalseNegatives
	s.Precision = ratio(s.TruePositives, s.TruePositives+s.FalsePositives)
	s.Recall = ratio(s.TruePositives, s.TruePositives+s.FalseNegatives)
	return s
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// ═══════════════════════════════════════════════════════════════════════════════
// LATENCY
// ═══════════════════════════════════════════════════════════════════════════════

// Percentile returns the nearest-rank percentile of samples (p in [0, 100]).
func Percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	// Nearest rank: ceil(p/100 * n), 1-based.
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Mean returns the arithmetic mean of samples.
func Mean(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return total / time.Duration(len(samples))
}
