package classify

import (
	"math"

	"github.com/rotisserie/eris"
)

// jenksBreaks computes Jenks natural breaks over a sorted sample using
// the classic Fisher-Jenks dynamic program. For each prefix length l and
// class count j it records the minimal achievable sum of within-group
// squared deviations, extending the optimal partition of a shorter
// prefix; boundary positions are recovered by backtracking the parallel
// lower-class-limit table. O(n^2 * k): callers bound n by sampling.
func jenksBreaks(sorted []float64, numClasses int) ([]float64, error) {
	n := len(sorted)
	if n == 0 {
		return nil, eris.New("classify: jenks: empty sample")
	}
	if numClasses <= 0 {
		return nil, eris.Errorf("classify: jenks: invalid class count %d", numClasses)
	}
	if n <= numClasses {
		return append([]float64(nil), sorted[1:]...), nil
	}

	lowerLimits := make([][]int, n+1)
	variance := make([][]float64, n+1)
	for i := range lowerLimits {
		lowerLimits[i] = make([]int, numClasses+1)
		variance[i] = make([]float64, numClasses+1)
		for j := range variance[i] {
			variance[i][j] = math.Inf(1)
		}
	}
	for j := 1; j <= numClasses; j++ {
		lowerLimits[1][j] = 1
		variance[1][j] = 0
	}

	for l := 2; l <= n; l++ {
		var sum, sumSquares float64

		// Grow the trailing group [i, l] one element at a time, reusing
		// running sums for its variance.
		for m := 1; m <= l; m++ {
			i := l - m + 1
			v := sorted[i-1]
			sum += v
			sumSquares += v * v
			groupVariance := sumSquares - sum*sum/float64(m)

			if i > 1 {
				for j := 2; j <= numClasses; j++ {
					if combined := groupVariance + variance[i-1][j-1]; variance[l][j] >= combined {
						lowerLimits[l][j] = i
						variance[l][j] = combined
					}
				}
			}
		}

		lowerLimits[l][1] = 1
		variance[l][1] = sumSquares - sum*sum/float64(l)
	}

	if math.IsInf(variance[n][numClasses], 1) {
		return nil, eris.Errorf("classify: jenks: no partition found for %d classes over %d values", numClasses, n)
	}

	// Backtrack from the full sample: each step emits the value preceding
	// the lower limit of the current class as a break.
	breaks := make([]float64, 0, numClasses-1)
	k := n
	for j := numClasses; j > 1; j-- {
		idx := lowerLimits[k][j] - 1
		if idx >= 0 && idx < n-1 {
			v := sorted[idx]
			if len(breaks) == 0 || v != breaks[len(breaks)-1] {
				breaks = append(breaks, v)
			}
		}
		k = lowerLimits[k][j] - 1
		if k < 1 {
			break
		}
	}

	// Breaks were emitted highest class first.
	for i, j := 0, len(breaks)-1; i < j; i, j = i+1, j-1 {
		breaks[i], breaks[j] = breaks[j], breaks[i]
	}
	return breaks, nil
}
