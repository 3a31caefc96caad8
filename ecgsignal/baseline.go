package ecgsignal

import (
	"fmt"
	"math"
	"sort"
)

// DefaultBaselineWindow is the sliding-median width, in samples.
const DefaultBaselineWindow = 250

// RemoveBaseline subtracts a sliding-median estimate of baseline wander from
// x. Even windows are widened by one sample so that the median is centred on
// each sample (250 becomes 251). Samples beyond either end of the signal are
// treated as zeros, so the first and last window/2 baseline values are pulled
// toward zero.
func RemoveBaseline(x []float64, window int) ([]float64, error) {
	baseline, err := MedianFilter(x, window)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v - baseline[i]
	}

	return out, nil
}

// MedianFilter returns the zero-padded sliding median of x.
func MedianFilter(x []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: median window must be positive, got %d", ErrInvalidWindow, window)
	}
	for i, v := range x {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: sample %d", ErrNonFinite, i)
		}
	}

	if window%2 == 0 {
		window++
	}
	half := window / 2

	out := make([]float64, len(x))
	if len(x) == 0 {
		return out, nil
	}

	padded := make([]float64, len(x)+2*half)
	copy(padded[half:], x)

	// sorted holds the current window in ascending order. Each step removes
	// the sample leaving the window and inserts the one entering it.
	sorted := make([]float64, window)
	copy(sorted, padded[:window])
	sort.Float64s(sorted)

	out[0] = sorted[half]
	for i := 1; i < len(x); i++ {
		leaving := padded[i-1]
		entering := padded[i-1+window]

		at := sort.SearchFloat64s(sorted, leaving)
		copy(sorted[at:], sorted[at+1:])
		sorted = sorted[:window-1]

		at = sort.SearchFloat64s(sorted, entering)
		sorted = append(sorted, 0)
		copy(sorted[at+1:], sorted[at:])
		sorted[at] = entering

		out[i] = sorted[half]
	}

	return out, nil
}
