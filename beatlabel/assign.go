package beatlabel

import "sort"

// Beat is an annotated beat at a sample index.
type Beat struct {
	Sample int
	Class  Class
}

// Assign labels each detected peak with the class of the nearest annotated
// beat no more than tolerance samples away, or Unknown when there is none.
// beats must be sorted by sample.
func Assign(peaks []int, beats []Beat, tolerance int) []Class {
	out := make([]Class, len(peaks))

	for i, k := range Nearest(peaks, beats, tolerance) {
		out[i] = Unknown
		if k >= 0 {
			out[i] = beats[k].Class
		}
	}

	return out
}

// Nearest returns, for each peak, the index into beats of the nearest beat no
// more than tolerance samples away, or -1. Ties go to the earlier beat.
func Nearest(peaks []int, beats []Beat, tolerance int) []int {
	out := make([]int, len(peaks))

	for i, peak := range peaks {
		// First beat at or after the peak; the nearest is it or its predecessor
		j := sort.Search(len(beats), func(k int) bool { return beats[k].Sample >= peak })

		best := -1
		for _, k := range []int{j - 1, j} {
			if k < 0 || k >= len(beats) {
				continue
			}
			if distance(beats[k].Sample, peak) > tolerance {
				continue
			}
			if best < 0 || distance(beats[k].Sample, peak) < distance(beats[best].Sample, peak) {
				best = k
			}
		}

		out[i] = best
	}

	return out
}

// ToleranceSamples converts a tolerance in milliseconds to samples at fs Hz.
func ToleranceSamples(ms, fs float64) int {
	return int(ms * fs / 1000)
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
