// Package ecgsignal holds the single-lead ECG preprocessing chain: baseline
// removal, band-pass filtering, normalization, R-peak detection and
// fixed-width beat segmentation.
package ecgsignal

import (
	"errors"

	"github.com/montanaflynn/stats"
)

// NormalizeEpsilon keeps constant (or silent) input from dividing by zero.
const NormalizeEpsilon = 1e-6

var (
	ErrInvalidWindow = errors.New("ecgsignal: invalid window size")
	ErrInvalidCutoff = errors.New("ecgsignal: invalid filter cutoff")
	ErrNonFinite     = errors.New("ecgsignal: signal contains NaN")
)

// Normalize rescales x to zero mean and unit (population) standard deviation,
// returning a new slice. NaN values propagate.
func Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}

	mean, _ := stats.Mean(x)
	std, _ := stats.StandardDeviationPopulation(x)

	denom := std + NormalizeEpsilon
	for i, v := range x {
		out[i] = (v - mean) / denom
	}

	return out
}
