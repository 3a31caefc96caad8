package ecgsignal

import "fmt"

// DefaultPeakWindow is the width, in samples, of each search window.
const DefaultPeakWindow = 300

// PeakOptions configures DetectRPeaks.
type PeakOptions struct {
	Window         int     // search window width in samples; windows advance by Window/2
	BaselineWindow int     // sliding-median width for baseline removal
	LowCutHz       float64 // band-pass lower corner
	HighCutHz      float64 // band-pass upper corner
}

func DefaultPeakOptions() PeakOptions {
	return PeakOptions{
		Window:         DefaultPeakWindow,
		BaselineWindow: DefaultBaselineWindow,
		LowCutHz:       DefaultLowCutHz,
		HighCutHz:      DefaultHighCutHz,
	}
}

// MinPeakDistance is the shortest accepted gap between two peaks: 200ms,
// truncated to whole samples.
func MinPeakDistance(fs float64) int {
	return int(0.2 * fs)
}

// Preprocess applies baseline removal, band-pass filtering and normalization,
// in that order. The output is aligned sample-for-sample with x.
func Preprocess(x []float64, fs float64, opts PeakOptions) ([]float64, error) {
	filtered, err := RemoveBaseline(x, opts.BaselineWindow)
	if err != nil {
		return nil, err
	}

	filtered, err = BandPass(filtered, fs, opts.LowCutHz, opts.HighCutHz)
	if err != nil {
		return nil, err
	}

	return Normalize(filtered), nil
}

// DetectRPeaks locates candidate R-peaks in a raw single-lead signal sampled
// at fs Hz. After preprocessing, the maximum of each window (starting every
// Window/2 samples, and only while a full window remains past the start) is
// a candidate. Candidates are accepted greedily from left to right when they
// sit at least MinPeakDistance samples after the last accepted peak.
//
// Signals no longer than the window produce no peaks.
func DetectRPeaks(x []float64, fs float64, opts PeakOptions) ([]int, error) {
	if opts.Window < 2 {
		return nil, fmt.Errorf("%w: peak window must be at least 2, got %d", ErrInvalidWindow, opts.Window)
	}
	if opts.BaselineWindow < 1 {
		return nil, fmt.Errorf("%w: baseline window must be positive, got %d", ErrInvalidWindow, opts.BaselineWindow)
	}
	if err := ValidateBand(fs, opts.LowCutHz, opts.HighCutHz); err != nil {
		return nil, err
	}

	peaks := []int{}
	if len(x) <= opts.Window {
		return peaks, nil
	}

	filtered, err := Preprocess(x, fs, opts)
	if err != nil {
		return nil, err
	}

	return scanPeaks(filtered, opts.Window, MinPeakDistance(fs)), nil
}

func scanPeaks(filtered []float64, window, minDistance int) []int {
	peaks := []int{}
	stride := window / 2

	for i := 0; i < len(filtered)-window; i += stride {
		peak := i + argmax(filtered[i:i+window])

		if len(peaks) == 0 || peak-peaks[len(peaks)-1] >= minDistance {
			peaks = append(peaks, peak)
		}
	}

	return peaks
}

// argmax returns the index of the first maximum of x.
func argmax(x []float64) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}

	return best
}
