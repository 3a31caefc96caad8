// Package rhythm summarizes the heart rhythm implied by a sequence of
// detected R-peaks.
package rhythm

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the RR intervals between consecutive peaks. Interval
// statistics are in milliseconds and heart rates in beats per minute.
type Summary struct {
	Beats    int     `csv:"beats" json:"beats"`
	MeanRR   float64 `csv:"mean_rr_ms" json:"mean_rr_ms"`
	MedianRR float64 `csv:"median_rr_ms" json:"median_rr_ms"`
	SDNN     float64 `csv:"sdnn_ms" json:"sdnn_ms"`
	RMSSD    float64 `csv:"rmssd_ms" json:"rmssd_ms"`
	MeanHR   float64 `csv:"mean_hr_bpm" json:"mean_hr_bpm"`
	MinHR    float64 `csv:"min_hr_bpm" json:"min_hr_bpm"`
	MaxHR    float64 `csv:"max_hr_bpm" json:"max_hr_bpm"`
}

// Intervals converts increasing peak indices into RR intervals in
// milliseconds.
func Intervals(peaks []int, fs float64) []float64 {
	if len(peaks) < 2 {
		return []float64{}
	}

	out := make([]float64, 0, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		out = append(out, 1000*float64(peaks[i]-peaks[i-1])/fs)
	}

	return out
}

// Summarize computes a Summary for peaks detected in a signal sampled at fs
// Hz. Fewer than two peaks leave every interval statistic at zero. SDNN and
// RMSSD need at least two and three peaks respectively.
func Summarize(peaks []int, fs float64) (Summary, error) {
	out := Summary{Beats: len(peaks)}

	if !(fs > 0) {
		return out, fmt.Errorf("sampling rate must be positive, got %g", fs)
	}
	for i := 1; i < len(peaks); i++ {
		if peaks[i] <= peaks[i-1] {
			return out, fmt.Errorf("peaks must be strictly increasing, got %d after %d", peaks[i], peaks[i-1])
		}
	}

	rr := Intervals(peaks, fs)
	if len(rr) == 0 {
		return out, nil
	}

	out.MeanRR = stat.Mean(rr, nil)

	median, err := stats.Median(rr)
	if err != nil {
		return out, err
	}
	out.MedianRR = median

	if len(rr) > 1 {
		out.SDNN = stat.StdDev(rr, nil)

		var sumSq float64
		for i := 1; i < len(rr); i++ {
			d := rr[i] - rr[i-1]
			sumSq += d * d
		}
		out.RMSSD = math.Sqrt(sumSq / float64(len(rr)-1))
	}

	out.MinHR = math.Inf(1)
	out.MaxHR = math.Inf(-1)
	for _, v := range rr {
		hr := 60000 / v
		out.MeanHR += hr
		out.MinHR = math.Min(out.MinHR, hr)
		out.MaxHR = math.Max(out.MaxHR, hr)
	}
	out.MeanHR /= float64(len(rr))

	return out, nil
}
