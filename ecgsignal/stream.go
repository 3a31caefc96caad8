package ecgsignal

import (
	"fmt"
	"math"

	"github.com/jfcg/butter"
)

type sampleFilter interface {
	Next(float64) float64
}

// StreamFilter is a causal band-pass for samples that arrive one at a time:
// a first order Butterworth high-pass followed by a first order low-pass.
// Unlike BandPass it introduces phase lag, so it is only suited to live
// monitoring, not to segment extraction.
type StreamFilter struct {
	high sampleFilter
	low  sampleFilter
}

// NewStreamFilter builds a StreamFilter for a stream sampled at fs Hz.
func NewStreamFilter(fs, lowCut, highCut float64) (*StreamFilter, error) {
	if err := ValidateBand(fs, lowCut, highCut); err != nil {
		return nil, err
	}

	// butter expects angular cutoffs in radians per sample
	wcBase := 2.0 * math.Pi / fs

	high := butter.NewHighPass1(lowCut * wcBase)
	if high == nil {
		return nil, fmt.Errorf("%w: invalid high-pass filter (attempted wc=%f, but expect .0001 < wc && wc < 3.1415)", ErrInvalidCutoff, lowCut*wcBase)
	}

	low := butter.NewLowPass1(highCut * wcBase)
	if low == nil {
		return nil, fmt.Errorf("%w: invalid low-pass filter (attempted wc=%f, but expect .0001 < wc && wc < 3.1415)", ErrInvalidCutoff, highCut*wcBase)
	}

	return &StreamFilter{high: high, low: low}, nil
}

// Next filters one sample.
func (f *StreamFilter) Next(v float64) float64 {
	return f.high.Next(f.low.Next(v))
}

// BeatTracker detects beats in a live, already filtered, sample stream. A
// beat is an upward crossing of a threshold that follows a decaying envelope
// of recent peak amplitude, outside the refractory period of the previous
// beat.
type BeatTracker struct {
	fs         float64
	fraction   float64
	decay      float64
	refractory int

	envelope  float64
	last      float64
	sample    int
	lastBeat  int
	haveBeat  bool
	haveFirst bool
}

// NewBeatTracker returns a tracker for a stream sampled at fs Hz. The
// refractory period is MinPeakDistance(fs) and the threshold is half of the
// envelope, which decays with a two second time constant.
func NewBeatTracker(fs float64) *BeatTracker {
	return &BeatTracker{
		fs:         fs,
		fraction:   0.5,
		decay:      math.Exp(-1 / (2 * fs)),
		refractory: MinPeakDistance(fs),
	}
}

// Process consumes one sample. When it completes an RR interval it returns
// the instantaneous heart rate in beats per minute and true.
func (b *BeatTracker) Process(v float64) (float64, bool) {
	defer func() {
		b.last = v
		b.sample++
	}()

	b.envelope = math.Max(math.Abs(v), b.envelope*b.decay)

	if !b.haveFirst {
		b.haveFirst = true
		return 0, false
	}

	threshold := b.fraction * b.envelope
	if !(b.last < threshold && v >= threshold) || threshold <= 0 {
		return 0, false
	}

	if b.haveBeat && b.sample-b.lastBeat <= b.refractory {
		return 0, false
	}

	prev, hadBeat := b.lastBeat, b.haveBeat
	b.lastBeat = b.sample
	b.haveBeat = true

	if !hadBeat {
		return 0, false
	}

	return 60 * b.fs / float64(b.sample-prev), true
}
