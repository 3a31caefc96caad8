package ecgsignal

import "math"

// Synth generates a deterministic, non-clinical ECG-like waveform: gaussian
// P, Q, R, S and T waves repeated at a fixed heart rate, with optional slow
// baseline wander and pseudo-random noise.
type Synth struct {
	Fs        float64 // sampling rate, Hz
	HeartRate float64 // beats per minute
	Noise     float64 // noise amplitude, in R-wave units
	Wander    float64 // baseline wander amplitude, in R-wave units
	Offset    float64 // constant DC offset
}

// rPhase is where the R wave sits within each cycle.
const rPhase = 0.32

// Generate returns n samples.
func (s Synth) Generate(n int) []float64 {
	out := make([]float64, n)
	cycleHz := s.HeartRate / 60.0

	for i := range out {
		sec := float64(i) / s.Fs
		t := fract(sec * cycleHz)

		p := 0.08 * gauss(t, 0.18, 0.03)
		q := -0.12 * gauss(t, 0.30, 0.01)
		r := 1.00 * gauss(t, rPhase, 0.008)
		sw := -0.25 * gauss(t, 0.35, 0.012)
		tw := 0.25 * gauss(t, 0.60, 0.06)

		wander := s.Wander * math.Sin(2*math.Pi*0.2*sec)
		noise := s.Noise * (2*fract(math.Sin(12345.678*float64(i))*9876.543) - 1)

		out[i] = s.Offset + wander + p + q + r + sw + tw + noise
	}

	return out
}

// RPeaks returns the sample index of every R-wave apex within the first n
// samples.
func (s Synth) RPeaks(n int) []int {
	cycleHz := s.HeartRate / 60.0
	if cycleHz <= 0 || s.Fs <= 0 {
		return nil
	}

	var out []int
	for k := 0; ; k++ {
		idx := int(math.Round((float64(k) + rPhase) * s.Fs / cycleHz))
		if idx >= n {
			return out
		}
		out = append(out, idx)
	}
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func fract(x float64) float64 { return x - math.Floor(x) }
