package ecgsignal

import (
	"math"
	"testing"
)

func meanStd(x []float64) (float64, float64) {
	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))

	variance := 0.0
	for _, v := range x {
		variance += (v - mean) * (v - mean)
	}

	return mean, math.Sqrt(variance / float64(len(x)))
}

func TestNormalize(t *testing.T) {
	for _, input := range [][]float64{
		{1, 2, 3, 4, 5},
		{-3.5, 10, 0.25, 7, 7, 7, -1},
		Synth{Fs: 360, HeartRate: 72, Noise: 0.02}.Generate(2000),
	} {
		out := Normalize(input)
		if len(out) != len(input) {
			t.Fatalf("Length changed from %d to %d", len(input), len(out))
		}

		mean, std := meanStd(out)
		if math.Abs(mean) > 1e-9 {
			t.Fatalf("Input %v: mean %.12f, expected 0", input, mean)
		}
		if math.Abs(std-1) > 1e-5 {
			t.Fatalf("Input %v: std %.12f, expected 1", input, std)
		}
	}
}

func TestNormalizeConstant(t *testing.T) {
	out := Normalize([]float64{3, 3, 3, 3})
	for i, v := range out {
		if v != 0 || math.IsNaN(v) {
			t.Fatalf("Sample %d: got %f, expected 0", i, v)
		}
	}

	if out := Normalize([]float64{42}); len(out) != 1 || out[0] != 0 {
		t.Fatalf("Single sample: got %v", out)
	}

	if out := Normalize(nil); len(out) != 0 {
		t.Fatalf("Empty input: got %v", out)
	}
}

func TestNormalizeDoesNotMutate(t *testing.T) {
	input := []float64{1, 2, 3}
	Normalize(input)
	if input[0] != 1 || input[1] != 2 || input[2] != 3 {
		t.Fatalf("Input was modified: %v", input)
	}
}
