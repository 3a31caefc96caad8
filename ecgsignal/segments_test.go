package ecgsignal

import "testing"

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestExtractSegmentsBoundaries(t *testing.T) {
	signal := ramp(1000)

	segments, kept := ExtractSegmentsIndexed(signal, []int{50, 150, 500, 849, 850, 851, 990}, 300)

	expectedPeaks := []int{150, 500, 849, 850}
	if len(kept) != len(expectedPeaks) {
		t.Fatalf("got kept peaks %v, expected %v", kept, expectedPeaks)
	}
	for i, peak := range expectedPeaks {
		if kept[i] != peak {
			t.Fatalf("got kept peaks %v, expected %v", kept, expectedPeaks)
		}

		if len(segments[i]) != 300 {
			t.Fatalf("Segment %d has length %d", i, len(segments[i]))
		}
		if segments[i][0] != float64(peak-150) || segments[i][299] != float64(peak+149) {
			t.Fatalf("Segment for peak %d spans [%f, %f]", peak, segments[i][0], segments[i][299])
		}
	}
}

func TestExtractSegmentsExample(t *testing.T) {
	signal := ramp(1000)

	if segments := ExtractSegments(signal, []int{50}, 300); len(segments) != 0 {
		t.Fatalf("Peak 50 should be dropped, got %d segments", len(segments))
	}

	segments := ExtractSegments(signal, []int{500}, 300)
	if len(segments) != 1 {
		t.Fatalf("Peak 500 should be kept, got %d segments", len(segments))
	}
	for i, v := range segments[0] {
		if v != float64(350+i) {
			t.Fatalf("Sample %d of the segment is %f, expected %d", i, v, 350+i)
		}
	}
}

func TestExtractSegmentsCopies(t *testing.T) {
	signal := ramp(400)
	segments := ExtractSegments(signal, []int{200}, 300)
	segments[0][0] = -1

	if signal[50] != 50 {
		t.Fatalf("Segment aliases the input signal")
	}
}

func TestExtractSegmentsDegenerate(t *testing.T) {
	if segments := ExtractSegments(ramp(100), []int{50}, 0); len(segments) != 0 {
		t.Fatalf("Zero-size segments should produce nothing, got %v", segments)
	}
	// Odd sizes cannot be centred exactly, so no window ever matches
	if segments := ExtractSegments(ramp(100), []int{50}, 11); len(segments) != 0 {
		t.Fatalf("Odd-size segments should produce nothing, got %v", segments)
	}
	if segments := ExtractSegments(ramp(100), nil, 10); len(segments) != 0 {
		t.Fatalf("No peaks should produce nothing, got %v", segments)
	}
}
