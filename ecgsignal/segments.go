package ecgsignal

// DefaultSegmentSize is the width, in samples, of each extracted beat.
const DefaultSegmentSize = 300

// ExtractSegments copies a window of size samples centred on each peak,
// [peak-size/2, peak+size/2). Peaks whose window would leave the signal are
// dropped rather than padded. Order follows peaks.
func ExtractSegments(x []float64, peaks []int, size int) [][]float64 {
	segments, _ := ExtractSegmentsIndexed(x, peaks, size)
	return segments
}

// ExtractSegmentsIndexed is ExtractSegments, additionally returning the peaks
// that produced a segment so that labels can be attached to them.
func ExtractSegmentsIndexed(x []float64, peaks []int, size int) ([][]float64, []int) {
	segments := make([][]float64, 0, len(peaks))
	kept := make([]int, 0, len(peaks))

	if size <= 0 {
		return segments, kept
	}

	half := size / 2
	for _, peak := range peaks {
		start := peak - half
		end := peak + half

		if start < 0 || end > len(x) || end-start != size {
			continue
		}

		segment := make([]float64, size)
		copy(segment, x[start:end])

		segments = append(segments, segment)
		kept = append(kept, peak)
	}

	return segments, kept
}
