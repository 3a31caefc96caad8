package inference

import (
	"errors"
	"math"
	"testing"

	"github.com/carbocation/ecgseg/checkpoint"
)

func TestClassNames(t *testing.T) {
	names := ClassNames()
	if len(names) != 15 {
		t.Fatalf("Expected 15 class names, got %d", len(names))
	}
	if names[0] != "정상" || names[14] != "심실 세동" {
		t.Fatalf("Unexpected class names %q", names)
	}

	// Repeated entries are kept so that indices match the model outputs
	if names[5] != names[7] || names[4] != names[8] {
		t.Fatalf("Expected repeated class names at 5/7 and 4/8, got %q", names)
	}

	names[0] = "changed"
	if ClassName(0) != "정상" {
		t.Fatalf("ClassNames should return a copy")
	}
	if ClassName(15) != "" || ClassName(-1) != "" {
		t.Fatalf("Out of range class names should be empty")
	}
}

func TestNativeLinear(t *testing.T) {
	b, err := NativeFromCheckpoint(checkpoint.Checkpoint{
		Model: map[string]checkpoint.Tensor{
			"weight": {Shape: []int{2, 3}, Data: []float64{1, 0, 0, 0, 1, 1}},
			"bias":   {Shape: []int{2}, Data: []float64{0.5, -1}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if b.Inputs() != 3 || b.Classes() != 2 {
		t.Fatalf("Expected a 3 -> 2 model, got %d -> %d", b.Inputs(), b.Classes())
	}

	scores, err := b.Predict([][]float64{{1, 2, 3}, {-1, 0, 0}})
	if err != nil {
		t.Fatal(err)
	}

	expected := [][]float32{{1.5, 4}, {-0.5, -1}}
	for i := range expected {
		for j := range expected[i] {
			if math.Abs(float64(scores[i][j]-expected[i][j])) > 1e-6 {
				t.Fatalf("Score [%d][%d]: got %f, expected %f", i, j, scores[i][j], expected[i][j])
			}
		}
	}

	if got := Argmax(scores); got[0] != 1 || got[1] != 0 {
		t.Fatalf("Unexpected argmax %v", got)
	}
}

func TestNativeHiddenLayer(t *testing.T) {
	b, err := NativeFromCheckpoint(checkpoint.Checkpoint{
		Model: map[string]checkpoint.Tensor{
			// Two hidden units: x0 - x1 and x1 - x0
			"fc1.weight": {Shape: []int{2, 2}, Data: []float64{1, -1, -1, 1}},
			"fc1.bias":   {Shape: []int{2}, Data: []float64{0, 0}},
			// One output summing the rectified units, so |x0 - x1|
			"fc2.weight": {Shape: []int{1, 2}, Data: []float64{1, 1}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	scores, err := b.Predict([][]float64{{3, 1}, {1, 3}, {2, 2}})
	if err != nil {
		t.Fatal(err)
	}

	for i, expected := range []float32{2, 2, 0} {
		if scores[i][0] != expected {
			t.Fatalf("Row %d: got %f, expected %f", i, scores[i][0], expected)
		}
	}
}

func TestNativeRejects(t *testing.T) {
	for name, model := range map[string]map[string]checkpoint.Tensor{
		"1d weight": {
			"weight": {Shape: []int{3}, Data: []float64{1, 2, 3}},
		},
		"mismatched layers": {
			"fc1.weight": {Shape: []int{2, 3}, Data: make([]float64, 6)},
			"fc2.weight": {Shape: []int{1, 3}, Data: make([]float64, 3)},
		},
		"short bias": {
			"weight": {Shape: []int{2, 1}, Data: []float64{1, 2}},
			"bias":   {Shape: []int{1}, Data: []float64{1}},
		},
		"empty": {},
	} {
		if _, err := NativeFromCheckpoint(checkpoint.Checkpoint{Model: model}); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}

	b, err := NativeFromCheckpoint(checkpoint.Checkpoint{Model: map[string]checkpoint.Tensor{
		"weight": {Shape: []int{1, 2}, Data: []float64{1, 1}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Predict([][]float64{{1, 2, 3}}); err == nil {
		t.Fatalf("Expected an error for segments of the wrong length")
	}
	if _, err := b.Predict(nil); err == nil {
		t.Fatalf("Expected an error for an empty batch")
	}
}

func TestNewNativeFromFile(t *testing.T) {
	path, err := checkpoint.Save(t.TempDir(), checkpoint.Checkpoint{
		Epoch: 1,
		Model: map[string]checkpoint.Tensor{
			"weight": {Shape: []int{1, 2}, Data: []float64{2, 3}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	b, err := New(Config{Kind: KindNative, ModelPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	scores, err := b.Predict([][]float64{{1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if scores[0][0] != 5 {
		t.Fatalf("Expected 5, got %f", scores[0][0])
	}
}

func TestNewRejects(t *testing.T) {
	if _, err := New(Config{Kind: "pytorch", ModelPath: "model.pt"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Expected ErrUnknownKind, got %v", err)
	}
	if _, err := New(Config{Kind: KindNative}); err == nil {
		t.Fatalf("Expected an error without a model path")
	}
	if _, err := New(Config{Kind: KindNative, ModelPath: "/does/not/exist.ckpt"}); err == nil {
		t.Fatalf("Expected an error for a missing model file")
	}
}

func TestSoftmax(t *testing.T) {
	got := Softmax([]float32{1, 2, 3, 1000})
	if got[3] < 0.999 || math.IsNaN(got[0]) {
		t.Fatalf("Large outputs should dominate without overflowing, got %v", got)
	}

	got = Softmax([]float32{0, float32(math.Log(3))})
	if math.Abs(got[0]-0.25) > 1e-6 || math.Abs(got[1]-0.75) > 1e-6 {
		t.Fatalf("Expected [0.25 0.75], got %v", got)
	}

	if len(Softmax(nil)) != 0 {
		t.Fatalf("Expected an empty result")
	}
}
