// Package inference runs a trained beat classifier over segments.
package inference

import (
	"errors"
	"fmt"
	"math"
)

const (
	KindONNX   = "onnx"
	KindNative = "native"
)

var ErrUnknownKind = errors.New("unknown inference backend")

// Backend scores segments. Each row of the result holds one score per class,
// in the model's output order.
type Backend interface {
	Predict(segments [][]float64) ([][]float32, error)
	Close() error
}

type Config struct {
	Kind      string `yaml:"kind" default:"onnx" validate:"oneof=onnx native"`
	ModelPath string `yaml:"model_path"`

	// LibraryPath locates the onnxruntime shared library. Only the first
	// ONNX backend created in a process applies it.
	LibraryPath string `yaml:"library_path"`

	// Classes overrides the number of outputs when the ONNX model leaves it
	// dynamic.
	Classes int `yaml:"classes" validate:"gte=0"`
}

// New loads the model named by cfg with the backend cfg.Kind selects.
func New(cfg Config) (Backend, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("load model: no model path given")
	}

	var (
		b   Backend
		err error
	)
	switch cfg.Kind {
	case KindONNX:
		b, err = NewONNX(cfg)
	case KindNative:
		b, err = NewNative(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", cfg.ModelPath, err)
	}

	return b, nil
}

// classNames must line up with the model's 15 outputs, so repeated entries
// are kept.
var classNames = []string{
	"정상",
	"심방 조기 수축",
	"심실 조기 수축",
	"심방 세동",
	"심실 세동",
	"심실 빈맥",
	"심실 서맥",
	"심실 빈맥",
	"심실 세동",
	"심실 빈맥",
	"심실 세동",
	"심실 빈맥",
	"심실 세동",
	"심실 빈맥",
	"심실 세동",
}

// ClassNames returns the display name of each model output.
func ClassNames() []string {
	out := make([]string, len(classNames))
	copy(out, classNames)
	return out
}

// ClassName returns the display name of output i, or "" when i is out of
// range.
func ClassName(i int) string {
	if i < 0 || i >= len(classNames) {
		return ""
	}
	return classNames[i]
}

// Argmax returns the index of the highest score in each row.
func Argmax(scores [][]float32) []int {
	out := make([]int, len(scores))
	for i, row := range scores {
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// Softmax converts one row of raw outputs into probabilities.
func Softmax(row []float32) []float64 {
	out := make([]float64, len(row))
	if len(row) == 0 {
		return out
	}

	peak := math.Inf(-1)
	for _, v := range row {
		peak = math.Max(peak, float64(v))
	}

	var sum float64
	for i, v := range row {
		out[i] = math.Exp(float64(v) - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}

	return out
}

// shape checks that segments form a non-empty rectangular batch.
func shape(segments [][]float64) (rows, cols int, err error) {
	if len(segments) == 0 {
		return 0, 0, fmt.Errorf("predict: no segments")
	}

	cols = len(segments[0])
	for i, s := range segments {
		if len(s) != cols {
			return 0, 0, fmt.Errorf("predict: segment %d has %d samples, expected %d", i, len(s), cols)
		}
	}

	return len(segments), cols, nil
}
