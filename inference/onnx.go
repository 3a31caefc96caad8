package inference

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

func initRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		runtimeErr = ort.InitializeEnvironment()
	})

	return runtimeErr
}

// ONNXBackend runs an ONNX model through onnxruntime. The model must take a
// single float32 input of shape [batch, length] or [batch, 1, length] and
// produce [batch, classes].
type ONNXBackend struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputRank  int
	classes    int
}

func NewONNX(cfg Config) (*ONNXBackend, error) {
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("onnxruntime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("expected 1 input and at least 1 output, found %d and %d", len(inputs), len(outputs))
	}

	in, out := inputs[0], outputs[0]

	rank := len(in.Dimensions)
	if rank != 2 && rank != 3 {
		return nil, fmt.Errorf("input %s has rank %d, expected 2 or 3", in.Name, rank)
	}

	classes := cfg.Classes
	if classes <= 0 && len(out.Dimensions) > 0 {
		classes = int(out.Dimensions[len(out.Dimensions)-1])
	}
	if classes <= 0 {
		return nil, fmt.Errorf("output %s has a dynamic class dimension; set the number of classes", out.Name)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{in.Name}, []string{out.Name}, nil)
	if err != nil {
		return nil, err
	}

	return &ONNXBackend{
		session:    session,
		inputName:  in.Name,
		outputName: out.Name,
		inputRank:  rank,
		classes:    classes,
	}, nil
}

func (b *ONNXBackend) Predict(segments [][]float64) ([][]float32, error) {
	rows, cols, err := shape(segments)
	if err != nil {
		return nil, err
	}

	data := make([]float32, 0, rows*cols)
	for _, s := range segments {
		for _, v := range s {
			data = append(data, float32(v))
		}
	}

	inputShape := ort.NewShape(int64(rows), int64(cols))
	if b.inputRank == 3 {
		inputShape = ort.NewShape(int64(rows), 1, int64(cols))
	}

	input, err := ort.NewTensor(inputShape, data)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(rows), int64(b.classes)))
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	defer output.Destroy()

	if err := b.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("predict: %s: %w", b.outputName, err)
	}

	flat := output.GetData()
	scores := make([][]float32, rows)
	for i := range scores {
		scores[i] = make([]float32, b.classes)
		copy(scores[i], flat[i*b.classes:(i+1)*b.classes])
	}

	return scores, nil
}

func (b *ONNXBackend) Close() error {
	return b.session.Destroy()
}
