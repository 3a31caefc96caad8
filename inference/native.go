package inference

import (
	"fmt"

	"github.com/carbocation/ecgseg/checkpoint"
	"gonum.org/v1/gonum/mat"
)

// NativeBackend evaluates a fully connected network restored from a
// checkpoint: either a single "weight"/"bias" layer, or layers "fc1",
// "fc2", ... with ReLU between them. Weights have shape [out, in].
type NativeBackend struct {
	layers []dense
}

type dense struct {
	weight *mat.Dense
	bias   []float64
}

func NewNative(cfg Config) (*NativeBackend, error) {
	c, err := checkpoint.ReadFile(cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	return NativeFromCheckpoint(c)
}

// NativeFromCheckpoint builds the network from model tensors already in
// memory.
func NativeFromCheckpoint(c checkpoint.Checkpoint) (*NativeBackend, error) {
	var names []string
	if _, ok := c.Model["weight"]; ok {
		names = []string{""}
	} else {
		for i := 1; ; i++ {
			name := fmt.Sprintf("fc%d.", i)
			if _, ok := c.Model[name+"weight"]; !ok {
				break
			}
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("checkpoint has no weight or fc1.weight tensor")
	}

	b := &NativeBackend{}
	prevOut := -1
	for _, prefix := range names {
		w := c.Model[prefix+"weight"]
		if len(w.Shape) != 2 {
			return nil, fmt.Errorf("%sweight has shape %v, expected 2 dimensions", prefix, w.Shape)
		}
		out, in := w.Shape[0], w.Shape[1]
		if prevOut >= 0 && in != prevOut {
			return nil, fmt.Errorf("%sweight expects %d inputs but the previous layer has %d outputs", prefix, in, prevOut)
		}

		bias := make([]float64, out)
		if bt, ok := c.Model[prefix+"bias"]; ok {
			if len(bt.Data) != out {
				return nil, fmt.Errorf("%sbias has %d values, expected %d", prefix, len(bt.Data), out)
			}
			copy(bias, bt.Data)
		}

		b.layers = append(b.layers, dense{
			weight: mat.NewDense(out, in, append([]float64(nil), w.Data...)),
			bias:   bias,
		})
		prevOut = out
	}

	return b, nil
}

// Inputs is the segment length the network expects.
func (b *NativeBackend) Inputs() int {
	_, in := b.layers[0].weight.Dims()
	return in
}

// Classes is the number of scores per segment.
func (b *NativeBackend) Classes() int {
	out, _ := b.layers[len(b.layers)-1].weight.Dims()
	return out
}

func (b *NativeBackend) Predict(segments [][]float64) ([][]float32, error) {
	rows, cols, err := shape(segments)
	if err != nil {
		return nil, err
	}
	if cols != b.Inputs() {
		return nil, fmt.Errorf("predict: segments have %d samples but the model expects %d", cols, b.Inputs())
	}

	data := make([]float64, 0, rows*cols)
	for _, s := range segments {
		data = append(data, s...)
	}
	x := mat.NewDense(rows, cols, data)

	for i, layer := range b.layers {
		var y mat.Dense
		y.Mul(x, layer.weight.T())
		last := i == len(b.layers)-1
		y.Apply(func(_, j int, v float64) float64 {
			v += layer.bias[j]
			if !last && v < 0 {
				return 0
			}
			return v
		}, &y)
		x = &y
	}

	scores := make([][]float32, rows)
	for i := range scores {
		row := mat.Row(nil, i, x)
		scores[i] = make([]float32, len(row))
		for j, v := range row {
			scores[i][j] = float32(v)
		}
	}

	return scores, nil
}

func (b *NativeBackend) Close() error { return nil }
