// Package checkpoint saves and restores model state between runs.
//
// A checkpoint file is a zip archive with a manifest.json describing the
// epoch and the shape of every tensor, plus one NumPy .npy file per tensor
// under model/ or optimizer/.
package checkpoint

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/carbocation/ecgseg"
	"github.com/carbocation/pfx"
	"github.com/sbinet/npyio"
	"github.com/sirupsen/logrus"
)

const (
	LatestName   = "ckpt_latest.ckpt"
	manifestName = "manifest.json"
)

// Tensor is a dense row-major array.
type Tensor struct {
	Shape []int
	Data  []float64
}

// Size is the number of elements implied by the shape.
func (t Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

type Checkpoint struct {
	Epoch     int
	Model     map[string]Tensor
	Optimizer map[string]Tensor // optional
}

// Result is the outcome of Load. When Found is false, Checkpoint is the zero
// value and training starts from epoch 0.
type Result struct {
	Found      bool
	Path       string
	Checkpoint Checkpoint
}

// FileName is the name under which the checkpoint for epoch is saved.
func FileName(epoch int) string {
	return fmt.Sprintf("ckpt_ep%03d.ckpt", epoch)
}

// ParamCount is the total number of model parameters.
func ParamCount(c Checkpoint) int {
	var n int
	for _, t := range c.Model {
		n += len(t.Data)
	}
	return n
}

type manifest struct {
	Epoch     int              `json:"epoch"`
	Model     map[string][]int `json:"model"`
	Optimizer map[string][]int `json:"optimizer,omitempty"`
}

// Save writes c into dir under FileName(c.Epoch) and returns the path.
func Save(dir string, c Checkpoint) (string, error) {
	return SaveAs(dir, FileName(c.Epoch), c)
}

// SaveLatest writes c into dir under LatestName.
func SaveLatest(dir string, c Checkpoint) (string, error) {
	return SaveAs(dir, LatestName, c)
}

// SaveAs writes c into dir under name. The file is replaced atomically.
func SaveAs(dir, name string, c Checkpoint) (string, error) {
	if err := validate(c); err != nil {
		return "", err
	}

	dir = ecgseg.ExpandHome(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", pfx.Err(err)
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", pfx.Err(err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp, c); err != nil {
		tmp.Close()
		return "", pfx.Err(err)
	}
	if err := tmp.Close(); err != nil {
		return "", pfx.Err(err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", pfx.Err(err)
	}

	return path, nil
}

func validate(c Checkpoint) error {
	for group, tensors := range map[string]map[string]Tensor{"model": c.Model, "optimizer": c.Optimizer} {
		for name, t := range tensors {
			if t.Size() != len(t.Data) {
				return fmt.Errorf("%s tensor %s has shape %v but %d values", group, name, t.Shape, len(t.Data))
			}
		}
	}
	return nil
}

func write(w io.Writer, c Checkpoint) error {
	z := zip.NewWriter(w)

	m := manifest{Epoch: c.Epoch, Model: shapes(c.Model)}
	if len(c.Optimizer) > 0 {
		m.Optimizer = shapes(c.Optimizer)
	}

	entry, err := z.Create(manifestName)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(entry).Encode(m); err != nil {
		return err
	}

	for _, group := range []struct {
		Prefix  string
		Tensors map[string]Tensor
	}{
		{"model/", c.Model},
		{"optimizer/", c.Optimizer},
	} {
		for _, name := range sortedNames(group.Tensors) {
			entry, err := z.Create(group.Prefix + name + ".npy")
			if err != nil {
				return err
			}
			if err := npyio.Write(entry, group.Tensors[name].Data); err != nil {
				return fmt.Errorf("tensor %s: %w", name, err)
			}
		}
	}

	return z.Close()
}

// Load restores the checkpoint for epoch from dir, or the latest checkpoint
// when epoch is nil. A missing file is not an error: the result reports
// Found == false and a notice is logged.
func Load(dir string, epoch *int, log logrus.FieldLogger) (Result, error) {
	name := LatestName
	if epoch != nil {
		name = FileName(*epoch)
	}
	path := filepath.Join(ecgseg.ExpandHome(dir), name)

	c, err := ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("path", path).Infoln("No checkpoint found, starting from epoch 0")
		return Result{Path: path}, nil
	} else if err != nil {
		return Result{Path: path}, err
	}

	log.WithFields(logrus.Fields{"path": path, "epoch": c.Epoch}).Infoln("Loaded checkpoint")

	return Result{Found: true, Path: path, Checkpoint: c}, nil
}

// ReadFile reads one checkpoint file.
func ReadFile(path string) (Checkpoint, error) {
	z, err := zip.OpenReader(ecgseg.ExpandHome(path))
	if err != nil {
		return Checkpoint{}, err
	}
	defer z.Close()

	c, err := read(&z.Reader)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%s: %w", path, err)
	}

	return c, nil
}

func read(z *zip.Reader) (Checkpoint, error) {
	var c Checkpoint

	f, err := z.Open(manifestName)
	if err != nil {
		return c, err
	}
	var m manifest
	err = json.NewDecoder(f).Decode(&m)
	f.Close()
	if err != nil {
		return c, fmt.Errorf("manifest: %w", err)
	}
	c.Epoch = m.Epoch

	if c.Model, err = readTensors(z, "model/", m.Model); err != nil {
		return c, err
	}
	if len(m.Optimizer) > 0 {
		if c.Optimizer, err = readTensors(z, "optimizer/", m.Optimizer); err != nil {
			return c, err
		}
	}

	return c, nil
}

func readTensors(z *zip.Reader, prefix string, shapes map[string][]int) (map[string]Tensor, error) {
	out := make(map[string]Tensor, len(shapes))

	for name, shape := range shapes {
		f, err := z.Open(prefix + name + ".npy")
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}

		var data []float64
		err = npyio.Read(f, &data)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}

		t := Tensor{Shape: shape, Data: data}
		if t.Size() != len(data) {
			return nil, fmt.Errorf("tensor %s has shape %v but %d values", name, shape, len(data))
		}
		out[name] = t
	}

	return out, nil
}

func shapes(tensors map[string]Tensor) map[string][]int {
	out := make(map[string][]int, len(tensors))
	for name, t := range tensors {
		out[name] = t.Shape
	}
	return out
}

func sortedNames(tensors map[string]Tensor) []string {
	out := make([]string, 0, len(tensors))
	for name := range tensors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
