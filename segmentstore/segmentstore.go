// Package segmentstore persists beat segments and their labels as a NumPy
// .npz archive holding two arrays: segments (float64, one row per beat) and
// labels (int64).
package segmentstore

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/carbocation/ecgseg"
	"github.com/carbocation/pfx"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

const (
	SegmentsArray = "segments"
	LabelsArray   = "labels"
)

var ErrNoSegments = errors.New("no segments to save")

// Save writes segments and labels to path, creating parent directories. All
// segments must have the same length and there must be one label per segment.
func Save(path string, segments [][]float64, labels []int64) error {
	if len(segments) == 0 {
		return ErrNoSegments
	}
	if len(labels) != len(segments) {
		return fmt.Errorf("have %d segments but %d labels", len(segments), len(labels))
	}

	width := len(segments[0])
	if width == 0 {
		return fmt.Errorf("segments are empty")
	}
	data := make([]float64, 0, len(segments)*width)
	for i, segment := range segments {
		if len(segment) != width {
			return fmt.Errorf("segment %d has %d samples, expected %d", i, len(segment), width)
		}
		data = append(data, segment...)
	}

	path = ecgseg.ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return pfx.Err(err)
	}

	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}

	if err := write(f, mat.NewDense(len(segments), width, data), labels); err != nil {
		f.Close()
		return pfx.Err(fmt.Errorf("%s: %v", path, err))
	}

	return f.Close()
}

func write(w io.Writer, segments *mat.Dense, labels []int64) error {
	z := zip.NewWriter(w)

	for _, array := range []struct {
		Name  string
		Value interface{}
	}{
		{SegmentsArray, segments},
		{LabelsArray, labels},
	} {
		entry, err := z.Create(array.Name + ".npy")
		if err != nil {
			return err
		}
		if err := npyio.Write(entry, array.Value); err != nil {
			return fmt.Errorf("%s: %w", array.Name, err)
		}
	}

	return z.Close()
}

// Load reads an archive written by Save, or by numpy.savez with the same
// array names.
func Load(path string) ([][]float64, []int64, error) {
	z, err := zip.OpenReader(ecgseg.ExpandHome(path))
	if err != nil {
		return nil, nil, pfx.Err(err)
	}
	defer z.Close()

	var dense mat.Dense
	if err := readArray(&z.Reader, SegmentsArray, &dense); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	var labels []int64
	if err := readArray(&z.Reader, LabelsArray, &labels); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	rows, cols := dense.Dims()
	if len(labels) != rows {
		return nil, nil, fmt.Errorf("%s: have %d segments but %d labels", path, rows, len(labels))
	}

	segments := make([][]float64, rows)
	for i := range segments {
		segments[i] = make([]float64, cols)
		mat.Row(segments[i], i, &dense)
	}

	return segments, labels, nil
}

func readArray(z *zip.Reader, name string, ptr interface{}) error {
	f, err := z.Open(name + ".npy")
	if err != nil {
		return fmt.Errorf("array %s: %w", name, err)
	}
	defer f.Close()

	return npyio.Read(f, ptr)
}
