package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/carbocation/ecgseg/ecgio"
	"github.com/carbocation/ecgseg/ecgsignal"
)

func TestPlotPeaks(t *testing.T) {
	synth := ecgsignal.Synth{Fs: 250, HeartRate: 60, Noise: 0.01}
	rec := &ecgio.Record{Name: "synthetic", Signal: synth.Generate(2500), Fs: 250, Units: "mV"}

	path := filepath.Join(t.TempDir(), "plots", "synthetic.png")
	if err := PlotPeaks(path, rec, synth.RPeaks(2500)); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Fatalf("Expected a PNG, got %d bytes starting %q", len(b), b[:min(8, len(b))])
	}

	if err := PlotPeaks(path, &ecgio.Record{Name: "empty", Fs: 250}, nil); err == nil {
		t.Fatalf("Expected an error for an empty record")
	}
}
