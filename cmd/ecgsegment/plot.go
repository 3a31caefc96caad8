package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/carbocation/ecgseg/ecgio"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	plotWidthPx  = 1536
	plotHeightPx = 256
)

// PlotPeaks renders the record's lead as a PNG at path, marking each detected
// peak with a dot.
func PlotPeaks(path string, rec *ecgio.Record, peaks []int) error {
	if len(rec.Signal) == 0 {
		return fmt.Errorf("%s: no samples to plot", rec.Name)
	}

	xs := make([]float64, len(rec.Signal))
	for i := range xs {
		xs[i] = float64(i) / rec.Fs
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    rec.Name,
			XValues: xs,
			YValues: rec.Signal,
			Style: chart.Style{
				StrokeColor: drawing.ColorBlack,
				StrokeWidth: 1,
			},
		},
	}

	if len(peaks) > 0 {
		px := make([]float64, len(peaks))
		py := make([]float64, len(peaks))
		for i, p := range peaks {
			px[i] = xs[p]
			py[i] = rec.Signal[p]
		}

		series = append(series, chart.ContinuousSeries{
			Name:    "R-peaks",
			XValues: px,
			YValues: py,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotColor:    drawing.ColorRed,
				DotWidth:    3,
			},
		})
	}

	graph := chart.Chart{
		Width:  plotWidthPx,
		Height: plotHeightPx,
		XAxis: chart.XAxis{
			Name: "Seconds",
		},
		YAxis: chart.YAxis{
			Name: rec.Units,
		},
		Series: series,
	}

	// Render to a byte buffer
	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	outFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer outFile.Close()

	if _, err := buffer.WriteTo(outFile); err != nil {
		return err
	}

	return outFile.Close()
}
