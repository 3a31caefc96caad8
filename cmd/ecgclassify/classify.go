package main

import (
	"fmt"
	"io"
	"os"

	"github.com/carbocation/ecgseg"
	"github.com/carbocation/ecgseg/beatlabel"
	"github.com/carbocation/ecgseg/inference"
	"github.com/carbocation/ecgseg/progress"
	"github.com/carbocation/ecgseg/segmentstore"
	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
)

// Prediction is one row of the output CSV.
type Prediction struct {
	Segment     int     `csv:"segment"`
	Label       string  `csv:"label"`
	Class       int     `csv:"class"`
	ClassName   string  `csv:"class_name"`
	Score       float32 `csv:"score"`
	Probability float64 `csv:"probability"`
}

type classifier struct {
	backend   inference.Backend
	log       logrus.FieldLogger
	batchSize int
	quiet     bool
}

func (c *classifier) run(input, output, metricsPath string) error {
	segments, labels, err := segmentstore.Load(input)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("%s: %w", input, segmentstore.ErrNoSegments)
	}

	sinks := progress.MultiSink{progress.LogSink{Log: c.log}}
	if metricsPath != "" {
		f, err := os.Create(ecgseg.ExpandHome(metricsPath))
		if err != nil {
			return err
		}
		defer f.Close()
		sinks = append(sinks, progress.NewTSVSink(f))
	}

	tracker := progress.NewTracker(sinks)
	tracker.SetGoal("mean_probability", progress.Maximize)

	predictions, err := c.classify(segments, labels, tracker)
	if err != nil {
		return err
	}

	if best, ok := tracker.Best("mean_probability"); ok {
		c.log.WithFields(logrus.Fields{
			"segments":              len(predictions),
			"best_mean_probability": best,
		}).Infoln("Classified segments")
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(ecgseg.ExpandHome(output))
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	return gocsv.Marshal(&predictions, w)
}

// classify scores segments in batches. Each batch records the mean
// probability of its top class with tracker.
func (c *classifier) classify(segments [][]float64, labels []int64, tracker *progress.Tracker) ([]*Prediction, error) {
	steps := (len(segments) + c.batchSize - 1) / c.batchSize

	var bar *progress.Bar
	if !c.quiet {
		bar = progress.NewBar(os.Stderr, "Classifying", len(segments), steps)
		defer bar.Close()
	}

	out := make([]*Prediction, 0, len(segments))
	for step := 0; step < steps; step++ {
		start := step * c.batchSize
		end := min(start+c.batchSize, len(segments))

		scores, err := c.backend.Predict(segments[start:end])
		if err != nil {
			if bar != nil {
				bar.Interrupt()
			}
			return nil, fmt.Errorf("segments %d-%d: %w", start, end-1, err)
		}

		var sum float64
		for i, class := range inference.Argmax(scores) {
			p := inference.Softmax(scores[i])[class]
			sum += p

			out = append(out, &Prediction{
				Segment:     start + i,
				Label:       beatlabel.IndexToLabel(int(labels[start+i])),
				Class:       class,
				ClassName:   inference.ClassName(class),
				Score:       scores[i][class],
				Probability: p,
			})
		}

		mean := sum / float64(end-start)
		if _, err := tracker.Record("mean_probability", mean, step); err != nil {
			c.log.WithError(err).Warnln("Could not record metric")
		}

		if bar != nil {
			bar.AddLoss(end-start, 1-mean)
		}
	}

	return out, nil
}
