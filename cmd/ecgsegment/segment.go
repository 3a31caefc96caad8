package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/carbocation/ecgseg"
	"github.com/carbocation/ecgseg/beatlabel"
	"github.com/carbocation/ecgseg/config"
	"github.com/carbocation/ecgseg/ecgio"
	"github.com/carbocation/ecgseg/ecgsignal"
	"github.com/carbocation/ecgseg/progress"
	"github.com/carbocation/ecgseg/rhythm"
	"github.com/carbocation/ecgseg/segmentstore"
	"github.com/cenkalti/backoff/v4"
	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
)

type runner struct {
	cfg       *config.Config
	log       logrus.FieldLogger
	client    *storage.Client
	runID     string
	annotator string
	pngDir    string
	quiet     bool
}

// recordSummary is one row of the -summary CSV.
type recordSummary struct {
	RunID    string  `csv:"run_id"`
	Record   string  `csv:"record"`
	Path     string  `csv:"path"`
	Fs       float64 `csv:"fs_hz"`
	Samples  int     `csv:"samples"`
	Segments int     `csv:"segments"`
	Labelled int     `csv:"labelled"`
	rhythm.Summary
}

type recordResult struct {
	summary  recordSummary
	segments [][]float64
	labels   []int64
}

type result struct {
	index  int
	path   string
	record *recordResult
	err    error
}

func (r *runner) run(ctx context.Context, paths []string, output, summaryPath string) error {
	var bar *progress.Bar
	if !r.quiet {
		bar = progress.NewBar(os.Stderr, "Segmenting", len(paths), len(paths))
	}

	records := make([]*recordResult, len(paths))
	failed := 0

	results := make(chan result, r.cfg.Concurrency)
	doneListening := make(chan struct{})
	go func() {
		defer func() { doneListening <- struct{}{} }()
		for res := range results {
			if bar != nil {
				bar.Add(1)
			}

			if res.err != nil {
				failed++
				r.log.WithError(res.err).WithField("path", res.path).Warnln("Skipping record")
				continue
			}
			records[res.index] = res.record
		}
	}()

	semaphore := make(chan struct{}, r.cfg.Concurrency)
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}

		// Will block after `concurrency` simultaneous goroutines are running
		semaphore <- struct{}{}

		go func(i int, path string) {
			// Be sure to permit unblocking once we finish
			defer func() { <-semaphore }()

			rec, err := r.process(ctx, path)
			results <- result{index: i, path: path, record: rec, err: err}
		}(i, path)
	}

	// Wait for the stragglers
	for i := 0; i < cap(semaphore); i++ {
		semaphore <- struct{}{}
	}
	close(results)
	<-doneListening

	if bar != nil {
		if ctx.Err() != nil {
			bar.Interrupt()
		} else {
			bar.Close()
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		segments  [][]float64
		labels    []int64
		summaries []*recordSummary
	)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		segments = append(segments, rec.segments...)
		labels = append(labels, rec.labels...)
		summary := rec.summary
		summaries = append(summaries, &summary)
	}

	if len(summaries) == 0 {
		return fmt.Errorf("none of the %d records could be processed", len(paths))
	}

	if summaryPath != "" {
		if err := writeSummary(summaryPath, summaries); err != nil {
			return err
		}
	}

	if err := segmentstore.Save(output, segments, labels); err != nil {
		return fmt.Errorf("%s: %w", output, err)
	}

	r.log.WithFields(logrus.Fields{
		"records":  len(summaries),
		"failed":   failed,
		"segments": len(segments),
		"output":   output,
	}).Infoln("Wrote segments")

	return nil
}

// process segments one record.
func (r *runner) process(ctx context.Context, path string) (*recordResult, error) {
	opts := ecgio.LoadOptions{Fs: r.cfg.Fs, Channel: r.cfg.Channel, Lead: r.cfg.Lead, StorageClient: r.client}

	rec, err := r.load(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	peaks, err := ecgsignal.DetectRPeaks(rec.Signal, rec.Fs, r.cfg.Peaks.Options())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	segments, kept := ecgsignal.ExtractSegmentsIndexed(rec.Signal, peaks, r.cfg.SegmentSize)

	classes, labelled := r.label(ctx, path, rec, kept, opts)
	labels := make([]int64, len(classes))
	for i, class := range classes {
		labels[i] = int64(class)
	}

	summary, err := rhythm.Summarize(peaks, rec.Fs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if r.pngDir != "" {
		out := filepath.Join(r.pngDir, rec.Name+".png")
		if err := PlotPeaks(out, rec, peaks); err != nil {
			r.log.WithError(err).WithField("path", path).Warnln("Could not plot record")
		}
	}

	r.log.WithFields(logrus.Fields{
		"record":   rec.Name,
		"peaks":    len(peaks),
		"segments": len(segments),
		"labelled": labelled,
	}).Debugln("Segmented record")

	return &recordResult{
		summary: recordSummary{
			RunID:    r.runID,
			Record:   rec.Name,
			Path:     path,
			Fs:       rec.Fs,
			Samples:  len(rec.Signal),
			Segments: len(segments),
			Labelled: labelled,
			Summary:  summary,
		},
		segments: segments,
		labels:   labels,
	}, nil
}

// load reads a record. Remote reads are retried with exponential backoff;
// local ones are not.
func (r *runner) load(ctx context.Context, path string, opts ecgio.LoadOptions) (*ecgio.Record, error) {
	if !ecgseg.IsGoogleStoragePath(path) {
		return ecgio.Load(ctx, path, opts)
	}

	var rec *ecgio.Record
	operation := func() error {
		var err error
		rec, err = ecgio.Load(ctx, path, opts)
		if errors.Is(err, ecgio.ErrUnsupportedFormat) || errors.Is(err, storage.ErrObjectNotExist) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.Retries)), ctx)

	notify := func(err error, wait time.Duration) {
		r.log.WithError(err).WithFields(logrus.Fields{"path": path, "wait": wait}).Infoln("Retrying record")
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}

	return rec, nil
}

// label assigns a class to each kept peak from the record's beat
// annotations. Tabular records, and WFDB records without an annotation file,
// are labelled Q throughout. The second return value counts the peaks
// matched to an annotated beat.
func (r *runner) label(ctx context.Context, path string, rec *ecgio.Record, peaks []int, opts ecgio.LoadOptions) ([]beatlabel.Class, int) {
	var beats []beatlabel.Beat

	switch ext := ecgio.Format(path); {
	case r.annotator == "":
	case ext == ".hea" || ext == ".dat":
		annPath := strings.TrimSuffix(path, filepath.Ext(path)) + "." + r.annotator
		annotations, err := ecgio.ReadAnnotations(ctx, annPath, opts)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrObjectNotExist) {
			r.log.WithField("path", annPath).Debugln("No annotations")
		} else if err != nil {
			r.log.WithError(err).WithField("path", annPath).Warnln("Could not read annotations")
		} else {
			beats = ecgio.Beats(annotations)
		}
	}

	classes := make([]beatlabel.Class, len(peaks))
	labelled := 0
	for i, k := range beatlabel.Nearest(peaks, beats, beatlabel.ToleranceSamples(r.cfg.LabelToleranceMs, rec.Fs)) {
		classes[i] = beatlabel.Unknown
		if k >= 0 {
			classes[i] = beats[k].Class
			labelled++
		}
	}

	return classes, labelled
}

func writeSummary(path string, rows []*recordSummary) error {
	f, err := os.Create(ecgseg.ExpandHome(path))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return f.Close()
}
