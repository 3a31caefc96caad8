// ecgsegment detects R-peaks in ECG records, cuts a fixed-width segment
// around each one and writes every segment, with its beat label, to a single
// .npz archive. A per-record rhythm summary is written alongside.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/ecgseg"
	_ "github.com/carbocation/ecgseg/compileinfoprint"
	"github.com/carbocation/ecgseg/config"
	"github.com/carbocation/ecgseg/logging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath  string
		manifest    string
		output      string
		summaryPath string
		pngDir      string
		annotator   string
		fs          float64
		channel     int
		lead        string
		segmentSize int
		concurrency int
		quiet       bool
	)

	flag.StringVar(&configPath, "config", "", "(Optional) YAML configuration file")
	flag.StringVar(&manifest, "manifest", "", "(Optional) File listing one record path per line, in addition to any records given as arguments")
	flag.StringVar(&output, "out", "segments.npz", "Path of the .npz archive holding the segments and labels")
	flag.StringVar(&summaryPath, "summary", "", "(Optional) Path of a CSV with one rhythm summary per record")
	flag.StringVar(&pngDir, "png", "", "(Optional) Directory into which a PNG of each record, with its detected peaks, is written")
	flag.StringVar(&annotator, "annotator", "atr", "Extension of the WFDB annotation file used to label beats. Records without one are labelled Q. Set to empty to skip labelling")
	flag.Float64Var(&fs, "fs", 0, "(Optional) Sampling rate in Hz. Overrides the rate inferred from tabular time columns")
	flag.IntVar(&channel, "channel", 0, "WFDB signal, or CardioSoft XML lead, (0-based) to segment")
	flag.StringVar(&lead, "lead", "", "(Optional) Name of the CardioSoft XML lead to segment, e.g. II. Takes precedence over -channel")
	flag.IntVar(&segmentSize, "segment_size", 300, "Width, in samples, of each segment")
	flag.IntVar(&concurrency, "concurrency", 4, "Number of records processed at once")
	flag.BoolVar(&quiet, "quiet", false, "Suppress the progress bar?")
	flag.Parse()

	if err := config.LoadDotEnv(""); err != nil {
		logrus.Fatalln(err)
	}

	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		logrus.Fatalln(err)
	}

	// Flags given explicitly take precedence over the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "fs":
			cfg.Fs = fs
		case "channel":
			cfg.Channel = channel
		case "lead":
			cfg.Lead = lead
		case "segment_size":
			cfg.SegmentSize = segmentSize
		case "concurrency":
			cfg.Concurrency = concurrency
		}
	})
	if err := cfg.Validate(); err != nil {
		logrus.Fatalln(err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalln(err)
	}

	records := flag.Args()
	if manifest != "" {
		listed, err := readManifest(manifest)
		if err != nil {
			log.Fatalln(err)
		}
		records = append(records, listed...)
	}

	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: ecgsegment [flags] record [record ...]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runID := uuid.New().String()
	log.WithFields(logrus.Fields{
		"run_id":       runID,
		"records":      len(records),
		"segment_size": cfg.SegmentSize,
		"concurrency":  cfg.Concurrency,
	}).Infoln("Starting segmentation")

	r := &runner{
		cfg:       cfg,
		log:       log.WithField("run_id", runID),
		runID:     runID,
		annotator: annotator,
		pngDir:    pngDir,
		quiet:     quiet,
	}

	if needsStorage(records) {
		client, err := storage.NewClient(ctx)
		if err != nil {
			log.Fatalln(err)
		}
		defer client.Close()
		r.client = client
	}

	if err := r.run(ctx, records, output, summaryPath); err != nil {
		log.Fatalln(err)
	}
}

func needsStorage(paths []string) bool {
	for _, path := range paths {
		if ecgseg.IsGoogleStoragePath(path) {
			return true
		}
	}

	return false
}

func readManifest(path string) ([]string, error) {
	b, err := os.ReadFile(ecgseg.ExpandHome(path))
	if err != nil {
		return nil, err
	}

	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}

	return out, nil
}
