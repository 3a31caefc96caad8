// ecgclassify scores the segments of an ecgsegment archive with a trained
// beat classifier and writes one prediction per segment as CSV.
package main

import (
	"flag"
	"fmt"
	"os"

	_ "github.com/carbocation/ecgseg/compileinfoprint"
	"github.com/carbocation/ecgseg/config"
	"github.com/carbocation/ecgseg/inference"
	"github.com/carbocation/ecgseg/logging"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath  string
		input       string
		output      string
		metricsPath string
		model       string
		backend     string
		library     string
		batchSize   int
		quiet       bool
	)

	flag.StringVar(&configPath, "config", "", "(Optional) YAML configuration file")
	flag.StringVar(&input, "segments", "", "Path to the .npz archive written by ecgsegment")
	flag.StringVar(&output, "out", "", "(Optional) Output CSV path. Defaults to stdout")
	flag.StringVar(&metricsPath, "metrics", "", "(Optional) Path of a TSV file receiving per-batch metrics")
	flag.StringVar(&model, "model", "", "Path to the model (.onnx for the onnx backend, a checkpoint for the native backend)")
	flag.StringVar(&backend, "backend", inference.KindONNX, "Inference backend: onnx or native")
	flag.StringVar(&library, "onnx_library", "", "(Optional) Path to the onnxruntime shared library")
	flag.IntVar(&batchSize, "batch", 256, "Number of segments scored per call to the model")
	flag.BoolVar(&quiet, "quiet", false, "Suppress the progress bar?")
	flag.Parse()

	if input == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := config.LoadDotEnv(""); err != nil {
		logrus.Fatalln(err)
	}

	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		logrus.Fatalln(err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.Inference.ModelPath = model
		case "backend":
			cfg.Inference.Kind = backend
		case "onnx_library":
			cfg.Inference.LibraryPath = library
		}
	})
	if err := cfg.Validate(); err != nil {
		logrus.Fatalln(err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalln(err)
	}

	if batchSize < 1 {
		log.Fatalln(fmt.Errorf("batch size must be positive, got %d", batchSize))
	}

	b, err := inference.New(cfg.Inference)
	if err != nil {
		log.Fatalln(err)
	}
	defer b.Close()

	c := &classifier{
		backend:   b,
		log:       log,
		batchSize: batchSize,
		quiet:     quiet,
	}

	if err := c.run(input, output, metricsPath); err != nil {
		log.Fatalln(err)
	}
}
