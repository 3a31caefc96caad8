// ecgmonitor reports the heart rate of a live single-lead ECG stream. Samples
// are read from stdin, one per line, or generated with -synth. Beats are
// detected locally, or by an ecgserve instance given with -connect.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	_ "github.com/carbocation/ecgseg/compileinfoprint"
	"github.com/carbocation/ecgseg/config"
	"github.com/carbocation/ecgseg/ecgsignal"
	"github.com/carbocation/ecgseg/logging"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath string
		fs         float64
		synth      bool
		heartRate  float64
		noise      float64
		duration   float64
		realtime   bool
		batch      int
		connect    string
	)

	flag.StringVar(&configPath, "config", "", "(Optional) YAML configuration file")
	flag.Float64Var(&fs, "fs", 250, "Sampling rate of the stream in Hz")
	flag.BoolVar(&synth, "synth", false, "Generate a synthetic ECG instead of reading stdin?")
	flag.Float64Var(&heartRate, "hr", 72, "With -synth, the heart rate in beats per minute")
	flag.Float64Var(&noise, "noise", 0.02, "With -synth, the noise amplitude relative to the R wave")
	flag.Float64Var(&duration, "duration", 0, "(Optional) Stop after this many seconds of signal. 0 runs until the input ends or the program is interrupted")
	flag.BoolVar(&realtime, "realtime", false, "With -synth, emit samples at the sampling rate rather than as fast as possible?")
	flag.IntVar(&batch, "batch", 25, "Number of samples processed, or sent to the server, at once")
	flag.StringVar(&connect, "connect", "", "(Optional) Websocket URL of an ecgserve monitor, e.g. ws://localhost:8080/v1/monitor")
	flag.Parse()

	if err := config.LoadDotEnv(""); err != nil {
		logrus.Fatalln(err)
	}

	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		logrus.Fatalln(err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalln(err)
	}

	if !(fs > 0) || batch < 1 {
		log.Fatalln(fmt.Errorf("fs and batch must be positive, got %g and %d", fs, batch))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var src source
	if synth {
		s := &synthSource{synth: ecgsignal.Synth{Fs: fs, HeartRate: heartRate, Noise: noise, Wander: 0.1}}
		if realtime {
			s.period = time.Duration(float64(time.Second) / fs)
		}
		src = s
	} else {
		src = newReaderSource(os.Stdin)
	}

	if duration > 0 {
		src = &limitSource{source: src, remaining: int(duration * fs)}
	}

	var det detector
	if connect != "" {
		remote, err := dialRemote(ctx, connect, fs)
		if err != nil {
			log.Fatalln(err)
		}
		defer remote.Close()
		det = remote
	} else {
		local, err := newLocalDetector(fs, cfg.Peaks.LowCutHz, cfg.Peaks.HighCutHz)
		if err != nil {
			log.Fatalln(err)
		}
		det = local
	}

	log.WithFields(logrus.Fields{"fs": fs, "synth": synth, "remote": connect != ""}).Infoln("Monitoring")

	if err := monitor(ctx, src, det, batch, fs, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalln(err)
	}
}

// monitor feeds batches from src to det until src is exhausted, writing one
// line per detected beat to w.
func monitor(ctx context.Context, src source, det detector, batch int, fs float64, w io.Writer) error {
	fmt.Fprintln(w, "sample\ttime_s\tbpm")

	buf := make([]float64, batch)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := src.Read(ctx, buf)
		if n > 0 {
			beats, derr := det.Detect(buf[:n])
			if derr != nil {
				return derr
			}
			for _, b := range beats {
				fmt.Fprintf(w, "%d\t%.3f\t%.1f\n", b.Sample, float64(b.Sample)/fs, b.BPM)
			}
		}

		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}
