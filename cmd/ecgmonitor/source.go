package main

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/carbocation/ecgseg/ecgsignal"
)

type source interface {
	// Read fills buf with up to len(buf) samples. It returns io.EOF, possibly
	// alongside samples, once the stream ends.
	Read(ctx context.Context, buf []float64) (int, error)
}

// synthSource generates an endless synthetic ECG, optionally paced to the
// wall clock.
type synthSource struct {
	synth  ecgsignal.Synth
	period time.Duration
	cycle  []float64
	pos    int
}

func (s *synthSource) Read(ctx context.Context, buf []float64) (int, error) {
	if s.cycle == nil {
		// A minute of signal is generated once and replayed
		s.cycle = s.synth.Generate(int(60 * s.synth.Fs))
	}

	for i := range buf {
		buf[i] = s.cycle[s.pos%len(s.cycle)]
		s.pos++
	}

	if s.period > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(len(buf)) * s.period):
		}
	}

	return len(buf), nil
}

// readerSource parses one sample per line. For delimited lines the last
// field is used; lines that do not parse, such as a header, are skipped.
type readerSource struct {
	scanner *bufio.Scanner
}

func newReaderSource(r io.Reader) *readerSource {
	return &readerSource{scanner: bufio.NewScanner(r)}
}

func (s *readerSource) Read(_ context.Context, buf []float64) (int, error) {
	n := 0
	for n < len(buf) {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return n, err
			}
			return n, io.EOF
		}

		fields := strings.FieldsFunc(s.scanner.Text(), func(r rune) bool {
			return r == ',' || r == '\t' || r == ' '
		})
		if len(fields) == 0 {
			continue
		}

		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			continue
		}
		buf[n] = v
		n++
	}

	return n, nil
}

// limitSource stops after a fixed number of samples.
type limitSource struct {
	source    source
	remaining int
}

func (s *limitSource) Read(ctx context.Context, buf []float64) (int, error) {
	if s.remaining <= 0 {
		return 0, io.EOF
	}
	if len(buf) > s.remaining {
		buf = buf[:s.remaining]
	}

	n, err := s.source.Read(ctx, buf)
	s.remaining -= n
	if err == nil && s.remaining <= 0 {
		err = io.EOF
	}

	return n, err
}
