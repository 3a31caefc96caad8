package ecgio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/carbocation/ecgseg"
	"github.com/carbocation/pfx"
	"github.com/montanaflynn/stats"
)

const (
	TimeColumn      = "time"
	AmplitudeColumn = "amplitude"

	sniffBytes = 64 * 1024
)

func loadTabular(ctx context.Context, path string, opts LoadOptions) (*Record, error) {
	f, _, err := ecgseg.Open(ctx, path, opts.StorageClient)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	rc, err := ecgseg.MaybeDecompressReadCloser(f)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %v", path, err))
	}
	defer rc.Close()

	rec, err := ReadTabular(rc, opts.Fs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rec.Name = recordName(path)

	return rec, nil
}

// ReadTabular parses a delimited table with time and amplitude columns, in
// any order and any letter case. Time values are seconds or timestamps. When
// fs is zero the sampling rate is inferred from the median time step.
func ReadTabular(r io.Reader, fs float64) (*Record, error) {
	br := bufio.NewReaderSize(r, sniffBytes)
	head, err := br.Peek(sniffBytes)
	if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}

	reader := csv.NewReader(br)
	reader.Comma = ecgseg.DetermineDelimiter(bytes.NewReader(head))
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumns)
	} else if err != nil {
		return nil, fmt.Errorf("header parsing error: %v", err)
	}

	return parseTable(header, reader.Read, fs)
}

// parseTable reads rows from next until io.EOF. Row numbers in errors count
// the header as line 1.
func parseTable(header []string, next func() ([]string, error), fs float64) (*Record, error) {
	timeCol, ampCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case TimeColumn:
			timeCol = i
		case AmplitudeColumn:
			ampCol = i
		}
	}
	if timeCol < 0 || ampCol < 0 {
		return nil, fmt.Errorf("%w: need %q and %q, found %q", ErrMissingColumns, TimeColumn, AmplitudeColumn, header)
	}

	rec := &Record{}
	var parseTime func(string) (float64, error)

	for line := 2; ; line++ {
		row, err := next()
		if err == io.EOF {
			break
		} else if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			return nil, err
		}
		if timeCol >= len(row) || ampCol >= len(row) {
			return nil, fmt.Errorf("%w: line %d: expected at least %d columns, found %d", ErrMalformed, line, max(timeCol, ampCol)+1, len(row))
		}

		amp, err := strconv.ParseFloat(strings.TrimSpace(row[ampCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: amplitude: %v", ErrMalformed, line, err)
		}

		value := strings.TrimSpace(row[timeCol])
		if parseTime == nil {
			parseTime, err = timeParser(value, rec)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: time: %v", ErrMalformed, line, err)
			}
		}
		t, err := parseTime(value)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: time: %v", ErrMalformed, line, err)
		}

		rec.Signal = append(rec.Signal, amp)
		rec.Time = append(rec.Time, t)
	}

	rec.Fs = fs
	if rec.Fs <= 0 {
		var err error
		if rec.Fs, err = InferFs(rec.Time); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	return rec, nil
}

// timeParser picks, from the first value, how the time column is read.
// Numeric values are seconds; anything else must be a timestamp, and later
// rows are measured from the first one.
func timeParser(first string, rec *Record) (func(string) (float64, error), error) {
	if _, err := strconv.ParseFloat(first, 64); err == nil {
		return func(s string) (float64, error) {
			return strconv.ParseFloat(s, 64)
		}, nil
	}

	start, err := dateparse.ParseAny(first)
	if err != nil {
		return nil, err
	}
	rec.Start = start

	return func(s string) (float64, error) {
		t, err := dateparse.ParseAny(s)
		if err != nil {
			return 0, err
		}
		return t.Sub(start).Seconds(), nil
	}, nil
}

// InferFs returns the sampling rate implied by the median step between time
// values given in seconds.
func InferFs(times []float64) (float64, error) {
	if len(times) < 2 {
		return 0, fmt.Errorf("cannot infer a sampling rate from %d time values", len(times))
	}

	steps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		steps = append(steps, times[i]-times[i-1])
	}

	step, err := stats.Median(steps)
	if err != nil {
		return 0, err
	}
	if !(step > 0) {
		return 0, fmt.Errorf("time column does not increase (median step %g)", step)
	}

	return 1 / step, nil
}

// Timestamp returns the wall clock time of sample i for records whose time
// column held timestamps.
func (r *Record) Timestamp(i int) time.Time {
	if r.Start.IsZero() || i < 0 || i >= len(r.Time) {
		return time.Time{}
	}
	return r.Start.Add(time.Duration(r.Time[i] * float64(time.Second)))
}
