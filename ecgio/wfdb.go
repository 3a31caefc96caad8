package ecgio

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/carbocation/ecgseg"
	"github.com/carbocation/pfx"
)

const (
	// DefaultWFDBFs applies when a header omits the sampling frequency.
	DefaultWFDBFs = 250.0

	// DefaultWFDBGain applies when a signal's ADC gain is missing or zero.
	DefaultWFDBGain = 200.0
)

// Header is a parsed single-segment WFDB header (.hea) file.
type Header struct {
	Name       string
	NumSignals int
	Fs         float64
	NumSamples int
	BaseTime   string
	BaseDate   string
	Signals    []SignalSpec
	Comments   []string
}

// SignalSpec describes one signal line of a header.
type SignalSpec struct {
	FileName        string
	Format          int
	SamplesPerFrame int
	Skew            int
	ByteOffset      int
	Gain            float64
	Baseline        int
	Units           string
	ADCResolution   int
	ADCZero         int
	InitialValue    int
	Checksum        int
	BlockSize       int
	Description     string
}

// ToPhysical converts a stored sample to physical units.
func (s SignalSpec) ToPhysical(digital int) float64 {
	return float64(digital-s.Baseline) / s.Gain
}

var (
	formatSpec = regexp.MustCompile(`^(\d+)(?:x(\d+))?(?::(\d+))?(?:\+(\d+))?$`)
	gainSpec   = regexp.MustCompile(`^([-+0-9.eE]+)(?:\((-?\d+)\))?(?:/(\S+))?$`)
)

// ParseHeader reads a WFDB header. Multi-segment headers are not supported.
func ParseHeader(r io.Reader) (*Header, error) {
	h := &Header{}

	scanner := bufio.NewScanner(r)
	sawRecordLine := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			h.Comments = append(h.Comments, strings.TrimSpace(strings.TrimPrefix(line, "#")))
			continue
		}

		fields := strings.Fields(line)
		if !sawRecordLine {
			if err := h.parseRecordLine(fields); err != nil {
				return nil, err
			}
			sawRecordLine = true
			continue
		}

		if len(h.Signals) == h.NumSignals {
			// Trailing lines of a multi-segment layout or stray text
			continue
		}

		spec, err := parseSignalLine(fields)
		if err != nil {
			return nil, fmt.Errorf("signal %d: %w", len(h.Signals), err)
		}
		h.Signals = append(h.Signals, spec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if !sawRecordLine {
		return nil, fmt.Errorf("%w: header has no record line", ErrUnsupportedFormat)
	}
	if len(h.Signals) != h.NumSignals {
		return nil, fmt.Errorf("header declares %d signals but describes %d", h.NumSignals, len(h.Signals))
	}

	return h, nil
}

func (h *Header) parseRecordLine(fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("%w: record line %q is too short", ErrUnsupportedFormat, strings.Join(fields, " "))
	}

	if strings.Contains(fields[0], "/") {
		return fmt.Errorf("%w: multi-segment record %s", ErrUnsupportedFormat, fields[0])
	}
	h.Name = fields[0]

	var err error
	if h.NumSignals, err = strconv.Atoi(fields[1]); err != nil {
		return fmt.Errorf("number of signals: %v", err)
	}

	h.Fs = DefaultWFDBFs
	if len(fields) > 2 {
		// 360, 360/720 (counter frequency) or 360/720(0) (base counter)
		fs := fields[2]
		if i := strings.IndexAny(fs, "/("); i >= 0 {
			fs = fs[:i]
		}
		if h.Fs, err = strconv.ParseFloat(fs, 64); err != nil {
			return fmt.Errorf("sampling frequency: %v", err)
		}
		if !(h.Fs > 0) {
			h.Fs = DefaultWFDBFs
		}
	}
	if len(fields) > 3 {
		if h.NumSamples, err = strconv.Atoi(fields[3]); err != nil {
			return fmt.Errorf("number of samples: %v", err)
		}
	}
	if len(fields) > 4 {
		h.BaseTime = fields[4]
	}
	if len(fields) > 5 {
		h.BaseDate = fields[5]
	}

	return nil
}

func parseSignalLine(fields []string) (SignalSpec, error) {
	spec := SignalSpec{SamplesPerFrame: 1, Gain: DefaultWFDBGain, Units: "mV"}
	if len(fields) < 2 {
		return spec, fmt.Errorf("%w: signal line %q is too short", ErrUnsupportedFormat, strings.Join(fields, " "))
	}
	spec.FileName = fields[0]

	m := formatSpec.FindStringSubmatch(fields[1])
	if m == nil {
		return spec, fmt.Errorf("%w: format %q", ErrUnsupportedFormat, fields[1])
	}
	spec.Format, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		spec.SamplesPerFrame, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		spec.Skew, _ = strconv.Atoi(m[3])
	}
	if m[4] != "" {
		spec.ByteOffset, _ = strconv.Atoi(m[4])
	}

	ints := []*int{&spec.ADCResolution, &spec.ADCZero, &spec.InitialValue, &spec.Checksum, &spec.BlockSize}
	for i, target := range ints {
		if len(fields) <= 3+i {
			break
		}
		v, err := strconv.Atoi(fields[3+i])
		if err != nil {
			return spec, fmt.Errorf("field %d: %v", 3+i, err)
		}
		*target = v
	}
	if len(fields) > 8 {
		spec.Description = strings.Join(fields[8:], " ")
	}

	// The baseline defaults to the ADC zero, so it is resolved last
	spec.Baseline = spec.ADCZero
	if len(fields) > 2 {
		g := gainSpec.FindStringSubmatch(fields[2])
		if g == nil {
			return spec, fmt.Errorf("gain %q", fields[2])
		}
		gain, err := strconv.ParseFloat(g[1], 64)
		if err != nil {
			return spec, fmt.Errorf("gain %q: %v", fields[2], err)
		}
		if gain != 0 {
			spec.Gain = gain
		}
		if g[2] != "" {
			spec.Baseline, _ = strconv.Atoi(g[2])
		}
		if g[3] != "" {
			spec.Units = g[3]
		}
	}

	return spec, nil
}

func loadWFDB(ctx context.Context, base string, opts LoadOptions) (*Record, error) {
	headerPath := base + ".hea"
	f, _, err := ecgseg.Open(ctx, headerPath, opts.StorageClient)
	if err != nil {
		return nil, pfx.Err(err)
	}
	h, err := ParseHeader(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", headerPath, err)
	}

	if opts.Channel < 0 || opts.Channel >= len(h.Signals) {
		return nil, fmt.Errorf("%s: channel %d requested but the record has %d signals", headerPath, opts.Channel, len(h.Signals))
	}
	spec := h.Signals[opts.Channel]

	// Signals stored in the same file are interleaved frame by frame
	stride, position := 0, 0
	for i, s := range h.Signals {
		if s.FileName != spec.FileName {
			continue
		}
		if s.Format != spec.Format {
			return nil, fmt.Errorf("%w: %s mixes formats %d and %d", ErrUnsupportedFormat, spec.FileName, spec.Format, s.Format)
		}
		if s.SamplesPerFrame != 1 {
			return nil, fmt.Errorf("%w: signal %d has %d samples per frame", ErrUnsupportedFormat, i, s.SamplesPerFrame)
		}
		if i == opts.Channel {
			position = stride
		}
		stride++
	}

	dataPath := sibling(headerPath, spec.FileName)
	df, _, err := ecgseg.Open(ctx, dataPath, opts.StorageClient)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer df.Close()

	if spec.ByteOffset > 0 {
		if _, err := df.Seek(int64(spec.ByteOffset), io.SeekStart); err != nil {
			return nil, pfx.Err(err)
		}
	}

	data, err := io.ReadAll(df)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %v", dataPath, err))
	}

	digital, err := decodeSamples(data, spec.Format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dataPath, err)
	}

	signal := make([]float64, 0, len(digital)/stride+1)
	for i := position; i < len(digital); i += stride {
		signal = append(signal, spec.ToPhysical(digital[i]))
	}
	if h.NumSamples > 0 && len(signal) > h.NumSamples {
		signal = signal[:h.NumSamples]
	}

	return &Record{
		Name:   h.Name,
		Signal: signal,
		Fs:     h.Fs,
		Units:  spec.Units,
	}, nil
}

// decodeSamples unpacks a WFDB signal file into stored sample values, in file
// order.
func decodeSamples(data []byte, format int) ([]int, error) {
	switch format {
	case 16:
		out := make([]int, len(data)/2)
		for i := range out {
			out[i] = int(int16(binary.LittleEndian.Uint16(data[2*i:])))
		}
		return out, nil

	case 61:
		out := make([]int, len(data)/2)
		for i := range out {
			out[i] = int(int16(binary.BigEndian.Uint16(data[2*i:])))
		}
		return out, nil

	case 80:
		out := make([]int, len(data))
		for i, b := range data {
			out[i] = int(b) - 128
		}
		return out, nil

	case 212:
		// Pairs of 12 bit samples in 3 bytes. The middle byte carries the high
		// nibble of the first sample in its low bits and of the second in its
		// high bits.
		out := make([]int, 0, 2*len(data)/3+1)
		for i := 0; i+1 < len(data); i += 3 {
			out = append(out, signExtend12(int(data[i])|int(data[i+1]&0x0f)<<8))
			if i+2 < len(data) {
				out = append(out, signExtend12(int(data[i+2])|int(data[i+1]&0xf0)<<4))
			}
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: WFDB signal format %d", ErrUnsupportedFormat, format)
}

func signExtend12(v int) int {
	if v > 2047 {
		v -= 4096
	}
	return v
}
