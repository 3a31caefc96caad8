package ecgio

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/carbocation/ecgseg"
	"github.com/carbocation/pfx"
	"golang.org/x/net/html/charset"
)

// cardiologyXML is the part of a CardioSoft resting ECG export that holds the
// 10 second rhythm strip.
type cardiologyXML struct {
	XMLName             xml.Name `xml:"CardiologyXML"`
	ObservationDateTime struct {
		Hour   string `xml:"Hour"`
		Minute string `xml:"Minute"`
		Second string `xml:"Second"`
		Day    string `xml:"Day"`
		Month  string `xml:"Month"`
		Year   string `xml:"Year"`
	} `xml:"ObservationDateTime"`
	StripData struct {
		SampleRate struct {
			Text  string `xml:",chardata"` // 500
			Units string `xml:"units,attr"`
		} `xml:"SampleRate"`
		Resolution struct {
			Text  string `xml:",chardata"` // 5
			Units string `xml:"units,attr"`
		} `xml:"Resolution"`
		WaveformData []struct {
			Text string `xml:",chardata"` // 0,0,-2,-3,0,7,9,5,6,10,11...
			Lead string `xml:"lead,attr"`
		} `xml:"WaveformData"`
	} `xml:"StripData"`
}

func loadCardiologyXML(ctx context.Context, path string, opts LoadOptions) (*Record, error) {
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

	rec, err := ReadCardiologyXML(rc, opts.Lead, opts.Channel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rec.Name = recordName(path)

	return rec, nil
}

// ReadCardiologyXML reads one lead of the rhythm strip of a CardioSoft XML
// export. The lead is chosen by name (e.g. "II") when lead is set, otherwise
// by its position among the strip's leads. Samples are converted to mV.
func ReadCardiologyXML(r io.Reader, lead string, channel int) (*Record, error) {
	// The exports declare ISO-8859-1, which encoding/xml cannot read without
	// the charset.NewReaderLabel
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel

	doc := cardiologyXML{}
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	strip := doc.StripData
	if len(strip.WaveformData) == 0 {
		return nil, fmt.Errorf("%w: no strip data", ErrMissingColumns)
	}

	idx := -1
	if lead != "" {
		for i, w := range strip.WaveformData {
			if strings.EqualFold(strings.TrimSpace(w.Lead), lead) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: lead %s not found", ErrMissingColumns, lead)
		}
	} else {
		if channel < 0 || channel >= len(strip.WaveformData) {
			return nil, fmt.Errorf("%w: channel %d requested but the strip has %d leads", ErrMissingColumns, channel, len(strip.WaveformData))
		}
		idx = channel
	}

	fs, err := strconv.ParseFloat(strings.TrimSpace(strip.SampleRate.Text), 64)
	if err != nil || !(fs > 0) {
		return nil, fmt.Errorf("%w: sample rate %q", ErrMalformed, strip.SampleRate.Text)
	}

	correction := voltageCorrection(strip.Resolution.Text, strip.Resolution.Units)

	fields := strings.Split(strip.WaveformData[idx].Text, ",")
	signal := make([]float64, 0, len(fields))
	for i, v := range fields {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		digital, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: lead %s sample %d: %q", ErrMalformed, strip.WaveformData[idx].Lead, i, v)
		}
		signal = append(signal, digital*correction)
	}

	return &Record{
		Signal: signal,
		Fs:     fs,
		Start:  observationTime(doc),
		Units:  "mV",
	}, nil
}

// voltageCorrection converts stored values to mV. Only uVperLsb resolutions
// are understood; anything else is taken to be mV already.
func voltageCorrection(value, units string) float64 {
	if units == "uVperLsb" {
		if vc, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return 0.001 * vc
		}
	}

	return 1.0
}

func observationTime(doc cardiologyXML) time.Time {
	o := doc.ObservationDateTime
	parts := []string{o.Year, o.Month, o.Day, o.Hour, o.Minute, o.Second}
	vals := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}
		}
		vals[i] = v
	}

	return time.Date(vals[0], time.Month(vals[1]), vals[2], vals[3], vals[4], vals[5], 0, time.UTC)
}
