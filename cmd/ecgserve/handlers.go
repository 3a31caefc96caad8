package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/carbocation/ecgseg/ecgio"
	"github.com/carbocation/ecgseg/ecgsignal"
	"github.com/carbocation/ecgseg/logging"
	"github.com/carbocation/ecgseg/rhythm"
	"github.com/gocarina/gocsv"
)

var errBadRequest = errors.New("bad request")

// SignalRequest is the JSON form of a request body. A text/csv (or any
// non-JSON) body is read as a time/amplitude table instead.
type SignalRequest struct {
	Fs      float64   `json:"fs"`
	Samples []float64 `json:"samples"`
}

type PeaksResponse struct {
	Fs      float64        `json:"fs"`
	Samples int            `json:"samples"`
	Peaks   []int          `json:"peaks"`
	Rhythm  rhythm.Summary `json:"rhythm"`
}

type SegmentsResponse struct {
	Fs          float64     `json:"fs"`
	SegmentSize int         `json:"segment_size"`
	Peaks       []int       `json:"peaks"`
	Segments    [][]float64 `json:"segments"`
}

// segmentRow is one line of the CSV form of /v1/segments.
type segmentRow struct {
	Segment int     `csv:"segment"`
	Peak    int     `csv:"peak"`
	Offset  int     `csv:"offset"`
	Value   float64 `csv:"value"`
}

func (s *server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string      `json:"status"`
		Build  interface{} `json:"build"`
	}{"ok", s.build})
}

func (s *server) Peaks(w http.ResponseWriter, r *http.Request) {
	rec, err := s.readSignal(r)
	if err != nil {
		s.httpError(w, r, err)
		return
	}

	peaks, err := ecgsignal.DetectRPeaks(rec.Signal, rec.Fs, s.cfg.Peaks.Options())
	if err != nil {
		s.httpError(w, r, err)
		return
	}
	s.metrics.peaks.Add(float64(len(peaks)))

	summary, err := rhythm.Summarize(peaks, rec.Fs)
	if err != nil {
		s.httpError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PeaksResponse{
		Fs:      rec.Fs,
		Samples: len(rec.Signal),
		Peaks:   peaks,
		Rhythm:  summary,
	})
}

// Segments detects peaks and returns the segment around each. The segment
// width may be set with ?segment_size=; ?format=csv returns long-format CSV.
func (s *server) Segments(w http.ResponseWriter, r *http.Request) {
	size := s.cfg.SegmentSize
	if v := r.URL.Query().Get("segment_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 {
			s.httpError(w, r, fmt.Errorf("%w: segment_size must be an integer of at least 2, got %q", errBadRequest, v))
			return
		}
		size = n
	}

	rec, err := s.readSignal(r)
	if err != nil {
		s.httpError(w, r, err)
		return
	}

	peaks, err := ecgsignal.DetectRPeaks(rec.Signal, rec.Fs, s.cfg.Peaks.Options())
	if err != nil {
		s.httpError(w, r, err)
		return
	}
	s.metrics.peaks.Add(float64(len(peaks)))

	segments, kept := ecgsignal.ExtractSegmentsIndexed(rec.Signal, peaks, size)
	s.metrics.segments.Add(float64(len(segments)))

	if r.URL.Query().Get("format") == "csv" {
		rows := make([]*segmentRow, 0, len(segments)*size)
		for i, segment := range segments {
			for j, v := range segment {
				rows = append(rows, &segmentRow{Segment: i, Peak: kept[i], Offset: j - size/2, Value: v})
			}
		}

		w.Header().Set("Content-Type", "text/csv")
		if err := gocsv.Marshal(&rows, w); err != nil {
			logging.WithRequest(s.log, r).WithError(err).Warnln("Could not write CSV")
		}
		return
	}

	writeJSON(w, http.StatusOK, SegmentsResponse{
		Fs:          rec.Fs,
		SegmentSize: size,
		Peaks:       kept,
		Segments:    segments,
	})
}

// readSignal decodes the request body. The sampling rate comes from the
// JSON body, then the ?fs= parameter, then the configuration; tables without
// any of these infer it from their time column.
func (s *server) readSignal(r *http.Request) (*ecgio.Record, error) {
	fs := s.cfg.Fs
	if v := r.URL.Query().Get("fs"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || !(parsed > 0) {
			return nil, fmt.Errorf("%w: fs must be a positive number, got %q", errBadRequest, v)
		}
		fs = parsed
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
	case "application/xml", "text/xml":
		lead := r.URL.Query().Get("lead")
		if lead == "" {
			lead = s.cfg.Lead
		}
		rec, err := ecgio.ReadCardiologyXML(r.Body, lead, s.cfg.Channel)
		if err != nil {
			return nil, err
		}
		rec.Name = "request"
		return rec, nil
	default:
		rec, err := ecgio.ReadTabular(r.Body, fs)
		if err != nil {
			return nil, err
		}
		rec.Name = "request"
		return rec, nil
	}

	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	if req.Fs > 0 {
		fs = req.Fs
	}
	if !(fs > 0) {
		return nil, fmt.Errorf("%w: a sampling rate is required", errBadRequest)
	}

	return &ecgio.Record{Name: "request", Signal: req.Samples, Fs: fs, Units: "mV"}, nil
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, ecgio.ErrUnsupportedFormat),
		errors.Is(err, ecgio.ErrMalformed),
		errors.Is(err, ecgsignal.ErrInvalidCutoff),
		errors.Is(err, ecgsignal.ErrInvalidWindow),
		errors.Is(err, ecgsignal.ErrNonFinite):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

func (s *server) httpError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	entry := logging.WithRequest(s.log, r).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Errorln("Request failed")
	} else {
		entry.Infoln("Rejected request")
	}

	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
