package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/carbocation/ecgseg/config"
	"github.com/carbocation/ecgseg/ecgsignal"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const testFs = 360

var testSynth = ecgsignal.Synth{Fs: testFs, HeartRate: 72, Noise: 0.02}

func newTestServer(t *testing.T, configure func(*config.Config)) *httptest.Server {
	t.Helper()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if configure != nil {
		configure(cfg)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	s, err := newServer(cfg, log, prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(s.router())
	t.Cleanup(ts.Close)

	return ts
}

func postJSON(t *testing.T, url string, v interface{}) *http.Response {
	t.Helper()

	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}

	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}

	var health struct{ Status string }
	decode(t, resp, &health)
	if health.Status != "ok" {
		t.Fatalf("Expected status ok, got %q", health.Status)
	}
}

func TestPeaks(t *testing.T) {
	ts := newTestServer(t, nil)

	n := 20 * testFs
	truth := testSynth.RPeaks(n)
	signal := testSynth.Generate(n)

	var fromJSON PeaksResponse
	decode(t, postJSON(t, ts.URL+"/v1/peaks", SignalRequest{Fs: testFs, Samples: signal}), &fromJSON)

	if fromJSON.Samples != n || fromJSON.Fs != testFs {
		t.Fatalf("Unexpected response metadata %+v", fromJSON)
	}
	if d := len(truth) - len(fromJSON.Peaks); d < 0 || d > 1 {
		t.Fatalf("Expected about %d peaks, got %d", len(truth), len(fromJSON.Peaks))
	}
	if hr := 60000 / fromJSON.Rhythm.MedianRR; math.Abs(hr-72) > 1 {
		t.Fatalf("Expected a median heart rate near 72, got %f", hr)
	}

	var table strings.Builder
	table.WriteString("Time,Amplitude\n")
	for i, v := range signal {
		fmt.Fprintf(&table, "%.6f,%.6f\n", float64(i)/testFs, v)
	}

	resp, err := http.Post(ts.URL+"/v1/peaks?fs=360", "text/csv", strings.NewReader(table.String()))
	if err != nil {
		t.Fatal(err)
	}

	var fromCSV PeaksResponse
	decode(t, resp, &fromCSV)
	if len(fromCSV.Peaks) != len(fromJSON.Peaks) {
		t.Fatalf("CSV and JSON bodies disagree:\n%v\n%v", fromCSV.Peaks, fromJSON.Peaks)
	}
	for i := range fromCSV.Peaks {
		if d := fromCSV.Peaks[i] - fromJSON.Peaks[i]; d < -1 || d > 1 {
			t.Fatalf("Peak %d: %d from CSV, %d from JSON", i, fromCSV.Peaks[i], fromJSON.Peaks[i])
		}
	}
}

func TestSegments(t *testing.T) {
	ts := newTestServer(t, nil)

	signal := testSynth.Generate(10 * testFs)

	var got SegmentsResponse
	decode(t, postJSON(t, ts.URL+"/v1/segments?segment_size=200", SignalRequest{Fs: testFs, Samples: signal}), &got)

	if got.SegmentSize != 200 || len(got.Segments) == 0 || len(got.Segments) != len(got.Peaks) {
		t.Fatalf("Unexpected response: size %d, %d segments, %d peaks", got.SegmentSize, len(got.Segments), len(got.Peaks))
	}
	for i, segment := range got.Segments {
		if len(segment) != 200 {
			t.Fatalf("Segment %d has %d samples", i, len(segment))
		}
		if segment[100] != signal[got.Peaks[i]] {
			t.Fatalf("Segment %d is not centred on peak %d", i, got.Peaks[i])
		}
	}

	b, _ := json.Marshal(SignalRequest{Fs: testFs, Samples: signal})
	resp, err := http.Post(ts.URL+"/v1/segments?segment_size=200&format=csv", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if lines[0] != "segment,peak,offset,value" || len(lines) != 1+200*len(got.Segments) {
		t.Fatalf("Unexpected CSV: header %q, %d lines", lines[0], len(lines))
	}
}

func TestPeaksCardiologyXML(t *testing.T) {
	ts := newTestServer(t, nil)

	synth := ecgsignal.Synth{Fs: 250, HeartRate: 72, Noise: 0.02}
	n := 10 * 250
	values := make([]string, n)
	for i, v := range synth.Generate(n) {
		values[i] = strconv.Itoa(int(math.Round(v / 0.005)))
	}

	body := `<?xml version="1.0" encoding="ISO-8859-1"?>
<CardiologyXML>
	<StripData>
		<SampleRate units="Hz">250</SampleRate>
		<Resolution units="uVperLsb">5</Resolution>
		<WaveformData lead="I">0,0,0</WaveformData>
		<WaveformData lead="II">` + strings.Join(values, ",") + `</WaveformData>
	</StripData>
</CardiologyXML>`

	resp, err := http.Post(ts.URL+"/v1/peaks?lead=II", "application/xml", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}

	var out PeaksResponse
	decode(t, resp, &out)
	if out.Fs != 250 || out.Samples != n {
		t.Fatalf("Unexpected response metadata fs=%f samples=%d", out.Fs, out.Samples)
	}
	if hr := 60000 / out.Rhythm.MedianRR; math.Abs(hr-72) > 1 {
		t.Fatalf("Expected a median heart rate near 72, got %f", hr)
	}
}

func TestRejects(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Server.MaxBodyBytes = 1 << 10 })

	for _, v := range []struct {
		Name        string
		Path        string
		ContentType string
		Body        string
		Expected    int
	}{
		{"bad json", "/v1/peaks", "application/json", "{", http.StatusBadRequest},
		{"no fs", "/v1/peaks", "application/json", `{"samples":[1,2,3]}`, http.StatusBadRequest},
		{"bad fs", "/v1/peaks?fs=-3", "application/json", `{"samples":[1,2,3]}`, http.StatusBadRequest},
		{"cutoff above nyquist", "/v1/peaks", "application/json", `{"fs":50,"samples":[1,2,3]}`, http.StatusBadRequest},
		{"bad segment size", "/v1/segments?segment_size=1", "application/json", `{"fs":360,"samples":[1,2,3]}`, http.StatusBadRequest},
		{"missing columns", "/v1/peaks", "text/csv", "a,b\n1,2\n", http.StatusBadRequest},
		{"bad value", "/v1/peaks", "text/csv", "time,amplitude\n0,1\n1,x\n", http.StatusBadRequest},
		{"bad xml", "/v1/peaks", "application/xml", "<CardiologyXML><StripData>", http.StatusBadRequest},
		{"missing lead", "/v1/peaks?lead=V6", "text/xml", `<CardiologyXML><StripData><SampleRate>250</SampleRate><WaveformData lead="I">0,1</WaveformData></StripData></CardiologyXML>`, http.StatusBadRequest},
		{"too large", "/v1/peaks", "application/json", `{"fs":360,"samples":[` + strings.Repeat("0,", 1024) + `0]}`, http.StatusRequestEntityTooLarge},
	} {
		resp, err := http.Post(ts.URL+v.Path, v.ContentType, strings.NewReader(v.Body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if resp.StatusCode != v.Expected {
			t.Fatalf("%s: expected status %d, got %d", v.Name, v.Expected, resp.StatusCode)
		}
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/v1/peaks", SignalRequest{Fs: testFs, Samples: testSynth.Generate(5 * testFs)})
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`ecgseg_http_requests_total{code="200",method="POST",route="peaks"} 1`,
		"ecgseg_peaks_detected_total",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("Expected %q in the metrics output", want)
		}
	}
}

func dialMonitor(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/monitor" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestMonitor(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dialMonitor(t, ts, "?fs=360")

	signal := testSynth.Generate(12 * testFs)

	var rates []float64
	for start := 0; start < len(signal); start += testFs {
		if err := conn.WriteJSON(MonitorBatch{Samples: signal[start : start+testFs]}); err != nil {
			t.Fatal(err)
		}

		var update MonitorUpdate
		if err := conn.ReadJSON(&update); err != nil {
			t.Fatal(err)
		}
		if update.Error != "" {
			t.Fatalf("Unexpected error %q", update.Error)
		}
		if update.Samples != start+testFs {
			t.Fatalf("Expected %d samples processed, got %d", start+testFs, update.Samples)
		}

		for _, b := range update.Beats {
			if b.Sample >= 3*testFs {
				rates = append(rates, b.BPM)
			}
		}
	}

	if len(rates) < 5 {
		t.Fatalf("Expected beats after warm-up, got %d", len(rates))
	}
	sort.Float64s(rates)
	if median := rates[len(rates)/2]; math.Abs(median-72) > 1 {
		t.Fatalf("Expected a median heart rate near 72, got %f (%v)", median, rates)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `ecgseg_metric_value{name="monitor_heart_rate_bpm"}`) {
		t.Fatalf("Expected the monitor heart rate gauge in the metrics output")
	}
}

func TestMonitorWithoutSamplingRate(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dialMonitor(t, ts, "")

	if err := conn.WriteJSON(MonitorBatch{Samples: []float64{0, 1, 0}}); err != nil {
		t.Fatal(err)
	}

	var update MonitorUpdate
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatal(err)
	}
	if update.Error == "" {
		t.Fatalf("Expected an error without a sampling rate")
	}
}
