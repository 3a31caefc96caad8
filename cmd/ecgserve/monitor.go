package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carbocation/ecgseg/ecgsignal"
	"github.com/carbocation/ecgseg/logging"
	"github.com/gorilla/websocket"
)

const (
	monitorWriteWait = time.Second
	heartRateMetric  = "monitor_heart_rate_bpm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MonitorBatch is a message from a monitor client: the next samples of its
// stream, and, on the first message if not given as ?fs=, the sampling rate.
type MonitorBatch struct {
	Fs      float64   `json:"fs,omitempty"`
	Samples []float64 `json:"samples"`
}

type Beat struct {
	Sample int     `json:"sample"`
	BPM    float64 `json:"bpm"`
}

// MonitorUpdate answers each batch.
type MonitorUpdate struct {
	Samples int     `json:"samples"`
	Beats   []Beat  `json:"beats"`
	BPM     float64 `json:"bpm,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// monitor is the per-connection stream state.
type monitor struct {
	filter  *ecgsignal.StreamFilter
	tracker *ecgsignal.BeatTracker
	samples int
	bpm     float64
}

func (s *server) newMonitor(fs float64) (*monitor, error) {
	filter, err := ecgsignal.NewStreamFilter(fs, s.cfg.Peaks.LowCutHz, s.cfg.Peaks.HighCutHz)
	if err != nil {
		return nil, err
	}

	return &monitor{filter: filter, tracker: ecgsignal.NewBeatTracker(fs)}, nil
}

func (m *monitor) process(samples []float64) []Beat {
	beats := []Beat{}
	for _, v := range samples {
		if bpm, ok := m.tracker.Process(m.filter.Next(v)); ok {
			beats = append(beats, Beat{Sample: m.samples, BPM: bpm})
			m.bpm = bpm
		}
		m.samples++
	}

	return beats
}

// Monitor streams heart-rate updates for samples sent over a websocket.
func (s *server) Monitor(w http.ResponseWriter, r *http.Request) {
	log := logging.WithRequest(s.log, r)

	var fs float64
	if v := r.URL.Query().Get("fs"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || !(parsed > 0) {
			http.Error(w, fmt.Sprintf("fs must be a positive number, got %q", v), http.StatusBadRequest)
			return
		}
		fs = parsed
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Infoln("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.metrics.monitors.Inc()
	defer s.metrics.monitors.Dec()
	log.Infoln("Monitor connected")

	var m *monitor
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Infoln("Monitor read ended")
			}
			return
		}

		var batch MonitorBatch
		if err := json.Unmarshal(payload, &batch); err != nil {
			if s.send(conn, MonitorUpdate{Error: err.Error()}) != nil {
				return
			}
			continue
		}

		if m == nil {
			if batch.Fs > 0 {
				fs = batch.Fs
			}
			m, err = s.newMonitor(fs)
			if err != nil {
				s.send(conn, MonitorUpdate{Error: err.Error()})
				return
			}
		}

		beats := m.process(batch.Samples)
		for _, b := range beats {
			if _, err := s.tracker.Record(heartRateMetric, b.BPM, b.Sample); err != nil {
				log.WithError(err).Warnln("Could not record heart rate")
			}
		}

		if err := s.send(conn, MonitorUpdate{Samples: m.samples, Beats: beats, BPM: m.bpm}); err != nil {
			log.WithError(err).Infoln("Monitor write failed")
			return
		}
	}
}

func (s *server) send(conn *websocket.Conn, update MonitorUpdate) error {
	if err := conn.SetWriteDeadline(time.Now().Add(monitorWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(update)
}
