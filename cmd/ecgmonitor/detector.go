package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/carbocation/ecgseg/ecgsignal"
	"github.com/gorilla/websocket"
)

type Beat struct {
	Sample int     `json:"sample"`
	BPM    float64 `json:"bpm"`
}

type detector interface {
	Detect(samples []float64) ([]Beat, error)
}

// localDetector filters and tracks beats in process.
type localDetector struct {
	filter  *ecgsignal.StreamFilter
	tracker *ecgsignal.BeatTracker
	sample  int
}

func newLocalDetector(fs, lowCut, highCut float64) (*localDetector, error) {
	filter, err := ecgsignal.NewStreamFilter(fs, lowCut, highCut)
	if err != nil {
		return nil, err
	}

	return &localDetector{filter: filter, tracker: ecgsignal.NewBeatTracker(fs)}, nil
}

func (d *localDetector) Detect(samples []float64) ([]Beat, error) {
	var out []Beat
	for _, v := range samples {
		if bpm, ok := d.tracker.Process(d.filter.Next(v)); ok {
			out = append(out, Beat{Sample: d.sample, BPM: bpm})
		}
		d.sample++
	}

	return out, nil
}

// remoteDetector sends each batch to an ecgserve monitor and waits for its
// answer.
type remoteDetector struct {
	conn *websocket.Conn
}

type remoteBatch struct {
	Samples []float64 `json:"samples"`
}

type remoteUpdate struct {
	Samples int    `json:"samples"`
	Beats   []Beat `json:"beats"`
	Error   string `json:"error"`
}

const remoteTimeout = 10 * time.Second

func dialRemote(ctx context.Context, rawURL string, fs float64) (*remoteDetector, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("fs", strconv.FormatFloat(fs, 'g', -1, 64))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", rawURL, err)
	}

	return &remoteDetector{conn: conn}, nil
}

func (d *remoteDetector) Detect(samples []float64) ([]Beat, error) {
	d.conn.SetWriteDeadline(time.Now().Add(remoteTimeout))
	if err := d.conn.WriteJSON(remoteBatch{Samples: samples}); err != nil {
		return nil, err
	}

	d.conn.SetReadDeadline(time.Now().Add(remoteTimeout))
	var update remoteUpdate
	if err := d.conn.ReadJSON(&update); err != nil {
		return nil, err
	}
	if update.Error != "" {
		return nil, fmt.Errorf("monitor: %s", update.Error)
	}

	return update.Beats, nil
}

func (d *remoteDetector) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	d.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return d.conn.Close()
}
