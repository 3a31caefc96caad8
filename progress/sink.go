package progress

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// TSVSink writes one "name<TAB>step<TAB>value" line per metric, after a
// header line.
type TSVSink struct {
	mu          sync.Mutex
	w           io.Writer
	wroteHeader bool
}

func NewTSVSink(w io.Writer) *TSVSink {
	return &TSVSink{w: w}
}

func (s *TSVSink) Write(name string, value float64, step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wroteHeader {
		if _, err := fmt.Fprintln(s.w, "name\tstep\tvalue"); err != nil {
			return err
		}
		s.wroteHeader = true
	}

	_, err := fmt.Fprintf(s.w, "%s\t%d\t%s\n", name, step, strconv.FormatFloat(value, 'g', -1, 64))
	return err
}

// PrometheusSink exposes the latest value and step of each metric as gauges
// labelled by metric name.
type PrometheusSink struct {
	Value *prometheus.GaugeVec
	Step  *prometheus.GaugeVec
}

// NewPrometheusSink registers the sink's gauges with reg.
func NewPrometheusSink(reg prometheus.Registerer, namespace string) (*PrometheusSink, error) {
	s := &PrometheusSink{
		Value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_value",
			Help:      "Latest recorded value of a named metric.",
		}, []string{"name"}),
		Step: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_step",
			Help:      "Step at which a named metric was last recorded.",
		}, []string{"name"}),
	}

	for _, c := range []prometheus.Collector{s.Value, s.Step} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *PrometheusSink) Write(name string, value float64, step int) error {
	s.Value.WithLabelValues(name).Set(value)
	s.Step.WithLabelValues(name).Set(float64(step))
	return nil
}

// LogSink logs each metric at info level.
type LogSink struct {
	Log logrus.FieldLogger
}

func (s LogSink) Write(name string, value float64, step int) error {
	s.Log.WithFields(logrus.Fields{
		"metric": name,
		"value":  value,
		"step":   step,
	}).Infoln("Recorded metric")
	return nil
}

// MultiSink writes to every sink, even when an earlier one fails.
type MultiSink []Sink

func (m MultiSink) Write(name string, value float64, step int) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(name, value, step); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
