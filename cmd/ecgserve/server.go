package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/carbocation/ecgseg/compileinfo"
	"github.com/carbocation/ecgseg/config"
	"github.com/carbocation/ecgseg/progress"
	"github.com/gorilla/mux"
	"github.com/interpose/middleware"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "ecgseg"

type server struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	registry *prometheus.Registry
	metrics  *metrics
	build    compileinfo.CompileInfo

	// tracker publishes the live monitor heart rate as a gauge.
	tracker *progress.Tracker
}

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	peaks    prometheus.Counter
	segments prometheus.Counter
	monitors prometheus.Gauge
}

func newServer(cfg *config.Config, log logrus.FieldLogger, registry *prometheus.Registry) (*server, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		peaks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peaks_detected_total",
			Help:      "R-peaks detected across all requests.",
		}),
		segments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_extracted_total",
			Help:      "Beat segments returned across all requests.",
		}),
		monitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_connections",
			Help:      "Open heart-rate monitor websockets.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.requests, m.duration, m.peaks, m.segments, m.monitors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	sink, err := progress.NewPrometheusSink(registry, namespace)
	if err != nil {
		return nil, err
	}

	return &server{
		cfg:      cfg,
		log:      log,
		registry: registry,
		metrics:  m,
		build:    compileinfo.Get(),
		tracker:  progress.NewTracker(sink),
	}, nil
}

func (s *server) router() http.Handler {
	router := mux.NewRouter()
	router.Use(s.instrument)

	POST := router.Methods("POST").Subrouter()
	GET := router.Methods("GET", "HEAD").Subrouter()

	GET.HandleFunc("/healthz", s.Healthz).Name("healthz")
	GET.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Name("metrics")

	POST.HandleFunc("/v1/peaks", s.Peaks).Name("peaks")
	POST.HandleFunc("/v1/segments", s.Segments).Name("segments")

	standard := alice.New(
		// Log all requests to STDOUT
		middleware.GorillaLog(),
		s.limitBody,
	)

	// The monitor hijacks its connection, which the logging middleware's
	// response writer does not support.
	root := mux.NewRouter()
	root.HandleFunc("/v1/monitor", s.Monitor).Methods("GET")
	root.PathPrefix("/").Handler(standard.Then(router))

	return root
}

func (s *server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument counts and times requests by their route name.
func (s *server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if current := mux.CurrentRoute(r); current != nil && current.GetName() != "" {
			route = current.GetName()
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.metrics.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		s.metrics.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
