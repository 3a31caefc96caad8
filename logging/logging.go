// Package logging builds the logrus loggers shared by the command line tools
// and the HTTP server.
package logging

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJSON = "json"

	RequestIDHeader = "X-Request-ID"
)

type Options struct {
	// Level defaults to $LOG_LEVEL, then info.
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`

	// Format defaults to text when $ENVIRONMENT is unset or "local", and to
	// JSON otherwise.
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`

	// Output defaults to stderr so that tool output on stdout stays clean.
	Output io.Writer `yaml:"-"`
}

// New returns a logger configured by opts.
func New(opts Options) (*logrus.Logger, error) {
	log := logrus.New()

	level := opts.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(parsed)

	format := opts.Format
	if format == "" {
		if env := os.Getenv("ENVIRONMENT"); env == "" || env == "local" {
			format = FormatText
		} else {
			format = FormatJSON
		}
	}
	if format == FormatJSON {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	}

	if opts.Output != nil {
		log.SetOutput(opts.Output)
	} else {
		log.SetOutput(os.Stderr)
	}

	return log, nil
}

// RequestID returns the request's X-Request-ID, or a new random id when the
// client did not send one.
func RequestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return uuid.New().String()
}

// WithRequest returns an entry annotated with the request's id, method and
// path.
func WithRequest(log logrus.FieldLogger, r *http.Request) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"req_id":    RequestID(r),
		"method":    r.Method,
		"path":      r.URL.Path,
		"remote_ip": r.RemoteAddr,
	})
}
