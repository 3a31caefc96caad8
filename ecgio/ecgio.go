// Package ecgio loads single-lead ECG records from tabular text files and
// from WFDB records, locally or from Google Storage.
package ecgio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMissingColumns    = fmt.Errorf("%w: missing required columns", ErrUnsupportedFormat)

	// ErrMalformed marks content that could not be parsed.
	ErrMalformed = errors.New("malformed record")
)

// Record is one lead of an ECG recording.
type Record struct {
	Name   string
	Signal []float64
	Fs     float64

	// Time holds the time column of tabular records, in seconds from the
	// first row. It is nil for WFDB records, whose samples are evenly spaced.
	Time []float64

	// Start is set when tabular time values were timestamps rather than
	// seconds.
	Start time.Time

	Units string
}

// Duration is the length of the record.
func (r *Record) Duration() time.Duration {
	if r.Fs <= 0 {
		return 0
	}
	return time.Duration(float64(len(r.Signal)) / r.Fs * float64(time.Second))
}

type LoadOptions struct {
	// Fs overrides the sampling rate inferred from tabular time columns. It is
	// ignored for WFDB records, whose header is authoritative.
	Fs float64

	// Channel selects the WFDB signal, or the position of the CardioSoft XML
	// lead, to load.
	Channel int

	// Lead selects a CardioSoft XML lead by name and takes precedence over
	// Channel.
	Lead string

	// StorageClient is required for gs:// paths.
	StorageClient *storage.Client
}

// compressionSuffixes are stripped before the format is chosen. The content,
// not the name, decides how the file is decompressed.
var compressionSuffixes = []string{".gz", ".bz2", ".xz", ".zip", ".z"}

// Format returns the lower-cased extension that decides how path is parsed.
func Format(path string) string {
	lower := strings.ToLower(path)
	for _, suffix := range compressionSuffixes {
		if strings.HasSuffix(lower, suffix) {
			lower = strings.TrimSuffix(lower, suffix)
			break
		}
	}

	return filepath.Ext(lower)
}

// Load reads one record. Tabular files (.csv, .tsv, .txt, optionally
// compressed, or the first sheet of an .xlsx workbook) need a time and an
// amplitude column. WFDB records may be named by their .hea or .dat file.
// CardioSoft .xml exports contribute one lead of their rhythm strip.
func Load(ctx context.Context, path string, opts LoadOptions) (*Record, error) {
	switch ext := Format(path); ext {
	case ".csv", ".tsv", ".txt":
		return loadTabular(ctx, path, opts)
	case ".xlsx":
		return loadWorkbook(ctx, path, opts)
	case ".xml":
		return loadCardiologyXML(ctx, path, opts)
	case ".hea", ".dat":
		return loadWFDB(ctx, strings.TrimSuffix(path, filepath.Ext(path)), opts)
	default:
		return nil, fmt.Errorf("%w: %s has extension %q", ErrUnsupportedFormat, path, ext)
	}
}

// recordName is the final path element of path, minus its extensions.
func recordName(path string) string {
	name := path[strings.LastIndex(path, "/")+1:]
	if i := strings.Index(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}

// sibling replaces the final path element of path with name. It works for
// gs:// paths as well as local ones.
func sibling(path, name string) string {
	return path[:strings.LastIndex(path, "/")+1] + name
}
