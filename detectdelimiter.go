package ecgseg

import (
	"io"
	"strings"

	"github.com/csimplestring/go-csv/detector"
)

// numericRunes can appear inside a sample value or a timestamp, so they are
// never taken as the field separator.
const numericRunes = "0123456789.-+:eE "

// DetermineDelimiter returns the most likely field separator of a delimited
// ECG table. Comma is the fallback.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()

	for _, candidate := range d.DetectDelimiter(r, '"') {
		runes := []rune(candidate)
		if len(runes) != 1 || strings.ContainsRune(numericRunes, runes[0]) {
			continue
		}
		return runes[0]
	}

	return ','
}
