package ecgio

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/carbocation/ecgseg"
	"github.com/carbocation/ecgseg/beatlabel"
	"github.com/carbocation/pfx"
)

// Annotation is one entry of a WFDB annotation file.
type Annotation struct {
	Sample int
	Code   int
	Symbol string
	Sub    int
	Chan   int
	Num    int
	Aux    string
}

// Pseudo-annotation codes of the MIT format. They modify the stream rather
// than mark an event.
const (
	codeSkip = 59
	codeNum  = 60
	codeSub  = 61
	codeChan = 62
	codeAux  = 63
)

// annotationSymbols is indexed by annotation code.
var annotationSymbols = [...]string{
	0: " ", 1: "N", 2: "L", 3: "R", 4: "a", 5: "V", 6: "F", 7: "J", 8: "A",
	9: "S", 10: "E", 11: "j", 12: "/", 13: "Q", 14: "~", 16: "|", 18: "s",
	19: "T", 20: "*", 21: "D", 22: `"`, 23: "=", 24: "p", 25: "B", 26: "^",
	27: "t", 28: "+", 29: "u", 30: "?", 31: "!", 32: "[", 33: "]", 34: "e",
	35: "n", 36: "@", 37: "x", 38: "f", 39: "(", 40: ")", 41: "r",
}

// AnnotationSymbol returns the mnemonic for an annotation code, or "" when
// the code has none.
func AnnotationSymbol(code int) string {
	if code < 0 || code >= len(annotationSymbols) {
		return ""
	}
	return annotationSymbols[code]
}

// ReadAnnotations loads a WFDB annotation file such as 100.atr.
func ReadAnnotations(ctx context.Context, path string, opts LoadOptions) ([]Annotation, error) {
	f, _, err := ecgseg.Open(ctx, path, opts.StorageClient)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	annotations, err := ParseAnnotations(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return annotations, nil
}

// ParseAnnotations decodes the MIT annotation format. Each entry is a little
// endian 16 bit word holding a 6 bit code and a 10 bit value; for ordinary
// annotations the value is the sample offset from the previous annotation.
func ParseAnnotations(r io.Reader) ([]Annotation, error) {
	br := bufio.NewReader(r)

	var out []Annotation
	var sample, chanNum, num int

	word := make([]byte, 2)
	for {
		if _, err := io.ReadFull(br, word); err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, fmt.Errorf("annotation %d: %v", len(out), err)
		}

		w := binary.LittleEndian.Uint16(word)
		code, value := int(w>>10), int(w&0x3ff)

		switch {
		case code == 0 && value == 0:
			return out, nil

		case code == codeSkip:
			// A 32 bit interval follows, high word first
			skip := make([]byte, 4)
			if _, err := io.ReadFull(br, skip); err != nil {
				return nil, fmt.Errorf("skip: %v", err)
			}
			high := binary.LittleEndian.Uint16(skip[0:2])
			low := binary.LittleEndian.Uint16(skip[2:4])
			sample += int(int32(uint32(high)<<16 | uint32(low)))

		case code == codeNum:
			num = signExtend10(value)
			if len(out) > 0 {
				out[len(out)-1].Num = num
			}

		case code == codeSub:
			if len(out) > 0 {
				out[len(out)-1].Sub = signExtend10(value)
			}

		case code == codeChan:
			chanNum = value
			if len(out) > 0 {
				out[len(out)-1].Chan = chanNum
			}

		case code == codeAux:
			aux := make([]byte, value+value%2)
			if _, err := io.ReadFull(br, aux); err != nil {
				return nil, fmt.Errorf("aux: %v", err)
			}
			if len(out) > 0 {
				out[len(out)-1].Aux = strings.TrimRight(string(aux[:value]), "\x00")
			}

		default:
			// chan and num carry over to later annotations
			sample += value
			out = append(out, Annotation{
				Sample: sample,
				Code:   code,
				Symbol: AnnotationSymbol(code),
				Chan:   chanNum,
				Num:    num,
			})
		}
	}
}

func signExtend10(v int) int {
	if v > 511 {
		v -= 1024
	}
	return v
}

// Beats keeps the annotations that mark a beat, classified into AAMI classes.
func Beats(annotations []Annotation) []beatlabel.Beat {
	out := make([]beatlabel.Beat, 0, len(annotations))
	for _, a := range annotations {
		if class, ok := beatlabel.FromSymbol(a.Symbol); ok {
			out = append(out, beatlabel.Beat{Sample: a.Sample, Class: class})
		}
	}

	return out
}
