package ecgio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/carbocation/ecgseg/beatlabel"
)

type annotationWriter struct {
	bytes.Buffer
}

func (w *annotationWriter) word(code, value int) {
	binary.Write(&w.Buffer, binary.LittleEndian, uint16(code<<10|value&0x3ff))
}

func (w *annotationWriter) skip(n int) {
	w.word(codeSkip, 0)
	binary.Write(&w.Buffer, binary.LittleEndian, uint16(uint32(n)>>16))
	binary.Write(&w.Buffer, binary.LittleEndian, uint16(uint32(n)&0xffff))
}

func (w *annotationWriter) aux(s string) {
	w.word(codeAux, len(s))
	w.WriteString(s)
	if len(s)%2 == 1 {
		w.WriteByte(0)
	}
}

func TestParseAnnotations(t *testing.T) {
	w := &annotationWriter{}
	w.word(28, 18) // rhythm change at 18
	w.aux("(N")
	w.word(1, 59)  // N at 77
	w.word(1, 293) // N at 370
	w.word(8, 300) // A at 670
	w.word(codeSub, 1)
	w.skip(100000)
	w.word(5, 20) // V at 100690
	w.word(codeChan, 1)
	w.word(14, 5) // noise at 100695, still on channel 1
	w.aux("qq1")
	w.word(0, 0)

	annotations, err := ParseAnnotations(&w.Buffer)
	if err != nil {
		t.Fatal(err)
	}

	expected := []Annotation{
		{Sample: 18, Code: 28, Symbol: "+", Aux: "(N"},
		{Sample: 77, Code: 1, Symbol: "N"},
		{Sample: 370, Code: 1, Symbol: "N"},
		{Sample: 670, Code: 8, Symbol: "A", Sub: 1},
		{Sample: 100690, Code: 5, Symbol: "V", Chan: 1},
		{Sample: 100695, Code: 14, Symbol: "~", Chan: 1, Aux: "qq1"},
	}
	if len(annotations) != len(expected) {
		t.Fatalf("Got %d annotations, expected %d: %+v", len(annotations), len(expected), annotations)
	}
	for i := range expected {
		if annotations[i] != expected[i] {
			t.Fatalf("Annotation %d: got %+v, expected %+v", i, annotations[i], expected[i])
		}
	}

	beats := Beats(annotations)
	expectedBeats := []beatlabel.Beat{
		{Sample: 77, Class: beatlabel.N},
		{Sample: 370, Class: beatlabel.N},
		{Sample: 670, Class: beatlabel.S},
		{Sample: 100690, Class: beatlabel.V},
	}
	if len(beats) != len(expectedBeats) {
		t.Fatalf("Got beats %+v, expected %+v", beats, expectedBeats)
	}
	for i := range expectedBeats {
		if beats[i] != expectedBeats[i] {
			t.Fatalf("Beat %d: got %+v, expected %+v", i, beats[i], expectedBeats[i])
		}
	}
}

func TestParseAnnotationsWithoutTerminator(t *testing.T) {
	w := &annotationWriter{}
	w.word(1, 10)
	w.word(1, 10)

	annotations, err := ParseAnnotations(&w.Buffer)
	if err != nil {
		t.Fatal(err)
	}
	if len(annotations) != 2 || annotations[1].Sample != 20 {
		t.Fatalf("Unexpected annotations %+v", annotations)
	}

	truncated := bytes.NewReader([]byte{0x0a})
	if _, err := ParseAnnotations(truncated); err == nil {
		t.Fatalf("Expected an error for a truncated word")
	}
}
