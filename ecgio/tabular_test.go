package ecgio

import (
	"compress/gzip"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestReadTabular(t *testing.T) {
	for _, v := range []struct {
		Name  string
		Input string
		Fs    float64
	}{
		{"comma", "time,amplitude\n0.000,0.1\n0.004,0.2\n0.008,0.3\n0.012,0.2\n", 250},
		{"tab, reordered", "Amplitude\tTime\n0.1\t0\n0.2\t0.002\n0.3\t0.004\n0.2\t0.006\n", 500},
		{"extra columns", "lead,time,amplitude\nII,0,0.1\nII,0.01,0.2\nII,0.02,0.3\nII,0.03,0.2\n", 100},
	} {
		rec, err := ReadTabular(strings.NewReader(v.Input), 0)
		if err != nil {
			t.Fatalf("%s: %v", v.Name, err)
		}

		if math.Abs(rec.Fs-v.Fs) > 1e-6 {
			t.Fatalf("%s: inferred fs %f, expected %f", v.Name, rec.Fs, v.Fs)
		}

		expected := []float64{0.1, 0.2, 0.3, 0.2}
		if len(rec.Signal) != len(expected) || len(rec.Time) != len(expected) {
			t.Fatalf("%s: got %d samples and %d times", v.Name, len(rec.Signal), len(rec.Time))
		}
		for i := range expected {
			if rec.Signal[i] != expected[i] {
				t.Fatalf("%s: sample %d is %f, expected %f", v.Name, i, rec.Signal[i], expected[i])
			}
		}
	}
}

func TestReadTabularFsOverride(t *testing.T) {
	rec, err := ReadTabular(strings.NewReader("time,amplitude\n0,1\n1,2\n"), 360)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Fs != 360 {
		t.Fatalf("Expected the explicit sampling rate, got %f", rec.Fs)
	}
}

func TestReadTabularTimestamps(t *testing.T) {
	input := "time,amplitude\n" +
		"2021-03-04 05:06:07.000,1\n" +
		"2021-03-04 05:06:07.500,2\n" +
		"2021-03-04 05:06:08.000,3\n"

	rec, err := ReadTabular(strings.NewReader(input), 0)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(rec.Fs-2) > 1e-9 {
		t.Fatalf("Expected 2Hz, got %f", rec.Fs)
	}
	if rec.Start.IsZero() || rec.Start.Second() != 7 {
		t.Fatalf("Unexpected start %v", rec.Start)
	}
	if got := rec.Timestamp(2); got.Second() != 8 {
		t.Fatalf("Sample 2 should be at second 8, got %v", got)
	}
}

func TestReadTabularMissingColumns(t *testing.T) {
	for _, input := range []string{
		"time,value\n0,1\n1,2\n",
		"amplitude\n1\n2\n",
		"",
	} {
		_, err := ReadTabular(strings.NewReader(input), 0)
		if !errors.Is(err, ErrMissingColumns) {
			t.Fatalf("%q: expected ErrMissingColumns, got %v", input, err)
		}
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("%q: missing columns should also be an unsupported format", input)
		}
	}
}

func TestReadTabularBadValue(t *testing.T) {
	for _, input := range []string{
		"time,amplitude\n0,1\n1,abc\n",
		"time,amplitude\n0,1\nyesterday,2\n",
		"time,amplitude\n0,1\n1,2,3\n",
		"time,amplitude\n0,1\n",
	} {
		if _, err := ReadTabular(strings.NewReader(input), 0); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed, got %v", input, err)
		}
	}
}

func TestLoadCompressedCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec01.csv.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	gz.Write([]byte("time,amplitude\n0,0.5\n0.1,0.6\n0.2,0.7\n"))
	gz.Close()
	f.Close()

	rec, err := Load(context.Background(), path, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if rec.Name != "rec01" {
		t.Fatalf("Expected name rec01, got %s", rec.Name)
	}
	if len(rec.Signal) != 3 || rec.Signal[2] != 0.7 {
		t.Fatalf("Unexpected signal %v", rec.Signal)
	}
	if math.Abs(rec.Fs-10) > 1e-9 {
		t.Fatalf("Expected 10Hz, got %f", rec.Fs)
	}
}

func TestLoadUnsupported(t *testing.T) {
	for _, path := range []string{"record.edf", "record", "record.json.gz"} {
		if _, err := Load(context.Background(), path, LoadOptions{}); !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("%s: expected ErrUnsupportedFormat, got %v", path, err)
		}
	}
}

func TestFormat(t *testing.T) {
	for input, expected := range map[string]string{
		"a/b/100.hea":           ".hea",
		"gs://bucket/x.CSV":     ".csv",
		"x.csv.gz":              ".csv",
		"x.tsv.bz2":             ".tsv",
		"noextension":           "",
		"gs://b/dir.v2/rec.dat": ".dat",
	} {
		if got := Format(input); got != expected {
			t.Fatalf("Format(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestLoadWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec02.xlsx")

	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	rows := [][]interface{}{
		{"Time", "Amplitude"},
		{0.0, 0.25},
		{0.002, 0.5},
		{0.004, 0.75},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := wb.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	wb.Close()

	rec, err := Load(context.Background(), path, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if rec.Name != "rec02" || len(rec.Signal) != 3 || rec.Signal[2] != 0.75 {
		t.Fatalf("Unexpected record %+v", rec)
	}
	if math.Abs(rec.Fs-500) > 1e-6 {
		t.Fatalf("Expected 500Hz, got %f", rec.Fs)
	}
}
