package ecgio

import (
	"context"
	"fmt"
	"io"

	"github.com/carbocation/ecgseg"
	"github.com/carbocation/pfx"
	"github.com/xuri/excelize/v2"
)

func loadWorkbook(ctx context.Context, path string, opts LoadOptions) (*Record, error) {
	f, _, err := ecgseg.Open(ctx, path, opts.StorageClient)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	rec, err := ReadWorkbook(f, opts.Fs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rec.Name = recordName(path)

	return rec, nil
}

// ReadWorkbook reads the first sheet of an .xlsx workbook with the same
// column rules as ReadTabular.
func ReadWorkbook(r io.Reader, fs float64) (*Record, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMissingColumns)
	}

	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %s is empty", ErrMissingColumns, sheets[0])
	}

	i := 0
	next := func() ([]string, error) {
		i++
		if i >= len(rows) {
			return nil, io.EOF
		}
		return rows[i], nil
	}

	return parseTable(rows[0], next, fs)
}
