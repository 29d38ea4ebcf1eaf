// Package sheet reads import files into raw catalog rows. CSV and XLSX
// workbooks share one contract: a header naming the catalog columns in
// order, then one product per row.
package sheet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sw33tLie/puzzleimport/pkg/catalog"
)

var (
	ErrFieldCount  = errors.New("wrong number of fields")
	ErrUnsupported = errors.New("unsupported file type")
)

// HeaderError reports a header that does not match catalog.Columns.
type HeaderError struct {
	Got    []string
	Reason string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("invalid header %q: %s (want %s)", strings.Join(e.Got, ","), e.Reason, strings.Join(catalog.Columns, ","))
}

// Read loads every data row of the file at path. The format is picked by
// extension: .xlsx is read as a workbook, .csv and .txt as CSV.
func Read(path string) ([]catalog.RawRow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readXLSXFile(path)
	case ".csv", ".txt", "":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

func checkHeader(h []string) error {
	got := make([]string, len(h))
	for i := range h {
		got[i] = strings.TrimSpace(h[i])
	}
	if len(got) != len(catalog.Columns) {
		return &HeaderError{Got: got, Reason: fmt.Sprintf("%d columns", len(got))}
	}
	for i, want := range catalog.Columns {
		if got[i] != want {
			return &HeaderError{Got: got, Reason: fmt.Sprintf("column %d is %q", i+1, got[i])}
		}
	}
	return nil
}

func toRow(line int, rec []string) (catalog.RawRow, error) {
	if len(rec) != len(catalog.Columns) {
		return catalog.RawRow{}, &catalog.RowError{
			Line:   line,
			Column: "row",
			Detail: fmt.Sprintf("got %d, want %d", len(rec), len(catalog.Columns)),
			Err:    ErrFieldCount,
		}
	}
	return catalog.RawRow{
		Line:        line,
		Path:        rec[0],
		Code:        rec[1],
		Awarded:     rec[2],
		Due:         rec[3],
		Picture:     rec[4],
		Deliverable: rec[5],
		Status:      rec[6],
		Tags:        rec[7],
	}, nil
}
