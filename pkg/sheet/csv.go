package sheet

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"

	"github.com/sw33tLie/puzzleimport/pkg/catalog"
)

// ReadCSV reads a comma-separated import file. A leading UTF-8 BOM is
// skipped. Line numbers count the header as line 1.
func ReadCSV(r io.Reader) ([]catalog.RawRow, error) {
	cr := csv.NewReader(stripUTF8BOM(bufio.NewReader(r)))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &HeaderError{Reason: "file is empty"}
		}
		return nil, err
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var rows []catalog.RawRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		row, err := toRow(line, rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}
