package sheet

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sw33tLie/puzzleimport/pkg/catalog"
)

// ReadXLSX reads the first worksheet of a workbook. Line numbers are
// spreadsheet row numbers.
func ReadXLSX(r io.Reader) ([]catalog.RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readWorkbook(f)
}

func readXLSXFile(path string) ([]catalog.RawRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readWorkbook(f)
}

func readWorkbook(f *excelize.File) ([]catalog.RawRow, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &HeaderError{Reason: "workbook has no sheets"}
	}
	recs, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &HeaderError{Reason: "sheet is empty"}
	}
	if err := checkHeader(recs[0]); err != nil {
		return nil, err
	}

	dates := dateReader{f: f, sheet: sheets[0]}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		dates.date1904 = *props.Date1904
	}

	var rows []catalog.RawRow
	for i, rec := range recs[1:] {
		if blank(rec) {
			continue
		}
		// Trailing empty cells are not returned by GetRows.
		for len(rec) < len(catalog.Columns) {
			rec = append(rec, "")
		}
		if rec[dueColumn], err = dates.due(i+2, rec[dueColumn]); err != nil {
			return nil, err
		}
		row, err := toRow(i+2, rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var dueColumn = columnIndex(catalog.ColDue)

func columnIndex(name string) int {
	for i, c := range catalog.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// dateReader recovers due dates stored as native date cells. GetRows
// returns them in their display format, so the raw serial is read back
// and converted.
type dateReader struct {
	f        *excelize.File
	sheet    string
	date1904 bool
}

func (d dateReader) due(line int, shown string) (string, error) {
	shown = strings.TrimSpace(shown)
	if shown == "" {
		return shown, nil
	}
	if _, err := time.Parse(catalog.DateLayout, shown); err == nil {
		return shown, nil
	}
	cell, err := excelize.CoordinatesToCellName(dueColumn+1, line)
	if err != nil {
		return "", err
	}
	raw, err := d.f.GetCellValue(d.sheet, cell, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", err
	}
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		// Text that merely looks wrong; let the row parser report it.
		return shown, nil
	}
	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return shown, nil
	}
	return t.Format(catalog.DateLayout), nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
