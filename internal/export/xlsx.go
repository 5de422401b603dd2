// Package export writes snapshot history, drift reports and industry
// multiples to XLSX workbooks, and reads multiples back from them.
package export

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadOptions selects the sheet ReadRows reads.
type ReadOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // number of header rows to skip
}

// ReadRows reads an XLSX file and returns all rows as trimmed strings.
func ReadRows(path string, opts ReadOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts ReadOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

// sheetWriter appends rows to one sheet.
type sheetWriter struct {
	sheet *xlsx.Sheet
}

func addSheet(f *xlsx.File, name string, header []string) (*sheetWriter, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: add sheet %s", name)
	}
	w := &sheetWriter{sheet: sheet}
	w.strings(header...)
	return w, nil
}

func (w *sheetWriter) row() *xlsx.Row {
	return w.sheet.AddRow()
}

func (w *sheetWriter) strings(values ...string) {
	row := w.row()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func save(f *xlsx.File, out io.Writer) error {
	return eris.Wrap(f.Write(out), "xlsx: write workbook")
}
