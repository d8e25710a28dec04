package fetcher

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/argus-advisory/advisor-cli/internal/table"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // extra rows to skip above the header
}

// LoadXLSX parses an XLSX stream into a table. The first non-skipped row
// is the header. Numeric cells keep their float value; everything else is
// type-inferred from the cell text.
func LoadXLSX(r io.Reader, opts XLSXOptions) (*table.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: read stream")
	}

	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}
	return sheetToTable(sheet, opts)
}

// LoadXLSXFile opens a local workbook and parses it into a table.
func LoadXLSXFile(path string, opts XLSXOptions) (*table.Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}
	return sheetToTable(sheet, opts)
}

func pickSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (workbook has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func sheetToTable(sheet *xlsx.Sheet, opts XLSXOptions) (*table.Table, error) {
	var t *table.Table
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		if t == nil {
			header := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				header[j] = cell.String()
			}
			t = table.New(header)
			continue
		}
		cells := make([]any, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cellValue(cell)
		}
		t.AppendRow(cells)
	}
	if t == nil {
		return nil, eris.Errorf("xlsx: sheet %q is empty", sheet.Name)
	}
	return t, nil
}

func cellValue(cell *xlsx.Cell) any {
	if cell.Type() == xlsx.CellTypeNumeric {
		if f, err := cell.Float(); err == nil {
			return f
		}
	}
	return inferCell(cell.String())
}
