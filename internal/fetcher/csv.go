package fetcher

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/argus-advisory/advisor-cli/internal/table"
)

// CSVOptions configures the CSV parser.
type CSVOptions struct {
	Delimiter  rune   // default ','
	Charset    string // default utf-8; latin-1 and windows-1252 also accepted
	Comment    rune   // comment character (0 = none)
	LazyQuotes bool
}

// LoadCSV parses a CSV stream into a table. The first row is the header;
// rows with more fields than the header are truncated, short rows are
// padded with nils. Cell values are type-inferred per cell.
func LoadCSV(r io.Reader, opts CSVOptions) (*table.Table, error) {
	decoded, err := decodeReader(r, opts.Charset)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(decoded)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("csv: file is empty")
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}

	t := table.New(header)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		row := make([]any, len(record))
		for i, field := range record {
			row[i] = inferCell(field)
		}
		t.AppendRow(row)
	}

	return t, nil
}

// decodeReader wraps r with the requested charset decoder. The UTF-8 path
// strips a leading BOM, which spreadsheet exports routinely carry.
func decodeReader(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.UTF8BOM.NewDecoder()), nil
	case "latin-1", "latin1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, eris.Errorf("csv: unsupported charset %q", charset)
	}
}
