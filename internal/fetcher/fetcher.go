// Package fetcher downloads dataset files over HTTP and FTP and parses
// CSV and XLSX payloads into tables.
package fetcher

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/argus-advisory/advisor-cli/internal/table"
)

// Fetcher defines the interface for downloading remote dataset files.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// LoadTable parses a dataset file into a table, dispatching on the file
// extension. CSV and XLSX are supported.
func LoadTable(filename string, r io.Reader, opts CSVOptions) (*table.Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return LoadCSV(r, opts)
	case ".xlsx":
		return LoadXLSX(r, XLSXOptions{})
	default:
		return nil, eris.Errorf("fetcher: unsupported dataset format %q", filepath.Ext(filename))
	}
}

// inferCell converts a raw string cell to its table value: numeric strings
// become float64, empty strings become nil, everything else stays text.
func inferCell(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if f, ok := table.Number(trimmed); ok {
		return f
	}
	return s
}
