// Package export writes a ResultTable as CSV, JSON, msgpack or a DuckDB
// database.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/readtext/backend/internal/models"
)

// Format is an output format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
	FormatDuckDB  Format = "duckdb"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "msgpack", "mpk":
		return FormatMsgpack, nil
	case "duckdb", "db":
		return FormatDuckDB, nil
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// FormatFromPath picks the format from an output file name.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Write streams t to w. DuckDB needs a file and is rejected here.
func Write(w io.Writer, t *models.ResultTable, format Format) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatJSON:
		return WriteJSON(w, t)
	case FormatMsgpack:
		return WriteMsgpack(w, t)
	}
	return fmt.Errorf("format %s cannot be streamed", format)
}

// WriteFile writes t to path in the format its extension names.
func WriteFile(ctx context.Context, path string, t *models.ResultTable) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if format == FormatDuckDB {
		return WriteDuckDB(ctx, path, DefaultTableName, t)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, t, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteMsgpack encodes the whole table, columns and warnings included.
func WriteMsgpack(w io.Writer, t *models.ResultTable) error {
	return msgpack.NewEncoder(w).Encode(t)
}
