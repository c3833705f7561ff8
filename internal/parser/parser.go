// Package parser reads resolved files into records, one reader per format.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/readtext/backend/internal/models"
)

// Options carries the per-call settings readers need.
type Options struct {
	// TextField names the field holding document text: a column name, a
	// 1-based column index, or for XML a path selector starting with "/".
	TextField string
	// Delimiter overrides the field separator of delimited files.
	Delimiter rune
}

// Parser defines the interface for format readers.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// Formats lists the formats this parser handles.
	Formats() []models.Format
	// Parse reads every record of the file, in file order.
	Parse(ctx context.Context, file models.ResolvedFile, opts Options) ([]models.Record, error)
}

// ValidateEncoding reports whether name is a known character encoding.
// The empty name means UTF-8.
func ValidateEncoding(name string) error {
	_, err := lookupEncoding(name)
	return err
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, models.NewConfigError("encoding", "unknown encoding %q", name)
	}
	return enc, nil
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// decode converts raw bytes in the named encoding to a UTF-8 string. A
// leading byte order mark is dropped.
func decode(data []byte, name string) (string, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}
	if enc != unicode.UTF8 {
		data, err = enc.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}

// readFile reads and decodes a resolved file.
func readFile(file models.ResolvedFile) (string, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return "", err
	}
	return decode(data, file.Encoding)
}

// fieldIndex finds field in names, first by exact name then as a 1-based
// position.
func fieldIndex(names []string, field string) (int, bool) {
	for i, n := range names {
		if n == field {
			return i, true
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(field)); err == nil && n >= 1 && n <= len(names) {
		return n - 1, true
	}
	return -1, false
}

// missingField is the per-file error for a text field absent from a file.
func missingField(file models.ResolvedFile, field string, available []string) error {
	return &models.FileError{
		Path: file.Source,
		Err: models.NewConfigError("text_field", "%q not found (available: %s)",
			field, strings.Join(available, ", ")),
	}
}

func formatError(file models.ResolvedFile, format string, args ...any) error {
	return &models.FileError{
		Path: file.Source,
		Err:  fmt.Errorf("%w: %s", models.ErrFormat, fmt.Sprintf(format, args...)),
	}
}
