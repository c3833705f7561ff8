package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/readtext/backend/internal/models"
)

// DelimitedParser reads csv and tsv files. The first row is the header; each
// further row is a record whose text comes from the text field and whose
// docvars are the remaining columns in header order.
type DelimitedParser struct{}

func NewDelimitedParser() *DelimitedParser {
	return &DelimitedParser{}
}

func (p *DelimitedParser) Name() string {
	return "delimited"
}

func (p *DelimitedParser) Formats() []models.Format {
	return []models.Format{models.FormatCSV, models.FormatTSV}
}

func (p *DelimitedParser) Parse(ctx context.Context, file models.ResolvedFile, opts Options) ([]models.Record, error) {
	if opts.TextField == "" {
		return nil, models.NewConfigError("text_field", "must be set for %s files", file.Format)
	}

	content, err := readFile(file)
	if err != nil {
		return nil, &models.FileError{Path: file.Source, Err: err}
	}

	r := csv.NewReader(strings.NewReader(content))
	r.Comma = delimiterFor(file.Format, opts.Delimiter)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, formatError(file, "header: %v", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] == "" {
			header[i] = "V" + strconv.Itoa(i+1)
		}
	}
	dedupeHeader(header)

	textIdx, ok := fieldIndex(header, opts.TextField)
	if !ok {
		return nil, missingField(file, opts.TextField, header)
	}

	in := newInterner()
	var records []models.Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, formatError(file, "line %d: %v", perr.Line, perr.Err)
			}
			return nil, formatError(file, "%v", err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		rec := models.Record{Docvars: make([]models.Docvar, 0, len(header)-1)}
		if textIdx < len(row) {
			rec.Text = row[textIdx]
		}
		for i, name := range header {
			if i == textIdx || i >= len(row) {
				continue
			}
			rec.Docvars = append(rec.Docvars, models.Docvar{Name: name, Value: in.intern(row[i])})
		}
		records = append(records, rec)
	}
	return records, nil
}

// dedupeHeader renames repeated column names in place: the first keeps its
// name, later ones get the lowest ".n" suffix not used by any column.
func dedupeHeader(header []string) {
	taken := make(map[string]bool, len(header))
	for _, h := range header {
		taken[h] = true
	}
	assigned := make(map[string]bool, len(header))
	for i, h := range header {
		if !assigned[h] {
			assigned[h] = true
			continue
		}
		name := h
		for n := 1; taken[name] || assigned[name]; n++ {
			name = h + "." + strconv.Itoa(n)
		}
		assigned[name] = true
		header[i] = name
	}
}

func delimiterFor(format models.Format, override rune) rune {
	if override != 0 {
		return override
	}
	if format == models.FormatTSV {
		return '\t'
	}
	return ','
}
