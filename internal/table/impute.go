package table

import (
	"strconv"
	"strings"

	"github.com/readtext/backend/internal/models"
)

var (
	boolTrue  = map[string]bool{"TRUE": true, "True": true, "true": true, "T": true}
	boolFalse = map[string]bool{"FALSE": true, "False": true, "false": true, "F": true}
)

// isNA reports whether a raw cell reads as missing for typed columns.
func isNA(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "NA"
}

// Impute converts one column of raw cells to its inferred type. Cells are
// strings or nil (missing). The attempts run in order integer, numeric,
// boolean; the first one that accepts every non-missing cell types the whole
// column, otherwise the column stays string.
func Impute(cells []any) ([]any, models.ColumnType) {
	raw := make([]string, 0, len(cells))
	for _, c := range cells {
		if s, ok := c.(string); ok && !isNA(s) {
			raw = append(raw, strings.TrimSpace(s))
		}
	}
	if len(raw) == 0 {
		return cells, models.ColumnTypeString
	}

	switch {
	case all(raw, isInteger):
		return convert(cells, func(s string) any {
			n, _ := strconv.ParseInt(s, 10, 64)
			return n
		}), models.ColumnTypeInteger
	case all(raw, isNumeric):
		return convert(cells, func(s string) any {
			f, _ := strconv.ParseFloat(s, 64)
			return f
		}), models.ColumnTypeNumeric
	case all(raw, isBoolean):
		return convert(cells, func(s string) any {
			return boolTrue[s]
		}), models.ColumnTypeBoolean
	}
	return cells, models.ColumnTypeString
}

func all(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func convert(cells []any, fn func(string) any) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		s, ok := c.(string)
		if !ok || isNA(s) {
			continue
		}
		out[i] = fn(strings.TrimSpace(s))
	}
	return out
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isNumeric accepts decimal and exponent notation but not the NaN/Inf words
// ParseFloat also understands.
func isNumeric(s string) bool {
	if !strings.ContainsAny(s, "0123456789") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isBoolean(s string) bool {
	return boolTrue[s] || boolFalse[s]
}
