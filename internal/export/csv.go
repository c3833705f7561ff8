package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/readtext/backend/internal/models"
)

// WriteCSV writes a header row (doc_id, text, docvars) and one row per
// document. Missing cells are empty.
func WriteCSV(w io.Writer, t *models.ResultTable) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(t.Columns)+2)
	header = append(header, "doc_id", "text")
	for _, c := range t.Columns {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, row := range t.Rows {
		record[0] = row.DocID
		record[1] = row.Text
		for i, v := range row.Values {
			record[i+2] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	}
	return ""
}
