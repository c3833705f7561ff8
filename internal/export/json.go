package export

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/readtext/backend/internal/models"
)

// WriteJSON writes an array with one object per document. Keys keep table
// order: doc_id, text, then the docvar columns; missing cells are null.
func WriteJSON(w io.Writer, t *models.ResultTable) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("[")
	for r, row := range t.Rows {
		if r > 0 {
			bw.WriteString(",")
		}
		bw.WriteString("\n  {")
		if err := writeField(bw, "doc_id", row.DocID, true); err != nil {
			return err
		}
		if err := writeField(bw, "text", row.Text, false); err != nil {
			return err
		}
		for i, c := range t.Columns {
			if err := writeField(bw, c.Name, row.Values[i], false); err != nil {
				return err
			}
		}
		bw.WriteString("}")
	}
	if len(t.Rows) > 0 {
		bw.WriteString("\n")
	}
	bw.WriteString("]\n")
	return bw.Flush()
}

func writeField(w *bufio.Writer, name string, value any, first bool) error {
	key, err := json.Marshal(name)
	if err != nil {
		return err
	}
	val, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if !first {
		w.WriteString(", ")
	}
	w.Write(key)
	w.WriteString(": ")
	w.Write(val)
	return nil
}
