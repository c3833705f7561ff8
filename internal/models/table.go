package models

// ColumnType is the imputed type of a docvar column.
type ColumnType string

const (
	ColumnTypeString  ColumnType = "string"
	ColumnTypeInteger ColumnType = "integer"
	ColumnTypeNumeric ColumnType = "numeric"
	ColumnTypeBoolean ColumnType = "boolean"
)

// Column describes one docvar column of a ResultTable.
type Column struct {
	Name string     `json:"name" msgpack:"name"`
	Type ColumnType `json:"type" msgpack:"type"`
}

// Row is one document. Values align with ResultTable.Columns; a nil value
// marks a missing cell.
type Row struct {
	DocID  string `json:"doc_id" msgpack:"doc_id"`
	Text   string `json:"text" msgpack:"text"`
	Values []any  `json:"values" msgpack:"values"`
}

// ResultTable is the unified output of one ingestion call.
type ResultTable struct {
	Columns  []Column `json:"columns" msgpack:"columns"`
	Rows     []Row    `json:"rows" msgpack:"rows"`
	Warnings []string `json:"warnings,omitempty" msgpack:"warnings,omitempty"`
}

// NewResultTable creates an empty ResultTable.
func NewResultTable() *ResultTable {
	return &ResultTable{
		Columns:  make([]Column, 0),
		Rows:     make([]Row, 0),
		Warnings: make([]string, 0),
	}
}

// ColumnIndex returns the position of the named column, or -1.
func (t *ResultTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Value returns the cell of row i in the named column. ok is false when the
// column does not exist; a missing cell returns (nil, true).
func (t *ResultTable) Value(i int, name string) (any, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 || i < 0 || i >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[i].Values[idx], true
}

// DocIDs returns the document ids in row order.
func (t *ResultTable) DocIDs() []string {
	ids := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		ids[i] = r.DocID
	}
	return ids
}
