// Package models contains domain types for readtext ingestion.
package models

// ResolvedFile is one concrete, readable file produced by the resolver.
type ResolvedFile struct {
	// Path is the local path the parsers read from.
	Path string `json:"path"`
	// Source is the path used for document ids and filepath docvars: the
	// literal input path, the member path inside an archive, or the URL path.
	Source   string `json:"source"`
	Format   Format `json:"format"`
	Encoding string `json:"encoding,omitempty"`
}

// Docvar is one named metadata value attached to a record.
type Docvar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is one (text, docvars) pair produced by a parser.
type Record struct {
	Text    string   `json:"text"`
	Docvars []Docvar `json:"docvars,omitempty"`
}

// Get returns the docvar value for name.
func (r Record) Get(name string) (string, bool) {
	for _, dv := range r.Docvars {
		if dv.Name == name {
			return dv.Value, true
		}
	}
	return "", false
}

// RecordSet holds every record read from one file, in file order.
type RecordSet struct {
	File    ResolvedFile `json:"file"`
	Records []Record     `json:"records"`
}
