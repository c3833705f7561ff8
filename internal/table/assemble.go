// Package table assembles per-file record sets into a single ResultTable.
package table

import (
	"fmt"

	"github.com/readtext/backend/internal/docvars"
	"github.com/readtext/backend/internal/models"
)

// Assemble merges record sets (in resolution order) and the filename docvars
// of the same files into one table. filenameVars may be nil; when set, its
// Values must align with sets.
//
// It handles:
// 1. Assigning unique document ids
// 2. Building the column union, record docvars first, in first-seen order
// 3. Filling cells, nil where a row lacks a column
// 4. Imputing a type per column
func Assemble(sets []models.RecordSet, filenameVars *docvars.Set) (*models.ResultTable, error) {
	result := models.NewResultTable()
	if filenameVars != nil && len(filenameVars.Values) != len(sets) {
		return nil, fmt.Errorf("filename docvars cover %d files, have %d record sets",
			len(filenameVars.Values), len(sets))
	}

	// 1. Document ids
	files := make([]models.ResolvedFile, len(sets))
	counts := make([]int, len(sets))
	for i, s := range sets {
		files[i] = s.File
		counts[i] = len(s.Records)
	}
	ids := AssignDocIDs(files, counts)

	// 2. Column union
	var names []string
	index := make(map[string]int)
	addColumn := func(name string) {
		if _, ok := index[name]; ok {
			return
		}
		index[name] = len(names)
		names = append(names, name)
	}
	for _, s := range sets {
		for _, rec := range s.Records {
			for _, dv := range rec.Docvars {
				addColumn(dv.Name)
			}
		}
	}
	if filenameVars != nil {
		for _, name := range filenameVars.Names {
			addColumn(name)
		}
	}

	// 3. Cells, column-major for imputation
	total := 0
	for _, c := range counts {
		total += c
	}
	cells := make([][]any, len(names))
	for c := range cells {
		cells[c] = make([]any, total)
	}
	clashes := make(map[string]bool)

	row := 0
	for i, s := range sets {
		for j, rec := range s.Records {
			filled := make(map[int]bool, len(rec.Docvars))
			for _, dv := range rec.Docvars {
				c := index[dv.Name]
				if filled[c] {
					continue
				}
				cells[c][row] = dv.Value
				filled[c] = true
			}
			if filenameVars != nil {
				for _, name := range filenameVars.Names {
					c := index[name]
					if filled[c] {
						clashes[name] = true
						continue
					}
					if v, ok := filenameVars.Values[i][name]; ok {
						cells[c][row] = v
					}
				}
			}
			result.Rows = append(result.Rows, models.Row{
				DocID:  ids[i][j],
				Text:   rec.Text,
				Values: make([]any, len(names)),
			})
			row++
		}
	}

	if filenameVars != nil {
		for _, name := range filenameVars.Names {
			if clashes[name] {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("filename docvar %q clashes with a field of the same name; keeping the field value", name))
			}
		}
	}

	// 4. Types
	for c, name := range names {
		typed, kind := Impute(cells[c])
		result.Columns = append(result.Columns, models.Column{Name: columnName(name), Type: kind})
		for r := range result.Rows {
			result.Rows[r].Values[c] = typed[r]
		}
	}

	return result, nil
}

// columnName renames docvars that would shadow the fixed columns.
func columnName(name string) string {
	if name == "doc_id" || name == "text" {
		return name + ".1"
	}
	return name
}
