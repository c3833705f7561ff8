package table

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/readtext/backend/internal/docvars"
	"github.com/readtext/backend/internal/models"
)

func file(source string) models.ResolvedFile {
	return models.ResolvedFile{Path: source, Source: source, Format: models.FormatFromPath(source)}
}

func textSet(source string, texts ...string) models.RecordSet {
	set := models.RecordSet{File: file(source)}
	for _, t := range texts {
		set.Records = append(set.Records, models.Record{Text: t})
	}
	return set
}

func TestImpute(t *testing.T) {
	tests := []struct {
		name  string
		cells []any
		want  []any
		kind  models.ColumnType
	}{
		{"integer", []any{"1789", "1793", nil}, []any{int64(1789), int64(1793), nil}, models.ColumnTypeInteger},
		{"numeric", []any{"1.5", "2", "1e3"}, []any{1.5, 2.0, 1000.0}, models.ColumnTypeNumeric},
		{"boolean", []any{"TRUE", "F", "true"}, []any{true, false, true}, models.ColumnTypeBoolean},
		{"string", []any{"Washington", "1793"}, []any{"Washington", "1793"}, models.ColumnTypeString},
		{"na counts as missing", []any{"NA", "3", ""}, []any{nil, int64(3), nil}, models.ColumnTypeInteger},
		{"all missing", []any{nil, nil}, []any{nil, nil}, models.ColumnTypeString},
		{"nan word stays string", []any{"NaN", "Inf"}, []any{"NaN", "Inf"}, models.ColumnTypeString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, kind := Impute(tt.cells)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssignDocIDs(t *testing.T) {
	t.Run("single and multi record", func(t *testing.T) {
		ids := AssignDocIDs(
			[]models.ResolvedFile{file("data/a.txt"), file("data/b.csv")},
			[]int{1, 3},
		)
		assert.Equal(t, [][]string{{"a.txt"}, {"b.csv.1", "b.csv.2", "b.csv.3"}}, ids)
	})

	t.Run("sibling directories get a parent prefix", func(t *testing.T) {
		ids := AssignDocIDs(
			[]models.ResolvedFile{file("corpus/en/speech.txt"), file("corpus/fr/speech.txt")},
			[]int{1, 1},
		)
		assert.Equal(t, [][]string{{"en/speech.txt"}, {"fr/speech.txt"}}, ids)
	})

	t.Run("depth grows until unique", func(t *testing.T) {
		ids := AssignDocIDs(
			[]models.ResolvedFile{file("a/x/doc.txt"), file("b/x/doc.txt"), file("c.txt")},
			[]int{1, 1, 1},
		)
		assert.Equal(t, [][]string{{"a/x/doc.txt"}, {"b/x/doc.txt"}, {"c.txt"}}, ids)
	})

	t.Run("identical sources fall back to ordinals", func(t *testing.T) {
		ids := AssignDocIDs(
			[]models.ResolvedFile{file("a.txt"), file("a.txt")},
			[]int{1, 1},
		)
		assert.Equal(t, [][]string{{"a.txt"}, {"a.txt#2"}}, ids)
	})

	t.Run("empty file yields no ids", func(t *testing.T) {
		ids := AssignDocIDs([]models.ResolvedFile{file("a.csv")}, []int{0})
		assert.Equal(t, [][]string{{}}, ids)
	})
}

func TestAssembleColumnUnion(t *testing.T) {
	a := models.RecordSet{File: file("a.csv"), Records: []models.Record{
		{Text: "one", Docvars: []models.Docvar{{Name: "x", Value: "1"}}},
	}}
	b := models.RecordSet{File: file("b.csv"), Records: []models.Record{
		{Text: "two", Docvars: []models.Docvar{{Name: "y", Value: "yes"}}},
	}}

	result, err := Assemble([]models.RecordSet{a, b}, nil)
	require.NoError(t, err)

	require.Len(t, result.Columns, 2)
	assert.Equal(t, models.Column{Name: "x", Type: models.ColumnTypeInteger}, result.Columns[0])
	assert.Equal(t, models.Column{Name: "y", Type: models.ColumnTypeString}, result.Columns[1])
	assert.Equal(t, []string{"a.csv", "b.csv"}, result.DocIDs())

	v, ok := result.Value(0, "y")
	assert.True(t, ok)
	assert.Nil(t, v)
	v, _ = result.Value(1, "x")
	assert.Nil(t, v)
	v, _ = result.Value(0, "x")
	assert.Equal(t, int64(1), v)
}

func TestAssembleFilenameDocvars(t *testing.T) {
	sets := []models.RecordSet{
		textSet("1789_Washington.txt", "Fellow-Citizens"),
		textSet("1793_Washington.txt", "Fellow citizens"),
	}
	dv, err := docvars.Extract(docvars.SourceFilenames,
		[]string{"1789_Washington.txt", "1793_Washington.txt"}, "_", []string{"year", "president"})
	require.NoError(t, err)

	result, err := Assemble(sets, dv)
	require.NoError(t, err)

	require.Len(t, result.Rows, 2)
	assert.Equal(t, "1789_Washington.txt", result.Rows[0].DocID)
	assert.Equal(t, "Fellow-Citizens", result.Rows[0].Text)
	assert.Equal(t, []models.Column{
		{Name: "year", Type: models.ColumnTypeInteger},
		{Name: "president", Type: models.ColumnTypeString},
	}, result.Columns)
	assert.Equal(t, []any{int64(1793), "Washington"}, result.Rows[1].Values)
}

func TestAssembleNameClashKeepsRecordValue(t *testing.T) {
	sets := []models.RecordSet{{File: file("2001_report.csv"), Records: []models.Record{
		{Text: "t", Docvars: []models.Docvar{{Name: "year", Value: "1999"}}},
	}}}
	dv, err := docvars.Extract(docvars.SourceFilenames, []string{"2001_report.csv"}, "_", []string{"year", "kind"})
	require.NoError(t, err)

	result, err := Assemble(sets, dv)
	require.NoError(t, err)

	v, _ := result.Value(0, "year")
	assert.Equal(t, int64(1999), v)
	v, _ = result.Value(0, "kind")
	assert.Equal(t, "report", v)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], `"year"`)
}

func TestAssembleMismatchedDocvars(t *testing.T) {
	_, err := Assemble([]models.RecordSet{textSet("a.txt", "x")}, &docvars.Set{})
	assert.Error(t, err)
}

func TestAssembleEmpty(t *testing.T) {
	result, err := Assemble(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Empty(t, result.Columns)
}

func TestDocIDsAlwaysUnique(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "files")
		segment := rapid.SampledFrom([]string{"a", "b", "c"})

		var sets []models.RecordSet
		total := 0
		for i := 0; i < n; i++ {
			depth := rapid.IntRange(0, 3).Draw(rt, "depth")
			parts := make([]string, 0, depth+1)
			for d := 0; d < depth; d++ {
				parts = append(parts, segment.Draw(rt, "dir"))
			}
			parts = append(parts, segment.Draw(rt, "base")+".txt")

			records := rapid.IntRange(0, 3).Draw(rt, "records")
			texts := make([]string, records)
			for r := range texts {
				texts[r] = fmt.Sprintf("doc %d/%d", i, r)
			}
			sets = append(sets, textSet(strings.Join(parts, "/"), texts...))
			total += records
		}

		result, err := Assemble(sets, nil)
		require.NoError(rt, err)
		require.Len(rt, result.Rows, total)

		seen := make(map[string]bool)
		for _, id := range result.DocIDs() {
			require.False(rt, seen[id], "duplicate doc id %q", id)
			seen[id] = true
		}
	})
}

func TestAssembleRenamesReservedColumns(t *testing.T) {
	sets := []models.RecordSet{{File: file("a.json"), Records: []models.Record{
		{Text: "body", Docvars: []models.Docvar{{Name: "doc_id", Value: "x1"}, {Name: "text", Value: "other"}}},
	}}}
	result, err := Assemble(sets, nil)
	require.NoError(t, err)
	assert.Equal(t, "doc_id.1", result.Columns[0].Name)
	assert.Equal(t, "text.1", result.Columns[1].Name)
	assert.Equal(t, "a.json", result.Rows[0].DocID)
}
