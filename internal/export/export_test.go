package export

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/readtext/backend/internal/models"
)

func sampleTable() *models.ResultTable {
	t := models.NewResultTable()
	t.Columns = []models.Column{
		{Name: "year", Type: models.ColumnTypeInteger},
		{Name: "score", Type: models.ColumnTypeNumeric},
		{Name: "flag", Type: models.ColumnTypeBoolean},
		{Name: "author", Type: models.ColumnTypeString},
	}
	t.Rows = []models.Row{
		{DocID: "a.txt", Text: "first, with comma", Values: []any{int64(1789), 1.5, true, "Washington"}},
		{DocID: "b.txt", Text: "second", Values: []any{int64(1797), nil, false, nil}},
	}
	return t
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"csv": FormatCSV, ".JSON": FormatJSON, "mpk": FormatMsgpack, ".duckdb": FormatDuckDB,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := FormatFromPath("out.xlsx")
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTable()))

	want := "doc_id,text,year,score,flag,author\n" +
		"a.txt,\"first, with comma\",1789,1.5,TRUE,Washington\n" +
		"b.txt,second,1797,,FALSE,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleTable()))

	var docs []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0]["doc_id"])
	assert.Equal(t, float64(1789), docs[0]["year"])
	assert.Nil(t, docs[1]["score"])

	// key order follows the table
	assert.Less(t, bytes.Index(buf.Bytes(), []byte(`"year"`)), bytes.Index(buf.Bytes(), []byte(`"author"`)))
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, models.NewResultTable()))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteMsgpack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMsgpack(&buf, sampleTable()))

	var decoded models.ResultTable
	require.NoError(t, msgpack.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, sampleTable().Columns, decoded.Columns)
	assert.Equal(t, []string{"a.txt", "b.txt"}, decoded.DocIDs())
}

func TestWriteStreamRejectsDuckDB(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, sampleTable(), FormatDuckDB))
}

func TestWriteDuckDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.duckdb")
	require.NoError(t, WriteFile(context.Background(), path, sampleTable()))

	db, err := OpenDuckDB(path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count))
	assert.Equal(t, 2, count)

	var year int64
	var author string
	require.NoError(t, db.QueryRow(`SELECT year, author FROM documents WHERE doc_id = 'a.txt'`).Scan(&year, &author))
	assert.Equal(t, int64(1789), year)
	assert.Equal(t, "Washington", author)

	var nulls int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM documents WHERE score IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)
}
