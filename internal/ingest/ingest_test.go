package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/readtext/backend/internal/config"
	"github.com/readtext/backend/internal/docvars"
	"github.com/readtext/backend/internal/models"
	"github.com/readtext/backend/internal/parser"
	"github.com/readtext/backend/internal/resolver"
)

func newTestIngester(t *testing.T) (*Ingester, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return New(resolver.New(t.TempDir()), parser.DefaultConverters()).WithLogCore(core), logs
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func intPtr(v int) *int { return &v }

func TestIngestInaugural(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"1789-Washington.txt": "Fellow-Citizens of the Senate",
		"1793-Washington.txt": "Fellow citizens, I am again called upon",
		"1797-Adams.txt":      "When it was first perceived",
	})
	ing, _ := newTestIngester(t)

	result, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "*.txt")}, Options{
		DocvarSource: docvars.SourceFilenames,
		DocvarSep:    "-",
		DocvarNames:  []string{"Year", "President"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1789-Washington.txt", "1793-Washington.txt", "1797-Adams.txt"}, result.DocIDs())
	assert.Equal(t, []models.Column{
		{Name: "Year", Type: models.ColumnTypeInteger},
		{Name: "President", Type: models.ColumnTypeString},
	}, result.Columns)
	v, _ := result.Value(2, "President")
	assert.Equal(t, "Adams", v)
	assert.Equal(t, "When it was first perceived", result.Rows[2].Text)
}

func TestIngestMixedFormats(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.txt":  "plain",
		"b.csv":  "text,score\nfirst,1.5\nsecond,2\n",
		"c.json": `{"text": "json doc", "lang": "en"}`,
	})
	ing, _ := newTestIngester(t)

	result, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "*")}, Options{TextField: "text"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.csv.1", "b.csv.2", "c.json"}, result.DocIDs())
	assert.Equal(t, []models.Column{
		{Name: "score", Type: models.ColumnTypeNumeric},
		{Name: "lang", Type: models.ColumnTypeString},
	}, result.Columns)
	assert.Equal(t, []any{nil, nil}, result.Rows[0].Values)
	assert.Equal(t, []any{2.0, nil}, result.Rows[2].Values)
	assert.Equal(t, []any{nil, "en"}, result.Rows[3].Values)
}

func TestIngestEncodingMismatchFailsBeforeReading(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})
	ing, _ := newTestIngester(t)

	_, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "*.txt")}, Options{
		Encodings: []string{"UTF-8", "latin1"},
	})
	require.ErrorIs(t, err, models.ErrConfig)
	assert.Contains(t, err.Error(), "encoding")
}

func TestIngestPerFileEncodings(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "caf\xe9", "b.txt": "café"})
	ing, _ := newTestIngester(t)

	result, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "*.txt")}, Options{
		Encodings: []string{"ISO-8859-1", "UTF-8"},
	})
	require.NoError(t, err)
	assert.Equal(t, "café", result.Rows[0].Text)
	assert.Equal(t, "café", result.Rows[1].Text)
}

func TestIngestInvalidOptions(t *testing.T) {
	ing, _ := newTestIngester(t)
	tests := []struct {
		name string
		opts Options
	}{
		{"verbosity", Options{Verbosity: intPtr(4)}},
		{"separator", Options{DocvarSource: docvars.SourceFilenames, DocvarSep: "["}},
		{"encoding", Options{Encodings: []string{"klingon"}}},
		{"delimiter", Options{Delimiter: ";;"}},
		{"missing policy", Options{Missing: "skip"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ing.Ingest(context.Background(), []string{"/does/not/matter.txt"}, tt.opts)
			assert.ErrorIs(t, err, models.ErrConfig)
		})
	}
}

func TestIngestDelimitedNeedsTextField(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.csv": "\"broken"})
	ing, _ := newTestIngester(t)

	_, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "a.csv")}, Options{})
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestIngestDirectoryFails(t *testing.T) {
	ing, _ := newTestIngester(t)
	_, err := ing.Ingest(context.Background(), []string{t.TempDir()}, Options{})
	assert.ErrorIs(t, err, models.ErrDirectory)
}

func TestIngestMissingPolicy(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "a"})
	inputs := []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "none", "*.txt")}
	ing, _ := newTestIngester(t)

	_, err := ing.Ingest(context.Background(), inputs, Options{})
	assert.ErrorIs(t, err, models.ErrNoMatch)

	result, err := ing.Ingest(context.Background(), inputs, Options{Missing: resolver.MissingIgnore})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.NotEmpty(t, result.Warnings)
}

func TestIngestUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"notes.foo": "still text"})
	ing, logs := newTestIngester(t)

	result, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "notes.foo")}, Options{})
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "still text", result.Rows[0].Text)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "plain text")
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestIngestSiblingDirectoriesGetUniqueIDs(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"en/speech.txt": "hello",
		"fr/speech.txt": "bonjour",
	})
	ing, _ := newTestIngester(t)

	result, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "*", "speech.txt")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"en/speech.txt", "fr/speech.txt"}, result.DocIDs())
}

func TestIngestFilepathDocvars(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"EN/2001_report.txt":  "x",
		"FR/2002_rapport.txt": "y",
	})
	ing, _ := newTestIngester(t)

	result, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "*", "*.txt")}, Options{
		DocvarSource: docvars.SourceFilepaths,
	})
	require.NoError(t, err)

	n := len(result.Columns)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, "FR", result.Rows[1].Values[n-3])
	assert.Equal(t, int64(2002), result.Rows[1].Values[n-2])
	assert.Equal(t, "rapport", result.Rows[1].Values[n-1])
}

func TestIngestVerbosityDoesNotChangeResults(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"1_a.txt": "a", "2_b.txt": "b", "3_c.notes": "c",
	})
	ing, logs := newTestIngester(t)
	inputs := []string{filepath.Join(dir, "*")}

	quiet, err := ing.Ingest(context.Background(), inputs, Options{Verbosity: intPtr(0), DocvarSource: docvars.SourceFilenames})
	require.NoError(t, err)
	quietLogs := logs.TakeAll()

	loud, err := ing.Ingest(context.Background(), inputs, Options{Verbosity: intPtr(3), DocvarSource: docvars.SourceFilenames})
	require.NoError(t, err)
	loudLogs := logs.TakeAll()

	assert.Equal(t, quiet, loud)
	assert.Empty(t, quietLogs)
	assert.Greater(t, len(loudLogs), 0)
}

func TestIngestWorkerCountKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	files := make(map[string]string)
	for _, c := range strings.Split("abcdefghijklmnop", "") {
		files[c+".txt"] = "doc " + c
	}
	writeFiles(t, dir, files)
	ing, _ := newTestIngester(t)
	inputs := []string{filepath.Join(dir, "*.txt")}

	serial, err := ing.Ingest(context.Background(), inputs, Options{Workers: 1})
	require.NoError(t, err)
	parallel, err := ing.Ingest(context.Background(), inputs, Options{Workers: 8})
	require.NoError(t, err)

	assert.Equal(t, serial.DocIDs(), parallel.DocIDs())
	assert.Equal(t, "a.txt", serial.Rows[0].DocID)
}

func TestIngestFatalFileAbortsCall(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"good.json": `{"body": "ok"}`,
		"bad.json":  `{"body": `,
	})
	ing, _ := newTestIngester(t)

	result, err := ing.Ingest(context.Background(), []string{filepath.Join(dir, "*.json")}, Options{TextField: "body"})
	assert.Nil(t, result)
	require.ErrorIs(t, err, models.ErrFormat)
	assert.Contains(t, err.Error(), "bad.json")
}

func TestOptionsFromProfile(t *testing.T) {
	p, err := config.ParseProfileFromReader(strings.NewReader(`
text_field: body
docvars_from: filepaths
docvar_sep: "-"
docvar_names: [lang, year]
encoding: [latin1]
missing: ignore
verbosity: 3
delimiter: ";"
workers: 2
converter_timeout: 30s
`))
	require.NoError(t, err)

	opts, err := OptionsFromProfile(p)
	require.NoError(t, err)
	assert.Equal(t, "body", opts.TextField)
	assert.Equal(t, docvars.SourceFilepaths, opts.DocvarSource)
	assert.Equal(t, resolver.MissingIgnore, opts.Missing)
	assert.Equal(t, 3, *opts.Verbosity)
	assert.Equal(t, 2, opts.Workers)
	assert.Equal(t, "30s", opts.ConverterTimeout.String())

	r, err := opts.delimiter()
	require.NoError(t, err)
	assert.Equal(t, ';', r)

	_, err = OptionsFromProfile(&config.Profile{DocvarsFrom: "metadata"})
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestNewFromConfigRemoteDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.TempDirectory = t.TempDir()
	cfg.Processing.AllowRemoteInputs = false

	ing, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	ing.WithLogCore(zapcore.NewNopCore())

	_, err = ing.Ingest(context.Background(), []string{"https://example.com/a.txt"}, Options{})
	assert.ErrorIs(t, err, models.ErrConfig)
}
