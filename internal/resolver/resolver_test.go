package resolver

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readtext/backend/internal/models"
)

func writeTestFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func sources(files []models.ResolvedFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Source
	}
	return out
}

func resolve(t *testing.T, r *Resolver, policy MissingPolicy, inputs ...string) *Result {
	t.Helper()
	res, err := r.Resolve(context.Background(), inputs, policy)
	require.NoError(t, err)
	t.Cleanup(func() { res.Cleanup() })
	return res
}

func TestParseMissing(t *testing.T) {
	p, err := ParseMissing("")
	require.NoError(t, err)
	assert.Equal(t, MissingFail, p)

	p, err = ParseMissing("Ignore")
	require.NoError(t, err)
	assert.Equal(t, MissingIgnore, p)

	_, err = ParseMissing("warn")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestResolveGlob(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "b.csv"), "text\nhello\n")
	writeTestFile(t, filepath.Join(dir, "a.txt"), "hello")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	res := resolve(t, New(t.TempDir()), MissingFail, filepath.Join(dir, "*"))

	require.Len(t, res.Files, 2)
	assert.Equal(t, filepath.Join(dir, "a.txt"), res.Files[0].Source)
	assert.Equal(t, models.FormatText, res.Files[0].Format)
	assert.Equal(t, models.FormatCSV, res.Files[1].Format)
}

func TestResolveLiteralNameWithGlobCharacters(t *testing.T) {
	dir := t.TempDir()
	bracketed := writeTestFile(t, filepath.Join(dir, "report[1].txt"), "first")
	starred := writeTestFile(t, filepath.Join(dir, "notes*.txt"), "second")
	writeTestFile(t, filepath.Join(dir, "report1.txt"), "glob would pick this")

	res := resolve(t, New(t.TempDir()), MissingFail, bracketed, starred)
	assert.Equal(t, []string{bracketed, starred}, sources(res.Files))

	// a pattern that names no existing file is still expanded
	res = resolve(t, New(t.TempDir()), MissingFail, filepath.Join(dir, "report?.txt"))
	assert.Equal(t, []string{filepath.Join(dir, "report1.txt")}, sources(res.Files))
}

func TestResolveDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	_, err := New(t.TempDir()).Resolve(context.Background(), []string{dir}, MissingFail)
	require.ErrorIs(t, err, models.ErrDirectory)
	assert.Contains(t, err.Error(), filepath.Join(dir, "*"))
}

func TestResolveMissing(t *testing.T) {
	dir := t.TempDir()
	existing := writeTestFile(t, filepath.Join(dir, "a.txt"), "x")
	missing := filepath.Join(dir, "nope", "*.txt")

	_, err := New(t.TempDir()).Resolve(context.Background(), []string{existing, missing}, MissingFail)
	require.ErrorIs(t, err, models.ErrNoMatch)
	assert.Contains(t, err.Error(), missing)

	res := resolve(t, New(t.TempDir()), MissingIgnore, existing, missing)
	assert.Len(t, res.Files, 1)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], missing)
}

func TestResolveDedupe(t *testing.T) {
	dir := t.TempDir()
	a := writeTestFile(t, filepath.Join(dir, "a.txt"), "x")
	b := writeTestFile(t, filepath.Join(dir, "b.txt"), "y")
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(a, link))

	res := resolve(t, New(t.TempDir()), MissingFail, b, filepath.Join(dir, "*.txt"), link)
	assert.Equal(t, []string{b, a}, sources(res.Files))
}

func buildZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestResolveZip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "corpus.zip")
	buildZip(t, archivePath, map[string]string{
		"corpus/b.txt":         "bee",
		"corpus/a.txt":         "ay",
		"corpus/.DS_Store":     "junk",
		"__MACOSX/corpus/._a":  "junk",
		"corpus/nested/c.json": `{"text":"see"}`,
	})

	res, err := New(t.TempDir()).Resolve(context.Background(), []string{archivePath}, MissingFail)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.txt", "nested/c.json"}, sources(res.Files))
	assert.Equal(t, models.FormatJSON, res.Files[2].Format)
	content, err := os.ReadFile(res.Files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "ay", string(content))

	require.NoError(t, res.Cleanup())
	_, err = os.Stat(res.Files[0].Path)
	assert.True(t, os.IsNotExist(err))
}

func TestResolveZipRejectsEscapingMembers(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")
	buildZip(t, archivePath, map[string]string{"../evil.txt": "x"})

	_, err := New(t.TempDir()).Resolve(context.Background(), []string{archivePath}, MissingFail)
	assert.ErrorIs(t, err, models.ErrFormat)
}

func TestResolveTarGz(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range map[string]string{"one.txt": "1", "two.csv": "text\n2\n"} {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	archivePath := filepath.Join(dir, "docs.tgz")
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0644))

	res := resolve(t, New(t.TempDir()), MissingFail, archivePath)
	assert.Equal(t, []string{"one.txt", "two.csv"}, sources(res.Files))
}

func TestResolveSingleGzip(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("text,year\nhello,2020\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	gzPath := filepath.Join(dir, "data.csv.gz")
	require.NoError(t, os.WriteFile(gzPath, buf.Bytes(), 0644))

	res := resolve(t, New(t.TempDir()), MissingFail, gzPath)
	require.Len(t, res.Files, 1)
	assert.Equal(t, filepath.Join(dir, "data.csv"), res.Files[0].Source)
	assert.Equal(t, models.FormatCSV, res.Files[0].Format)

	content, err := os.ReadFile(res.Files[0].Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "text,year"))
}

func TestResolveBadGzip(t *testing.T) {
	dir := t.TempDir()
	gzPath := writeTestFile(t, filepath.Join(dir, "plain.txt.gz"), "not compressed")

	_, err := New(t.TempDir()).Resolve(context.Background(), []string{gzPath}, MissingFail)
	assert.ErrorIs(t, err, models.ErrFormat)
}

func TestResolveHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/doc.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, `{"text":"remote"}`)
	}))
	defer srv.Close()

	res := resolve(t, New(t.TempDir()), MissingFail, srv.URL+"/files/doc.json")
	require.Len(t, res.Files, 1)
	assert.Equal(t, models.FormatJSON, res.Files[0].Format)
	assert.True(t, strings.HasSuffix(res.Files[0].Source, "/files/doc.json"))

	_, err := New(t.TempDir()).Resolve(context.Background(), []string{srv.URL + "/missing.txt"}, MissingFail)
	assert.Error(t, err)
}

func TestResolveRemoteDisabled(t *testing.T) {
	r := New(t.TempDir())
	r.RegisterFetcher("https", nil)

	_, err := r.Resolve(context.Background(), []string{"https://example.com/a.txt"}, MissingFail)
	assert.ErrorIs(t, err, models.ErrConfig)
}

type fakeS3 struct {
	objects map[string]string
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for _, k := range []string{"docs/a.txt", "docs/b.txt", "docs/c.csv", "other/d.txt"} {
		if _, ok := f.objects[k]; ok && strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.objects[aws.ToString(in.Key)]))}, nil
}

func TestResolveS3Glob(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{
		"docs/a.txt":  "A",
		"docs/b.txt":  "B",
		"docs/c.csv":  "text\nC\n",
		"other/d.txt": "D",
	}}
	r := New(t.TempDir())
	r.RegisterFetcher("s3", NewS3Fetcher(fake))

	res := resolve(t, r, MissingFail, "s3://bucket/docs/*.txt")
	assert.Equal(t, []string{"bucket/docs/a.txt", "bucket/docs/b.txt"}, sources(res.Files))

	content, err := os.ReadFile(res.Files[1].Path)
	require.NoError(t, err)
	assert.Equal(t, "B", string(content))
}
