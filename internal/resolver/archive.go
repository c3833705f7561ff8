package resolver

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/readtext/backend/internal/models"
)

type archive int

const (
	archiveNone archive = iota
	archiveZip
	archiveTar
	archiveTarGz
	archiveGzip
)

func archiveKind(source string) archive {
	lower := strings.ToLower(source)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return archiveZip
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return archiveTarGz
	case strings.HasSuffix(lower, ".tar"):
		return archiveTar
	case strings.HasSuffix(lower, ".gz"):
		return archiveGzip
	}
	return archiveNone
}

// trimArchiveExt drops the compression suffix of a single-file gzip source.
func trimArchiveExt(source string) string {
	return source[:len(source)-len(filepath.Ext(source))]
}

func extract(kind archive, src, dest string) error {
	switch kind {
	case archiveZip:
		return extractZip(src, dest)
	case archiveTar:
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		return extractTar(f, dest)
	case archiveTarGz:
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		gz, err := newGzipReader(f)
		if err != nil {
			return err
		}
		defer gz.Close()
		return extractTar(gz, dest)
	}
	return fmt.Errorf("unsupported archive: %s", src)
}

func extractZip(src, dest string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrFormat, err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		target, err := memberPath(dest, zf.Name)
		if err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		err = writeFile(target, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrFormat, err)
		}

		target, err := memberPath(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr); err != nil {
				return err
			}
		}
	}
}

// gunzipFile decompresses a single-file gzip into dir/name.
func gunzipFile(src, dir, name string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	gz, err := newGzipReader(in)
	if err != nil {
		return "", err
	}
	defer gz.Close()

	out := filepath.Join(dir, name)
	if err := writeFile(out, gz); err != nil {
		return "", err
	}
	return out, nil
}

// newGzipReader checks the gzip magic before opening the stream.
func newGzipReader(f *os.File) (*gzip.Reader, error) {
	magic := make([]byte, 2)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, fmt.Errorf("%w: not a gzip file", models.ErrFormat)
	}
	if magic[0] != 0x1f || magic[1] != 0x8b {
		return nil, fmt.Errorf("%w: not a gzip file", models.ErrFormat)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return gzip.NewReader(f)
}

// memberPath joins an archive member name onto dest, rejecting names that
// escape it.
func memberPath(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: archive member %q escapes the archive", models.ErrFormat, name)
	}
	return target, nil
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write error: %w", err)
	}
	return out.Close()
}

// listExtracted lists the regular files under root. When root holds a single
// directory and nothing else, listing starts inside it. Hidden entries and
// __MACOSX metadata are skipped.
func listExtracted(root string) ([]models.ResolvedFile, error) {
	base := root
	entries, err := visibleEntries(root)
	if err != nil {
		return nil, err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		base = filepath.Join(root, entries[0].Name())
	}

	var files []models.ResolvedFile
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != base && skipEntry(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		files = append(files, models.ResolvedFile{Path: p, Source: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Source < files[j].Source })
	return files, nil
}

func visibleEntries(dir string) ([]fs.DirEntry, error) {
	all, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := all[:0]
	for _, e := range all {
		if !skipEntry(e.Name()) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func skipEntry(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__MACOSX"
}
