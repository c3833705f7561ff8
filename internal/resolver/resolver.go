// Package resolver turns user inputs (paths, globs, archives, URLs) into an
// ordered, de-duplicated list of readable local files.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/readtext/backend/internal/logging"
	"github.com/readtext/backend/internal/models"
)

// MissingPolicy decides what happens when an input matches no files.
type MissingPolicy string

const (
	MissingFail   MissingPolicy = "fail"
	MissingIgnore MissingPolicy = "ignore"
)

// ParseMissing parses a policy name; empty means MissingFail.
func ParseMissing(s string) (MissingPolicy, error) {
	switch MissingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MissingFail:
		return MissingFail, nil
	case MissingIgnore:
		return MissingIgnore, nil
	}
	return "", models.NewConfigError("ignore_missing", "unknown policy %q (want fail or ignore)", s)
}

// Resolver expands inputs into files. Remote inputs are handled by the
// fetcher registered for their URL scheme.
type Resolver struct {
	tempRoot string
	fetchers map[string]Fetcher
}

// New creates a Resolver that stages fetched and extracted files under
// tempRoot (os.TempDir when empty). HTTP and HTTPS fetching is enabled.
func New(tempRoot string) *Resolver {
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}
	r := &Resolver{
		tempRoot: tempRoot,
		fetchers: make(map[string]Fetcher),
	}
	web := NewHTTPFetcher(nil)
	r.RegisterFetcher("http", web)
	r.RegisterFetcher("https", web)
	return r
}

// RegisterFetcher installs f for a URL scheme. A nil f disables the scheme.
func (r *Resolver) RegisterFetcher(scheme string, f Fetcher) {
	scheme = strings.ToLower(scheme)
	if f == nil {
		delete(r.fetchers, scheme)
		return
	}
	r.fetchers[scheme] = f
}

// Result is the outcome of one Resolve call.
type Result struct {
	Files    []models.ResolvedFile
	Warnings []string

	dir string
}

// Cleanup removes every file the resolver staged for this call.
func (r *Result) Cleanup() error {
	if r == nil || r.dir == "" {
		return nil
	}
	return os.RemoveAll(r.dir)
}

// Resolve expands inputs in order. On error the staged files are already
// removed and the returned Result is nil.
func (r *Resolver) Resolve(ctx context.Context, inputs []string, policy MissingPolicy) (*Result, error) {
	log := logging.FromContext(ctx)
	res := &Result{}
	seen := make(map[string]struct{})

	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			res.Cleanup()
			return nil, err
		}

		files, err := r.resolveOne(ctx, res, input)
		if err != nil {
			res.Cleanup()
			return nil, err
		}

		if len(files) == 0 {
			if policy == MissingIgnore {
				msg := fmt.Sprintf("no files found matching %q", input)
				log.Warn(msg)
				res.Warnings = append(res.Warnings, msg)
				continue
			}
			res.Cleanup()
			return nil, fmt.Errorf("%w: %s", models.ErrNoMatch, input)
		}

		for _, f := range files {
			key := canonical(f.Path)
			if _, dup := seen[key]; dup {
				log.Debug("skipping duplicate file", zap.String("path", f.Path))
				continue
			}
			seen[key] = struct{}{}
			f.Format = models.FormatFromPath(f.Source)
			res.Files = append(res.Files, f)
		}
	}

	log.Info("resolved inputs", zap.Int("inputs", len(inputs)), zap.Int("files", len(res.Files)))
	return res, nil
}

func (r *Resolver) resolveOne(ctx context.Context, res *Result, input string) ([]models.ResolvedFile, error) {
	if u, ok := remoteURL(input); ok {
		return r.resolveRemote(ctx, res, u, input)
	}

	paths, err := expandLocal(input)
	if err != nil {
		return nil, err
	}

	var files []models.ResolvedFile
	for _, p := range paths {
		expanded, err := r.expandArchive(res, models.ResolvedFile{Path: p, Source: p})
		if err != nil {
			return nil, err
		}
		files = append(files, expanded...)
	}
	return files, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, res *Result, u *url.URL, input string) ([]models.ResolvedFile, error) {
	f, ok := r.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, models.NewConfigError("file", "%s inputs are not enabled: %s", u.Scheme, input)
	}

	dir, err := r.stagingDir(res)
	if err != nil {
		return nil, err
	}
	fetched, err := f.Fetch(ctx, u, dir)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", input, err)
	}

	var files []models.ResolvedFile
	for _, rf := range fetched {
		expanded, err := r.expandArchive(res, rf)
		if err != nil {
			return nil, err
		}
		files = append(files, expanded...)
	}
	return files, nil
}

// expandArchive returns the members of an archive, or the file itself.
func (r *Resolver) expandArchive(res *Result, f models.ResolvedFile) ([]models.ResolvedFile, error) {
	kind := archiveKind(f.Source)
	if kind == archiveNone {
		return []models.ResolvedFile{f}, nil
	}

	dir, err := r.stagingDir(res)
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(dir, uuid.New().String())
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extraction directory: %w", err)
	}

	if kind == archiveGzip {
		out, err := gunzipFile(f.Path, dest, filepath.Base(trimArchiveExt(f.Source)))
		if err != nil {
			return nil, &models.FileError{Path: f.Source, Err: err}
		}
		return []models.ResolvedFile{{Path: out, Source: trimArchiveExt(f.Source)}}, nil
	}

	if err := extract(kind, f.Path, dest); err != nil {
		return nil, &models.FileError{Path: f.Source, Err: err}
	}
	return listExtracted(dest)
}

func (r *Resolver) stagingDir(res *Result) (string, error) {
	if res.dir != "" {
		return res.dir, nil
	}
	dir := filepath.Join(r.tempRoot, "readtext-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	res.dir = dir
	return dir, nil
}

// expandLocal returns the regular files a local input names.
func expandLocal(input string) ([]string, error) {
	// An existing path is literal even when its name holds glob characters.
	info, err := os.Stat(input)
	switch {
	case err == nil:
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s (to read the files inside, use %s)",
				models.ErrDirectory, input, filepath.Join(input, "*"))
		}
		return []string{input}, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("stat %s: %w", input, err)
	case !hasGlobMeta(input):
		return nil, nil
	}

	matches, err := filepath.Glob(input)
	if err != nil {
		return nil, models.NewConfigError("file", "bad pattern %q: %v", input, err)
	}
	files := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

func remoteURL(input string) (*url.URL, bool) {
	i := strings.Index(input, "://")
	if i <= 0 {
		return nil, false
	}
	u, err := url.Parse(input)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}

// canonical returns the absolute, symlink-free form of path for dedup.
func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
