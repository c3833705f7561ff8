// Package storage stages uploaded documents on disk until they are ingested.
//
// Every staged document lives at root/<id>/<name>. The name is kept as
// uploaded (minus any directories) because it picks the reader and carries
// the filename docvars and doc_id of the document.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/readtext/backend/internal/models"
)

var (
	// ErrNotFound is returned for unknown document ids.
	ErrNotFound = errors.New("staged document not found")
	// ErrInvalidName is returned for names that reduce to no file name.
	ErrInvalidName = errors.New("invalid document name")
	// ErrIncomplete is returned when a multi-part upload is missing parts.
	ErrIncomplete = errors.New("upload is missing parts")
)

// partsDir holds multi-part uploads in progress. The leading dot keeps it
// out of the index.
const partsDir = ".parts"

// Store stages documents for ingestion.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	Rename(id string, name string) (*models.FileInfo, error)
	// Paths maps staged ids to readable paths, in order. The first unknown
	// id fails the whole lookup.
	Paths(ids []string) ([]string, error)
	SavePart(uploadID string, index int, r io.Reader) error
	Assemble(uploadID string, name string, parts int) (*models.FileInfo, error)
}

// LocalStore is a Store on the local filesystem. Its index is rebuilt from
// disk on start, so staged ids survive a restart.
type LocalStore struct {
	mu    sync.RWMutex
	root  string
	files map[string]*models.FileInfo
}

// NewLocalStore opens the staging area at root, creating it if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	s := &LocalStore{root: root, files: make(map[string]*models.FileInfo)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load indexes every root/<uuid>/<name> left by an earlier run. Directories
// that do not hold exactly one finished document are skipped.
func (s *LocalStore) load() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("reading staging directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		docs, err := os.ReadDir(filepath.Join(s.root, e.Name()))
		if err != nil || len(docs) != 1 || !docs[0].Type().IsRegular() || strings.HasPrefix(docs[0].Name(), ".") {
			continue
		}
		fi, err := docs[0].Info()
		if err != nil {
			continue
		}
		s.files[e.Name()] = newFileInfo(e.Name(), fi.Name(), fi.Size(), fi.ModTime())
	}
	return nil
}

func newFileInfo(id, name string, size int64, at time.Time) *models.FileInfo {
	return &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		Format:     models.FormatFromPath(name),
		UploadedAt: at,
	}
}

// cleanName reduces an uploaded name to its base name. Both slash styles
// count as separators since browsers on Windows may send full paths.
func cleanName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == ".." || strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// Save stages one document.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	base, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	return s.stage(base, r)
}

// stage writes r under a fresh id. The document appears under its final
// name only once fully written, so a failed upload is never ingestible.
func (s *LocalStore) stage(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating document directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".staging-*")
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("creating document: %w", err)
	}
	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), filepath.Join(dir, name))
	}
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing %s: %w", name, err)
	}

	info := newFileInfo(id, name, size, time.Now())
	s.mu.Lock()
	s.files[id] = info
	s.mu.Unlock()
	return info, nil
}

// Get returns the metadata of a staged document.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, nil
}

// List returns staged documents newest first. A limit of zero or less
// returns all of them.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].UploadedAt.Equal(list[j].UploadedAt) {
			return list[i].UploadedAt.After(list[j].UploadedAt)
		}
		return list[i].Name < list[j].Name
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes a staged document.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	delete(s.files, id)
	return nil
}

// Rename gives a staged document a new name, and with it a new reader and
// new filename docvars on the next ingestion.
func (s *LocalStore) Rename(id string, name string) (*models.FileInfo, error) {
	base, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	dir := filepath.Join(s.root, id)
	if err := os.Rename(filepath.Join(dir, info.Name), filepath.Join(dir, base)); err != nil {
		return nil, fmt.Errorf("renaming %s: %w", id, err)
	}

	renamed := newFileInfo(id, base, info.Size, info.UploadedAt)
	s.files[id] = renamed
	return renamed, nil
}

// Paths returns the on-disk path of each id.
func (s *LocalStore) Paths(ids []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, len(ids))
	for i, id := range ids {
		info, ok := s.files[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		paths[i] = filepath.Join(s.root, id, info.Name)
	}
	return paths, nil
}

func (s *LocalStore) partDir(uploadID string) (string, error) {
	if _, err := uuid.Parse(uploadID); err != nil {
		return "", fmt.Errorf("invalid upload id %q", uploadID)
	}
	return filepath.Join(s.root, partsDir, uploadID), nil
}

// SavePart stores one part of a multi-part upload. Parts may arrive in any
// order and a repeated index replaces the earlier part.
func (s *LocalStore) SavePart(uploadID string, index int, r io.Reader) error {
	if index < 0 {
		return fmt.Errorf("invalid part index %d", index)
	}
	dir, err := s.partDir(uploadID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating part directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, strconv.Itoa(index)))
	if err != nil {
		return fmt.Errorf("creating part %d: %w", index, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing part %d: %w", index, err)
	}
	return nil
}

// Assemble joins parts 0..parts-1 into one staged document and drops the
// parts. Nothing is staged unless every part is present.
func (s *LocalStore) Assemble(uploadID string, name string, parts int) (*models.FileInfo, error) {
	base, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	dir, err := s.partDir(uploadID)
	if err != nil {
		return nil, err
	}
	if parts <= 0 {
		return nil, fmt.Errorf("%w: expected a positive part count, got %d", ErrIncomplete, parts)
	}

	var missing []string
	readers := make([]io.Reader, 0, parts)
	for i := 0; i < parts; i++ {
		f, err := os.Open(filepath.Join(dir, strconv.Itoa(i)))
		if err != nil {
			missing = append(missing, strconv.Itoa(i))
			continue
		}
		defer f.Close()
		readers = append(readers, f)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	info, err := s.stage(base, io.MultiReader(readers...))
	if err != nil {
		return nil, err
	}
	os.RemoveAll(dir)
	return info, nil
}
