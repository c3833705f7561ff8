// Package testutil holds test doubles shared by handler tests.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/readtext/backend/internal/models"
	"github.com/readtext/backend/internal/storage"
)

// MockStorage is a storage.Store with predictable ids ("doc-1", "doc-2",
// ...). Given a directory it writes each document to dir/<id>/<name> like
// the real store, so staged ids can be ingested.
type MockStorage struct {
	mu    sync.Mutex
	dir   string
	seq   int
	docs  map[string]*models.FileInfo
	data  map[string][]byte
	parts map[string]map[int][]byte
}

// NewMockStorage creates a store that keeps documents in memory only.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		docs:  make(map[string]*models.FileInfo),
		data:  make(map[string][]byte),
		parts: make(map[string]map[int][]byte),
	}
}

// NewMockStorageWithTempDir creates a store that also writes to dir.
func NewMockStorageWithTempDir(dir string) *MockStorage {
	m := NewMockStorage()
	m.dir = dir
	return m
}

var _ storage.Store = (*MockStorage)(nil)

func notFound(id string) error {
	return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(m.nextID(), name, data)
}

func (m *MockStorage) nextID() string {
	m.seq++
	return "doc-" + strconv.Itoa(m.seq)
}

func baseName(name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidName, name)
	}
	return base, nil
}

// put stages data under id; the caller holds the lock.
func (m *MockStorage) put(id, name string, data []byte) (*models.FileInfo, error) {
	base, err := baseName(name)
	if err != nil {
		return nil, err
	}
	if m.dir != "" {
		if err := os.MkdirAll(filepath.Join(m.dir, id), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(m.dir, id, base), data, 0644); err != nil {
			return nil, err
		}
	}

	info := &models.FileInfo{
		ID:         id,
		Name:       base,
		Size:       int64(len(data)),
		Format:     models.FormatFromPath(base),
		UploadedAt: time.Now(),
	}
	m.docs[id] = info
	m.data[id] = data
	return info, nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.docs[id]; ok {
		return info, nil
	}
	return nil, notFound(id)
}

// List returns documents in staging order, newest first.
func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := make([]*models.FileInfo, 0, len(m.docs))
	for _, info := range m.docs {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return seqOf(list[i].ID) > seqOf(list[j].ID) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func seqOf(id string) int {
	var n int
	fmt.Sscanf(id, "doc-%d", &n)
	return n
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return notFound(id)
	}
	if m.dir != "" {
		os.RemoveAll(filepath.Join(m.dir, id))
	}
	delete(m.docs, id)
	delete(m.data, id)
	return nil
}

func (m *MockStorage) Rename(id string, name string) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return nil, notFound(id)
	}
	if _, err := baseName(name); err != nil {
		return nil, err
	}
	if m.dir != "" {
		os.RemoveAll(filepath.Join(m.dir, id))
	}
	return m.put(id, name, m.data[id])
}

func (m *MockStorage) Paths(ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	root := m.dir
	if root == "" {
		root = "/staged"
	}
	paths := make([]string, len(ids))
	for i, id := range ids {
		info, ok := m.docs[id]
		if !ok {
			return nil, notFound(id)
		}
		paths[i] = filepath.Join(root, id, info.Name)
	}
	return paths, nil
}

func (m *MockStorage) SavePart(uploadID string, index int, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parts[uploadID] == nil {
		m.parts[uploadID] = make(map[int][]byte)
	}
	m.parts[uploadID][index] = data
	return nil
}

func (m *MockStorage) Assemble(uploadID string, name string, parts int) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf bytes.Buffer
	for i := 0; i < parts; i++ {
		p, ok := m.parts[uploadID][i]
		if !ok {
			return nil, fmt.Errorf("%w: %d", storage.ErrIncomplete, i)
		}
		buf.Write(p)
	}
	info, err := m.put(m.nextID(), name, buf.Bytes())
	if err != nil {
		return nil, err
	}
	delete(m.parts, uploadID)
	return info, nil
}

// AddFile stages a document under a fixed id.
func (m *MockStorage) AddFile(id string, name string, data []byte) *models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.put(id, name, data)
	if err != nil {
		panic(fmt.Sprintf("staging %s: %v", name, err))
	}
	return info
}

// Content returns the staged bytes of id.
func (m *MockStorage) Content(id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[id]
	return data, ok
}
