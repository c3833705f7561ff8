package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/readtext/backend/internal/export"
	"github.com/readtext/backend/internal/models"
)

// shortID safely truncates an ID for logging (handles short IDs gracefully)
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// ResultStore keeps finished job results as DuckDB files so they can be
// downloaded after the in-memory job has been cleaned up.
type ResultStore struct {
	dir string
	log *zap.Logger
	mu  sync.RWMutex
	// cache tracks stored job IDs (jobID -> dbPath)
	cache map[string]string
}

// NewResultStore creates a result store in dir and indexes the databases
// already there.
func NewResultStore(dir string, log *zap.Logger) (*ResultStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	store := &ResultStore{
		dir:   dir,
		log:   log,
		cache: make(map[string]string),
	}
	store.scanExisting()
	return store, nil
}

// scanExisting indexes files named job_<id>.duckdb.
func (rs *ResultStore) scanExisting() {
	entries, err := os.ReadDir(rs.dir)
	if err != nil {
		rs.log.Warn("failed to scan results directory", zap.Error(err))
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "job_") || filepath.Ext(name) != ".duckdb" {
			continue
		}
		jobID := strings.TrimSuffix(strings.TrimPrefix(name, "job_"), ".duckdb")
		rs.cache[jobID] = filepath.Join(rs.dir, name)
	}

	rs.log.Info("scanned stored results", zap.Int("count", len(rs.cache)))
}

// GetDBPath returns the path where a job's result is stored.
func (rs *ResultStore) GetDBPath(jobID string) string {
	return filepath.Join(rs.dir, fmt.Sprintf("job_%s.duckdb", jobID))
}

// Save writes a job result, replacing any earlier one.
func (rs *ResultStore) Save(ctx context.Context, jobID string, t *models.ResultTable) error {
	dbPath := rs.GetDBPath(jobID)
	if err := export.WriteDuckDB(ctx, dbPath, export.DefaultTableName, t); err != nil {
		os.Remove(dbPath)
		return fmt.Errorf("failed to store result: %w", err)
	}

	rs.mu.Lock()
	rs.cache[jobID] = dbPath
	rs.mu.Unlock()

	rs.log.Debug("stored job result", zap.String("job", shortID(jobID)), zap.Int("rows", len(t.Rows)))
	return nil
}

// Path returns the stored database of a job, if there is one.
func (rs *ResultStore) Path(jobID string) (string, bool) {
	rs.mu.RLock()
	dbPath, ok := rs.cache[jobID]
	rs.mu.RUnlock()
	if !ok {
		return "", false
	}

	// Verify file still exists
	if _, err := os.Stat(dbPath); err != nil {
		rs.mu.Lock()
		delete(rs.cache, jobID)
		rs.mu.Unlock()
		return "", false
	}
	return dbPath, true
}

// Delete removes a stored result.
func (rs *ResultStore) Delete(jobID string) error {
	rs.mu.Lock()
	delete(rs.cache, jobID)
	rs.mu.Unlock()

	if err := os.Remove(rs.GetDBPath(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return nil
}

// List returns all stored job IDs.
func (rs *ResultStore) List() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	ids := make([]string, 0, len(rs.cache))
	for id := range rs.cache {
		ids = append(ids, id)
	}
	return ids
}

// Stats returns statistics about the result store.
func (rs *ResultStore) Stats() map[string]interface{} {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var totalSize int64
	for jobID, dbPath := range rs.cache {
		if info, err := os.Stat(dbPath); err == nil {
			totalSize += info.Size()
		} else {
			// File missing, remove from cache
			delete(rs.cache, jobID)
		}
	}

	return map[string]interface{}{
		"resultCount": len(rs.cache),
		"totalSize":   totalSize,
		"resultDir":   rs.dir,
	}
}
