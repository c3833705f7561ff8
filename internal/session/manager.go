// Package session runs asynchronous ingestion jobs and keeps their results
// until they expire.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/readtext/backend/internal/ingest"
	"github.com/readtext/backend/internal/models"
)

// MaxJobs limits retained jobs to prevent memory exhaustion
const MaxJobs = 20

// JobMaxAge is how long to keep finished jobs before cleanup
const JobMaxAge = 30 * time.Minute

// JobKeepAliveWindow is how long to keep jobs whose results are still being read
const JobKeepAliveWindow = 5 * time.Minute

// Ingester runs one ingestion call.
type Ingester interface {
	Ingest(ctx context.Context, inputs []string, opts ingest.Options) (*models.ResultTable, error)
}

// Manager handles asynchronous ingestion jobs.
type Manager struct {
	jobs     map[string]*JobState
	mu       sync.RWMutex
	ingester Ingester
	results  *ResultStore
	timeout  time.Duration
	log      *zap.Logger
}

// JobState holds a job, its result once complete, and its cancel function.
type JobState struct {
	Job          *models.IngestJob
	Result       *models.ResultTable
	LastAccessed time.Time
	cancel       context.CancelFunc
}

// NewManager creates a job manager. results may be nil to keep results in
// memory only.
func NewManager(ing Ingester, results *ResultStore, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		jobs:     make(map[string]*JobState),
		ingester: ing,
		results:  results,
		log:      log,
	}
}

// SetJobTimeout bounds each job's run time; zero disables the limit.
func (m *Manager) SetJobTimeout(d time.Duration) {
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

// StartJob begins an ingestion in the background.
func (m *Manager) StartJob(inputs []string, opts ingest.Options) (*models.IngestJob, error) {
	if len(inputs) == 0 {
		return nil, models.NewConfigError("file", "no inputs given")
	}

	// Clean up old jobs if at limit
	if err := m.cleanupOldJobsIfNeeded(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	job := models.NewIngestJob(id, inputs)

	m.mu.Lock()
	var ctx context.Context
	var cancel context.CancelFunc
	if m.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), m.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	m.jobs[id] = &JobState{Job: job, LastAccessed: time.Now(), cancel: cancel}
	m.mu.Unlock()

	go m.runJob(ctx, id, inputs, opts)

	return m.snapshot(job), nil
}

func (m *Manager) runJob(ctx context.Context, id string, inputs []string, opts ingest.Options) {
	// Recover from panics to prevent backend crash
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("job panicked", zap.String("job", shortID(id)), zap.Any("panic", r))
			m.finish(id, nil, fmt.Errorf("ingestion panicked: %v", r), time.Now())
		}
	}()

	start := time.Now()
	m.mu.Lock()
	if state, ok := m.jobs[id]; ok {
		state.Job.Status = models.JobStatusRunning
		state.Job.StartTime = start.UnixMilli()
	}
	m.mu.Unlock()

	m.log.Info("job started", zap.String("job", shortID(id)), zap.Strings("inputs", inputs))
	result, err := m.ingester.Ingest(ctx, inputs, opts)
	if err == nil && m.results != nil {
		if serr := m.results.Save(ctx, id, result); serr != nil {
			m.log.Warn("failed to persist job result", zap.String("job", shortID(id)), zap.Error(serr))
		}
	}
	m.finish(id, result, err, start)
}

func (m *Manager) finish(id string, result *models.ResultTable, err error, start time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.jobs[id]
	if !ok {
		return
	}
	state.cancel()

	end := time.Now()
	state.Job.EndTime = end.UnixMilli()
	state.Job.ProcessingTimeMs = end.Sub(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("job exceeded its time limit: %w", err)
		}
		state.Job.Status = models.JobStatusError
		state.Job.Error = err.Error()
		m.log.Warn("job failed", zap.String("job", shortID(id)), zap.Error(err))
		return
	}

	state.Result = result
	state.Job.Status = models.JobStatusComplete
	state.Job.RowCount = len(result.Rows)
	state.Job.ColumnCount = len(result.Columns)
	state.Job.WarningCount = len(result.Warnings)
	m.log.Info("job complete",
		zap.String("job", shortID(id)),
		zap.Int("documents", len(result.Rows)),
		zap.Int64("ms", state.Job.ProcessingTimeMs))
}

// snapshot copies a job so callers never race with the worker.
func (m *Manager) snapshot(job *models.IngestJob) *models.IngestJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *job
	cp.Inputs = append([]string(nil), job.Inputs...)
	return &cp
}

// GetJob returns a job by ID.
func (m *Manager) GetJob(id string) (*models.IngestJob, bool) {
	m.mu.RLock()
	state, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.snapshot(state.Job), true
}

// GetResult returns the table of a complete job and marks it as in use.
func (m *Manager) GetResult(id string) (*models.ResultTable, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.jobs[id]
	if !ok || state.Result == nil {
		return nil, false
	}
	state.LastAccessed = time.Now()
	return state.Result, true
}

// ResultPath returns the stored DuckDB file of a job. Stored results outlive
// the in-memory job.
func (m *Manager) ResultPath(id string) (string, bool) {
	if m.results == nil {
		return "", false
	}
	return m.results.Path(id)
}

// CancelJob stops a pending or running job.
func (m *Manager) CancelJob(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.jobs[id]
	if !ok {
		return false
	}
	state.cancel()
	return true
}

// ListJobs returns every retained job.
func (m *Manager) ListJobs() []*models.IngestJob {
	m.mu.RLock()
	states := make([]*JobState, 0, len(m.jobs))
	for _, state := range m.jobs {
		states = append(states, state)
	}
	m.mu.RUnlock()

	jobs := make([]*models.IngestJob, len(states))
	for i, state := range states {
		jobs[i] = m.snapshot(state.Job)
	}
	return jobs
}

// TouchJob updates the LastAccessed timestamp for a job.
func (m *Manager) TouchJob(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.jobs[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

func finished(job *models.IngestJob) bool {
	return job.Status == models.JobStatusComplete || job.Status == models.JobStatusError
}

// cleanupOldJobsIfNeeded drops finished jobs, oldest first, when at capacity.
func (m *Manager) cleanupOldJobsIfNeeded() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.jobs) < MaxJobs {
		return nil
	}

	var oldestID string
	var oldest time.Time
	for id, state := range m.jobs {
		if !finished(state.Job) {
			continue
		}
		if oldestID == "" || state.LastAccessed.Before(oldest) {
			oldestID, oldest = id, state.LastAccessed
		}
	}
	if oldestID == "" {
		return fmt.Errorf("too many running jobs (limit %d)", MaxJobs)
	}

	delete(m.jobs, oldestID)
	m.log.Info("dropped old job to free memory", zap.String("job", shortID(oldestID)))
	return nil
}

// CleanupOldJobs removes finished jobs older than maxAge, but keeps jobs
// accessed within JobKeepAliveWindow.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-JobKeepAliveWindow)

	removed := 0
	for id, state := range m.jobs {
		if !finished(state.Job) {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) || state.LastAccessed.After(cutoff) {
			continue
		}
		delete(m.jobs, id)
		removed++
		m.log.Debug("cleaned up aged job", zap.String("job", shortID(id)))
	}
	return removed
}
