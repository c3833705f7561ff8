package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readtext/backend/internal/ingest"
	"github.com/readtext/backend/internal/models"
	"github.com/readtext/backend/internal/parser"
	"github.com/readtext/backend/internal/resolver"
)

type fakeIngester struct {
	result *models.ResultTable
	err    error
	block  bool
}

func (f *fakeIngester) Ingest(ctx context.Context, _ []string, _ ingest.Options) (*models.ResultTable, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

func sampleResult() *models.ResultTable {
	t := models.NewResultTable()
	t.Columns = []models.Column{{Name: "year", Type: models.ColumnTypeInteger}}
	t.Rows = []models.Row{{DocID: "a.txt", Text: "hello", Values: []any{int64(2001)}}}
	t.Warnings = []string{"something odd"}
	return t
}

func waitForJob(t *testing.T, m *Manager, id string) *models.IngestJob {
	t.Helper()
	var job *models.IngestJob
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = m.GetJob(id)
		return ok && finished(job)
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestJobCompletes(t *testing.T) {
	store, err := NewResultStore(t.TempDir(), nil)
	require.NoError(t, err)
	m := NewManager(&fakeIngester{result: sampleResult()}, store, nil)

	job, err := m.StartJob([]string{"a.txt"}, ingest.Options{})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)

	job = waitForJob(t, m, job.ID)
	assert.Equal(t, models.JobStatusComplete, job.Status)
	assert.Equal(t, 1, job.RowCount)
	assert.Equal(t, 1, job.ColumnCount)
	assert.Equal(t, 1, job.WarningCount)

	result, ok := m.GetResult(job.ID)
	require.True(t, ok)
	assert.Equal(t, "a.txt", result.Rows[0].DocID)

	path, ok := m.ResultPath(job.ID)
	require.True(t, ok)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestJobFails(t *testing.T) {
	m := NewManager(&fakeIngester{err: models.ErrNoMatch}, nil, nil)

	job, err := m.StartJob([]string{"missing/*.txt"}, ingest.Options{})
	require.NoError(t, err)

	job = waitForJob(t, m, job.ID)
	assert.Equal(t, models.JobStatusError, job.Status)
	assert.Contains(t, job.Error, "no matching files")

	_, ok := m.GetResult(job.ID)
	assert.False(t, ok)
	_, ok = m.ResultPath(job.ID)
	assert.False(t, ok)
}

func TestJobCancelAndTimeout(t *testing.T) {
	m := NewManager(&fakeIngester{block: true}, nil, nil)

	job, err := m.StartJob([]string{"a.txt"}, ingest.Options{})
	require.NoError(t, err)
	assert.True(t, m.CancelJob(job.ID))
	job = waitForJob(t, m, job.ID)
	assert.Equal(t, models.JobStatusError, job.Status)

	m.SetJobTimeout(20 * time.Millisecond)
	job, err = m.StartJob([]string{"a.txt"}, ingest.Options{})
	require.NoError(t, err)
	job = waitForJob(t, m, job.ID)
	assert.Contains(t, job.Error, "time limit")

	assert.False(t, m.CancelJob("unknown"))
}

func TestStartJobRequiresInputs(t *testing.T) {
	m := NewManager(&fakeIngester{}, nil, nil)
	_, err := m.StartJob(nil, ingest.Options{})
	assert.True(t, errors.Is(err, models.ErrConfig))
}

func TestCleanupOldJobs(t *testing.T) {
	m := NewManager(&fakeIngester{result: sampleResult()}, nil, nil)
	job, err := m.StartJob([]string{"a.txt"}, ingest.Options{})
	require.NoError(t, err)
	waitForJob(t, m, job.ID)

	assert.Equal(t, 0, m.CleanupOldJobs(time.Minute))

	m.mu.Lock()
	m.jobs[job.ID].LastAccessed = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	assert.Equal(t, 1, m.CleanupOldJobs(time.Minute))
	_, ok := m.GetJob(job.ID)
	assert.False(t, ok)
}

func TestJobLimitDropsOldestFinished(t *testing.T) {
	m := NewManager(&fakeIngester{result: sampleResult()}, nil, nil)
	var first string
	for i := 0; i < MaxJobs; i++ {
		job, err := m.StartJob([]string{"a.txt"}, ingest.Options{})
		require.NoError(t, err)
		waitForJob(t, m, job.ID)
		if i == 0 {
			first = job.ID
		}
		m.mu.Lock()
		m.jobs[job.ID].LastAccessed = time.Now().Add(time.Duration(i) * time.Second)
		m.mu.Unlock()
	}

	_, err := m.StartJob([]string{"a.txt"}, ingest.Options{})
	require.NoError(t, err)
	_, ok := m.GetJob(first)
	assert.False(t, ok)
	assert.Len(t, m.ListJobs(), MaxJobs)
}

func TestResultStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := NewResultStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "job-1", sampleResult()))

	reopened, err := NewResultStore(dir, nil)
	require.NoError(t, err)
	path, ok := reopened.Path("job-1")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "job_job-1.duckdb"), path)
	assert.Equal(t, []string{"job-1"}, reopened.List())

	require.NoError(t, reopened.Delete("job-1"))
	_, ok = reopened.Path("job-1")
	assert.False(t, ok)
}

func TestManagerWithRealIngester(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2020_report.txt"), []byte("annual report"), 0644))
	ing := ingest.New(resolver.New(t.TempDir()), parser.DefaultConverters())
	m := NewManager(ing, nil, nil)

	verbosity := 0
	job, err := m.StartJob([]string{filepath.Join(dir, "*.txt")}, ingest.Options{Verbosity: &verbosity})
	require.NoError(t, err)
	job = waitForJob(t, m, job.ID)
	require.Equal(t, models.JobStatusComplete, job.Status, job.Error)

	result, ok := m.GetResult(job.ID)
	require.True(t, ok)
	assert.Equal(t, "annual report", result.Rows[0].Text)
}
