package models

// JobStatus represents the status of an ingestion job.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusError    JobStatus = "error"
)

// IngestJob represents an asynchronous ingestion started through the API.
type IngestJob struct {
	ID               string    `json:"id"`
	Inputs           []string  `json:"inputs"`
	Status           JobStatus `json:"status"`
	RowCount         int       `json:"rowCount,omitempty"`
	ColumnCount      int       `json:"columnCount,omitempty"`
	WarningCount     int       `json:"warningCount,omitempty"`
	ProcessingTimeMs int64     `json:"processingTimeMs,omitempty"`
	StartTime        int64     `json:"startTime,omitempty"` // Unix ms
	EndTime          int64     `json:"endTime,omitempty"`   // Unix ms
	Error            string    `json:"error,omitempty"`
}

// NewIngestJob creates a new IngestJob in pending status.
func NewIngestJob(id string, inputs []string) *IngestJob {
	return &IngestJob{
		ID:     id,
		Inputs: inputs,
		Status: JobStatusPending,
	}
}
