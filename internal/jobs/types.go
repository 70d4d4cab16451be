package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by JobStore lookups for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeDownload fetches transactions and renders a download file.
	JobTypeDownload JobType = "download"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// DownloadRequest carries the one-click download parameters.
type DownloadRequest struct {
	UserID      string `json:"user_id"`
	Format      string `json:"format"`
	DaysBack    int    `json:"days_back"`
	PublicToken string `json:"-"`
	AccessToken string `json:"-"`
	ItemID      string `json:"item_id,omitempty"`
}

// DownloadResult describes the rendered file. Payload is served separately.
type DownloadResult struct {
	Filename          string  `json:"filename"`
	ContentType       string  `json:"content_type"`
	Size              int     `json:"size"`
	TotalTransactions int     `json:"total_transactions"`
	TotalAmount       float64 `json:"total_amount"`
	ArchiveURI        string  `json:"archive_uri,omitempty"`
	Payload           []byte  `json:"-"`
}

// DownloadJob is an asynchronous one-click download.
type DownloadJob struct {
	JobID   string          `json:"job_id"`
	Request DownloadRequest `json:"request"`
	Status  JobStatus       `json:"status"`
	Result  *DownloadResult `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func (j *DownloadJob) GetID() string        { return j.JobID }
func (j *DownloadJob) GetType() JobType     { return JobTypeDownload }
func (j *DownloadJob) GetStatus() JobStatus { return j.Status }

// Job is implemented by every job type.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

var _ Job = (*DownloadJob)(nil)

// Publisher enqueues jobs.
type Publisher interface {
	PublishDownload(ctx context.Context, job *DownloadJob) error
	Close() error
}

// Consumer runs queued jobs through a handler.
type Consumer interface {
	Start(ctx context.Context, handler JobHandler) error
	Stop(ctx context.Context) error
}

// JobHandler processes a job. It may set job.Result; a returned error marks
// the job failed (or retrying, when retries remain).
type JobHandler func(ctx context.Context, job *DownloadJob) error

// JobStore persists job state.
type JobStore interface {
	SaveJob(ctx context.Context, job *DownloadJob) error
	GetJob(ctx context.Context, jobID string) (*DownloadJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*DownloadJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	UserID string
	Status JobStatus
	Limit  int
	Offset int
}
