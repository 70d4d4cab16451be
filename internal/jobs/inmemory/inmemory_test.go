package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/bank-data-pipeline/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.DownloadJob {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 2, store)
	err := q.Start(ctx, func(ctx context.Context, job *jobs.DownloadJob) error {
		job.Result = &jobs.DownloadResult{Filename: "bank_transactions.csv", TotalTransactions: 3}
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.DownloadJob{Request: jobs.DownloadRequest{UserID: "u1", Format: "csv"}}
	if err := q.PublishDownload(ctx, job); err != nil {
		t.Fatalf("PublishDownload() error = %v", err)
	}
	if job.JobID == "" {
		t.Fatal("expected job id to be assigned")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.Result == nil || done.Result.TotalTransactions != 3 {
		t.Errorf("Result = %+v", done.Result)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("expected timestamps to be set")
	}

	if err := q.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := q.PublishDownload(ctx, &jobs.DownloadJob{}); err == nil {
		t.Error("expected error publishing to a stopped queue")
	}
}

func TestQueue_FailsWithoutRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(1, 1, store)
	defer q.Close()

	var mu sync.Mutex
	calls := map[string]int{}
	_ = q.Start(ctx, func(ctx context.Context, job *jobs.DownloadJob) error {
		mu.Lock()
		calls[job.Request.Format]++
		mu.Unlock()
		if job.Request.Format == "bad" {
			return errors.New("invalid public token")
		}
		return nil
	})

	bad := &jobs.DownloadJob{Request: jobs.DownloadRequest{Format: "bad"}}
	if err := q.PublishDownload(ctx, bad); err != nil {
		t.Fatal(err)
	}
	failed := waitForStatus(t, store, bad.JobID, jobs.JobStatusFailed)
	if failed.Error != "invalid public token" {
		t.Errorf("failed job = %+v", failed)
	}

	// One worker runs jobs in order; a re-queued failure would run again
	// ahead of the next job.
	time.Sleep(50 * time.Millisecond)
	good := &jobs.DownloadJob{Request: jobs.DownloadRequest{Format: "json"}}
	if err := q.PublishDownload(ctx, good); err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, store, good.JobID, jobs.JobStatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	if calls["bad"] != 1 {
		t.Errorf("failed job ran %d times, want 1", calls["bad"])
	}
	if got, _ := store.GetJob(ctx, bad.JobID); got.Status != jobs.JobStatusFailed {
		t.Errorf("failed job status = %s", got.Status)
	}
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []struct {
		id, user string
		status   jobs.JobStatus
	}{
		{"a", "u1", jobs.JobStatusCompleted},
		{"b", "u2", jobs.JobStatusFailed},
		{"c", "u1", jobs.JobStatusPending},
	} {
		if err := s.SaveJob(ctx, &jobs.DownloadJob{
			JobID:     j.id,
			Request:   jobs.DownloadRequest{UserID: j.user},
			Status:    j.status,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"c", "b", "a"}},
		{"by user", jobs.JobFilter{UserID: "u1"}, []string{"c", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusFailed}, []string{"b"}},
		{"limit and offset", jobs.JobFilter{Limit: 1, Offset: 1}, []string{"b"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].JobID != id {
					t.Errorf("job %d = %s, want %s", i, got[i].JobID, id)
				}
			}
		})
	}
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.SaveJob(ctx, &jobs.DownloadJob{}); err == nil {
		t.Error("expected error for empty job id")
	}
	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob() error = %v, want ErrJobNotFound", err)
	}
	if err := s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, "x"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("UpdateJobStatus() error = %v", err)
	}

	_ = s.SaveJob(ctx, &jobs.DownloadJob{JobID: "j"})
	if err := s.UpdateJobStatus(ctx, "j", jobs.JobStatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}
	job, _ := s.GetJob(ctx, "j")
	if job.Status != jobs.JobStatusFailed || job.Error != "boom" {
		t.Errorf("job = %+v", job)
	}
}
