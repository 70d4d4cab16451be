package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dvloznov/bank-data-pipeline/internal/api/middleware"
	"github.com/dvloznov/bank-data-pipeline/internal/export"
	"github.com/dvloznov/bank-data-pipeline/internal/gcsuploader"
	"github.com/dvloznov/bank-data-pipeline/internal/jobs"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/pipeline"
)

// JobsHandler handles asynchronous download jobs.
type JobsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, publisher jobs.Publisher) *JobsHandler {
	return &JobsHandler{store: store, publisher: publisher}
}

// CreateDownload handles POST /api/downloads
func (h *JobsHandler) CreateDownload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		Format      string `json:"format"`
		DaysBack    int    `json:"days_back"`
		PublicToken string `json:"public_token"`
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &jobs.DownloadJob{Request: jobs.DownloadRequest{
		UserID:      req.UserID,
		Format:      string(format),
		DaysBack:    req.DaysBack,
		PublicToken: req.PublicToken,
		AccessToken: req.AccessToken,
		ItemID:      req.ItemID,
	}}
	if err := h.publisher.PublishDownload(r.Context(), job); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to enqueue download job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue download job")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Str("job_id", job.JobID).Str("format", string(format)).Msg("Download job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// DownloadResult handles GET /api/jobs/{id}/download
func (h *JobsHandler) DownloadResult(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.JobStatusCompleted || job.Result == nil || job.Result.Payload == nil {
		middleware.WriteError(w, http.StatusConflict, "Job is "+string(job.Status))
		return
	}
	writeAttachment(w, job.Result.Filename, job.Result.ContentType, job.Result.Payload)
}

func (h *JobsHandler) lookup(w http.ResponseWriter, r *http.Request) (*jobs.DownloadJob, bool) {
	jobID := chi.URLParam(r, "id")
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
		} else {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		}
		return nil, false
	}
	return job, true
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: query.Get("user_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// DownloadJobHandler runs a one-click download for each job. When archiver
// is non-nil the rendered file is also uploaded to object storage.
func DownloadJobHandler(svc BankService, archiver gcsuploader.Archiver) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.DownloadJob) error {
		log := logger.FromContext(ctx).With().Str("job_id", job.JobID).Logger()
		req := job.Request

		res, err := svc.OneClickDownload(ctx, pipeline.DownloadRequest{
			UserID:      req.UserID,
			DaysBack:    req.DaysBack,
			Format:      req.Format,
			PublicToken: req.PublicToken,
			AccessToken: req.AccessToken,
			ItemID:      req.ItemID,
		})
		if err != nil {
			return err
		}

		result := &jobs.DownloadResult{
			Filename:          res.Filename,
			ContentType:       res.ContentType,
			Size:              len(res.Data),
			TotalTransactions: res.Metadata.TotalTransactions,
			TotalAmount:       res.Metadata.TotalAmount,
			Payload:           res.Data,
		}

		if archiver != nil {
			object := gcsuploader.ExportObjectName(res.Metadata.ItemID, res.Filename, time.Now())
			uri, err := archiver.UploadBytes(ctx, object, res.Data, res.ContentType)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to archive download")
			} else {
				result.ArchiveURI = uri
			}
		}

		job.Result = result
		log.Info().Str("filename", res.Filename).Int("count", result.TotalTransactions).Msg("Download job rendered")
		return nil
	}
}
