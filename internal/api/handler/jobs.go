package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pimentellima/smulti/internal/api/response"
	"github.com/pimentellima/smulti/internal/queue"
	"github.com/pimentellima/smulti/internal/store"
	"github.com/pimentellima/smulti/pkg/models"
)

const maxURLsPerRequest = 20

// Enqueuer is the slice of the queue the handlers need.
type Enqueuer interface {
	Send(ctx context.Context, body string) error
	SendBatch(ctx context.Context, bodies []string) error
}

var _ Enqueuer = (queue.Queue)(nil)

type jobResponse struct {
	*models.Job
	Formats []*models.Format `json:"formats,omitempty"`
}

// NewSubmitJobsHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// Each submitted URL becomes one pending job; the batch is pushed onto the
// process queue immediately rather than waiting for the dispatcher sweep.
func NewSubmitJobsHandler(s store.Store, processQueue Enqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URLs []string `json:"urls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if len(req.URLs) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "urls is required", nil)
			return
		}
		if len(req.URLs) > maxURLsPerRequest {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "too many urls in one request", nil)
			return
		}
		for _, u := range req.URLs {
			if u == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "urls must not contain empty entries", nil)
				return
			}
		}

		now := time.Now().UTC()
		jobs := make([]*models.Job, 0, len(req.URLs))
		ids := make([]string, 0, len(req.URLs))
		for _, u := range req.URLs {
			job := &models.Job{
				ID:        uuid.New(),
				URL:       u,
				Status:    models.JobPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.CreateJob(r.Context(), job); err != nil {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to create job", nil)
				return
			}
			jobs = append(jobs, job)
			ids = append(ids, job.ID.String())
		}

		// Enqueue failure is not fatal: the rows are pending and the
		// dispatcher sweep will pick them up.
		if err := processQueue.SendBatch(r.Context(), ids); err != nil {
			slog.Error("enqueue submitted jobs", "error", err, "count", len(ids))
		}

		response.Created(w, jobs)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		job, err := s.GetJob(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load job", nil)
			return
		}

		formats, err := s.ListFormatsByJob(r.Context(), id)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load formats", nil)
			return
		}

		response.JSON(w, jobResponse{Job: job, Formats: formats})
	}
}

// NewRetryJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/retry.
// Only jobs in error-processing can be retried; the reset clears any partial
// discovery output before the job goes back on the process queue.
func NewRetryJobHandler(s store.Store, processQueue Enqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		job, err := s.GetJob(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load job", nil)
			return
		}

		if job.Status != models.JobErrorProcessing {
			response.Error(w, http.StatusConflict, "INVALID_STATE",
				"Only failed jobs can be retried", map[string]string{"status": string(job.Status)})
			return
		}

		if err := s.ResetJob(r.Context(), id); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to reset job", nil)
			return
		}

		if err := processQueue.Send(r.Context(), id.String()); err != nil {
			slog.Error("enqueue retried job", "error", err, "job_id", id)
		}

		response.Accepted(w, map[string]string{
			"job_id": id.String(),
			"status": string(models.JobPending),
		})
	}
}
