package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/clipforge/render-api/internal/job"
	"github.com/clipforge/render-api/internal/job/id"
	"github.com/clipforge/render-api/internal/scheduler"
	"github.com/clipforge/render-api/internal/storage"
)

// JobScheduler is the scheduler surface the handlers depend on.
type JobScheduler interface {
	Submit(ctx context.Context, params job.Params) (*job.Job, error)
	RenderSync(ctx context.Context, params job.Params) (*job.Job, error)
	Stats() scheduler.Stats
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	sched     JobScheduler
	repo      job.Repository
	store     storage.Store
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sched JobScheduler, repo job.Repository, store storage.Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		sched:     sched,
		repo:      repo,
		store:     store,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.sched.Stats()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		QueueDepth: stats.QueueDepth,
		InFlight:   stats.InFlight,
	})
}

// CreateJob handles POST /jobs requests. The job is validated and queued;
// rendering happens on scheduler goroutines after the response is sent.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	created, err := h.sched.Submit(r.Context(), req.ToParams())
	if err != nil {
		if errors.Is(err, scheduler.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "job queue is full, retry later", "QUEUE_FULL")
			return
		}
		h.logger.Error("failed to submit job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	h.logger.Info("job accepted",
		slog.String("job_id", created.ID),
		slog.String("video_url", req.VideoURL),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:        created.ID,
		Status:    string(created.Status),
		StatusURL: "/jobs/" + created.ID,
		ResultURL: "/jobs/" + created.ID + "/result",
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if !id.Valid(jobID) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}

	found, err := h.repo.FindByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			// The index does not survive restarts, but artifacts do. An
			// on-disk artifact for an unknown ID means the job finished in
			// a previous life of the process.
			if _, statErr := h.store.StatOutput(jobID); statErr == nil {
				writeJSON(w, http.StatusOK, JobResponse{
					ID:        jobID,
					Status:    string(job.StatusDone),
					ResultURL: "/jobs/" + jobID + "/result",
				})
				return
			}
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, jobResponse(found))
}

// GetResult handles GET /jobs/{id}/result requests. A finished job's
// artifact is streamed inline; an unfinished job answers 202 and a failed
// one 422 with the stored diagnostic.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if !id.Valid(jobID) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}

	found, err := h.repo.FindByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			// Serve an orphaned artifact if one exists for this ID.
			if art, statErr := h.store.StatOutput(jobID); statErr == nil {
				h.serveArtifact(w, r, jobID, art.Path)
				return
			}
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	switch found.Status {
	case job.StatusQueued, job.StatusProcessing:
		writeJSON(w, http.StatusAccepted, jobResponse(found))
	case job.StatusError:
		writeError(w, http.StatusUnprocessableEntity, found.Error, "JOB_FAILED")
	case job.StatusDone:
		if _, statErr := os.Stat(found.OutputPath); statErr != nil {
			h.logger.Error("artifact missing for finished job",
				slog.String("job_id", jobID),
				slog.String("path", found.OutputPath),
			)
			writeError(w, http.StatusNotFound, "artifact no longer available", "ARTIFACT_GONE")
			return
		}
		h.serveArtifact(w, r, jobID, found.OutputPath)
	}
}

// Render handles POST /render requests: a synchronous render bound to the
// request context. If the client disconnects the engine is killed and the
// job's leftovers are cleaned up by the usual run teardown.
func (h *Handlers) Render(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	finished, err := h.sched.RenderSync(r.Context(), req.ToParams())
	if err != nil {
		if r.Context().Err() != nil {
			// Client is gone; nothing useful to write.
			return
		}
		h.logger.Error("synchronous render failed to start",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "render failed", "RENDER_FAILED")
		return
	}

	switch finished.Status {
	case job.StatusError:
		writeError(w, http.StatusUnprocessableEntity, finished.Error, "JOB_FAILED")
	case job.StatusDone:
		h.serveArtifact(w, r, finished.ID, finished.OutputPath)
	default:
		// Interrupted before reaching a terminal state.
		writeError(w, http.StatusInternalServerError, "render interrupted", "RENDER_FAILED")
	}
}

// decodeRequest parses and validates the shared job request body. On
// failure the error response has already been written.
func (h *Handlers) decodeRequest(w http.ResponseWriter, r *http.Request) (CreateJobRequest, bool) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return CreateJobRequest{}, false
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return CreateJobRequest{}, false
	}
	return req, true
}

// serveArtifact streams a finished artifact with inline disposition.
func (h *Handlers) serveArtifact(w http.ResponseWriter, r *http.Request, jobID, path string) {
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", jobID+".mp4"))
	http.ServeFile(w, r, path)
}

// jobResponse maps a job snapshot onto the wire DTO. A done job always
// carries an artifact URL: the S3 location when an upload happened,
// otherwise the local result endpoint.
func jobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		Error:     j.Error,
		ResultURL: j.ResultURL,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.Status == job.StatusDone && resp.ResultURL == "" {
		resp.ResultURL = "/jobs/" + j.ID + "/result"
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
