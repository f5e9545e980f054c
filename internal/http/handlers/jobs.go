package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studio/internal/domain"
)

type createJobRequest struct {
	Type    string           `json:"type"`
	Prompt  string           `json:"prompt"`
	GirlID  string           `json:"girlId"`
	Inputs  domain.JobInputs `json:"inputs"`
	RerunOf string           `json:"rerunOf"`
}

type rerunJobRequest struct {
	Prompt *string `json:"prompt"`
}

type jobResponse struct {
	ID          string            `json:"id"`
	Type        domain.JobType    `json:"type"`
	Prompt      string            `json:"prompt"`
	GirlID      string            `json:"girlId,omitempty"`
	Inputs      domain.JobInputs  `json:"inputs"`
	Status      domain.JobStatus  `json:"status"`
	Result      *domain.JobResult `json:"result,omitempty"`
	Usage       *domain.JobUsage  `json:"usage,omitempty"`
	CostUsd     float64           `json:"costUsd"`
	Error       string            `json:"error,omitempty"`
	Retries     int               `json:"retries"`
	RerunOf     string            `json:"rerunOf,omitempty"`
	LastRerunID string            `json:"lastRerunId,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	FinishedAt  *time.Time        `json:"finishedAt,omitempty"`
}

func serializeJob(job *domain.Job) jobResponse {
	return jobResponse{
		ID:          job.ID,
		Type:        job.Type,
		Prompt:      job.Prompt,
		GirlID:      job.GirlID,
		Inputs:      job.Inputs,
		Status:      job.Status,
		Result:      job.Result,
		Usage:       job.Usage,
		CostUsd:     job.CostUsd,
		Error:       job.Error,
		Retries:     job.Retries,
		RerunOf:     job.RerunOf,
		LastRerunID: job.LastRerunID,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		FinishedAt:  job.FinishedAt,
	}
}

// ListJobs returns the most recent jobs.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	jobs, err := a.Jobs.ListRecent(r.Context(), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	out := make([]jobResponse, len(jobs))
	for i := range jobs {
		out[i] = serializeJob(&jobs[i])
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": out})
}

// CreateJob persists a PENDING job and admits it to the queue.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var body createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "invalid json body")
		return
	}

	job, err := a.buildJob(body)
	if err != nil {
		a.fail(w, err)
		return
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.fail(w, err)
		return
	}
	a.Queue.Add(job.ID)

	a.json(w, http.StatusCreated, map[string]string{"jobId": job.ID})
}

func (a *App) buildJob(body createJobRequest) (*domain.Job, error) {
	jobType := domain.JobType(strings.TrimSpace(body.Type))
	if jobType == "" {
		jobType = domain.JobTypeGenerate
	}
	if jobType != domain.JobTypeGenerate && jobType != domain.JobTypeEdit {
		return nil, fmt.Errorf("%w: unknown job type %q", domain.ErrInvalidInput, body.Type)
	}

	if ratio := strings.TrimSpace(body.Inputs.AspectRatio); ratio != "" && !domain.ValidAspectRatio(ratio) {
		return nil, fmt.Errorf("%w: unsupported aspect ratio %q", domain.ErrInvalidInput, ratio)
	}

	manual := body.Inputs.ManualImageIDs
	if len(manual) == 0 {
		manual = body.Inputs.ImageIDs
	}
	if len(manual)+len(body.Inputs.RefURLs) > domain.MaxReferenceImages {
		return nil, fmt.Errorf("%w: at most %d reference images allowed", domain.ErrInvalidInput, domain.MaxReferenceImages)
	}

	return &domain.Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Prompt:    body.Prompt,
		GirlID:    strings.TrimSpace(body.GirlID),
		Inputs:    body.Inputs,
		Status:    domain.JobStatusPending,
		RerunOf:   strings.TrimSpace(body.RerunOf),
		CreatedAt: a.now(),
	}, nil
}

// GetJob returns one job.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, serializeJob(job))
}

// DeleteJob cancels a PENDING/RUNNING job, or removes a terminal job together
// with its stored artifact.
func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		a.fail(w, err)
		return
	}

	if job.Status == domain.JobStatusPending || job.Status == domain.JobStatusRunning {
		a.Queue.Cancel(jobID)
		cancelled := domain.JobStatusCancelled
		if err := a.Jobs.Update(r.Context(), jobID, domain.JobPatch{Status: &cancelled}); err != nil {
			a.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if job.Result != nil && job.Result.StoragePath != "" {
		if err := a.Store.Delete(r.Context(), job.Result.StoragePath); err != nil {
			a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("handlers: artifact delete failed")
		}
	}
	if err := a.Jobs.Delete(r.Context(), jobID); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RerunJob creates a fresh job from a previous one. The new id starts with a
// fresh retry budget and points back through rerunOf.
func (a *App) RerunJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	original, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		a.fail(w, err)
		return
	}

	var body rerunJobRequest
	_ = json.NewDecoder(r.Body).Decode(&body)
	prompt := original.Prompt
	if body.Prompt != nil {
		prompt = *body.Prompt
	}

	rerun := &domain.Job{
		ID:        uuid.NewString(),
		Type:      original.Type,
		Prompt:    prompt,
		GirlID:    original.GirlID,
		Inputs:    original.Inputs,
		Status:    domain.JobStatusPending,
		RerunOf:   original.ID,
		CreatedAt: a.now(),
	}
	if err := a.Jobs.Create(r.Context(), rerun); err != nil {
		a.fail(w, err)
		return
	}
	if err := a.Jobs.Update(r.Context(), original.ID, domain.JobPatch{LastRerunID: &rerun.ID}); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", original.ID).Msg("handlers: record rerun link failed")
	}
	a.Queue.Add(rerun.ID)

	a.json(w, http.StatusCreated, map[string]string{"jobId": rerun.ID})
}
