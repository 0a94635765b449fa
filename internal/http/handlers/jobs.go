package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/gateway"
)

type createJobRequest struct {
	Prompt         string  `json:"prompt"`
	Steps          int     `json:"steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
	NegativePrompt string  `json:"negative_prompt"`
}

type jobView struct {
	ID          string     `json:"id"`
	Prompt      string     `json:"prompt"`
	Status      string     `json:"status"`
	URL         string     `json:"url,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func viewOf(job domain.Job) jobView {
	v := jobView{
		ID:        job.ID,
		Prompt:    job.Prompt,
		Status:    string(job.Status),
		URL:       job.ResultURL,
		Error:     job.ErrorDetail,
		CreatedAt: job.CreatedAt,
	}
	if !job.CompletedAt.IsZero() {
		completed := job.CompletedAt
		v.CompletedAt = &completed
	}
	return v
}

// CreateJob submits a prompt to the backend and, on success, appends a
// pending record and hands the new id to the polling engine. Blank prompts
// are rejected without contacting the backend; on any submission failure
// nothing is recorded.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		a.error(w, http.StatusUnprocessableEntity, "invalid_prompt", "prompt must not be empty")
		return
	}

	id, err := a.Gateway.Submit(r.Context(), gateway.SubmitRequest{
		Prompt:         prompt,
		Steps:          req.Steps,
		GuidanceScale:  req.GuidanceScale,
		NegativePrompt: req.NegativePrompt,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("submit: backend rejected generation request")
		a.error(w, http.StatusBadGateway, "submission_failed", "generation backend did not accept the job")
		return
	}

	job, err := a.Store.Append(id, prompt)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateJob) {
			a.Logger.Error().Str("job_id", id).Msg("submit: backend reissued a known job id")
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to record job")
		return
	}
	a.Poller.Track(id)
	a.json(w, http.StatusAccepted, viewOf(job))
}

// ListJobs returns every record, most recently created first.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := a.Store.List()
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	a.json(w, http.StatusOK, views)
}

// DeleteJob removes a record and stops polling for it. Deleting an unknown id
// succeeds: the record may already be gone, or a poll for it may still be in
// flight.
func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job id required")
		return
	}
	a.Poller.Untrack(id)
	a.Store.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}
