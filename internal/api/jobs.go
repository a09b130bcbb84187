package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wenqinglim/euterpe/internal/domain"
	apiTypes "github.com/wenqinglim/euterpe/pkg/api"
)

func (h *Handler) listJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := h.jobs.List()
	resp := apiTypes.JobListResponse{Jobs: make([]apiTypes.JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		snap := job.Snapshot()
		snap.Transitions = nil
		resp.Jobs = append(resp.Jobs, jobToResponse(snap))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.jobs.Get(id)
	if err != nil {
		writeServiceError(w, err, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, jobToResponse(job.Snapshot()))
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.builder.Cancel(id); err != nil {
		writeServiceError(w, err, "failed to cancel job")
		return
	}

	job, err := h.jobs.Get(id)
	if err != nil {
		writeServiceError(w, err, "job not found")
		return
	}
	writeJSON(w, http.StatusAccepted, jobToResponse(job.Snapshot()))
}

func jobToResponse(s domain.JobSnapshot) apiTypes.JobResponse {
	resp := apiTypes.JobResponse{
		ID:        s.ID,
		Kind:      s.Kind,
		CorpusID:  s.CorpusID,
		State:     apiTypes.JobState(s.State.String()),
		Processed: s.Processed,
		Total:     s.Total,
		Failed:    s.Failed,
		Error:     s.Error,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if len(s.Transitions) > 0 {
		resp.Transitions = make([]apiTypes.JobTransition, len(s.Transitions))
		for i, t := range s.Transitions {
			resp.Transitions[i] = apiTypes.JobTransition{
				From:      apiTypes.JobState(t.From.String()),
				To:        apiTypes.JobState(t.To.String()),
				Reason:    t.Reason,
				Timestamp: t.Timestamp,
			}
		}
	}
	return resp
}
