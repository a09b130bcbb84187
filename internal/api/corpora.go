package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wenqinglim/euterpe/internal/domain"
	"github.com/wenqinglim/euterpe/internal/harmony"
	"github.com/wenqinglim/euterpe/internal/service"
	apiTypes "github.com/wenqinglim/euterpe/pkg/api"
)

func (h *Handler) listCorpora(w http.ResponseWriter, r *http.Request) {
	corpora, err := h.corpora.List(r.Context())
	if err != nil && len(corpora) == 0 {
		writeServiceError(w, err, "failed to list corpora")
		return
	}
	if err != nil {
		h.logger.Warn("some corpora could not be loaded", "error", err)
	}

	resp := apiTypes.CorpusListResponse{Corpora: make([]apiTypes.CorpusResponse, 0, len(corpora))}
	for _, c := range corpora {
		resp.Corpora = append(resp.Corpora, corpusToResponse(c, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createCorpus(w http.ResponseWriter, r *http.Request) {
	var req apiTypes.CorpusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	job, err := h.builder.Build(r.Context(), service.CorpusRequest{
		Name:          req.Name,
		Description:   req.Description,
		Sources:       req.Sources,
		Pattern:       req.Pattern,
		MergeRepeated: req.MergeRepeated,
	})
	if err != nil {
		writeServiceError(w, err, "failed to start corpus build")
		return
	}

	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, jobToResponse(job.Snapshot()))
}

func (h *Handler) importCorpus(w http.ResponseWriter, r *http.Request) {
	var req apiTypes.CorpusImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	corpus, err := h.builder.Import(r.Context(), req.Name, req.Description, harmony.Matrix(req.Matrix))
	if err != nil {
		writeServiceError(w, err, "failed to import corpus")
		return
	}

	writeJSON(w, http.StatusCreated, corpusToResponse(corpus, false))
}

func (h *Handler) getCorpus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	includeMatrix := false
	if raw := r.URL.Query().Get("include_matrix"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid query parameter", "include_matrix must be a boolean")
			return
		}
		includeMatrix = v
	}

	corpus, err := h.corpora.Load(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to get corpus")
		return
	}

	writeJSON(w, http.StatusOK, corpusToResponse(corpus, includeMatrix))
}

func (h *Handler) deleteCorpus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.corpora.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "failed to delete corpus")
		return
	}

	h.logger.Info("corpus deleted", "corpus_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func corpusToResponse(c *domain.Corpus, includeMatrix bool) apiTypes.CorpusResponse {
	resp := apiTypes.CorpusResponse{
		ID:                c.ID,
		Name:              c.Name,
		Description:       c.Description,
		Sources:           c.Sources,
		FileCount:         c.FileCount,
		TotalTransitions:  c.TotalTransitions,
		UniqueTransitions: c.UniqueTransitions(),
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
	if len(c.FailedFiles) > 0 {
		resp.FailedFiles = make([]apiTypes.FileFailure, len(c.FailedFiles))
		for i, f := range c.FailedFiles {
			resp.FailedFiles[i] = apiTypes.FileFailure{Source: f.Source, Reason: f.Reason}
		}
	}
	if includeMatrix {
		resp.Matrix = c.Matrix
	}
	return resp
}
