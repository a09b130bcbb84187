package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wenqinglim/euterpe/internal/domain"
	"github.com/wenqinglim/euterpe/internal/realtime"
)

// jobEvents streams a job's progress as Server-Sent Events until the job finishes or the
// client goes away. The first event is a snapshot of the job.
func (h *Handler) jobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.jobs.Get(jobID)
	if err != nil {
		writeServiceError(w, err, "job not found")
		return
	}
	if h.broadcaster == nil {
		writeError(w, http.StatusServiceUnavailable, "event streaming unavailable", "")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "")
		return
	}

	// Subscribe before taking the snapshot so no transition falls between the two.
	subID := generateID()
	sub := h.broadcaster.Subscribe(subID, jobID)
	defer h.broadcaster.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snap := job.Snapshot()
	if err := writeSSE(w, "snapshot", realtime.JobStateFromDomain(snap)); err != nil {
		return
	}
	flusher.Flush()
	if snap.State.Terminal() {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			payload := jobEventPayload(event)
			if payload == nil {
				continue
			}
			if err := writeSSE(w, event.Type.String(), payload); err != nil {
				return
			}
			flusher.Flush()
			if change, ok := event.Data.(domain.StatusChangeData); ok && isTerminalState(change.NewState) {
				return
			}
		}
	}
}

// writeSSE writes one event in the SSE wire format:
//
//	event: <type>\n
//	data: <json>\n
//	\n
func writeSSE(w http.ResponseWriter, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	return err
}

func isTerminalState(state string) bool {
	switch state {
	case domain.JobStateCompleted.String(), domain.JobStateFailed.String(), domain.JobStateCancelled.String():
		return true
	}
	return false
}
