package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wenqinglim/euterpe/internal/domain"
	"github.com/wenqinglim/euterpe/internal/midi"
	"github.com/wenqinglim/euterpe/internal/realtime"
	"github.com/wenqinglim/euterpe/internal/service"
	"github.com/wenqinglim/euterpe/internal/storage"
	apiTypes "github.com/wenqinglim/euterpe/pkg/api"
	realtimeTypes "github.com/wenqinglim/euterpe/pkg/realtime"
)

const defaultMaxUploadBytes = 16 << 20

// harmonyPrefixes are the mount points of the harmony endpoints.
var harmonyPrefixes = []string{"/api/v1/harmony", "/api/endpoints/harmony"}

type Options struct {
	MaxUploadBytes int64
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Handler routes REST API requests to the harmony services.
type Handler struct {
	analyzer       *service.Analyzer
	builder        *service.CorpusBuilder
	corpora        storage.CorpusStore
	jobs           *service.JobRegistry
	broadcaster    *service.EventBroadcaster
	realtimeHub    *realtime.Hub
	snapshotter    *realtime.SnapshotProvider
	upgrader       websocket.Upgrader
	maxUploadBytes int64
	logger         *slog.Logger
	bridgeID       string
	done           chan struct{}
	closeOnce      sync.Once
}

// NewHandler creates a Handler and starts forwarding job events to websocket clients.
func NewHandler(analyzer *service.Analyzer, builder *service.CorpusBuilder, corpora storage.CorpusStore, broadcaster *service.EventBroadcaster, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := &Handler{
		analyzer:       analyzer,
		builder:        builder,
		corpora:        corpora,
		jobs:           builder.Jobs(),
		broadcaster:    broadcaster,
		realtimeHub:    realtime.NewHub(),
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         opts.Logger,
		done:           make(chan struct{}),
	}
	h.snapshotter = realtime.NewSnapshotProvider(h.jobs)
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(opts.AllowedOrigins)}
	h.startRealtimeBridge()
	return h
}

// Mount registers all API routes on the provided router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/healthz", h.health)
	for _, prefix := range harmonyPrefixes {
		r.Post(prefix+"/entropy", h.computeEntropy)
		r.Post(prefix+"/chords", h.extractChords)
	}
	r.Get("/api/v1/corpora", h.listCorpora)
	r.Post("/api/v1/corpora", h.createCorpus)
	r.Post("/api/v1/corpora/import", h.importCorpus)
	r.Get("/api/v1/corpora/{id}", h.getCorpus)
	r.Delete("/api/v1/corpora/{id}", h.deleteCorpus)
	r.Get("/api/v1/jobs", h.listJobs)
	r.Get("/api/v1/jobs/{id}", h.getJob)
	r.Post("/api/v1/jobs/{id}/cancel", h.cancelJob)
	r.Get("/api/v1/jobs/{id}/events", h.jobEvents)
	r.Get("/api/realtime", h.realtimeWebSocket)
}

// Close stops the realtime bridge, ends open event streams and disconnects websocket clients.
// It is safe to call more than once.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		if h.broadcaster != nil && h.bridgeID != "" {
			h.broadcaster.Unsubscribe(h.bridgeID)
		}
		h.realtimeHub.CloseAll()
	})
}

func (h *Handler) startRealtimeBridge() {
	if h.broadcaster == nil {
		return
	}

	h.bridgeID = generateID()
	sub := h.broadcaster.Subscribe(h.bridgeID, "")
	go func() {
		for event := range sub.Events {
			h.publishJobEvent(event)
		}
	}()
}

func (h *Handler) publishJobEvent(event domain.Event) {
	payload := jobEventPayload(event)
	if payload == nil {
		return
	}
	if event.Type == domain.EventTypeStatusChange {
		h.publish(realtime.TopicJobsState, payload)
	}
	h.publish(realtime.TopicJobProgress(event.JobID), payload)
}

// jobEventPayload converts a domain event into its wire form. Unknown event data yields nil.
func jobEventPayload(event domain.Event) any {
	switch data := event.Data.(type) {
	case domain.StatusChangeData:
		return realtimeTypes.JobStateEvent{
			EventID:   event.ID,
			Timestamp: event.Timestamp,
			JobID:     event.JobID,
			OldState:  data.OldState,
			NewState:  data.NewState,
			Reason:    data.Reason,
		}
	case domain.ProgressData:
		return realtimeTypes.JobProgressEvent{
			EventID:   event.ID,
			Timestamp: event.Timestamp,
			JobID:     event.JobID,
			Type:      event.Type.String(),
			Processed: data.Processed,
			Total:     data.Total,
			Failed:    data.Failed,
			Source:    data.Source,
		}
	case domain.FileFailedData:
		return realtimeTypes.JobProgressEvent{
			EventID:   event.ID,
			Timestamp: event.Timestamp,
			JobID:     event.JobID,
			Type:      event.Type.String(),
			Source:    data.Source,
			Reason:    data.Reason,
		}
	default:
		return nil
	}
}

func (h *Handler) publish(topic string, payload any) {
	h.realtimeHub.Publish(topic, realtimeTypes.ServerEnvelope{
		Type:    realtimeTypes.ServerMessageTypeEvent,
		Topic:   topic,
		Payload: payload,
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, apiTypes.HealthResponse{Status: "ok"})
}

// writeServiceError maps service and domain errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, message, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, midi.ErrInvalidMIDI):
		writeError(w, http.StatusBadRequest, message, err.Error())
	case errors.Is(err, service.ErrAnalysisTimeout):
		writeError(w, http.StatusGatewayTimeout, message, err.Error())
	case errors.Is(err, service.ErrBuilderShutdown):
		writeError(w, http.StatusServiceUnavailable, message, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, message, err.Error())
	}
}

func writeError(w http.ResponseWriter, code int, message, details string) {
	resp := apiTypes.ErrorResponse{Error: message}
	if details != "" {
		resp.Details = details
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func generateID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
