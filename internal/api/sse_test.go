package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wenqinglim/euterpe/internal/domain"
	realtimeTypes "github.com/wenqinglim/euterpe/pkg/realtime"
)

type sseEvent struct {
	name string
	data string
}

// readSSE parses events from r until the stream ends or want events have been read.
func readSSE(t *testing.T, r *bufio.Reader, want int) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	for len(events) < want {
		line, err := r.ReadString('\n')
		if err != nil {
			return events
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func TestJobEvents_NotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/jobs/missing/events", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestJobEvents_FinishedJobSendsSnapshotOnly(t *testing.T) {
	env := newTestEnv(t)
	job := domain.NewJob("done", domain.JobKindCorpusBuild, "c1")
	_ = job.TransitionTo(domain.JobStateRunning, "started")
	_ = job.TransitionTo(domain.JobStateCompleted, "ok")
	env.builder.Jobs().Register(job, nil)

	w := env.do(t, http.MethodGet, "/api/v1/jobs/done/events", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	events := readSSE(t, bufio.NewReader(w.Body), 10)
	if len(events) != 1 || events[0].name != "snapshot" {
		t.Fatalf("events = %+v, want one snapshot", events)
	}
	var state realtimeTypes.JobState
	if err := json.Unmarshal([]byte(events[0].data), &state); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if state.ID != "done" || state.State != "completed" {
		t.Errorf("snapshot = %+v", state)
	}
}

func TestJobEvents_StreamsUntilTerminal(t *testing.T) {
	env := newTestEnv(t)
	job := domain.NewJob("live", domain.JobKindCorpusBuild, "c1")
	_ = job.TransitionTo(domain.JobStateRunning, "started")
	env.builder.Jobs().Register(job, nil)

	srv := httptest.NewServer(env.router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/jobs/live/events")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	r := bufio.NewReader(resp.Body)

	if events := readSSE(t, r, 1); len(events) != 1 || events[0].name != "snapshot" {
		t.Fatalf("first event = %+v, want snapshot", events)
	}

	env.broadcaster.Broadcast(domain.NewProgressEvent("other", "x.mid", 1, 1, 0))
	env.broadcaster.Broadcast(domain.NewProgressEvent("live", "a.mid", 1, 2, 0))
	env.broadcaster.Broadcast(domain.NewFileFailedEvent("live", "b.mid", "invalid midi"))
	_ = job.TransitionTo(domain.JobStateCompleted, "done")
	env.broadcaster.Broadcast(domain.NewStatusChangeEvent("live", "running", "completed", "done"))

	done := make(chan []sseEvent, 1)
	go func() { done <- readSSE(t, r, 10) }()

	var events []sseEvent
	select {
	case events = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after the job completed")
	}

	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.name
	}
	if got := strings.Join(names, ","); got != "progress,file_failed,status_change" {
		t.Fatalf("events = %s", got)
	}

	var progress realtimeTypes.JobProgressEvent
	if err := json.Unmarshal([]byte(events[0].data), &progress); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if progress.JobID != "live" || progress.Processed != 1 || progress.Total != 2 || progress.Source != "a.mid" {
		t.Errorf("progress = %+v", progress)
	}
}
