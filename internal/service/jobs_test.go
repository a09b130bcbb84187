package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wenqinglim/euterpe/internal/domain"
)

func TestJobRegistry_RegisterGetList(t *testing.T) {
	r := NewJobRegistry()

	first := domain.NewJob("b", domain.JobKindCorpusBuild, "c1")
	second := domain.NewJob("a", domain.JobKindCorpusBuild, "c2")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	r.Register(first, nil)
	r.Register(second, nil)

	got, err := r.Get("b")
	if err != nil || got != first {
		t.Fatalf("Get = %v, %v", got, err)
	}

	jobs := r.List()
	if len(jobs) != 2 || jobs[0].ID != "b" || jobs[1].ID != "a" {
		t.Errorf("List order = %v, want oldest first", []string{jobs[0].ID, jobs[1].ID})
	}

	_, err = r.Get("missing")
	if !errors.Is(err, ErrJobNotFound) || !IsNotFound(err) {
		t.Errorf("Get(missing) = %v", err)
	}
}

func TestJobRegistry_Cancel(t *testing.T) {
	r := NewJobRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	job := domain.NewJob("j", domain.JobKindCorpusBuild, "c")
	r.Register(job, cancel)

	if err := r.Cancel("j"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if ctx.Err() == nil {
		t.Error("expected job context to be cancelled")
	}

	_ = job.TransitionTo(domain.JobStateCancelled, "cancelled")
	if err := r.Cancel("j"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Cancel finished job = %v, want ErrInvalidTransition", err)
	}
	if err := r.Cancel("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Cancel(missing) = %v", err)
	}
}

func TestJobRegistry_CancelAllSkipsFinished(t *testing.T) {
	r := NewJobRegistry()

	runningCtx, runningCancel := context.WithCancel(context.Background())
	running := domain.NewJob("running", domain.JobKindCorpusBuild, "c1")
	_ = running.TransitionTo(domain.JobStateRunning, "started")
	r.Register(running, runningCancel)

	doneCtx, doneCancel := context.WithCancel(context.Background())
	defer doneCancel()
	done := domain.NewJob("done", domain.JobKindCorpusBuild, "c2")
	_ = done.TransitionTo(domain.JobStateRunning, "started")
	_ = done.TransitionTo(domain.JobStateCompleted, "ok")
	r.Register(done, doneCancel)

	r.CancelAll()

	if runningCtx.Err() == nil {
		t.Error("running job was not cancelled")
	}
	if doneCtx.Err() != nil {
		t.Error("completed job should not be cancelled")
	}
}
