package domain

import (
	"errors"
	"sync"
	"testing"
)

func TestJobState_String(t *testing.T) {
	tests := []struct {
		state JobState
		want  string
	}{
		{JobStatePending, "pending"},
		{JobStateRunning, "running"},
		{JobStateCompleted, "completed"},
		{JobStateFailed, "failed"},
		{JobStateCancelled, "cancelled"},
		{JobState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("JobState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobState
		want     bool
	}{
		{JobStatePending, JobStateRunning, true},
		{JobStatePending, JobStateCancelled, true},
		{JobStatePending, JobStateFailed, true},
		{JobStatePending, JobStateCompleted, false},
		{JobStateRunning, JobStateCompleted, true},
		{JobStateRunning, JobStateFailed, true},
		{JobStateRunning, JobStateCancelled, true},
		{JobStateRunning, JobStatePending, false},
		{JobStateCompleted, JobStateRunning, false},
		{JobStateFailed, JobStateRunning, false},
		{JobStateCancelled, JobStateRunning, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestJob_TransitionTo(t *testing.T) {
	job := NewJob("job-1", JobKindCorpusBuild, "corpus-1")
	if job.GetState() != JobStatePending {
		t.Fatalf("new job state = %s", job.GetState())
	}

	if err := job.TransitionTo(JobStateRunning, "started"); err != nil {
		t.Fatalf("pending -> running: %v", err)
	}
	if err := job.TransitionTo(JobStateFailed, "disk full"); err != nil {
		t.Fatalf("running -> failed: %v", err)
	}
	if job.Error != "disk full" {
		t.Errorf("error = %q, want failure reason", job.Error)
	}

	err := job.TransitionTo(JobStateRunning, "again")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("failed -> running error = %v, want ErrInvalidTransition", err)
	}

	snap := job.Snapshot()
	if len(snap.Transitions) != 2 {
		t.Fatalf("transitions = %d, want 2", len(snap.Transitions))
	}
	if snap.Transitions[0].From != JobStatePending || snap.Transitions[1].To != JobStateFailed {
		t.Errorf("unexpected transitions %+v", snap.Transitions)
	}
}

func TestJob_Progress(t *testing.T) {
	job := NewJob("job-1", JobKindCorpusBuild, "corpus-1")
	job.SetTotal(10)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(failed bool) {
			defer wg.Done()
			job.RecordProgress(failed)
		}(i%3 == 0)
	}
	wg.Wait()

	snap := job.Snapshot()
	if snap.Processed != 10 || snap.Total != 10 || snap.Failed != 4 {
		t.Errorf("progress = %d/%d (%d failed), want 10/10 (4 failed)", snap.Processed, snap.Total, snap.Failed)
	}
}

func TestJob_SnapshotIsCopy(t *testing.T) {
	job := NewJob("job-1", JobKindCorpusBuild, "corpus-1")
	_ = job.TransitionTo(JobStateRunning, "started")

	snap := job.Snapshot()
	snap.Transitions[0].Reason = "changed"

	if job.Snapshot().Transitions[0].Reason != "started" {
		t.Error("snapshot shares transition storage with the job")
	}
}

func TestOpError(t *testing.T) {
	err := &OpError{Op: "chordify", Kind: KindAnalysis, Source: "a.mid", Err: ErrInvalidInput}

	if !errors.Is(err, ErrInvalidInput) {
		t.Error("OpError should unwrap to its cause")
	}
	if !IsKind(err, KindAnalysis) || IsKind(err, KindStorage) {
		t.Error("IsKind mismatch")
	}
	if got := err.Error(); got != "chordify: analysis (source=a.mid): invalid input" {
		t.Errorf("Error() = %q", got)
	}
	if IsKind(errors.New("plain"), KindAnalysis) {
		t.Error("plain errors have no kind")
	}
}

func TestCorpus_UniqueTransitions(t *testing.T) {
	c := &Corpus{Matrix: map[string]float64{"a": 0.5, "b": 0.5}}
	if c.UniqueTransitions() != 2 {
		t.Errorf("UniqueTransitions = %d", c.UniqueTransitions())
	}
}
