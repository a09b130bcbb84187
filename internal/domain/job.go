package domain

import (
	"fmt"
	"sync"
	"time"
)

type JobState int

const (
	JobStatePending JobState = iota
	JobStateRunning
	JobStateCompleted
	JobStateFailed
	JobStateCancelled
)

func (s JobState) String() string {
	switch s {
	case JobStatePending:
		return "pending"
	case JobStateRunning:
		return "running"
	case JobStateCompleted:
		return "completed"
	case JobStateFailed:
		return "failed"
	case JobStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

const JobKindCorpusBuild = "corpus_build"

func NewInvalidTransitionError(from, to JobState) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

var validTransitions = map[JobState][]JobState{
	JobStatePending: {JobStateRunning, JobStateCancelled, JobStateFailed},
	JobStateRunning: {JobStateCompleted, JobStateFailed, JobStateCancelled},
}

func CanTransition(from, to JobState) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

type JobTransition struct {
	From      JobState
	To        JobState
	Reason    string
	Timestamp time.Time
}

// Job tracks a long running corpus build.
type Job struct {
	ID          string
	Kind        string
	CorpusID    string
	State       JobState
	Processed   int
	Total       int
	Failed      int
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Transitions []JobTransition

	mu sync.RWMutex
}

func NewJob(id, kind, corpusID string) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		Kind:        kind,
		CorpusID:    corpusID,
		State:       JobStatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Transitions: make([]JobTransition, 0),
	}
}

func (j *Job) TransitionTo(newState JobState, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !CanTransition(j.State, newState) {
		return NewInvalidTransitionError(j.State, newState)
	}

	now := time.Now()
	j.Transitions = append(j.Transitions, JobTransition{
		From:      j.State,
		To:        newState,
		Reason:    reason,
		Timestamp: now,
	})
	j.State = newState
	j.UpdatedAt = now
	if newState == JobStateFailed {
		j.Error = reason
	}
	return nil
}

// SetTotal records how many sources the job will process.
func (j *Job) SetTotal(total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Total = total
	j.UpdatedAt = time.Now()
}

// RecordProgress counts one processed source and returns the updated counters.
func (j *Job) RecordProgress(failed bool) (processed, total, failures int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Processed++
	if failed {
		j.Failed++
	}
	j.UpdatedAt = time.Now()
	return j.Processed, j.Total, j.Failed
}

func (j *Job) GetState() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.State
}

// JobSnapshot is an immutable copy of a job.
type JobSnapshot struct {
	ID          string
	Kind        string
	CorpusID    string
	State       JobState
	Processed   int
	Total       int
	Failed      int
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Transitions []JobTransition
}

func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	transitions := make([]JobTransition, len(j.Transitions))
	copy(transitions, j.Transitions)

	return JobSnapshot{
		ID:          j.ID,
		Kind:        j.Kind,
		CorpusID:    j.CorpusID,
		State:       j.State,
		Processed:   j.Processed,
		Total:       j.Total,
		Failed:      j.Failed,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		Transitions: transitions,
	}
}
