package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/wenqinglim/euterpe/internal/domain"
)

var ErrJobNotFound = fmt.Errorf("job %w", domain.ErrNotFound)

type jobEntry struct {
	job    *domain.Job
	cancel context.CancelFunc
}

// JobRegistry is the in-memory table of corpus build jobs.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*jobEntry)}
}

func (r *JobRegistry) Register(job *domain.Job, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = &jobEntry{job: job, cancel: cancel}
}

func (r *JobRegistry) Get(id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return entry.job, nil
}

// List returns every job, oldest first.
func (r *JobRegistry) List() []*domain.Job {
	r.mu.RLock()
	jobs := make([]*domain.Job, 0, len(r.jobs))
	for _, entry := range r.jobs {
		jobs = append(jobs, entry.job)
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		si, sj := jobs[i].Snapshot(), jobs[j].Snapshot()
		if si.CreatedAt.Equal(sj.CreatedAt) {
			return si.ID < sj.ID
		}
		return si.CreatedAt.Before(sj.CreatedAt)
	})
	return jobs
}

// Cancel asks a running job to stop. Finished jobs cannot be cancelled.
func (r *JobRegistry) Cancel(id string) error {
	r.mu.RLock()
	entry, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	state := entry.job.GetState()
	if state.Terminal() {
		return domain.NewInvalidTransitionError(state, domain.JobStateCancelled)
	}
	if entry.cancel != nil {
		entry.cancel()
	}
	return nil
}

// CancelAll cancels every job that has not finished.
func (r *JobRegistry) CancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.jobs {
		if !entry.job.GetState().Terminal() && entry.cancel != nil {
			entry.cancel()
		}
	}
}

// IsNotFound reports whether err refers to a missing job or corpus.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
