package realtime

import (
	"fmt"

	"github.com/wenqinglim/euterpe/internal/domain"
	realtimeTypes "github.com/wenqinglim/euterpe/pkg/realtime"
)

// JobLister is the subset of the job registry needed for snapshots.
type JobLister interface {
	List() []*domain.Job
	Get(id string) (*domain.Job, error)
}

type SnapshotProvider struct {
	jobs JobLister
}

func NewSnapshotProvider(jobs JobLister) *SnapshotProvider {
	return &SnapshotProvider{jobs: jobs}
}

// Snapshot returns the current state for a topic, sent to clients when they subscribe.
func (p *SnapshotProvider) Snapshot(topic string) (any, error) {
	if topic == TopicJobsState {
		jobs := p.jobs.List()
		out := make([]realtimeTypes.JobState, len(jobs))
		for i, j := range jobs {
			out[i] = JobStateFromDomain(j.Snapshot())
		}
		return realtimeTypes.JobsStateSnapshot{Jobs: out}, nil
	}
	if id, ok := JobIDFromTopic(topic); ok {
		job, err := p.jobs.Get(id)
		if err != nil {
			return nil, err
		}
		return JobStateFromDomain(job.Snapshot()), nil
	}
	return nil, fmt.Errorf("unsupported topic: %s", topic)
}

func JobStateFromDomain(s domain.JobSnapshot) realtimeTypes.JobState {
	return realtimeTypes.JobState{
		ID:        s.ID,
		Kind:      s.Kind,
		CorpusID:  s.CorpusID,
		State:     s.State.String(),
		Processed: s.Processed,
		Total:     s.Total,
		Failed:    s.Failed,
		Error:     s.Error,
		UpdatedAt: s.UpdatedAt,
	}
}
