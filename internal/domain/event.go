package domain

import "time"

type EventType int

const (
	EventTypeStatusChange EventType = iota
	EventTypeProgress
	EventTypeFileFailed
)

func (t EventType) String() string {
	switch t {
	case EventTypeStatusChange:
		return "status_change"
	case EventTypeProgress:
		return "progress"
	case EventTypeFileFailed:
		return "file_failed"
	default:
		return "unknown"
	}
}

type Event struct {
	ID        int64
	Type      EventType
	Timestamp time.Time
	JobID     string
	Data      any
}

type StatusChangeData struct {
	OldState string
	NewState string
	Reason   string
}

type ProgressData struct {
	Processed int
	Total     int
	Failed    int
	Source    string
}

type FileFailedData struct {
	Source string
	Reason string
}

func NewStatusChangeEvent(jobID, oldState, newState, reason string) Event {
	return Event{
		Type:      EventTypeStatusChange,
		Timestamp: time.Now(),
		JobID:     jobID,
		Data: StatusChangeData{
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

func NewProgressEvent(jobID, source string, processed, total, failed int) Event {
	return Event{
		Type:      EventTypeProgress,
		Timestamp: time.Now(),
		JobID:     jobID,
		Data: ProgressData{
			Processed: processed,
			Total:     total,
			Failed:    failed,
			Source:    source,
		},
	}
}

func NewFileFailedEvent(jobID, source, reason string) Event {
	return Event{
		Type:      EventTypeFileFailed,
		Timestamp: time.Now(),
		JobID:     jobID,
		Data:      FileFailedData{Source: source, Reason: reason},
	}
}
