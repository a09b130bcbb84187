package api

import "time"

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ChordResponse struct {
	Start   uint64   `json:"start"`
	End     uint64   `json:"end"`
	Pitches []int    `json:"pitches"`
	Names   []string `json:"names"`
}

type TransitionCount struct {
	Transition string `json:"transition"`
	Count      int    `json:"count"`
}

type RelativeEntropy struct {
	CorpusID          string  `json:"corpus_id"`
	CorpusName        string  `json:"corpus_name"`
	Entropy           float64 `json:"entropy"`
	NormalizedEntropy float64 `json:"normalized_entropy"`
	UnseenTransitions int     `json:"unseen_transitions"`
}

type EntropyResponse struct {
	File                 string           `json:"file"`
	Tracks               int              `json:"tracks"`
	NoteCount            int              `json:"note_count"`
	ChordCount           int              `json:"chord_count"`
	TotalTransitions     int              `json:"total_transitions"`
	UniqueTransitions    int              `json:"unique_transitions"`
	Entropy              float64          `json:"entropy"`
	MaxEntropy           float64          `json:"max_entropy"`
	NormalizedEntropy    float64          `json:"normalized_entropy"`
	MostCommonTransition string           `json:"most_common_transition,omitempty"`
	MostCommonCount      int              `json:"most_common_count,omitempty"`
	Relative             *RelativeEntropy `json:"relative,omitempty"`
	// Score is the headline harmonic complexity: the relative entropy when a corpus was
	// requested, otherwise the file's own entropy. Normalized when requested.
	Score float64 `json:"score"`
}

type ChordsResponse struct {
	File        string            `json:"file"`
	Resolution  uint16            `json:"resolution"`
	Chords      []ChordResponse   `json:"chords"`
	Transitions []TransitionCount `json:"transitions"`
}

type CorpusRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Sources       []string `json:"sources"`
	Pattern       string   `json:"pattern,omitempty"`
	MergeRepeated bool     `json:"merge_repeated,omitempty"`
}

type CorpusImportRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Matrix      map[string]float64 `json:"matrix"`
}

type FileFailure struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

type CorpusResponse struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Sources           []string           `json:"sources,omitempty"`
	FileCount         int                `json:"file_count"`
	FailedFiles       []FileFailure      `json:"failed_files,omitempty"`
	TotalTransitions  int                `json:"total_transitions"`
	UniqueTransitions int                `json:"unique_transitions"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	Matrix            map[string]float64 `json:"matrix,omitempty"`
}

type CorpusListResponse struct {
	Corpora []CorpusResponse `json:"corpora"`
}

type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

type JobTransition struct {
	From      JobState  `json:"from"`
	To        JobState  `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type JobResponse struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	CorpusID    string          `json:"corpus_id"`
	State       JobState        `json:"state"`
	Processed   int             `json:"processed"`
	Total       int             `json:"total"`
	Failed      int             `json:"failed"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Transitions []JobTransition `json:"transitions,omitempty"`
}

type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}
