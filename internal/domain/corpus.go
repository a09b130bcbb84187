package domain

import (
	"time"

	"github.com/wenqinglim/euterpe/internal/harmony"
)

// Corpus is a named global transition matrix built from a set of MIDI files.
type Corpus struct {
	ID               string
	Name             string
	Description      string
	Sources          []string
	FileCount        int
	FailedFiles      []FileFailure
	TotalTransitions int
	Matrix           harmony.Matrix
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type FileFailure struct {
	Source string
	Reason string
}

// UniqueTransitions is the number of distinct transitions in the matrix.
func (c *Corpus) UniqueTransitions() int {
	return len(c.Matrix)
}
