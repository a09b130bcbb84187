package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/wenqinglim/euterpe/internal/domain"
	"github.com/wenqinglim/euterpe/internal/harmony"
)

var (
	ErrCorpusNotFound  = fmt.Errorf("corpus %w", domain.ErrNotFound)
	ErrInvalidCorpusID = fmt.Errorf("%w: corpus id", domain.ErrInvalidInput)
	ErrStorageWrite    = errors.New("failed to write corpus")
)

var corpusIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func validateCorpusID(id string) error {
	if !corpusIDRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidCorpusID, id)
	}
	return nil
}

// CorpusStore persists corpora and their transition matrices.
type CorpusStore interface {
	Save(ctx context.Context, corpus *domain.Corpus) error
	Load(ctx context.Context, id string) (*domain.Corpus, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Corpus, error)
}

type corpusData struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Description      string             `json:"description,omitempty"`
	Sources          []string           `json:"sources,omitempty"`
	FileCount        int                `json:"file_count"`
	FailedFiles      []failureData      `json:"failed_files,omitempty"`
	TotalTransitions int                `json:"total_transitions"`
	Matrix           map[string]float64 `json:"matrix"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

type failureData struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// AFSCorpusStore keeps one JSON document per corpus under <base>/corpora.
type AFSCorpusStore struct {
	baseURL string
	fs      afs.Service
	mu      sync.RWMutex
}

// NewAFSCorpusStore creates the corpora folder under baseURL when missing.
func NewAFSCorpusStore(ctx context.Context, baseURL string) (*AFSCorpusStore, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("corpus store base url cannot be empty")
	}

	fs := afs.New()
	baseURL = url.Normalize(baseURL, file.Scheme)
	dir := url.Join(baseURL, "corpora")

	exists, _ := fs.Exists(ctx, dir)
	if !exists {
		if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create corpora directory: %w", err)
		}
	}

	return &AFSCorpusStore{baseURL: baseURL, fs: fs}, nil
}

// DefaultDataURL is ~/.euterpe, or .euterpe when the home directory is unknown.
func DefaultDataURL() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".euterpe"
	}
	return filepath.Join(home, ".euterpe")
}

func (s *AFSCorpusStore) corporaURL() string {
	return url.Join(s.baseURL, "corpora")
}

func (s *AFSCorpusStore) corpusURL(id string) string {
	return url.Join(s.corporaURL(), id+".json")
}

func (s *AFSCorpusStore) Save(ctx context.Context, corpus *domain.Corpus) error {
	if corpus == nil {
		return fmt.Errorf("%w: nil corpus", domain.ErrInvalidInput)
	}
	if err := validateCorpusID(corpus.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(corpusToData(corpus), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal corpus: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to a hidden sibling first so readers never see a partial document. The temp name
	// keeps the .json extension because afs Move treats a differing extension as a directory.
	tmp := url.Join(s.corporaURL(), "."+corpus.ID+"."+uuid.NewString()+".json")
	if err := s.fs.Upload(ctx, tmp, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		_ = s.fs.Delete(ctx, tmp)
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	if err := s.fs.Move(ctx, tmp, s.corpusURL(corpus.ID)); err != nil {
		_ = s.fs.Delete(ctx, tmp)
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

func (s *AFSCorpusStore) Load(ctx context.Context, id string) (*domain.Corpus, error) {
	if err := validateCorpusID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadUnlocked(ctx, s.corpusURL(id))
}

func (s *AFSCorpusStore) loadUnlocked(ctx context.Context, location string) (*domain.Corpus, error) {
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check corpus: %w", err)
	}
	if !exists {
		return nil, ErrCorpusNotFound
	}

	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	var raw corpusData
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse corpus: %w", err)
	}
	return dataToCorpus(raw), nil
}

func (s *AFSCorpusStore) Delete(ctx context.Context, id string) error {
	if err := validateCorpusID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	location := s.corpusURL(id)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return fmt.Errorf("failed to check corpus: %w", err)
	}
	if !exists {
		return ErrCorpusNotFound
	}
	if err := s.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("failed to delete corpus: %w", err)
	}
	return nil
}

type ListError struct {
	Errors []error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("failed to load %d corpora", len(e.Errors))
}

// List returns all readable corpora ordered by creation time. Unreadable documents are
// reported through a *ListError alongside the corpora that did load.
func (s *AFSCorpusStore) List(ctx context.Context) ([]*domain.Corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.corporaURL(), option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list corpora: %w", err)
	}

	corpora := make([]*domain.Corpus, 0, len(objects))
	var errs []error
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(object.Name(), ".json")
		if validateCorpusID(id) != nil {
			continue
		}
		corpus, err := s.loadUnlocked(ctx, object.URL())
		if err != nil {
			errs = append(errs, fmt.Errorf("corpus %s: %w", id, err))
			continue
		}
		corpora = append(corpora, corpus)
	}

	sort.Slice(corpora, func(i, j int) bool {
		return corpora[i].CreatedAt.Before(corpora[j].CreatedAt)
	})

	if len(errs) > 0 {
		return corpora, &ListError{Errors: errs}
	}
	return corpora, nil
}

func corpusToData(c *domain.Corpus) corpusData {
	failures := make([]failureData, len(c.FailedFiles))
	for i, f := range c.FailedFiles {
		failures[i] = failureData{Source: f.Source, Reason: f.Reason}
	}
	matrix := make(map[string]float64, len(c.Matrix))
	for k, p := range c.Matrix {
		matrix[k] = p
	}
	return corpusData{
		ID:               c.ID,
		Name:             c.Name,
		Description:      c.Description,
		Sources:          c.Sources,
		FileCount:        c.FileCount,
		FailedFiles:      failures,
		TotalTransitions: c.TotalTransitions,
		Matrix:           matrix,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func dataToCorpus(d corpusData) *domain.Corpus {
	failures := make([]domain.FileFailure, len(d.FailedFiles))
	for i, f := range d.FailedFiles {
		failures[i] = domain.FileFailure{Source: f.Source, Reason: f.Reason}
	}
	matrix := make(harmony.Matrix, len(d.Matrix))
	for k, p := range d.Matrix {
		matrix[k] = p
	}
	return &domain.Corpus{
		ID:               d.ID,
		Name:             d.Name,
		Description:      d.Description,
		Sources:          d.Sources,
		FileCount:        d.FileCount,
		FailedFiles:      failures,
		TotalTransitions: d.TotalTransitions,
		Matrix:           matrix,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}
