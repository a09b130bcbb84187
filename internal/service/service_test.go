package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/wenqinglim/euterpe/internal/domain"
	"github.com/wenqinglim/euterpe/internal/logging"
	"github.com/wenqinglim/euterpe/internal/storage"
)

// inMemStore is an in-memory CorpusStore for tests.
type inMemStore struct {
	mu      sync.RWMutex
	corpora map[string]*domain.Corpus
	saveErr error
}

func newInMemStore() *inMemStore {
	return &inMemStore{corpora: make(map[string]*domain.Corpus)}
}

func (s *inMemStore) Save(_ context.Context, c *domain.Corpus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.corpora[c.ID] = c
	return nil
}

func (s *inMemStore) Load(_ context.Context, id string) (*domain.Corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.corpora[id]
	if !ok {
		return nil, storage.ErrCorpusNotFound
	}
	return c, nil
}

func (s *inMemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.corpora[id]; !ok {
		return storage.ErrCorpusNotFound
	}
	delete(s.corpora, id)
	return nil
}

func (s *inMemStore) List(_ context.Context) ([]*domain.Corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Corpus, 0, len(s.corpora))
	for _, c := range s.corpora {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func newTestBuilder(t *testing.T, store storage.CorpusStore, broadcaster *EventBroadcaster) *CorpusBuilder {
	t.Helper()
	b := NewCorpusBuilder(store, storage.NewSourceResolver(""), nil, broadcaster,
		BuilderConfig{Workers: 2, SkipPercussion: true}, logging.Discard())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Shutdown(ctx)
	})
	return b
}

func waitForTerminal(t *testing.T, job *domain.Job) domain.JobState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := job.GetState(); s.Terminal() {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s stuck in %s", job.ID, job.GetState())
	return job.GetState()
}
