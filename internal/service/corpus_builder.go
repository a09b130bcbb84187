package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wenqinglim/euterpe/internal/domain"
	"github.com/wenqinglim/euterpe/internal/harmony"
	"github.com/wenqinglim/euterpe/internal/midi"
	"github.com/wenqinglim/euterpe/internal/storage"
	"github.com/wenqinglim/euterpe/internal/tracing"
)

var (
	ErrNameRequired    = fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	ErrSourcesRequired = fmt.Errorf("%w: at least one source is required", domain.ErrInvalidInput)
	ErrBuilderShutdown = errors.New("corpus builder is shutting down")
)

const DefaultWorkers = 4

type BuilderConfig struct {
	Workers        int
	SkipPercussion bool
}

type CorpusRequest struct {
	Name          string
	Description   string
	Sources       []string
	Pattern       string
	MergeRepeated bool
}

func (r CorpusRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrNameRequired
	}
	for _, s := range r.Sources {
		if strings.TrimSpace(s) != "" {
			return nil
		}
	}
	return ErrSourcesRequired
}

// CorpusBuilder builds global transition matrices from sets of MIDI files.
type CorpusBuilder struct {
	store       storage.CorpusStore
	resolver    *storage.SourceResolver
	jobs        *JobRegistry
	broadcaster *EventBroadcaster
	cfg         BuilderConfig
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCorpusBuilder(store storage.CorpusStore, resolver *storage.SourceResolver, jobs *JobRegistry, broadcaster *EventBroadcaster, cfg BuilderConfig, logger *slog.Logger) *CorpusBuilder {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	if jobs == nil {
		jobs = NewJobRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CorpusBuilder{
		store:       store,
		resolver:    resolver,
		jobs:        jobs,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (b *CorpusBuilder) Jobs() *JobRegistry {
	return b.jobs
}

// Build registers a job and runs the corpus build in the background.
func (b *CorpusBuilder) Build(ctx context.Context, req CorpusRequest) (*domain.Job, error) {
	if err := b.check(req); err != nil {
		return nil, err
	}
	if b.ctx.Err() != nil {
		return nil, ErrBuilderShutdown
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	job := domain.NewJob(uuid.NewString(), domain.JobKindCorpusBuild, uuid.NewString())
	jobCtx, cancel := context.WithCancel(b.ctx)
	b.jobs.Register(job, cancel)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()
		b.runJob(jobCtx, job, req)
	}()

	return job, nil
}

// BuildSync runs the build inline and returns the persisted corpus.
func (b *CorpusBuilder) BuildSync(ctx context.Context, req CorpusRequest) (*domain.Corpus, error) {
	if err := b.check(req); err != nil {
		return nil, err
	}
	return b.build(ctx, nil, uuid.NewString(), req)
}

// check rejects malformed requests and disallowed sources before any work is queued.
func (b *CorpusBuilder) check(req CorpusRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	return b.resolver.Check(req.Sources)
}

// Cancel stops a running job.
func (b *CorpusBuilder) Cancel(jobID string) error {
	return b.jobs.Cancel(jobID)
}

// Shutdown cancels outstanding jobs and waits for them to stop.
func (b *CorpusBuilder) Shutdown(ctx context.Context) error {
	b.cancel()
	b.jobs.CancelAll()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *CorpusBuilder) runJob(ctx context.Context, job *domain.Job, req CorpusRequest) {
	if err := b.transition(job, domain.JobStateRunning, "build started"); err != nil {
		b.logger.Error("job transition failed", "job_id", job.ID, "error", err)
		return
	}

	corpus, err := b.build(ctx, job, job.CorpusID, req)
	switch {
	case err == nil:
		_ = b.transition(job, domain.JobStateCompleted,
			fmt.Sprintf("built %d transitions from %d files", corpus.TotalTransitions, corpus.FileCount))
	case errors.Is(err, context.Canceled):
		_ = b.transition(job, domain.JobStateCancelled, "cancelled")
	default:
		b.logger.Error("corpus build failed", "job_id", job.ID, "error", err)
		_ = b.transition(job, domain.JobStateFailed, err.Error())
	}
}

func (b *CorpusBuilder) transition(job *domain.Job, to domain.JobState, reason string) error {
	from := job.GetState()
	if err := job.TransitionTo(to, reason); err != nil {
		return err
	}
	if b.broadcaster != nil {
		b.broadcaster.Broadcast(domain.NewStatusChangeEvent(job.ID, from.String(), to.String(), reason))
	}
	return nil
}

type fileResult struct {
	counts harmony.Transitions
	err    error
}

// Collection is the merged transition counts of a set of MIDI sources.
type Collection struct {
	Sources   []string
	Counts    harmony.Transitions
	Failures  []domain.FileFailure
	Processed int
}

// Collect resolves the request's sources and counts chord transitions across them, using at
// most Workers goroutines. Files that cannot be read or decoded are recorded and skipped.
func (b *CorpusBuilder) Collect(ctx context.Context, job *domain.Job, req CorpusRequest) (*Collection, error) {
	sources, err := b.resolver.Resolve(ctx, req.Sources, req.Pattern)
	if err != nil {
		return nil, err
	}
	if job != nil {
		job.SetTotal(len(sources))
	}
	b.logger.Info("building global transition matrix", "file_count", len(sources))

	midiOpts := midi.Options{SkipPercussion: b.cfg.SkipPercussion}
	chordOpts := harmony.ChordifyOptions{MergeRepeated: req.MergeRepeated}

	results := make([]fileResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			counts, err := b.countFile(gctx, src, midiOpts, chordOpts)
			if err != nil && isContextError(err) {
				return err
			}
			results[i] = fileResult{counts: counts, err: err}
			b.recordProgress(job, src, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Collection{Sources: sources, Counts: make(harmony.Transitions)}
	for i, res := range results {
		if res.err != nil {
			b.logger.Warn("failed to process midi file", "source", sources[i], "error", res.err)
			out.Failures = append(out.Failures, domain.FileFailure{Source: sources[i], Reason: res.err.Error()})
			continue
		}
		out.Processed++
		out.Counts.Merge(res.counts)
	}
	return out, nil
}

func (b *CorpusBuilder) build(ctx context.Context, job *domain.Job, corpusID string, req CorpusRequest) (*domain.Corpus, error) {
	ctx, span := tracing.StartSpan(ctx, "corpus.build", trace.SpanKindInternal)
	span.SetString("corpus_id", corpusID)

	collection, err := b.Collect(ctx, job, req)
	if err != nil {
		tracing.End(span, err)
		return nil, err
	}

	total := collection.Counts.Total()
	matrix := harmony.MatrixFromCounts(collection.Counts)
	if total == 0 {
		b.logger.Warn("no transitions found in dataset, matrix is empty", "corpus_id", corpusID)
	}

	now := time.Now()
	corpus := &domain.Corpus{
		ID:               corpusID,
		Name:             strings.TrimSpace(req.Name),
		Description:      strings.TrimSpace(req.Description),
		Sources:          req.Sources,
		FileCount:        collection.Processed,
		FailedFiles:      collection.Failures,
		TotalTransitions: total,
		Matrix:           matrix,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := b.store.Save(ctx, corpus); err != nil {
		tracing.End(span, err)
		return nil, err
	}

	b.logger.Info("global transition matrix built",
		"corpus_id", corpusID,
		"unique_transitions", len(matrix),
		"total_transitions", total,
		"failed_files", len(collection.Failures),
	)
	span.SetInt("total_transitions", total).SetInt("unique_transitions", len(matrix))
	tracing.End(span, nil)
	return corpus, nil
}

func (b *CorpusBuilder) countFile(ctx context.Context, src string, midiOpts midi.Options, chordOpts harmony.ChordifyOptions) (harmony.Transitions, error) {
	data, err := b.resolver.Download(ctx, src)
	if err != nil {
		return nil, err
	}
	_, chords, err := chordifyBytes(ctx, data, midiOpts, chordOpts)
	if err != nil {
		if isContextError(err) {
			return nil, err
		}
		return nil, &domain.OpError{Op: "chordify", Kind: domain.KindAnalysis, Source: path.Base(src), Err: err}
	}
	return harmony.CountTransitions(chords), nil
}

func (b *CorpusBuilder) recordProgress(job *domain.Job, src string, err error) {
	if job == nil {
		return
	}
	processed, total, failed := job.RecordProgress(err != nil)
	if b.broadcaster == nil {
		return
	}
	if err != nil {
		b.broadcaster.Broadcast(domain.NewFileFailedEvent(job.ID, src, err.Error()))
	}
	b.broadcaster.Broadcast(domain.NewProgressEvent(job.ID, src, processed, total, failed))
}

// Import stores a transition matrix built elsewhere as a new corpus.
func (b *CorpusBuilder) Import(ctx context.Context, name, description string, matrix harmony.Matrix) (*domain.Corpus, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	if err := matrix.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	now := time.Now()
	corpus := &domain.Corpus{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Matrix:      matrix,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.store.Save(ctx, corpus); err != nil {
		return nil, err
	}
	b.logger.Info("transition matrix imported", "corpus_id", corpus.ID, "unique_transitions", len(matrix))
	return corpus, nil
}
