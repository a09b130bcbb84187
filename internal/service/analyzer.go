package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/wenqinglim/euterpe/internal/domain"
	"github.com/wenqinglim/euterpe/internal/harmony"
	"github.com/wenqinglim/euterpe/internal/midi"
	"github.com/wenqinglim/euterpe/internal/storage"
	"github.com/wenqinglim/euterpe/internal/tracing"
)

var ErrAnalysisTimeout = errors.New("analysis timed out")

const DefaultAnalysisTimeout = 30 * time.Second

type AnalyzerConfig struct {
	SkipPercussion bool
	Timeout        time.Duration
}

type AnalyzeOptions struct {
	// CorpusID selects a global transition matrix for relative scoring.
	CorpusID string
	// Matrix scores against a matrix loaded elsewhere. CorpusID takes precedence.
	Matrix         harmony.Matrix
	MatrixName     string
	MergeRepeated  bool
	SkipPercussion *bool
}

// RelativeScore is the entropy of a file measured against a corpus matrix.
type RelativeScore struct {
	CorpusID          string
	CorpusName        string
	Entropy           float64
	NormalizedEntropy float64
	UnseenTransitions int
}

type Analysis struct {
	Name        string
	Resolution  uint16
	Tracks      int
	NoteCount   int
	Chords      []harmony.Chord
	Transitions harmony.Transitions
	Report      harmony.Report
	Relative    *RelativeScore
}

// Analyzer computes harmonic complexity for single MIDI files.
type Analyzer struct {
	corpora storage.CorpusStore
	cfg     AnalyzerConfig
	logger  *slog.Logger
}

func NewAnalyzer(corpora storage.CorpusStore, cfg AnalyzerConfig, logger *slog.Logger) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAnalysisTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{corpora: corpora, cfg: cfg, logger: logger}
}

func (a *Analyzer) midiOptions(opts AnalyzeOptions) midi.Options {
	skip := a.cfg.SkipPercussion
	if opts.SkipPercussion != nil {
		skip = *opts.SkipPercussion
	}
	return midi.Options{SkipPercussion: skip}
}

// Analyze decodes data, chordifies it and scores its chord transitions.
func (a *Analyzer) Analyze(ctx context.Context, name string, data []byte, opts AnalyzeOptions) (*Analysis, error) {
	ctx, span := tracing.StartSpan(ctx, "harmony.analyze", trace.SpanKindInternal)
	span.SetString("file", name)

	var matrix harmony.Matrix
	var corpus *domain.Corpus
	if opts.CorpusID != "" {
		if a.corpora == nil {
			err := fmt.Errorf("%w: corpus %s", domain.ErrNotFound, opts.CorpusID)
			tracing.End(span, err)
			return nil, err
		}
		c, err := a.corpora.Load(ctx, opts.CorpusID)
		if err != nil {
			tracing.End(span, err)
			return nil, err
		}
		corpus = c
		matrix = c.Matrix
	} else if opts.Matrix != nil {
		corpus = &domain.Corpus{Name: opts.MatrixName, Matrix: opts.Matrix}
		matrix = opts.Matrix
	}

	analysis, err := a.run(ctx, func(ctx context.Context) (*Analysis, error) {
		return a.analyze(ctx, name, data, opts, corpus, matrix)
	})
	if analysis != nil {
		span.SetInt("chord_count", analysis.Report.ChordCount)
		span.SetFloat("entropy", analysis.Report.Entropy)
	}
	tracing.End(span, err)
	return analysis, err
}

// Chords returns the chord sequence and transition counts without scoring against a corpus.
func (a *Analyzer) Chords(ctx context.Context, name string, data []byte, opts AnalyzeOptions) (*Analysis, error) {
	opts.CorpusID = ""
	opts.Matrix = nil
	return a.run(ctx, func(ctx context.Context) (*Analysis, error) {
		return a.analyze(ctx, name, data, opts, nil, nil)
	})
}

// run calls fn with a context bounded by the configured timeout. fn must honour that context so
// the work stops once run has returned.
func (a *Analyzer) run(ctx context.Context, fn func(context.Context) (*Analysis, error)) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	type result struct {
		analysis *Analysis
		err      error
	}
	done := make(chan result, 1)
	go func() {
		analysis, err := fn(ctx)
		done <- result{analysis: analysis, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return nil, a.ctxError(ctx)
		}
		return res.analysis, res.err
	case <-ctx.Done():
		return nil, a.ctxError(ctx)
	}
}

func (a *Analyzer) ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrAnalysisTimeout, a.cfg.Timeout)
	}
	return ctx.Err()
}

func (a *Analyzer) analyze(ctx context.Context, name string, data []byte, opts AnalyzeOptions, corpus *domain.Corpus, matrix harmony.Matrix) (*Analysis, error) {
	score, chords, err := chordifyBytes(ctx, data, a.midiOptions(opts), harmony.ChordifyOptions{MergeRepeated: opts.MergeRepeated})
	if err != nil {
		if isContextError(err) {
			return nil, err
		}
		return nil, &domain.OpError{Op: "analyze", Kind: domain.KindInvalidInput, Source: name, Err: err}
	}

	transitions := harmony.CountTransitions(chords)
	report := harmony.Analyze(chords)

	a.logger.Info("chord sequence extracted",
		"file", name,
		"chord_count", report.ChordCount,
		"unique_transitions", report.UniqueTransitions,
	)
	if report.TotalTransitions == 0 {
		a.logger.Warn("no transitions found, entropy is 0", "file", name)
	} else {
		a.logger.Debug("most common transition",
			"file", name,
			"transition", report.MostCommonTransition,
			"count", report.MostCommonCount,
		)
	}

	analysis := &Analysis{
		Name:        name,
		Resolution:  score.Resolution,
		Tracks:      score.Tracks,
		NoteCount:   len(score.Notes),
		Chords:      chords,
		Transitions: transitions,
		Report:      report,
	}

	if corpus != nil {
		rel := &RelativeScore{
			CorpusID:          corpus.ID,
			CorpusName:        corpus.Name,
			UnseenTransitions: harmony.UnseenTransitions(transitions, matrix),
		}
		if len(chords) >= 2 {
			rel.Entropy = harmony.RelativeEntropyOf(transitions, matrix, false)
			rel.NormalizedEntropy = harmony.RelativeEntropyOf(transitions, matrix, true)
		} else {
			a.logger.Warn("chord sequence too short for relative entropy", "file", name)
		}
		analysis.Relative = rel
		a.logger.Info("relative entropy computed",
			"file", name,
			"corpus_id", corpus.ID,
			"entropy", rel.Entropy,
			"normalized_entropy", rel.NormalizedEntropy,
			"unseen_transitions", rel.UnseenTransitions,
		)
	}

	a.logger.Info("entropy computed", "file", name, "entropy", report.Entropy)
	return analysis, nil
}

// chordifyBytes decodes a MIDI document and reduces it to chords.
func chordifyBytes(ctx context.Context, data []byte, midiOpts midi.Options, chordOpts harmony.ChordifyOptions) (*midi.Score, []harmony.Chord, error) {
	_, span := tracing.StartSpan(ctx, "harmony.chordify", trace.SpanKindInternal)

	score, err := midi.ReadContext(ctx, bytes.NewReader(data), midiOpts)
	if err != nil {
		tracing.End(span, err)
		return nil, nil, err
	}
	chords, err := harmony.ChordifyContext(ctx, score, chordOpts)
	if err != nil {
		tracing.End(span, err)
		return nil, nil, err
	}
	span.SetInt("note_count", len(score.Notes)).SetInt("chord_count", len(chords))
	tracing.End(span, nil)
	return score, chords, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
