package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/wenqinglim/euterpe/internal/domain"
	"github.com/wenqinglim/euterpe/internal/harmony"
	"github.com/wenqinglim/euterpe/internal/logging"
	"github.com/wenqinglim/euterpe/internal/midi"
	"github.com/wenqinglim/euterpe/internal/midi/miditest"
)

const (
	keyCF = "(['C', 'E', 'G'], ['F', 'A', 'C'])"
	keyFC = "(['F', 'A', 'C'], ['C', 'E', 'G'])"
)

func TestAnalyzer_Analyze(t *testing.T) {
	a := NewAnalyzer(nil, AnalyzerConfig{}, logging.Discard())
	data := miditest.Chords(t, miditest.CMajor, miditest.FMajor, miditest.GMajor, miditest.CMajor)

	analysis, err := a.Analyze(context.Background(), "cadence.mid", data, AnalyzeOptions{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if analysis.Report.ChordCount != 4 || analysis.NoteCount != 12 || analysis.Tracks != 1 {
		t.Errorf("unexpected analysis %+v", analysis.Report)
	}
	if math.Abs(analysis.Report.Entropy-math.Log2(3)) > 1e-9 {
		t.Errorf("entropy = %v, want log2(3)", analysis.Report.Entropy)
	}
	if analysis.Relative != nil {
		t.Error("no corpus requested, relative score should be nil")
	}
}

func TestAnalyzer_RelativeToCorpus(t *testing.T) {
	store := newInMemStore()
	_ = store.Save(context.Background(), &domain.Corpus{
		ID:     "cadences",
		Name:   "Cadences",
		Matrix: harmony.Matrix{keyCF: 0.5, keyFC: 0.5},
	})
	a := NewAnalyzer(store, AnalyzerConfig{}, logging.Discard())
	data := miditest.Chords(t, miditest.CMajor, miditest.FMajor, miditest.CMajor)

	analysis, err := a.Analyze(context.Background(), "piece.mid", data, AnalyzeOptions{CorpusID: "cadences"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	rel := analysis.Relative
	if rel == nil {
		t.Fatal("expected relative score")
	}
	if rel.CorpusName != "Cadences" || rel.UnseenTransitions != 0 {
		t.Errorf("unexpected relative score %+v", rel)
	}
	if math.Abs(rel.Entropy-1) > 1e-9 || math.Abs(rel.NormalizedEntropy-1) > 1e-9 {
		t.Errorf("relative = %v / %v, want 1 / 1", rel.Entropy, rel.NormalizedEntropy)
	}

	_, err = a.Analyze(context.Background(), "piece.mid", data, AnalyzeOptions{CorpusID: "missing"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown corpus error = %v", err)
	}
}

func TestAnalyzer_ExplicitMatrix(t *testing.T) {
	a := NewAnalyzer(nil, AnalyzerConfig{}, logging.Discard())
	data := miditest.Chords(t, miditest.CMajor, miditest.GMajor)

	analysis, err := a.Analyze(context.Background(), "x.mid", data, AnalyzeOptions{
		Matrix:     harmony.Matrix{keyCF: 1},
		MatrixName: "m.json",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if analysis.Relative == nil || analysis.Relative.UnseenTransitions != 1 {
		t.Fatalf("unexpected relative %+v", analysis.Relative)
	}
	if want := -math.Log2(harmony.UnseenProbability); math.Abs(analysis.Relative.Entropy-want) > 1e-9 {
		t.Errorf("entropy = %v, want %v", analysis.Relative.Entropy, want)
	}
}

func TestAnalyzer_ShortSequenceScoresZero(t *testing.T) {
	store := newInMemStore()
	_ = store.Save(context.Background(), &domain.Corpus{ID: "c", Matrix: harmony.Matrix{keyCF: 1}})
	a := NewAnalyzer(store, AnalyzerConfig{}, logging.Discard())

	analysis, err := a.Analyze(context.Background(), "one.mid", miditest.Chords(t, miditest.CMajor), AnalyzeOptions{CorpusID: "c"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if analysis.Report.Entropy != 0 || analysis.Relative.Entropy != 0 {
		t.Errorf("single chord should score 0, got %v / %v", analysis.Report.Entropy, analysis.Relative.Entropy)
	}
}

func TestAnalyzer_PercussionOverride(t *testing.T) {
	var tr smf.Track
	tr.Add(0, gomidi.NoteOn(midi.PercussionChannel, 36, 100))
	tr.Add(0, gomidi.NoteOn(0, 60, 100))
	tr.Add(480, gomidi.NoteOff(midi.PercussionChannel, 36))
	tr.Add(0, gomidi.NoteOff(0, 60))
	tr.Close(0)
	data := miditest.Tracks(t, tr)

	a := NewAnalyzer(nil, AnalyzerConfig{SkipPercussion: true}, logging.Discard())
	analysis, err := a.Chords(context.Background(), "drums.mid", data, AnalyzeOptions{})
	if err != nil {
		t.Fatalf("Chords failed: %v", err)
	}
	if analysis.NoteCount != 1 {
		t.Errorf("note count = %d, want 1 with percussion skipped", analysis.NoteCount)
	}

	include := false
	analysis, err = a.Chords(context.Background(), "drums.mid", data, AnalyzeOptions{SkipPercussion: &include})
	if err != nil {
		t.Fatalf("Chords failed: %v", err)
	}
	if analysis.NoteCount != 2 {
		t.Errorf("note count = %d, want 2 with percussion included", analysis.NoteCount)
	}
}

func TestAnalyzer_InvalidMIDI(t *testing.T) {
	a := NewAnalyzer(nil, AnalyzerConfig{}, logging.Discard())

	_, err := a.Analyze(context.Background(), "bad.mid", []byte("nope"), AnalyzeOptions{})
	if !errors.Is(err, midi.ErrInvalidMIDI) {
		t.Fatalf("error = %v, want ErrInvalidMIDI", err)
	}
	if !domain.IsKind(err, domain.KindInvalidInput) {
		t.Errorf("error kind should be invalid input: %v", err)
	}
}

func TestAnalyzer_Timeout(t *testing.T) {
	a := NewAnalyzer(nil, AnalyzerConfig{Timeout: 10 * time.Millisecond}, logging.Discard())

	_, err := a.run(context.Background(), func(context.Context) (*Analysis, error) {
		time.Sleep(200 * time.Millisecond)
		return &Analysis{}, nil
	})
	if !errors.Is(err, ErrAnalysisTimeout) {
		t.Fatalf("error = %v, want ErrAnalysisTimeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.run(ctx, func(context.Context) (*Analysis, error) {
		time.Sleep(200 * time.Millisecond)
		return &Analysis{}, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestAnalyzer_TimeoutStopsWork(t *testing.T) {
	data := miditest.Chords(t, miditest.Cycle(40000, miditest.CMajor, miditest.FMajor, miditest.GMajor)...)
	a := NewAnalyzer(nil, AnalyzerConfig{Timeout: time.Millisecond}, logging.Discard())

	finished := make(chan error, 1)
	_, err := a.run(context.Background(), func(ctx context.Context) (*Analysis, error) {
		analysis, err := a.analyze(ctx, "long.mid", data, AnalyzeOptions{}, nil, nil)
		finished <- err
		return analysis, err
	})
	if !errors.Is(err, ErrAnalysisTimeout) {
		t.Fatalf("error = %v, want ErrAnalysisTimeout", err)
	}

	select {
	case err := <-finished:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("abandoned analysis returned %v, want context.DeadlineExceeded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("analysis kept running after the timeout")
	}

	if _, err := a.Analyze(context.Background(), "long.mid", data, AnalyzeOptions{}); !errors.Is(err, ErrAnalysisTimeout) {
		t.Errorf("Analyze = %v, want ErrAnalysisTimeout", err)
	}
}
