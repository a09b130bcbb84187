// Package harmony measures harmonic complexity as the entropy of chord transitions.
//
// A score is first chordified: the timeline is cut at every note start and end and each
// sounding slice becomes a chord. Adjacent chords form transitions, and the distribution of
// those transitions is scored either on its own (Entropy) or against a global transition
// matrix built from a corpus (RelativeEntropy).
package harmony

import (
	"context"
	"sort"
	"strings"

	"github.com/wenqinglim/euterpe/internal/midi"
)

// pitchClassNames follows music21's default spelling for MIDI pitches.
var pitchClassNames = [12]string{"C", "C#", "D", "E-", "E", "F", "F#", "G", "G#", "A", "B-", "B"}

// PitchName returns the octave-less name of a MIDI key.
func PitchName(key uint8) string {
	return pitchClassNames[key%12]
}

// Chord is the set of distinct keys sounding between Start and End.
type Chord struct {
	Start   uint64
	End     uint64
	Pitches []uint8
}

// PitchNames lists the chord's pitch names from the lowest key up. Octave duplicates are kept.
func (c Chord) PitchNames() []string {
	names := make([]string, len(c.Pitches))
	for i, p := range c.Pitches {
		names[i] = PitchName(p)
	}
	return names
}

func (c Chord) sameContent(other Chord) bool {
	if len(c.Pitches) != len(other.Pitches) {
		return false
	}
	for i := range c.Pitches {
		if c.Pitches[i] != other.Pitches[i] {
			return false
		}
	}
	return true
}

type ChordifyOptions struct {
	// MergeRepeated joins adjacent, touching slices with identical pitches into one chord.
	MergeRepeated bool
}

type boundary struct {
	starts []uint8
	ends   []uint8
}

// ctxCheckEvery is how many boundaries are processed between context checks.
const ctxCheckEvery = 1024

// Chordify reduces a score to its sequence of vertical sonorities.
func Chordify(score *midi.Score, opts ChordifyOptions) []Chord {
	chords, _ := ChordifyContext(context.Background(), score, opts)
	return chords
}

// ChordifyContext is Chordify with cancellation. It returns ctx.Err() once ctx is done.
func ChordifyContext(ctx context.Context, score *midi.Score, opts ChordifyOptions) ([]Chord, error) {
	if score == nil || len(score.Notes) == 0 {
		return nil, ctx.Err()
	}

	points := make(map[uint64]*boundary)
	at := func(tick uint64) *boundary {
		b, ok := points[tick]
		if !ok {
			b = &boundary{}
			points[tick] = b
		}
		return b
	}
	for _, n := range score.Notes {
		if n.End <= n.Start {
			continue
		}
		at(n.Start).starts = append(at(n.Start).starts, n.Key)
		at(n.End).ends = append(at(n.End).ends, n.Key)
	}

	ticks := make([]uint64, 0, len(points))
	for t := range points {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	var (
		sounding [128]int
		chords   []Chord
	)
	for i, t := range ticks {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		b := points[t]
		for _, k := range b.ends {
			sounding[k]--
		}
		for _, k := range b.starts {
			sounding[k]++
		}
		if i == len(ticks)-1 {
			break
		}

		var pitches []uint8
		for k := range sounding {
			if sounding[k] > 0 {
				pitches = append(pitches, uint8(k))
			}
		}
		if len(pitches) == 0 {
			continue
		}

		chord := Chord{Start: t, End: ticks[i+1], Pitches: pitches}
		if opts.MergeRepeated && len(chords) > 0 {
			last := &chords[len(chords)-1]
			if last.End == chord.Start && last.sameContent(chord) {
				last.End = chord.End
				continue
			}
		}
		chords = append(chords, chord)
	}
	return chords, nil
}

// TransitionKey renders a chord pair in the "(['C', 'E', 'G'], ['F', 'A', 'C'])" form used by
// persisted transition matrices.
func TransitionKey(from, to Chord) string {
	var sb strings.Builder
	sb.WriteByte('(')
	writeNameList(&sb, from.PitchNames())
	sb.WriteString(", ")
	writeNameList(&sb, to.PitchNames())
	sb.WriteByte(')')
	return sb.String()
}

func writeNameList(sb *strings.Builder, names []string) {
	sb.WriteByte('[')
	for i, n := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('\'')
		sb.WriteString(n)
		sb.WriteByte('\'')
	}
	sb.WriteByte(']')
}
