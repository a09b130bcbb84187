// Package midi decodes Standard MIDI Files into absolute-time notes.
package midi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"
)

var ErrInvalidMIDI = errors.New("invalid midi data")

// ctxCheckEvery is how many track events are decoded between context checks.
const ctxCheckEvery = 4096

// PercussionChannel is the zero based index of General MIDI channel 10.
const PercussionChannel uint8 = 9

// Note is a sounding pitch between Start (inclusive) and End (exclusive), in ticks.
type Note struct {
	Track    int
	Channel  uint8
	Key      uint8
	Velocity uint8
	Start    uint64
	End      uint64
}

type Score struct {
	Resolution uint16
	Tracks     int
	Notes      []Note
}

// Duration is the tick at which the last note ends.
func (s *Score) Duration() uint64 {
	var end uint64
	for _, n := range s.Notes {
		if n.End > end {
			end = n.End
		}
	}
	return end
}

type Options struct {
	SkipPercussion bool
}

// ReadFile decodes the MIDI file at path.
func ReadFile(path string, opts Options) (*Score, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read midi file: %w", err)
	}
	return Read(bytes.NewReader(data), opts)
}

// Read decodes a Standard MIDI File.
func Read(r io.Reader, opts Options) (*Score, error) {
	return ReadContext(context.Background(), r, opts)
}

// ReadContext is Read with cancellation. It returns ctx.Err() once ctx is done.
func ReadContext(ctx context.Context, r io.Reader, opts Options) (*Score, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read midi data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidMIDI)
	}

	file, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMIDI, err)
	}

	score := &Score{Tracks: len(file.Tracks)}
	if ticks, ok := file.TimeFormat.(smf.MetricTicks); ok {
		score.Resolution = uint16(ticks)
	}

	for i, track := range file.Tracks {
		notes, err := trackNotes(ctx, i, track, opts)
		if err != nil {
			return nil, err
		}
		score.Notes = append(score.Notes, notes...)
	}

	sort.SliceStable(score.Notes, func(a, b int) bool {
		na, nb := score.Notes[a], score.Notes[b]
		if na.Start != nb.Start {
			return na.Start < nb.Start
		}
		return na.Key < nb.Key
	})
	return score, nil
}

type noteKey struct {
	channel uint8
	key     uint8
}

type openNote struct {
	start    uint64
	velocity uint8
}

func trackNotes(ctx context.Context, index int, track smf.Track, opts Options) ([]Note, error) {
	var (
		notes []Note
		tick  uint64
		open  = make(map[noteKey][]openNote)
	)

	closeNote := func(k noteKey, at uint64) {
		pending := open[k]
		if len(pending) == 0 {
			return
		}
		first := pending[0]
		open[k] = pending[1:]
		if at <= first.start {
			return
		}
		notes = append(notes, Note{
			Track:    index,
			Channel:  k.channel,
			Key:      k.key,
			Velocity: first.velocity,
			Start:    first.start,
			End:      at,
		})
	}

	for i, ev := range track {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tick += uint64(ev.Delta)

		var channel, key, velocity uint8
		switch {
		case ev.Message.GetNoteOn(&channel, &key, &velocity):
			if opts.SkipPercussion && channel == PercussionChannel {
				continue
			}
			k := noteKey{channel: channel, key: key}
			if velocity == 0 {
				closeNote(k, tick)
				continue
			}
			open[k] = append(open[k], openNote{start: tick, velocity: velocity})
		case ev.Message.GetNoteOff(&channel, &key, &velocity):
			if opts.SkipPercussion && channel == PercussionChannel {
				continue
			}
			closeNote(noteKey{channel: channel, key: key}, tick)
		}
	}

	// Notes left hanging at the end of the track are closed there.
	for k := range open {
		for len(open[k]) > 0 {
			closeNote(k, tick)
		}
	}
	return notes, nil
}
