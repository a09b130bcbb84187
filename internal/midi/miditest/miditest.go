// Package miditest builds small Standard MIDI Files for tests.
package miditest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Resolution is the ticks per quarter note of generated files.
const Resolution = 480

// Block plays every key for one quarter note on the given channel, then releases them together.
func Block(t testing.TB, channel uint8, chords ...[]uint8) []byte {
	t.Helper()

	var tr smf.Track
	for _, chord := range chords {
		for _, key := range chord {
			tr.Add(0, midi.NoteOn(channel, key, 100))
		}
		for i, key := range chord {
			var delta uint32
			if i == 0 {
				delta = Resolution
			}
			tr.Add(delta, midi.NoteOff(channel, key))
		}
	}
	tr.Close(0)

	return encode(t, tr)
}

// Chords is Block on channel 0.
func Chords(t testing.TB, chords ...[]uint8) []byte {
	t.Helper()
	return Block(t, 0, chords...)
}

// Cycle returns n chords taken in turn from chords.
func Cycle(n int, chords ...[]uint8) [][]uint8 {
	out := make([][]uint8, n)
	for i := range out {
		out[i] = chords[i%len(chords)]
	}
	return out
}

// Tracks encodes already assembled tracks.
func Tracks(t testing.TB, tracks ...smf.Track) []byte {
	t.Helper()
	return encode(t, tracks...)
}

func encode(t testing.TB, tracks ...smf.Track) []byte {
	t.Helper()

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(Resolution)
	for _, tr := range tracks {
		if err := s.Add(tr); err != nil {
			t.Fatalf("add track: %v", err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("write smf: %v", err)
	}
	return buf.Bytes()
}

// WriteFile stores data under dir and returns its path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Common triads as MIDI keys.
var (
	CMajor = []uint8{60, 64, 67}
	FMajor = []uint8{65, 69, 72}
	GMajor = []uint8{67, 71, 74}
	AMinor = []uint8{69, 72, 76}
)
