package harmony

import "sort"

// Transitions counts occurrences of each transition key.
type Transitions map[string]int

// CountTransitions counts every adjacent chord pair.
func CountTransitions(chords []Chord) Transitions {
	t := make(Transitions)
	for i := 0; i+1 < len(chords); i++ {
		t[TransitionKey(chords[i], chords[i+1])]++
	}
	return t
}

// Total is the number of transitions counted.
func (t Transitions) Total() int {
	total := 0
	for _, c := range t {
		total += c
	}
	return total
}

// MostCommon returns the most frequent transition. Ties go to the lexicographically smallest key.
func (t Transitions) MostCommon() (string, int, bool) {
	var (
		best  string
		count int
		found bool
	)
	for k, c := range t {
		if !found || c > count || (c == count && k < best) {
			best, count, found = k, c, true
		}
	}
	return best, count, found
}

// Merge adds other's counts into t.
func (t Transitions) Merge(other Transitions) {
	for k, c := range other {
		t[k] += c
	}
}

type TransitionCount struct {
	Key   string
	Count int
}

// Top returns up to n transitions ordered by descending count, then key.
func (t Transitions) Top(n int) []TransitionCount {
	out := make([]TransitionCount, 0, len(t))
	for k, c := range t {
		out = append(out, TransitionCount{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
