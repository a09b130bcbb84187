package harmony

import "math"

// UnseenProbability stands in for transitions missing from a global matrix.
const UnseenProbability = 1e-10

// Entropy is the Shannon entropy, in bits, of the transition distribution.
func Entropy(t Transitions) float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	var h float64
	for _, c := range t {
		if c <= 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

// MaxEntropy is log2(n), the entropy of n equally likely transitions.
func MaxEntropy(n int) float64 {
	if n <= 1 {
		return 0
	}
	return math.Log2(float64(n))
}

// RelativeEntropy scores the chord sequence against the global transition probabilities in m.
// Each local transition contributes its local frequency times -log2 of its global probability.
// When normalized is set the result is divided by log2 of the number of distinct local
// transitions.
func RelativeEntropy(chords []Chord, m Matrix, normalized bool) float64 {
	if len(chords) < 2 {
		return 0
	}
	return relativeEntropy(CountTransitions(chords), m, normalized)
}

// RelativeEntropyOf is RelativeEntropy for precomputed transition counts.
func RelativeEntropyOf(t Transitions, m Matrix, normalized bool) float64 {
	return relativeEntropy(t, m, normalized)
}

func relativeEntropy(t Transitions, m Matrix, normalized bool) float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}

	var h float64
	for k, c := range t {
		local := float64(c) / float64(total)
		q, ok := m[k]
		if !ok {
			h -= local * math.Log2(UnseenProbability)
			continue
		}
		if q > 0 {
			h -= local * math.Log2(q)
		}
	}

	if !normalized {
		return h
	}
	maxH := MaxEntropy(len(t))
	if maxH == 0 {
		return 0
	}
	return h / maxH
}

// UnseenTransitions counts distinct local transitions that are missing from m.
func UnseenTransitions(t Transitions, m Matrix) int {
	n := 0
	for k := range t {
		if _, ok := m[k]; !ok {
			n++
		}
	}
	return n
}
