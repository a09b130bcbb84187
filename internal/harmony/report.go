package harmony

// Report summarises the harmonic complexity of one chord sequence.
type Report struct {
	ChordCount           int
	TotalTransitions     int
	UniqueTransitions    int
	Entropy              float64
	MaxEntropy           float64
	NormalizedEntropy    float64
	MostCommonTransition string
	MostCommonCount      int
}

// Analyze computes the self-referential entropy report for chords.
func Analyze(chords []Chord) Report {
	t := CountTransitions(chords)
	r := Report{
		ChordCount:        len(chords),
		TotalTransitions:  t.Total(),
		UniqueTransitions: len(t),
		Entropy:           Entropy(t),
		MaxEntropy:        MaxEntropy(len(t)),
	}
	if r.MaxEntropy > 0 {
		r.NormalizedEntropy = r.Entropy / r.MaxEntropy
	}
	if key, count, ok := t.MostCommon(); ok {
		r.MostCommonTransition = key
		r.MostCommonCount = count
	}
	return r
}
