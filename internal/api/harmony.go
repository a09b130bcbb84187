package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/wenqinglim/euterpe/internal/domain"
	"github.com/wenqinglim/euterpe/internal/harmony"
	"github.com/wenqinglim/euterpe/internal/service"
	apiTypes "github.com/wenqinglim/euterpe/pkg/api"
)

const (
	uploadField     = "file"
	defaultFileName = "upload.mid"
)

var errEmptyBody = fmt.Errorf("%w: midi body is empty", domain.ErrInvalidInput)

func (h *Handler) computeEntropy(w http.ResponseWriter, r *http.Request) {
	opts, normalized, err := parseAnalyzeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query parameter", err.Error())
		return
	}

	name, data, ok := h.readMIDI(w, r)
	if !ok {
		return
	}

	analysis, err := h.analyzer.Analyze(r.Context(), name, data, opts)
	if err != nil {
		writeServiceError(w, err, "failed to compute entropy")
		return
	}

	writeJSON(w, http.StatusOK, analysisToEntropyResponse(analysis, normalized))
}

func (h *Handler) extractChords(w http.ResponseWriter, r *http.Request) {
	opts, _, err := parseAnalyzeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query parameter", err.Error())
		return
	}

	name, data, ok := h.readMIDI(w, r)
	if !ok {
		return
	}

	analysis, err := h.analyzer.Chords(r.Context(), name, data, opts)
	if err != nil {
		writeServiceError(w, err, "failed to extract chords")
		return
	}

	writeJSON(w, http.StatusOK, analysisToChordsResponse(analysis))
}

// readMIDI reads the upload either from the multipart field "file" or from the raw body.
// It writes the error response itself and reports false when the request is unusable.
func (h *Handler) readMIDI(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var (
		name = strings.TrimSpace(r.URL.Query().Get("filename"))
		data []byte
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		name, data, err = h.readMultipart(r)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "midi upload too large",
				fmt.Sprintf("limit is %d bytes", h.maxUploadBytes))
			return "", nil, false
		}
		writeServiceError(w, err, "invalid request body")
		return "", nil, false
	}
	if len(data) == 0 {
		writeServiceError(w, errEmptyBody, "invalid request body")
		return "", nil, false
	}
	if name == "" {
		name = defaultFileName
	}
	return name, data, true
}

func (h *Handler) readMultipart(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		if isTooLarge(err) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return "", nil, fmt.Errorf("%w: missing form field %q", domain.ErrInvalidInput, uploadField)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func parseAnalyzeQuery(r *http.Request) (service.AnalyzeOptions, bool, error) {
	q := r.URL.Query()
	opts := service.AnalyzeOptions{CorpusID: strings.TrimSpace(q.Get("corpus_id"))}

	normalized, err := parseBoolParam(q.Get("normalized"), "normalized")
	if err != nil {
		return opts, false, err
	}
	if opts.MergeRepeated, err = parseBoolParam(q.Get("merge_repeated"), "merge_repeated"); err != nil {
		return opts, false, err
	}
	if raw := q.Get("skip_percussion"); raw != "" {
		skip, err := parseBoolParam(raw, "skip_percussion")
		if err != nil {
			return opts, false, err
		}
		opts.SkipPercussion = &skip
	}
	return opts, normalized, nil
}

func parseBoolParam(raw, name string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", name, raw)
	}
	return v, nil
}

func analysisToEntropyResponse(a *service.Analysis, normalized bool) apiTypes.EntropyResponse {
	resp := apiTypes.EntropyResponse{
		File:                 a.Name,
		Tracks:               a.Tracks,
		NoteCount:            a.NoteCount,
		ChordCount:           a.Report.ChordCount,
		TotalTransitions:     a.Report.TotalTransitions,
		UniqueTransitions:    a.Report.UniqueTransitions,
		Entropy:              a.Report.Entropy,
		MaxEntropy:           a.Report.MaxEntropy,
		NormalizedEntropy:    a.Report.NormalizedEntropy,
		MostCommonTransition: a.Report.MostCommonTransition,
		MostCommonCount:      a.Report.MostCommonCount,
	}

	switch {
	case a.Relative != nil && normalized:
		resp.Score = a.Relative.NormalizedEntropy
	case a.Relative != nil:
		resp.Score = a.Relative.Entropy
	case normalized:
		resp.Score = a.Report.NormalizedEntropy
	default:
		resp.Score = a.Report.Entropy
	}

	if a.Relative != nil {
		resp.Relative = &apiTypes.RelativeEntropy{
			CorpusID:          a.Relative.CorpusID,
			CorpusName:        a.Relative.CorpusName,
			Entropy:           a.Relative.Entropy,
			NormalizedEntropy: a.Relative.NormalizedEntropy,
			UnseenTransitions: a.Relative.UnseenTransitions,
		}
	}
	return resp
}

func analysisToChordsResponse(a *service.Analysis) apiTypes.ChordsResponse {
	chords := make([]apiTypes.ChordResponse, len(a.Chords))
	for i, c := range a.Chords {
		chords[i] = chordToResponse(c)
	}

	top := a.Transitions.Top(0)
	transitions := make([]apiTypes.TransitionCount, len(top))
	for i, t := range top {
		transitions[i] = apiTypes.TransitionCount{Transition: t.Key, Count: t.Count}
	}

	return apiTypes.ChordsResponse{
		File:        a.Name,
		Resolution:  a.Resolution,
		Chords:      chords,
		Transitions: transitions,
	}
}

func chordToResponse(c harmony.Chord) apiTypes.ChordResponse {
	pitches := make([]int, len(c.Pitches))
	for i, p := range c.Pitches {
		pitches[i] = int(p)
	}
	return apiTypes.ChordResponse{
		Start:   c.Start,
		End:     c.End,
		Pitches: pitches,
		Names:   c.PitchNames(),
	}
}
