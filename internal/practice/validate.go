// Package practice implements pronunciation practice: the attempt validator
// and the panel controller that ties recorders, storage, and history views
// together.
package practice

import "math"

// Verdict is the outcome of comparing an attempt against the reference model.
type Verdict struct {
	// Score is in [0, 1], nil when validation was not possible.
	Score *float64

	// Note is a short qualitative judgment for display.
	Note string
}

// Notes returned by [Validate].
const (
	NoteUnavailable = "Validation unavailable."
	NoteClose       = "Close to the model."
	NoteNotBad      = "Not bad, try again."
	NoteKeepTrying  = "Try to match the model more closely."
)

// Validate compares the durations of a reference recording and an attempt.
//
// This is a coarse length heuristic, not acoustic validation: it only
// measures how close the attempt's duration is to the model's, as
// score = max(0, 1 - |1 - attempt/reference|). Waveform and phonetic content
// are never inspected.
//
// A zero or missing duration on either side yields a nil score with
// [NoteUnavailable]; that is an expected outcome, not an error.
func Validate(referenceMs, attemptMs int64) Verdict {
	if referenceMs <= 0 || attemptMs <= 0 {
		return Verdict{Note: NoteUnavailable}
	}

	ratio := float64(attemptMs) / float64(referenceMs)
	distance := math.Abs(1 - ratio)
	score := math.Max(0, 1-distance)

	v := Verdict{Score: &score}
	switch {
	case score >= 0.85:
		v.Note = NoteClose
	case score >= 0.65:
		v.Note = NoteNotBad
	default:
		v.Note = NoteKeepTrying
	}
	return v
}
