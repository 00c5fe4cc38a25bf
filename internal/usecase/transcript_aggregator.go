package usecase

import (
	"strings"

	"vectort/internal/domain"
)

// buildTranscript recomputes the transcript from the full cumulative result
// list. Recognizers redeliver every prior result on each tick, so the
// previous transcript is never extended.
func buildTranscript(results []domain.RecognitionResult, includeInterim bool) string {
	var finals, interims strings.Builder
	for _, result := range results {
		if result.IsFinal {
			finals.WriteString(result.Text())
			continue
		}
		if includeInterim {
			interims.WriteString(result.Text())
		}
	}
	return finals.String() + interims.String()
}

// resultAccumulator turns provider transcript events into the cumulative
// result list of a recognition session: finals are appended, the latest
// interim replaces the previous one.
type resultAccumulator struct {
	finals          []domain.RecognitionResult
	interim         *domain.RecognitionResult
	deliverInterims bool
}

func newResultAccumulator(deliverInterims bool) *resultAccumulator {
	return &resultAccumulator{deliverInterims: deliverInterims}
}

// Add records event and reports whether the result list changed.
func (a *resultAccumulator) Add(event domain.TranscriptEvent) bool {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return false
	}
	if event.Kind != domain.TranscriptKindFinal && !a.deliverInterims {
		return false
	}

	// Segments after the first carry their leading separator so that plain
	// concatenation yields readable text.
	if len(a.finals) > 0 {
		text = " " + text
	}

	result := domain.RecognitionResult{
		IsFinal: event.Kind == domain.TranscriptKindFinal,
		Alternatives: []domain.RecognitionAlternative{{
			Transcript: text,
			Confidence: event.Confidence,
		}},
	}

	if result.IsFinal {
		a.finals = append(a.finals, result)
		a.interim = nil
		return true
	}

	if a.interim != nil && a.interim.Text() == text {
		return false
	}
	a.interim = &result
	return true
}

// Results returns a copy of the cumulative list, finals first.
func (a *resultAccumulator) Results() []domain.RecognitionResult {
	out := make([]domain.RecognitionResult, 0, len(a.finals)+1)
	out = append(out, a.finals...)
	if a.interim != nil {
		out = append(out, *a.interim)
	}
	return out
}

// Empty reports whether nothing was recognized.
func (a *resultAccumulator) Empty() bool {
	return len(a.finals) == 0 && a.interim == nil
}
