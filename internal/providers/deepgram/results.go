package deepgram

import (
	"slices"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

// resultList keeps the indexed results of one recognition run. A partial
// replaces the trailing interim slot; a final settles it.
type resultList struct {
	segments []domain.TranscriptSegment
}

func (l *resultList) apply(event domain.TranscriptEvent) domain.RecognitionEvent {
	index := len(l.segments)
	if index > 0 && !l.segments[index-1].IsFinal {
		index--
	}

	segment := domain.TranscriptSegment{
		Text:          event.Text,
		IsFinal:       event.Kind == domain.TranscriptKindFinal,
		SequenceIndex: index,
	}
	if index == len(l.segments) {
		l.segments = append(l.segments, segment)
	} else {
		l.segments[index] = segment
	}

	return domain.RecognitionEvent{
		ResultIndex: index,
		Segments:    slices.Clone(l.segments[index:]),
	}
}
