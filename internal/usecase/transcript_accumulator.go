package usecase

import "strings"

// TranscriptAccumulator holds what the user has said so far in one session.
// It is not safe for concurrent use; the controller guards it with its own lock.
type TranscriptAccumulator struct {
	committed string
	interim   string
}

// AppendFinal appends finalized text to the committed transcript with a single
// separating space. It reports whether the committed text changed.
func (a *TranscriptAccumulator) AppendFinal(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	head := strings.TrimRight(a.committed, " ")
	if head == "" {
		a.committed = text
	} else {
		a.committed = head + " " + text
	}
	return true
}

// SetInterim replaces the pending interim text. It reports whether it changed.
func (a *TranscriptAccumulator) SetInterim(text string) bool {
	if a.interim == text {
		return false
	}
	a.interim = text
	return true
}

// FlushInterim moves pending interim text into the committed transcript and
// returns the merged result.
func (a *TranscriptAccumulator) FlushInterim() string {
	a.AppendFinal(a.interim)
	a.interim = ""
	return a.committed
}

// Reset clears committed and interim text.
func (a *TranscriptAccumulator) Reset() {
	a.committed = ""
	a.interim = ""
}

// Committed returns the committed transcript. Interim text is never merged in.
func (a *TranscriptAccumulator) Committed() string {
	return a.committed
}

// Interim returns the pending interim text for live preview.
func (a *TranscriptAccumulator) Interim() string {
	return a.interim
}

// joinSegments concatenates non-empty segment texts in order.
func joinSegments(parts []string) string {
	var builder strings.Builder
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(part)
	}
	return builder.String()
}
