package tui

import (
	"sync"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

// sessionState is the latest view of the recording session.
type sessionState struct {
	Status    domain.SessionStatus
	Committed string
	Interim   string
	Volume    float64
	Err       *domain.SessionError
	// Finished counts completed sessions; Final holds the text of the last one.
	Finished int
	Final    string
}

// Bridge adapts controller callbacks to bubbletea messages. Callbacks only
// record the latest state and poke a one-slot channel, so bursts of updates
// coalesce into a single redraw.
type Bridge struct {
	mu     sync.Mutex
	state  sessionState
	notify chan struct{}
}

func NewBridge() *Bridge {
	return &Bridge{
		state:  sessionState{Status: domain.StatusIdle},
		notify: make(chan struct{}, 1),
	}
}

func (b *Bridge) StatusChanged(status domain.SessionStatus) {
	b.update(func(s *sessionState) {
		s.Status = status
		if status == domain.StatusStarting {
			s.Err = nil
		}
	})
}

func (b *Bridge) CommittedTextChanged(text string) {
	b.update(func(s *sessionState) { s.Committed = text })
}

func (b *Bridge) InterimTextChanged(text string) {
	b.update(func(s *sessionState) { s.Interim = text })
}

func (b *Bridge) VolumeChanged(level float64) {
	b.update(func(s *sessionState) { s.Volume = level })
}

func (b *Bridge) ErrorRaised(err domain.SessionError) {
	b.update(func(s *sessionState) { s.Err = &err })
}

func (b *Bridge) SessionFinished(text string) {
	b.update(func(s *sessionState) {
		s.Finished++
		s.Final = text
		s.Interim = ""
		s.Volume = 0
	})
}

func (b *Bridge) update(fn func(*sessionState)) {
	b.mu.Lock()
	fn(&b.state)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *Bridge) snapshot() sessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
