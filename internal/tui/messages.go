package tui

import "github.com/nishant160406/soft-skill-ai-coach/internal/domain"

// sessionMsg carries the bridge state after one or more controller callbacks.
type sessionMsg struct {
	state sessionState
}

// startedMsg reports whether Start claimed the microphone.
type startedMsg struct {
	started bool
}

// stoppedMsg carries the transcript returned by Stop.
type stoppedMsg struct {
	text string
}

type submittedMsg struct {
	result domain.QuestionResult
	err    error
}

type playedMsg struct {
	err error
}

// Key bindings.
const (
	keyQuit   = "q"
	keyCtrlC  = "ctrl+c"
	keyRecord = " "
	keySubmit = "enter"
	keyClear  = "c"
	keyNext   = "n"
	keyPlay   = "p"
)
