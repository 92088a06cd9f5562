package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

// Controller is the voice capture façade driven by the screen.
type Controller interface {
	SetListener(listener ports.SessionListener)
	Start(ctx context.Context, languageTag string) bool
	Stop() string
	Clear() bool
	Snapshot() domain.Snapshot
	Supported() bool
}

type Practice interface {
	Submit(ctx context.Context, scope string, question string, answer string) (domain.QuestionResult, error)
}

type Questions interface {
	Random() string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

type Player interface {
	Play(ctx context.Context, path string) error
}

type Deps struct {
	Controller  Controller
	Practice    Practice
	Questions   Questions
	Synthesizer Synthesizer
	Player      Player
	Language    string
	// Scope keys the practice state of this terminal.
	Scope string
}

// Model is the practice screen.
type Model struct {
	ctx    context.Context
	deps   Deps
	bridge *Bridge

	question  string
	supported bool
	state     sessionState

	submitting bool
	result     *domain.QuestionResult
	playing    bool
	notice     string
	errText    string

	width int
}

func NewModel(ctx context.Context, deps Deps, bridge *Bridge) Model {
	if deps.Language == "" {
		deps.Language = "en-US"
	}
	return Model{
		ctx:       ctx,
		deps:      deps,
		bridge:    bridge,
		question:  deps.Questions.Random(),
		supported: deps.Controller.Supported(),
		state:     bridge.snapshot(),
	}
}

func (m Model) Init() tea.Cmd {
	return waitForSession(m.bridge)
}

// waitForSession blocks until the bridge reports a change.
func waitForSession(b *Bridge) tea.Cmd {
	return func() tea.Msg {
		<-b.notify
		return sessionMsg{state: b.snapshot()}
	}
}

func startCmd(ctx context.Context, c Controller, language string) tea.Cmd {
	return func() tea.Msg {
		return startedMsg{started: c.Start(ctx, language)}
	}
}

func stopCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		return stoppedMsg{text: c.Stop()}
	}
}

func submitCmd(ctx context.Context, p Practice, scope string, question string, answer string) tea.Cmd {
	return func() tea.Msg {
		result, err := p.Submit(ctx, scope, question, answer)
		return submittedMsg{result: result, err: err}
	}
}

func playCmd(ctx context.Context, s Synthesizer, p Player, text string) tea.Cmd {
	return func() tea.Msg {
		path, err := s.Synthesize(ctx, text)
		if err != nil {
			return playedMsg{err: err}
		}
		return playedMsg{err: p.Play(ctx, path)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case sessionMsg:
		m.state = msg.state
		return m, waitForSession(m.bridge)

	case startedMsg:
		if !msg.started && m.state.Err == nil {
			m.notice = "Recording is already in progress"
		}
		return m, nil

	case stoppedMsg:
		m.state.Committed = msg.text
		m.state.Interim = ""
		return m, nil

	case submittedMsg:
		m.submitting = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		result := msg.result
		m.result = &result
		m.errText = ""
		if result.Results.Fallback {
			m.notice = "Coaching service unavailable; showing estimated scores"
		}
		return m, nil

	case playedMsg:
		m.playing = false
		if msg.err != nil {
			m.errText = "Audio feedback failed: " + msg.err.Error()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""
	switch msg.String() {
	case keyQuit, keyCtrlC:
		m.deps.Controller.Stop()
		return m, tea.Quit

	case keyRecord:
		if !m.supported {
			m.notice = "Voice input is not supported on this device"
			return m, nil
		}
		if m.state.Status.Active() {
			return m, stopCmd(m.deps.Controller)
		}
		m.result = nil
		return m, startCmd(m.ctx, m.deps.Controller, m.deps.Language)

	case keySubmit:
		answer := strings.TrimSpace(m.state.Committed)
		if m.state.Status.Active() || m.submitting || answer == "" {
			return m, nil
		}
		m.submitting = true
		m.errText = ""
		return m, submitCmd(m.ctx, m.deps.Practice, m.deps.Scope, m.question, answer)

	case keyClear:
		if m.deps.Controller.Clear() {
			m.result = nil
		}
		return m, nil

	case keyNext:
		if m.state.Status.Active() {
			return m, nil
		}
		m.deps.Controller.Clear()
		m.question = m.deps.Questions.Random()
		m.result = nil
		m.errText = ""
		return m, nil

	case keyPlay:
		if m.result == nil || m.playing || m.deps.Synthesizer == nil || m.deps.Player == nil {
			return m, nil
		}
		m.playing = true
		return m, playCmd(m.ctx, m.deps.Synthesizer, m.deps.Player, m.result.Results.Feedback)
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Soft Skill Coach") + "\n\n")
	b.WriteString(questionStyle.Render(m.question) + "\n\n")
	b.WriteString(m.renderStatus() + "\n\n")
	b.WriteString(m.renderTranscript() + "\n")

	if m.state.Err != nil {
		b.WriteString("\n" + errorStyle.Render(m.state.Err.Message) + "\n")
	}
	if m.errText != "" {
		b.WriteString("\n" + errorStyle.Render(m.errText) + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + dimStyle.Render(m.notice) + "\n")
	}
	if m.submitting {
		b.WriteString("\n" + dimStyle.Render("Scoring your answer...") + "\n")
	}
	if m.result != nil {
		b.WriteString("\n" + m.renderResult() + "\n")
	}
	b.WriteString("\n" + m.renderFooter())
	return b.String()
}

func (m Model) renderStatus() string {
	if !m.supported {
		return errorStyle.Render("Voice input is not supported on this device.")
	}
	dot := idleDotStyle.Render("○")
	if m.state.Status == domain.StatusRecording {
		dot = recordingDotStyle.Render("●")
	}
	return fmt.Sprintf("%s %s  %s", dot, statusLabel(m.state.Status), renderLevelMeter(m.state.Volume))
}

func (m Model) renderTranscript() string {
	committed := m.state.Committed
	interim := m.state.Interim
	if committed == "" && interim == "" {
		return panelStyle.Render(dimStyle.Render("Press space and start speaking..."))
	}
	text := committed
	if interim != "" {
		if text != "" {
			text += " "
		}
		text += interimStyle.Render(interim)
	}
	style := panelStyle
	if m.width > 4 {
		style = style.Width(m.width - 4)
	}
	return style.Render(text)
}

func (m Model) renderResult() string {
	r := m.result.Results
	rows := []string{
		renderScore("Clarity", r.Clarity),
		renderScore("Confidence", r.Confidence),
		renderScore("Tone", r.Tone),
		renderScore("Overall", r.Overall()),
	}
	parts := []string{lipgloss.JoinVertical(lipgloss.Left, rows...)}
	if r.Feedback != "" {
		parts = append(parts, "", titleStyle.Render("Feedback"), r.Feedback)
	}
	if r.ImprovedAnswer != "" && r.ImprovedAnswer != m.result.Response {
		parts = append(parts, "", titleStyle.Render("Improved answer"), r.ImprovedAnswer)
	}
	if len(m.result.Fillers) > 0 {
		fillers := make([]string, 0, len(m.result.Fillers))
		for _, f := range m.result.Fillers {
			fillers = append(fillers, fmt.Sprintf("%q x%d", f.Phrase, f.Count))
		}
		parts = append(parts, "", dimStyle.Render("Fillers: "+strings.Join(fillers, ", ")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderFooter() string {
	keys := []struct{ key, desc string }{
		{"space", "record/stop"},
		{"enter", "submit"},
		{"c", "clear"},
		{"n", "next question"},
		{"p", "play feedback"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, footerKeyStyle.Render(k.key)+" "+footerDescStyle.Render(k.desc))
	}
	return strings.Join(parts, "  ")
}

func statusLabel(status domain.SessionStatus) string {
	switch status {
	case domain.StatusStarting:
		return "Starting..."
	case domain.StatusRecording:
		return "Recording"
	case domain.StatusStopping:
		return "Stopping..."
	default:
		return "Idle"
	}
}

// renderLevelMeter draws level (0..~2) on an eight cell bar.
func renderLevelMeter(level float64) string {
	const barLen = 8
	filled := min(int(level*barLen), barLen)

	var bar strings.Builder
	for i := range barLen {
		switch {
		case i >= filled:
			bar.WriteString(levelGrayStyle.Render("░"))
		case float64(i)/barLen > 0.6:
			bar.WriteString(levelYellowStyle.Render("█"))
		default:
			bar.WriteString(levelGreenStyle.Render("█"))
		}
	}
	return dimStyle.Render("MIC") + " " + bar.String()
}

// renderScore draws a 0..10 score as a twenty cell gauge.
func renderScore(label string, score float64) string {
	const width = 20
	filled := min(max(int(score/10*width+0.5), 0), width)
	style := levelGreenStyle
	if score < 6 {
		style = levelYellowStyle
	}
	gauge := style.Render(strings.Repeat("█", filled)) + levelGrayStyle.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %s %4.1f", scoreLabelStyle.Render(label), gauge, score)
}
