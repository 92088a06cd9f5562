package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeRecognizer struct {
	mu        sync.Mutex
	supported bool
	checks    int
	handle    *fakeHandle
	err       error
}

func (f *fakeRecognizer) Supported() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.supported
}

func (f *fakeRecognizer) NewHandle(_ context.Context) (ports.RecognitionHandle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.handle, nil
}

type fakeHandle struct {
	mu        sync.Mutex
	signals   chan domain.RecognitionSignal
	running   bool
	startErrs []error
	starts    int
	stops     int
	aborts    int
	closes    int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{signals: make(chan domain.RecognitionSignal, 32)}
}

func (h *fakeHandle) Start(_ string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	if len(h.startErrs) > 0 {
		err := h.startErrs[0]
		h.startErrs = h.startErrs[1:]
		if err != nil {
			return err
		}
	}
	if h.running {
		return domain.ErrRecognizerInvalidState
	}
	h.running = true
	return nil
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	h.running = false
}

func (h *fakeHandle) Abort() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aborts++
	h.running = false
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

func (h *fakeHandle) Signals() <-chan domain.RecognitionSignal { return h.signals }

func (h *fakeHandle) setStartErrs(errs ...error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startErrs = errs
}

func (h *fakeHandle) result(resultIndex int, segments ...domain.TranscriptSegment) {
	h.signals <- domain.RecognitionSignal{
		Kind:  domain.SignalResult,
		Event: domain.RecognitionEvent{ResultIndex: resultIndex, Segments: segments},
	}
}

func (h *fakeHandle) fail(code string) {
	h.signals <- domain.RecognitionSignal{Kind: domain.SignalError, Code: code, Message: code}
}

// end simulates the platform ending the native stream on its own.
func (h *fakeHandle) end() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
	h.signals <- domain.RecognitionSignal{Kind: domain.SignalEnd}
}

func (h *fakeHandle) counts() (starts, stops, aborts, closes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.starts, h.stops, h.aborts, h.closes
}

func final(text string, index int) domain.TranscriptSegment {
	return domain.TranscriptSegment{Text: text, IsFinal: true, SequenceIndex: index}
}

func interim(text string, index int) domain.TranscriptSegment {
	return domain.TranscriptSegment{Text: text, SequenceIndex: index}
}

type fakeDevices struct {
	mu           sync.Mutex
	err          error
	analyserErr  error
	gate         chan struct{}
	pending      int
	acquisitions int
	streams      []*fakeStream
	analysers    []*fakeAnalyser
	binValue     byte
	constraints  []ports.CaptureConstraints
}

func (d *fakeDevices) GetUserMedia(_ context.Context, constraints ports.CaptureConstraints) (ports.MediaStream, error) {
	d.mu.Lock()
	d.constraints = append(d.constraints, constraints)
	d.pending++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending--
	if d.err != nil {
		return nil, d.err
	}
	d.acquisitions++
	stream := &fakeStream{tracks: []*fakeTrack{{}, {}}}
	d.streams = append(d.streams, stream)
	return stream, nil
}

func (d *fakeDevices) NewAnalyser(_ ports.MediaStream, fftSize int) (ports.Analyser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.analyserErr != nil {
		return nil, d.analyserErr
	}
	analyser := &fakeAnalyser{bins: fftSize / 2, value: d.binValue}
	d.analysers = append(d.analysers, analyser)
	return analyser, nil
}

func (d *fakeDevices) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *fakeDevices) acquired() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquisitions
}

func (d *fakeDevices) openTracks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	open := 0
	for _, stream := range d.streams {
		for _, track := range stream.tracks {
			if !track.isStopped() {
				open++
			}
		}
	}
	return open
}

func (d *fakeDevices) openAnalysers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	open := 0
	for _, analyser := range d.analysers {
		if !analyser.isClosed() {
			open++
		}
	}
	return open
}

type fakeStream struct {
	tracks []*fakeTrack
}

func (s *fakeStream) Tracks() []ports.MediaTrack {
	out := make([]ports.MediaTrack, 0, len(s.tracks))
	for _, track := range s.tracks {
		out = append(out, track)
	}
	return out
}

type fakeTrack struct {
	mu      sync.Mutex
	stopped bool
	err     error
}

func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	return t.err
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeAnalyser struct {
	mu       sync.Mutex
	bins     int
	value    byte
	closed   bool
	closeErr error
}

func (a *fakeAnalyser) FrequencyBinCount() int { return a.bins }

func (a *fakeAnalyser) ByteFrequencyData(dst []byte) {
	for i := range dst {
		dst[i] = a.value
	}
}

func (a *fakeAnalyser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return a.closeErr
}

func (a *fakeAnalyser) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

type manualClock struct {
	frames chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{frames: make(chan time.Time, 16)}
}

func (c *manualClock) Frames(_ context.Context) <-chan time.Time { return c.frames }

type recordingListener struct {
	mu        sync.Mutex
	statuses  []domain.SessionStatus
	committed []string
	interims  []string
	volumes   []float64
	errs      []domain.SessionError
	finished  []string
}

func (l *recordingListener) StatusChanged(status domain.SessionStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, status)
}

func (l *recordingListener) CommittedTextChanged(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.committed = append(l.committed, text)
}

func (l *recordingListener) InterimTextChanged(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interims = append(l.interims, text)
}

func (l *recordingListener) VolumeChanged(level float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.volumes = append(l.volumes, level)
}

func (l *recordingListener) ErrorRaised(err domain.SessionError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *recordingListener) SessionFinished(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = append(l.finished, text)
}

func (l *recordingListener) snapshotStatuses() []domain.SessionStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.SessionStatus(nil), l.statuses...)
}

func (l *recordingListener) snapshotErrors() []domain.SessionError {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.SessionError(nil), l.errs...)
}

func (l *recordingListener) snapshotVolumes() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]float64(nil), l.volumes...)
}

func (l *recordingListener) snapshotFinished() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.finished...)
}

func (l *recordingListener) eventCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.statuses) + len(l.committed) + len(l.interims) + len(l.volumes) + len(l.errs) + len(l.finished)
}

var errNoDevice = errors.New("no capture device")
