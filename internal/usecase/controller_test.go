package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

type controllerFixture struct {
	controller *SessionController
	handle     *fakeHandle
	recognizer *fakeRecognizer
	devices    *fakeDevices
	clock      *manualClock
	listener   *recordingListener
}

func newControllerFixture(t *testing.T, cfg Config) *controllerFixture {
	t.Helper()

	f := &controllerFixture{
		handle:   newFakeHandle(),
		devices:  &fakeDevices{binValue: 64},
		clock:    newManualClock(),
		listener: &recordingListener{},
	}
	f.recognizer = &fakeRecognizer{supported: true, handle: f.handle}
	if cfg.Recognition.RestartRetryDelay == 0 {
		cfg.Recognition.RestartRetryDelay = 5 * time.Millisecond
	}
	if cfg.Recognition.StartRetryDelay == 0 {
		cfg.Recognition.StartRetryDelay = 5 * time.Millisecond
	}
	f.controller = NewSessionController(f.recognizer, f.devices, f.clock, cfg, nil)
	f.controller.SetListener(f.listener)
	return f
}

func (f *controllerFixture) committed() string {
	return f.controller.Snapshot().CommittedText
}

func (f *controllerFixture) interim() string {
	return f.controller.Snapshot().InterimText
}

func TestSessionControllerStartStopFlushesInterim(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "en-US") {
		t.Fatalf("expected start to succeed")
	}

	f.handle.result(0, final("hello", 0), interim("wor", 1))
	waitFor(t, "first result", func() bool { return f.committed() == "hello" && f.interim() == "wor" })

	f.handle.result(1, interim("world", 1))
	waitFor(t, "interim update", func() bool { return f.interim() == "world" })

	if got := f.controller.Stop(); got != "hello world" {
		t.Fatalf("unexpected final text: %q", got)
	}

	snapshot := f.controller.Snapshot()
	if snapshot.Status != domain.StatusIdle || snapshot.InterimText != "" || snapshot.VolumeLevel != 0 {
		t.Fatalf("unexpected snapshot after stop: %+v", snapshot)
	}
	if snapshot.CommittedText != "hello world" {
		t.Fatalf("unexpected committed text: %q", snapshot.CommittedText)
	}

	want := []domain.SessionStatus{domain.StatusStarting, domain.StatusRecording, domain.StatusStopping, domain.StatusIdle}
	if got := f.listener.snapshotStatuses(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected status transitions: %v", got)
	}
	if got := f.listener.snapshotFinished(); !reflect.DeepEqual(got, []string{"hello world"}) {
		t.Fatalf("unexpected finished notifications: %v", got)
	}
}

func TestSessionControllerStopReleasesResources(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}
	if f.devices.openTracks() == 0 || f.devices.openAnalysers() != 1 {
		t.Fatalf("expected live stream and analyser while recording")
	}

	f.controller.Stop()

	if open := f.devices.openTracks(); open != 0 {
		t.Fatalf("expected zero open tracks, got %d", open)
	}
	if open := f.devices.openAnalysers(); open != 0 {
		t.Fatalf("expected zero open analysers, got %d", open)
	}
	if _, _, _, closes := f.handle.counts(); closes == 0 {
		t.Fatalf("expected recognizer handle to be closed")
	}
}

func TestSessionControllerPassesConfiguredConstraints(t *testing.T) {
	t.Parallel()

	cases := []ports.CaptureConstraints{
		{},
		{EchoCancellation: true, NoiseSuppression: false, AutoGainControl: true},
	}
	for _, want := range cases {
		f := newControllerFixture(t, Config{Volume: VolumeConfig{Constraints: want}})
		if !f.controller.Start(context.Background(), "en-US") {
			t.Fatalf("expected start to succeed")
		}
		waitFor(t, "microphone request", func() bool {
			f.devices.mu.Lock()
			defer f.devices.mu.Unlock()
			return len(f.devices.constraints) == 1
		})
		f.controller.Stop()

		f.devices.mu.Lock()
		got := f.devices.constraints[0]
		f.devices.mu.Unlock()
		if got != want {
			t.Fatalf("expected constraints %+v, got %+v", want, got)
		}
	}
}

func TestSessionControllerChecksRecognizerOnce(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "en-US") {
		t.Fatalf("expected start to succeed")
	}
	f.controller.Stop()
	if !f.controller.Supported() {
		t.Fatalf("expected controller to report support")
	}

	f.recognizer.mu.Lock()
	defer f.recognizer.mu.Unlock()
	if f.recognizer.checks != 1 {
		t.Fatalf("expected a single capability check, got %d", f.recognizer.checks)
	}
}

func TestSessionControllerStopWhenIdleIsNoop(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if got := f.controller.Stop(); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
	if got := f.controller.Stop(); got != "" {
		t.Fatalf("expected empty text on repeated stop, got %q", got)
	}
	if f.listener.eventCount() != 0 {
		t.Fatalf("expected no listener events for idle stop")
	}
	if f.controller.Snapshot().Status != domain.StatusIdle {
		t.Fatalf("expected idle status")
	}
}

func TestSessionControllerStartWhileRecordingIsRejected(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected first start to succeed")
	}
	f.handle.result(0, final("keep", 0), interim("this", 1))
	waitFor(t, "result", func() bool { return f.interim() == "this" })

	if f.controller.Start(context.Background(), "") {
		t.Fatalf("expected second start to be rejected")
	}
	if got := f.devices.acquired(); got != 1 {
		t.Fatalf("expected a single microphone acquisition, got %d", got)
	}
	if f.committed() != "keep" || f.interim() != "this" {
		t.Fatalf("second start changed transcript: %q / %q", f.committed(), f.interim())
	}
	if starts, _, _, _ := f.handle.counts(); starts != 1 {
		t.Fatalf("expected one recognizer start, got %d", starts)
	}
}

func TestSessionControllerCommitsFinalsInOrderWithoutDuplicates(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}

	f.handle.result(0, final("a", 0), interim("b", 1))
	f.handle.result(1, interim("b c", 1))
	f.handle.result(1, final("b c", 1), interim("d", 2))
	f.handle.result(0, final("a", 0), final("b c", 1), final("d", 2))
	f.handle.result(3, interim("e", 3))

	waitFor(t, "ordered results", func() bool { return f.interim() == "e" })
	if got := f.committed(); got != "a b c d" {
		t.Fatalf("unexpected committed text: %q", got)
	}
}

func TestSessionControllerAbsorbsTransientErrors(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}

	f.handle.fail(domain.RecognitionCodeNoSpeech)
	f.handle.fail(domain.RecognitionCodeAborted)
	f.handle.result(0, final("after", 0))
	waitFor(t, "result after errors", func() bool { return f.committed() == "after" })

	snapshot := f.controller.Snapshot()
	if snapshot.Status != domain.StatusRecording {
		t.Fatalf("unexpected status: %s", snapshot.Status)
	}
	if snapshot.LastError != nil {
		t.Fatalf("expected no last error, got %+v", snapshot.LastError)
	}
	if errs := f.listener.snapshotErrors(); len(errs) != 0 {
		t.Fatalf("expected no error notifications, got %+v", errs)
	}
}

func TestSessionControllerFatalErrorDoesNotStop(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}

	f.handle.fail(domain.RecognitionCodeNetwork)
	waitFor(t, "fatal error", func() bool { return f.controller.Snapshot().LastError != nil })

	snapshot := f.controller.Snapshot()
	if snapshot.LastError.Code != domain.ErrorCodeRecognition {
		t.Fatalf("unexpected error code: %s", snapshot.LastError.Code)
	}
	if snapshot.Status != domain.StatusRecording {
		t.Fatalf("fatal error must not stop the session, got %s", snapshot.Status)
	}
}

func TestSessionControllerNotAllowedSurfacesPermissionDenied(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}

	f.handle.fail(domain.RecognitionCodeNotAllowed)
	waitFor(t, "permission error", func() bool { return f.controller.Snapshot().LastError != nil })

	if code := f.controller.Snapshot().LastError.Code; code != domain.ErrorCodePermissionDenied {
		t.Fatalf("unexpected error code: %s", code)
	}
}

func TestSessionControllerUnsupported(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	f.recognizer.supported = false
	controller := NewSessionController(f.recognizer, f.devices, f.clock, Config{}, nil)

	if controller.Supported() {
		t.Fatalf("expected unsupported recognizer")
	}
	if controller.Start(context.Background(), "") {
		t.Fatalf("expected start to fail")
	}
	snapshot := controller.Snapshot()
	if snapshot.LastError == nil || snapshot.LastError.Code != domain.ErrorCodeUnsupported {
		t.Fatalf("expected unsupported error, got %+v", snapshot.LastError)
	}
	if f.devices.acquired() != 0 {
		t.Fatalf("unsupported start must not acquire the microphone")
	}
}

func TestSessionControllerRecognizerStartFailureTearsDownVolume(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	f.handle.setStartErrs(domain.ErrPermissionDenied)

	if f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to fail")
	}

	snapshot := f.controller.Snapshot()
	if snapshot.Status != domain.StatusIdle {
		t.Fatalf("expected idle after failed start, got %s", snapshot.Status)
	}
	if snapshot.LastError == nil || snapshot.LastError.Code != domain.ErrorCodePermissionDenied {
		t.Fatalf("expected permission error, got %+v", snapshot.LastError)
	}
	if open := f.devices.openTracks(); open != 0 {
		t.Fatalf("expected microphone to be released, %d tracks open", open)
	}
	if open := f.devices.openAnalysers(); open != 0 {
		t.Fatalf("expected analyser to be closed, %d open", open)
	}
	if _, _, _, closes := f.handle.counts(); closes == 0 {
		t.Fatalf("expected recognizer handle to be closed")
	}

	f.handle.setStartErrs()
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected retry after permission denial to succeed")
	}
}

func TestSessionControllerVolumeFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	f.devices.err = errNoDevice

	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected recognition to proceed without volume")
	}
	snapshot := f.controller.Snapshot()
	if snapshot.Status != domain.StatusRecording {
		t.Fatalf("unexpected status: %s", snapshot.Status)
	}
	if snapshot.LastError == nil || snapshot.LastError.Code != domain.ErrorCodeMicrophoneUnavailable {
		t.Fatalf("expected microphone error, got %+v", snapshot.LastError)
	}
}

func TestSessionControllerStopDuringStartingReleasesLateStream(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	f.devices.gate = make(chan struct{})

	started := make(chan bool, 1)
	go func() {
		started <- f.controller.Start(context.Background(), "")
	}()

	waitFor(t, "pending acquisition", func() bool { return f.devices.pendingCount() == 1 })
	if status := f.controller.Snapshot().Status; status != domain.StatusStarting {
		t.Fatalf("expected starting status, got %s", status)
	}

	f.controller.Stop()
	close(f.devices.gate)

	if <-started {
		t.Fatalf("expected cancelled start to report false")
	}
	if got := f.devices.acquired(); got != 1 {
		t.Fatalf("expected the late acquisition to resolve, got %d", got)
	}
	if open := f.devices.openTracks(); open != 0 {
		t.Fatalf("expected stale stream to be released, %d tracks open", open)
	}
	if starts, _, _, _ := f.handle.counts(); starts != 0 {
		t.Fatalf("expected recognizer never to start, got %d starts", starts)
	}
	if status := f.controller.Snapshot().Status; status != domain.StatusIdle {
		t.Fatalf("expected idle, got %s", status)
	}
}

func TestSessionControllerRestartsAfterStreamEnds(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}

	f.handle.result(0, final("one", 0))
	f.handle.end()
	waitFor(t, "restart", func() bool {
		starts, _, _, _ := f.handle.counts()
		return starts == 2
	})

	f.handle.result(0, final("two", 0))
	waitFor(t, "result after restart", func() bool { return f.committed() == "one two" })

	if f.controller.Snapshot().LastError != nil {
		t.Fatalf("unexpected error after restart")
	}
}

func TestSessionControllerRestartRecoversFromInvalidState(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}

	// The handle still reports running, so the first restart attempt is refused.
	f.handle.signals <- domain.RecognitionSignal{Kind: domain.SignalEnd}
	waitFor(t, "retry after abort", func() bool {
		starts, _, aborts, _ := f.handle.counts()
		return starts == 3 && aborts == 1
	})

	if f.controller.Snapshot().LastError != nil {
		t.Fatalf("expected recovery without error, got %+v", f.controller.Snapshot().LastError)
	}
}

func TestSessionControllerRestartFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}

	f.handle.setStartErrs(domain.ErrRecognizerInvalidState, errors.New("device gone"))
	f.handle.end()
	waitFor(t, "restart failure", func() bool { return f.controller.Snapshot().LastError != nil })

	snapshot := f.controller.Snapshot()
	if snapshot.LastError.Code != domain.ErrorCodeRecognition {
		t.Fatalf("unexpected error code: %s", snapshot.LastError.Code)
	}
	if snapshot.Status != domain.StatusRecording {
		t.Fatalf("session must stay recording until stopped, got %s", snapshot.Status)
	}

	f.handle.end()
	time.Sleep(20 * time.Millisecond)
	if starts, _, _, _ := f.handle.counts(); starts != 3 {
		t.Fatalf("expected no further restarts, got %d starts", starts)
	}

	f.controller.Stop()
	if f.controller.Snapshot().Status != domain.StatusIdle {
		t.Fatalf("expected idle after stop")
	}
}

func TestSessionControllerBoundsQuietRestarts(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{Recognition: RecognitionConfig{MaxQuietRestarts: 2}})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}

	for want := 2; want <= 3; want++ {
		f.handle.end()
		waitFor(t, "restart", func() bool {
			starts, _, _, _ := f.handle.counts()
			return starts == want
		})
	}
	f.handle.end()

	waitFor(t, "stream-ended error", func() bool { return len(f.listener.snapshotErrors()) == 1 })
	if starts, _, _, _ := f.handle.counts(); starts != 3 {
		t.Fatalf("expected two restarts, got %d starts", starts)
	}
	if msg := f.listener.snapshotErrors()[0].Message; msg == "" {
		t.Fatalf("expected error message")
	}
}

func TestSessionControllerClearOnlyWhileIdle(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}
	f.handle.result(0, final("keep", 0))
	waitFor(t, "result", func() bool { return f.committed() == "keep" })

	if f.controller.Clear() {
		t.Fatalf("clear must be rejected while recording")
	}
	if f.committed() != "keep" {
		t.Fatalf("rejected clear changed transcript")
	}

	f.controller.Stop()
	if !f.controller.Clear() {
		t.Fatalf("expected clear to succeed while idle")
	}
	if f.committed() != "" || f.interim() != "" {
		t.Fatalf("expected empty transcript after clear")
	}
}

func TestSessionControllerThrottlesVolumeSamples(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}

	base := time.Now()
	f.clock.frames <- base
	f.clock.frames <- base.Add(10 * time.Millisecond)
	f.clock.frames <- base.Add(40 * time.Millisecond)
	waitFor(t, "volume samples", func() bool { return len(f.listener.snapshotVolumes()) == 2 })
	time.Sleep(20 * time.Millisecond)

	volumes := f.listener.snapshotVolumes()
	if len(volumes) != 2 {
		t.Fatalf("expected two throttled samples, got %v", volumes)
	}
	for _, level := range volumes {
		if level != 0.5 {
			t.Fatalf("unexpected level %v", level)
		}
	}

	f.controller.Stop()
	if level := f.controller.Snapshot().VolumeLevel; level != 0 {
		t.Fatalf("expected volume to reset, got %v", level)
	}
}

func TestSessionControllerIgnoresCallbacksFromPreviousSession(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, Config{})
	if !f.controller.Start(context.Background(), "") {
		t.Fatalf("expected start to succeed")
	}
	stale := f.controller.epoch
	f.controller.Stop()

	f.controller.segmentsReceived(stale, "late", "later")
	f.controller.errorOccurred(stale, errors.New("late error"))
	f.controller.volumeSampled(stale, 1.5)

	snapshot := f.controller.Snapshot()
	if snapshot.CommittedText != "" || snapshot.InterimText != "" || snapshot.LastError != nil || snapshot.VolumeLevel != 0 {
		t.Fatalf("stale callbacks leaked into snapshot: %+v", snapshot)
	}
}
