package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

type recordedSegments struct {
	mu       sync.Mutex
	deltas   []string
	interims []string
	errs     []error
}

func (r *recordedSegments) events() RecognitionEvents {
	return RecognitionEvents{
		Segments: func(delta string, interim string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.deltas = append(r.deltas, delta)
			r.interims = append(r.interims, interim)
		},
		Error: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recordedSegments) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deltas)
}

func TestRecognitionSessionStopBeforeStartIsSafe(t *testing.T) {
	t.Parallel()

	session := NewRecognitionSession(&fakeRecognizer{supported: true, handle: newFakeHandle()}, RecognitionConfig{}, RecognitionEvents{}, nil)
	session.Stop()
	session.Stop()

	if err := session.Start(context.Background(), "en-US"); !errors.Is(err, domain.ErrSessionCancelled) {
		t.Fatalf("expected cancelled start after stop, got %v", err)
	}
}

func TestRecognitionSessionUnsupported(t *testing.T) {
	t.Parallel()

	session := NewRecognitionSession(&fakeRecognizer{}, RecognitionConfig{}, RecognitionEvents{}, nil)
	if err := session.Start(context.Background(), "en-US"); !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestRecognitionSessionInitialStartRetriesAfterAbort(t *testing.T) {
	t.Parallel()

	handle := newFakeHandle()
	handle.setStartErrs(domain.ErrRecognizerInvalidState)
	session := NewRecognitionSession(
		&fakeRecognizer{supported: true, handle: handle},
		RecognitionConfig{StartRetryDelay: time.Millisecond},
		RecognitionEvents{},
		nil,
	)

	if err := session.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	starts, _, aborts, _ := handle.counts()
	if starts != 2 || aborts != 1 {
		t.Fatalf("expected abort then retry, got starts=%d aborts=%d", starts, aborts)
	}
	session.Stop()
}

func TestRecognitionSessionInitialStartFailsAfterSecondRefusal(t *testing.T) {
	t.Parallel()

	handle := newFakeHandle()
	handle.setStartErrs(domain.ErrRecognizerInvalidState, domain.ErrRecognizerInvalidState)
	session := NewRecognitionSession(
		&fakeRecognizer{supported: true, handle: handle},
		RecognitionConfig{StartRetryDelay: time.Millisecond},
		RecognitionEvents{},
		nil,
	)

	err := session.Start(context.Background(), "en-US")
	if !errors.Is(err, domain.ErrRecognizerInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
	if _, _, _, closes := handle.counts(); closes != 1 {
		t.Fatalf("expected handle to be released after failed start")
	}
}

func TestRecognitionSessionOpenFailure(t *testing.T) {
	t.Parallel()

	session := NewRecognitionSession(
		&fakeRecognizer{supported: true, err: domain.ErrPermissionDenied},
		RecognitionConfig{},
		RecognitionEvents{},
		nil,
	)
	if err := session.Start(context.Background(), "en-US"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestRecognitionSessionEventsAfterStopAreDropped(t *testing.T) {
	t.Parallel()

	handle := newFakeHandle()
	recorded := &recordedSegments{}
	session := NewRecognitionSession(&fakeRecognizer{supported: true, handle: handle}, RecognitionConfig{}, recorded.events(), nil)

	if err := session.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	handle.result(0, final("one", 0))
	waitFor(t, "first delta", func() bool { return recorded.count() == 1 })

	session.Stop()
	handle.result(1, final("two", 1))
	time.Sleep(10 * time.Millisecond)

	if got := recorded.count(); got != 1 {
		t.Fatalf("expected no deltas after stop, got %d", got)
	}
	if session.Listening() {
		t.Fatalf("expected listening=false after stop")
	}
	_, stops, _, closes := handle.counts()
	if stops != 1 || closes != 1 {
		t.Fatalf("expected stop and close once, got stops=%d closes=%d", stops, closes)
	}
}

func TestRecognitionSessionJoinsInterimSegments(t *testing.T) {
	t.Parallel()

	handle := newFakeHandle()
	recorded := &recordedSegments{}
	session := NewRecognitionSession(&fakeRecognizer{supported: true, handle: handle}, RecognitionConfig{}, recorded.events(), nil)
	if err := session.Start(context.Background(), "en-US"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer session.Stop()

	handle.result(0, interim("world", 2), final("hello", 0), final("there", 1))
	waitFor(t, "delta", func() bool { return recorded.count() == 1 })

	recorded.mu.Lock()
	defer recorded.mu.Unlock()
	if recorded.deltas[0] != "hello there" {
		t.Fatalf("unexpected delta %q", recorded.deltas[0])
	}
	if recorded.interims[0] != "world" {
		t.Fatalf("unexpected interim %q", recorded.interims[0])
	}
}
