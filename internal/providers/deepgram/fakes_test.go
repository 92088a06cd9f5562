package deepgram

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

type fakeAudio struct {
	chunks   chan []byte
	stopped  chan struct{}
	stopOnce sync.Once
	finOnce  sync.Once
	readErr  error
}

func newFakeAudio(chunks ...[]byte) *fakeAudio {
	a := &fakeAudio{chunks: make(chan []byte, len(chunks)+16), stopped: make(chan struct{})}
	for _, chunk := range chunks {
		a.chunks <- chunk
	}
	return a
}

func (a *fakeAudio) finish() {
	a.finOnce.Do(func() { close(a.chunks) })
}

func (a *fakeAudio) Read(p []byte) (int, error) {
	if a.readErr != nil {
		return 0, a.readErr
	}
	select {
	case chunk, ok := <-a.chunks:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, chunk), nil
	case <-a.stopped:
		return 0, io.EOF
	}
}

func (a *fakeAudio) Close() error { return a.Stop() }

func (a *fakeAudio) Stop() error {
	a.stopOnce.Do(func() { close(a.stopped) })
	return nil
}

func (a *fakeAudio) isStopped() bool {
	select {
	case <-a.stopped:
		return true
	default:
		return false
	}
}

type fakeStream struct {
	mu      sync.Mutex
	sent    []byte
	sendErr error
	flush   []domain.TranscriptEvent

	events  chan domain.TranscriptEvent
	done    chan struct{}
	endOnce sync.Once
	err     error
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan domain.TranscriptEvent, 16), done: make(chan struct{})}
}

func (s *fakeStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, chunk...)
	return nil
}

// CloseSend flushes the queued final events and ends the stream.
func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	flush := s.flush
	s.flush = nil
	s.mu.Unlock()

	for _, event := range flush {
		s.events <- event
	}
	s.end(nil)
	return nil
}

func (s *fakeStream) Events() <-chan domain.TranscriptEvent { return s.events }

func (s *fakeStream) Wait() error {
	<-s.done
	return s.err
}

func (s *fakeStream) Close() error {
	s.end(nil)
	return s.Wait()
}

func (s *fakeStream) end(err error) {
	s.endOnce.Do(func() {
		s.err = err
		close(s.events)
		close(s.done)
	})
}

func (s *fakeStream) push(kind domain.TranscriptKind, text string) {
	s.events <- domain.TranscriptEvent{Kind: kind, Text: text}
}

func (s *fakeStream) sentBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.sent...)
}

type fakeProvider struct {
	mu         sync.Mutex
	configured bool
	startErr   error
	streams    []*fakeStream
	configs    []ports.StreamingConfig
}

func (p *fakeProvider) Configured() bool { return p.configured }

func (p *fakeProvider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return nil, p.startErr
	}
	stream := newFakeStream()
	go func() {
		select {
		case <-ctx.Done():
			stream.end(nil)
		case <-stream.done:
		}
	}()
	p.streams = append(p.streams, stream)
	p.configs = append(p.configs, cfg)
	return stream, nil
}

func (p *fakeProvider) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.streams) {
		t.Fatalf("expected stream %d, have %d", i, len(p.streams))
	}
	return p.streams[i]
}

type fakeCapture struct {
	mu        sync.Mutex
	available bool
	checks    int
	startErr  error
	readErr   error
	sessions  []*fakeAudio
}

func (c *fakeCapture) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks++
	return c.available
}

func (c *fakeCapture) Start(ctx context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return nil, c.startErr
	}
	audio := newFakeAudio()
	audio.readErr = c.readErr
	context.AfterFunc(ctx, func() { _ = audio.Stop() })
	c.sessions = append(c.sessions, audio)
	return audio, nil
}

func (c *fakeCapture) session(t *testing.T, i int) *fakeAudio {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.sessions) {
		t.Fatalf("expected capture session %d, have %d", i, len(c.sessions))
	}
	return c.sessions[i]
}

func nextSignal(t *testing.T, signals <-chan domain.RecognitionSignal) domain.RecognitionSignal {
	t.Helper()
	select {
	case signal, ok := <-signals:
		if !ok {
			t.Fatalf("signals closed")
		}
		return signal
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for signal")
	}
	return domain.RecognitionSignal{}
}

func expectNoSignal(t *testing.T, signals <-chan domain.RecognitionSignal) {
	t.Helper()
	select {
	case signal := <-signals:
		t.Fatalf("unexpected signal %+v", signal)
	case <-time.After(50 * time.Millisecond):
	}
}
