package deepgram

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nishant160406/soft-skill-ai-coach/internal/ports"
)

// errSendFailed marks a provider stream that stopped accepting audio. The
// stream reports its own error, so callers may ignore it.
var errSendFailed = errors.New("failed to stream audio")

// pumpAudioChunks forwards capture PCM to the provider until either side ends.
func pumpAudioChunks(audio ports.AudioSession, stream ports.StreamingSession, chunkSize int) error {
	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				return fmt.Errorf("%w: %v", errSendFailed, sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("audio capture error: %w", err)
		}
	}
}

// waitForStream waits for the provider to flush, closing the session after timeout.
func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
