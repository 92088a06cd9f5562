package audio

import (
	"context"
	"time"
)

// DisplayClock approximates a display refresh callback with a ticker.
type DisplayClock struct {
	interval time.Duration
}

func NewDisplayClock(refreshRate int) *DisplayClock {
	if refreshRate <= 0 {
		refreshRate = 60
	}
	return &DisplayClock{interval: time.Second / time.Duration(refreshRate)}
}

// Frames ticks until ctx is done. Ticks are dropped when the reader falls behind.
func (c *DisplayClock) Frames(ctx context.Context) <-chan time.Time {
	frames := make(chan time.Time, 1)
	go func() {
		defer close(frames)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				select {
				case frames <- now:
				default:
				}
			}
		}
	}()
	return frames
}
