package playback

import (
	"context"
	"time"
)

// DefaultFrameInterval approximates a 60 Hz display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// Ticker is a cooperatively scheduled animation channel. Both the engine and
// the path sampler implement it.
type Ticker interface {
	Generation() uint64
	TickSession(gen uint64, now time.Time) bool
}

// FrameLoop drives session gen, ticking every interval until the session
// ends, is superseded, or ctx is cancelled. Read gen from t.Generation() in
// the goroutine that called Play or Resume, before starting the loop, so a
// later start cannot hand its session to this loop as well.
func FrameLoop(ctx context.Context, t Ticker, gen uint64, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !t.TickSession(gen, now) {
				return
			}
		}
	}
}
