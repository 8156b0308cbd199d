// Package coarsetime is a clock refreshed every 50ms, for hot paths that only
// need an approximate time. The refresh goroutine starts on first use.
package coarsetime

import (
	"sync"
	"sync/atomic"
	"time"
)

const tick = 50 * time.Millisecond

var (
	now   atomic.Int64
	start sync.Once
)

// Now returns the time of the last tick.
func Now() time.Time {
	start.Do(run)
	return time.Unix(0, now.Load())
}

// Since is time.Since against the coarse clock.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

func run() {
	now.Store(time.Now().UnixNano())

	ticker := time.NewTicker(tick)
	go func() {
		for t := range ticker.C {
			now.Store(t.UnixNano())
		}
	}()
}
