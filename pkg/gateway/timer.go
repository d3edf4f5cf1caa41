// Copyright 2024-2026 Aiku AI

package gateway

import (
	"sync"
	"time"
)

// retryTimer is a cancellable single-shot timer. Scheduling supersedes any
// pending run, and a cancelled or superseded callback never fires, so the
// supervisor can treat "cancel on disconnect" as one guaranteed call instead
// of a nullable handle checked in several places.
type retryTimer struct {
	mu    sync.Mutex
	seq   uint64
	timer *time.Timer
}

// Schedule arranges fn to run once after d, replacing any pending run.
func (rt *retryTimer) Schedule(d time.Duration, fn func()) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.timer != nil {
		rt.timer.Stop()
	}
	rt.seq++
	seq := rt.seq
	rt.timer = time.AfterFunc(d, func() {
		rt.mu.Lock()
		stale := seq != rt.seq
		if !stale {
			rt.timer = nil
		}
		rt.mu.Unlock()
		if !stale {
			fn()
		}
	})
}

// Cancel drops any pending run.
func (rt *retryTimer) Cancel() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.timer != nil {
		rt.timer.Stop()
		rt.timer = nil
	}
	rt.seq++
}

// Pending reports whether a run is scheduled.
func (rt *retryTimer) Pending() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.timer != nil
}
