package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Loop owns the tick lifecycle for the self-driven polling deployment
// mode, encapsulating the process-wide-timer pattern behind
// start/stop, overlap prevention, and a consecutive-error counter
// surfaced for health reporting, per spec.md §9 Design Notes.
type Loop struct {
	engine *Engine

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	consecutiveErrors atomic.Int64
	ticking           atomic.Bool
}

// NewLoop builds a Loop around e.
func NewLoop(e *Engine) *Loop {
	return &Loop{engine: e}
}

// Start begins ticking every e.TickInterval in a background goroutine.
// Calling Start on an already-running Loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})

	go l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)

	ticker := l.engine.Clock.NewTicker(l.engine.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			l.runOneTick(ctx)
		}
	}
}

// runOneTick skips the tick entirely if the previous one is still
// running, implementing the "skip, don't queue" overlap-prevention
// rule from spec.md §5.
func (l *Loop) runOneTick(ctx context.Context) {
	if !l.ticking.CompareAndSwap(false, true) {
		l.engine.Log.Warn().Msg("tick still running, skipping this interval")
		return
	}
	defer l.ticking.Store(false)

	_, err := l.engine.Tick(ctx)
	if err != nil {
		l.consecutiveErrors.Add(1)
		l.engine.Log.Error().Err(err).Int64("consecutive_errors", l.consecutiveErrors.Load()).Msg("tick failed")
		return
	}
	l.consecutiveErrors.Store(0)
}

// Stop signals the loop to finish any in-progress tick and then halt;
// no new ticks begin after Stop is called. It blocks until the
// background goroutine has exited.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	done := l.doneCh
	l.mu.Unlock()

	<-done
}

// ConsecutiveErrors reports the number of ticks that have failed in a
// row, used by the health endpoint.
func (l *Loop) ConsecutiveErrors() int64 {
	return l.consecutiveErrors.Load()
}
