package touch

import (
	"context"
	"sync"
)

// Event is a touch position in screen pixels.
type Event struct {
	X, Y uint16
}

// Latch holds at most one pending touch event between the driver callback
// and the render loop. A newer touch overwrites an unconsumed one, so the
// loop always redraws the latest position.
type Latch struct {
	mu      sync.Mutex
	pending bool
	last    Event
	notify  chan struct{}
}

// NewLatch returns an empty Latch.
func NewLatch() *Latch {
	return &Latch{notify: make(chan struct{}, 1)}
}

// Post records a touch. It never blocks and is safe to call from the
// driver's watch goroutine.
func (l *Latch) Post(x, y uint16) {
	l.mu.Lock()
	l.last = Event{X: x, Y: y}
	l.pending = true
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Pending reports whether a touch is waiting to be consumed.
func (l *Latch) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Take consumes the pending touch, if any.
func (l *Latch) Take() (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pending {
		return Event{}, false
	}
	l.pending = false
	return l.last, true
}

// Wait blocks until a touch is pending or ctx is done, then consumes it.
func (l *Latch) Wait(ctx context.Context) (Event, error) {
	for {
		if ev, ok := l.Take(); ok {
			return ev, nil
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-l.notify:
		}
	}
}
