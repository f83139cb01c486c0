package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// WaitKind distinguishes what an outstanding wait is waiting for.
type WaitKind int

const (
	WaitNotify WaitKind = iota // next notification
	WaitDelay                  // fixed delay
)

// WaitResult is how a wait ended.
type WaitResult int

const (
	Signaled  WaitResult = iota // a notification arrived
	Elapsed                     // the duration passed
	Cancelled                   // interrupted
)

func (r WaitResult) String() string {
	switch r {
	case Signaled:
		return "signaled"
	case Elapsed:
		return "elapsed"
	default:
		return "cancelled"
	}
}

// ErrWaitBusy is returned when a wait is started while another is outstanding.
var ErrWaitBusy = errors.New("another wait is already in progress")

type waitSlot struct {
	kind WaitKind
	done chan WaitResult
}

// Waiter is a single-slot wait shared by "wait" and "delay". Signal may be
// called from any goroutine.
type Waiter struct {
	mu     sync.Mutex
	active *waitSlot
}

// NewWaiter creates an idle waiter.
func NewWaiter() *Waiter {
	return &Waiter{}
}

// Wait blocks until d elapses, the wait is cancelled, ctx ends, or for
// WaitNotify a notification is signaled.
func (w *Waiter) Wait(ctx context.Context, kind WaitKind, d time.Duration) (WaitResult, error) {
	slot := &waitSlot{kind: kind, done: make(chan WaitResult, 1)}

	w.mu.Lock()
	if w.active != nil {
		w.mu.Unlock()
		return Cancelled, ErrWaitBusy
	}
	w.active = slot
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		if w.active == slot {
			w.active = nil
		}
		w.mu.Unlock()
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case r := <-slot.done:
		return r, nil
	case <-timer.C:
		return Elapsed, nil
	case <-ctx.Done():
		return Cancelled, nil
	}
}

// Signal releases an outstanding notification wait. It reports whether one
// was released.
func (w *Waiter) Signal() bool {
	return w.release(func(s *waitSlot) bool { return s.kind == WaitNotify }, Signaled)
}

// Cancel releases any outstanding wait. It reports whether one was released.
func (w *Waiter) Cancel() bool {
	return w.release(func(*waitSlot) bool { return true }, Cancelled)
}

// Busy reports whether a wait is outstanding.
func (w *Waiter) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active != nil
}

func (w *Waiter) release(match func(*waitSlot) bool, r WaitResult) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.active
	if s == nil || !match(s) {
		return false
	}
	w.active = nil
	s.done <- r
	return true
}
