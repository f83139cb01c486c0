// Package session holds the state shared by console commands: the GATT tree,
// the display format, the connection timeout, the accumulated exit code and
// the wait slot used by "wait" and "delay".
package session

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/srg/blecon/internal/codec"
	"github.com/srg/blecon/internal/gatt"
)

const (
	DefaultTimeout = 3 * time.Second
	MinTimeout     = 1 * time.Second
	MaxTimeout     = 59 * time.Second

	// ExitRetryTimeout is the exit code reported once a retry read timed out.
	ExitRetryTimeout = 250
	maxErrorExit     = ExitRetryTimeout - 1
)

// ErrRetryTimeout is the outcome of a retry read that never produced a
// meaningful value.
var ErrRetryTimeout = errors.New("timeout: no meaningful value read")

// Session is owned by the command loop. Only the format is read from other
// goroutines.
type Session struct {
	Tree *gatt.Tree

	format       atomic.Int32
	timeout      time.Duration
	errors       int
	retryTimeout bool

	waiter *Waiter
}

// New creates a session with the default timeout and the given format.
func New(format codec.Format) *Session {
	s := &Session{
		Tree:    gatt.NewTree(),
		timeout: DefaultTimeout,
		waiter:  NewWaiter(),
	}
	s.format.Store(int32(format))
	return s
}

// Format returns the display format. Safe for concurrent use.
func (s *Session) Format() codec.Format {
	return codec.Format(s.format.Load())
}

// SetFormat changes the display format.
func (s *Session) SetFormat(f codec.Format) {
	s.format.Store(int32(f))
}

// Timeout returns the connection timeout.
func (s *Session) Timeout() time.Duration { return s.timeout }

// SetTimeout changes the connection timeout; it must be within 1..59 seconds.
func (s *Session) SetTimeout(d time.Duration) error {
	if d < MinTimeout || d > MaxTimeout {
		return fmt.Errorf("timeout must be between %d and %d seconds", int(MinTimeout.Seconds()), int(MaxTimeout.Seconds()))
	}
	s.timeout = d
	return nil
}

// Waiter returns the wait slot.
func (s *Session) Waiter() *Waiter { return s.waiter }

// Record folds the outcome of a command into the exit code and returns the
// number of error units it contributed.
func (s *Session) Record(err error) int {
	n := Count(err)
	s.errors += n
	if errors.Is(err, ErrRetryTimeout) {
		s.retryTimeout = true
	}
	return n
}

// Errors returns the number of error units recorded so far.
func (s *Session) Errors() int { return s.errors }

// ExitCode is ExitRetryTimeout once a retry read timed out, otherwise the
// number of recorded errors capped below it.
func (s *Session) ExitCode() int {
	if s.retryTimeout {
		return ExitRetryTimeout
	}
	if s.errors > maxErrorExit {
		return maxErrorExit
	}
	return s.errors
}

// Count returns the number of error units in err. Joined errors count each
// member.
func Count(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range joined.Unwrap() {
			n += Count(e)
		}
		return n
	}
	return 1
}
