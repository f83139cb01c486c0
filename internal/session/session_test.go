package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/srg/blecon/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	s := New(codec.Hex)

	assert.Equal(t, codec.Hex, s.Format())
	assert.Equal(t, DefaultTimeout, s.Timeout())
	assert.Equal(t, 0, s.ExitCode())
	assert.NotNil(t, s.Tree)
	assert.NotNil(t, s.Waiter())
}

func TestSetTimeout(t *testing.T) {
	s := New(codec.Text)

	require.NoError(t, s.SetTimeout(10*time.Second))
	assert.Equal(t, 10*time.Second, s.Timeout())

	assert.Error(t, s.SetTimeout(0))
	assert.Error(t, s.SetTimeout(60*time.Second))
	assert.Equal(t, 10*time.Second, s.Timeout(), "a rejected timeout MUST NOT change the value")
}

func TestCount(t *testing.T) {
	assert.Equal(t, 0, Count(nil))
	assert.Equal(t, 1, Count(errors.New("x")))
	assert.Equal(t, 1, Count(fmt.Errorf("wrapped: %w", errors.New("x"))))
	assert.Equal(t, 2, Count(errors.Join(errors.New("a"), errors.New("b"))))
	assert.Equal(t, 3, Count(errors.Join(errors.New("a"), errors.Join(errors.New("b"), errors.New("c")))))
}

func TestExitCode(t *testing.T) {
	t.Run("accumulates error units", func(t *testing.T) {
		s := New(codec.Text)
		assert.Equal(t, 0, s.Record(nil))
		assert.Equal(t, 1, s.Record(errors.New("read failed")))
		assert.Equal(t, 2, s.Record(errors.Join(errors.New("a"), errors.New("b"))))
		assert.Equal(t, 3, s.ExitCode())
	})

	t.Run("retry timeout takes precedence", func(t *testing.T) {
		s := New(codec.Text)
		s.Record(errors.New("read failed"))
		s.Record(fmt.Errorf("wrrr: %w", ErrRetryTimeout))
		assert.Equal(t, ExitRetryTimeout, s.ExitCode(), "a retry timeout MUST be reported distinctly")
		assert.Equal(t, 2, s.Errors())
	})

	t.Run("ordinary errors stay below the timeout code", func(t *testing.T) {
		s := New(codec.Text)
		for i := 0; i < 300; i++ {
			s.Record(errors.New("x"))
		}
		assert.Equal(t, ExitRetryTimeout-1, s.ExitCode())
	})
}

func TestWaiter_Signal(t *testing.T) {
	w := NewWaiter()
	result := make(chan WaitResult, 1)

	go func() {
		r, err := w.Wait(context.Background(), WaitNotify, time.Second)
		assert.NoError(t, err)
		result <- r
	}()

	require.Eventually(t, w.Busy, time.Second, time.Millisecond)
	assert.True(t, w.Signal(), "signal MUST release the outstanding wait")
	assert.Equal(t, Signaled, <-result)
	assert.False(t, w.Signal(), "a second signal MUST find nothing to release")
	assert.False(t, w.Busy())
}

func TestWaiter_SignalDoesNotEndDelay(t *testing.T) {
	w := NewWaiter()
	result := make(chan WaitResult, 1)

	go func() {
		r, _ := w.Wait(context.Background(), WaitDelay, 50*time.Millisecond)
		result <- r
	}()

	require.Eventually(t, w.Busy, time.Second, time.Millisecond)
	assert.False(t, w.Signal(), "notifications MUST NOT cut a delay short")
	assert.Equal(t, Elapsed, <-result)
}

func TestWaiter_Cancel(t *testing.T) {
	for _, kind := range []WaitKind{WaitNotify, WaitDelay} {
		w := NewWaiter()
		result := make(chan WaitResult, 1)

		go func() {
			r, _ := w.Wait(context.Background(), kind, time.Minute)
			result <- r
		}()

		require.Eventually(t, w.Busy, time.Second, time.Millisecond)
		assert.True(t, w.Cancel())
		assert.Equal(t, Cancelled, <-result)
	}

	assert.False(t, NewWaiter().Cancel(), "cancel with nothing outstanding MUST report false")
}

func TestWaiter_ContextAndTimeout(t *testing.T) {
	w := NewWaiter()

	r, err := w.Wait(context.Background(), WaitNotify, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, Elapsed, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err = w.Wait(ctx, WaitNotify, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, r)
}

func TestWaiter_SingleSlot(t *testing.T) {
	w := NewWaiter()
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = w.Wait(context.Background(), WaitDelay, time.Minute)
	}()

	require.Eventually(t, w.Busy, time.Second, time.Millisecond)
	_, err := w.Wait(context.Background(), WaitNotify, time.Second)
	assert.ErrorIs(t, err, ErrWaitBusy, "only one wait MAY be outstanding")

	w.Cancel()
	<-done
}
