package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickAfterRunsOnce(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	done := make(chan struct{})

	s := New(func(ctx context.Context) (time.Duration, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		close(done)
		return 0, nil
	})

	s.TickAfter(5 * time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs)
}

func TestReentrantTickCoalesces(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	started := make(chan struct{})
	release := make(chan struct{})
	secondRun := make(chan struct{})

	var s *Scheduler
	s = New(func(ctx context.Context) (time.Duration, error) {
		mu.Lock()
		runs++
		n := runs
		mu.Unlock()
		if n == 1 {
			close(started)
			<-release
		} else {
			close(secondRun)
		}
		return 0, nil
	})

	s.TickNow()
	<-started // first callback is now running

	// Multiple re-entrant requests while running must coalesce into one
	// follow-up tick, not queue three.
	s.TickAfter(50 * time.Millisecond)
	s.TickAfter(5 * time.Millisecond) // smaller delay wins
	s.TickAfter(100 * time.Millisecond)

	close(release) // let the first callback finish

	select {
	case <-secondRun:
	case <-time.After(time.Second):
		t.Fatal("coalesced follow-up never ran")
	}

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, runs)
}

func TestStopPreventsArmedCallback(t *testing.T) {
	ran := false
	s := New(func(ctx context.Context) (time.Duration, error) {
		ran = true
		return 0, nil
	})

	s.TickAfter(20 * time.Millisecond)
	s.Stop()

	time.Sleep(40 * time.Millisecond)
	assert.False(t, ran)
	assert.Equal(t, StateStopped, s.State())
}

func TestStopCancelsRunningCallbackContext(t *testing.T) {
	cancelled := make(chan struct{})
	s := New(func(ctx context.Context) (time.Duration, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})

	s.TickNow()
	time.Sleep(5 * time.Millisecond) // let it reach StateRunning
	s.Stop()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running callback's context was never cancelled")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(func(ctx context.Context) (time.Duration, error) { return 0, nil })
	s.Stop()
	s.Stop()
	assert.Equal(t, StateStopped, s.State())
}

func TestNextDelayTakesTheLarger(t *testing.T) {
	assert.Equal(t, 5*time.Second, NextDelay(5*time.Second, 2*time.Second))
	assert.Equal(t, 8*time.Second, NextDelay(5*time.Second, 8*time.Second))
}
