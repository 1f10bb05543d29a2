// Package timeline implements the presentation-timeline model (C1, §3.2,
// §4.2): duration, availability window, seek range, clock offset, and the
// static/dynamic distinction, with an injectable clock source so tests can
// drive availability-window math without wall-clock flakiness (§9).
package timeline

import (
	"math"
	"sync"
	"time"
)

// Clock supplies the current wall-clock time. Production uses RealClock;
// tests inject a fixed or steppable clock.
type Clock interface {
	Now() time.Time
}

// RealClock reads the process wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FakeClock is a manually advanced Clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the fake clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the fake clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Timeline is the presentation-timeline model shared by the DASH and HLS
// parsers. All setters/getters are safe for concurrent use since DASH live
// updates mutate it from the scheduler goroutine while playback code reads
// it from another.
type Timeline struct {
	mu sync.RWMutex

	clock Clock

	availabilityStart        time.Time
	duration                 float64 // seconds; math.Inf(1) for unbounded
	segmentAvailabilityDuration float64 // seconds; math.Inf(1) if unset (static)
	maxSegmentDuration       float64
	presentationDelay        float64
	clockOffset              time.Duration // player_wall - server_wall
	static                   bool
}

// New creates a Timeline. By default it is static with zero duration; call
// the setters once parsing has read the manifest's attributes.
func New(clock Clock) *Timeline {
	if clock == nil {
		clock = RealClock{}
	}
	return &Timeline{
		clock:                       clock,
		static:                      true,
		segmentAvailabilityDuration: math.Inf(1),
	}
}

func (t *Timeline) SetStatic(static bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.static = static
}

func (t *Timeline) SetDuration(d float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = d
}

func (t *Timeline) SetAvailabilityStart(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.availabilityStart = at
}

func (t *Timeline) SetSegmentAvailabilityDuration(w float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.segmentAvailabilityDuration = w
}

func (t *Timeline) SetMaxSegmentDuration(m float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxSegmentDuration = m
}

func (t *Timeline) SetDelay(p float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.presentationDelay = p
}

func (t *Timeline) SetClockOffset(offset time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clockOffset = offset
}

func (t *Timeline) ClockOffset() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.clockOffset
}

// GetDuration returns the presentation duration. Dynamic presentations
// always report +Inf regardless of how many periods have finite durations
// (§3.1 invariant).
func (t *Timeline) GetDuration() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.static {
		return math.Inf(1)
	}
	return t.duration
}

func (t *Timeline) IsLive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.static
}

// IsInProgress reports true for static, finite-duration presentations whose
// availabilityStart already lies in the past and whose availabilityStart +
// duration still lies in the future — a VOD asset still being ingested
// (§4.2).
func (t *Timeline) IsInProgress() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.static || math.IsInf(t.duration, 1) {
		return false
	}
	if t.availabilityStart.IsZero() {
		return false
	}
	now := t.clock.Now()
	if now.Before(t.availabilityStart) {
		return false
	}
	return now.Before(t.availabilityStart.Add(time.Duration(t.duration * float64(time.Second))))
}

// GetSegmentAvailabilityStart returns, for dynamic presentations, the
// earliest presentation time currently fetchable, clamped to
// [0, segmentAvailabilityEnd]; for static presentations it is always 0.
func (t *Timeline) GetSegmentAvailabilityStart() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.static {
		return 0
	}
	end := t.segmentAvailabilityEndLocked()
	elapsed := t.elapsedSecondsLocked()
	start := elapsed - t.segmentAvailabilityDuration
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}
	return start
}

// GetSegmentAvailabilityEnd returns, for dynamic presentations, the latest
// presentation time currently fetchable, clamped to duration; for static
// presentations it is the full duration.
func (t *Timeline) GetSegmentAvailabilityEnd() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.static {
		return t.duration
	}
	return t.segmentAvailabilityEndLocked()
}

func (t *Timeline) segmentAvailabilityEndLocked() float64 {
	end := t.elapsedSecondsLocked() - t.maxSegmentDuration
	if end < 0 {
		end = 0
	}
	if end > t.duration {
		end = t.duration
	}
	return end
}

func (t *Timeline) elapsedSecondsLocked() float64 {
	if t.availabilityStart.IsZero() {
		return 0
	}
	wallNow := t.clock.Now().Add(-t.clockOffset)
	elapsed := wallNow.Sub(t.availabilityStart).Seconds()
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// GetSeekRangeStart returns the earliest presentation time a player may
// seek to: the segment availability start (static presentations have no
// extra clamp here since start is already 0).
func (t *Timeline) GetSeekRangeStart() float64 {
	return t.GetSegmentAvailabilityStart()
}

// GetSeekRangeEnd returns segmentAvailabilityEnd - presentationDelay,
// clamped to >= segmentAvailabilityStart (§3.2 invariant).
func (t *Timeline) GetSeekRangeEnd() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	end := t.segmentAvailabilityEndOrDurationLocked() - t.presentationDelay
	start := t.segmentAvailabilityStartLocked()
	if end < start {
		end = start
	}
	return end
}

func (t *Timeline) segmentAvailabilityEndOrDurationLocked() float64 {
	if t.static {
		return t.duration
	}
	return t.segmentAvailabilityEndLocked()
}

func (t *Timeline) segmentAvailabilityStartLocked() float64 {
	if t.static {
		return 0
	}
	end := t.segmentAvailabilityEndLocked()
	elapsed := t.elapsedSecondsLocked()
	start := elapsed - t.segmentAvailabilityDuration
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}
	return start
}
