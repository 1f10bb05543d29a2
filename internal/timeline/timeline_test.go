package timeline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDynamicDurationIsAlwaysInfinite(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	tl := New(clock)
	tl.SetStatic(false)
	tl.SetDuration(42) // a finite value must still be overridden for dynamic

	assert.True(t, math.IsInf(tl.GetDuration(), 1))
}

func TestStaticDurationIsFinite(t *testing.T) {
	tl := New(NewFakeClock(time.Unix(0, 0)))
	tl.SetStatic(true)
	tl.SetDuration(10)
	assert.Equal(t, 10.0, tl.GetDuration())
}

// A dynamic presentation with a 30s availability window and 15s max segment
// duration: the seek range should slide forward as the clock advances and
// never expose a segment before it could plausibly have been published.
func TestSeekRangeSlidesForward(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	tl := New(clock)
	tl.SetStatic(false)
	tl.SetAvailabilityStart(time.Unix(0, 0))
	tl.SetSegmentAvailabilityDuration(30)
	tl.SetMaxSegmentDuration(15)
	tl.SetDuration(math.Inf(1))

	// At t=0, nothing has elapsed: availability start/end both clamp to 0.
	assert.Equal(t, 0.0, tl.GetSegmentAvailabilityStart())
	assert.Equal(t, 0.0, tl.GetSegmentAvailabilityEnd())

	clock.Advance(16 * time.Second)
	assert.Equal(t, 0.0, tl.GetSegmentAvailabilityStart())
	assert.InDelta(t, 1.0, tl.GetSegmentAvailabilityEnd(), 0.001)

	clock.Advance(20 * time.Second) // now at t=36s
	assert.InDelta(t, 6.0, tl.GetSegmentAvailabilityStart(), 0.001)
	assert.InDelta(t, 21.0, tl.GetSegmentAvailabilityEnd(), 0.001)
}

func TestSeekRangeEndAppliesPresentationDelay(t *testing.T) {
	clock := NewFakeClock(time.Unix(100, 0))
	tl := New(clock)
	tl.SetStatic(false)
	tl.SetAvailabilityStart(time.Unix(0, 0))
	tl.SetSegmentAvailabilityDuration(100)
	tl.SetMaxSegmentDuration(0)
	tl.SetDelay(10)
	tl.SetDuration(math.Inf(1))

	assert.InDelta(t, 90.0, tl.GetSeekRangeEnd(), 0.001)
}

func TestClockOffsetShiftsElapsed(t *testing.T) {
	clock := NewFakeClock(time.Unix(100, 0))
	tl := New(clock)
	tl.SetStatic(false)
	tl.SetAvailabilityStart(time.Unix(0, 0))
	tl.SetSegmentAvailabilityDuration(1000)
	tl.SetDuration(math.Inf(1))

	tl.SetClockOffset(10 * time.Second) // local clock is 10s ahead of server
	assert.InDelta(t, 90.0, tl.GetSegmentAvailabilityEnd(), 0.001)
}

func TestIsInProgress(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	tl := New(clock)
	tl.SetStatic(true)
	tl.SetAvailabilityStart(time.Unix(0, 0))
	tl.SetDuration(5000) // ends at t=5000, we're at t=1000: still in progress
	assert.True(t, tl.IsInProgress())

	tl2 := New(clock)
	tl2.SetStatic(true)
	tl2.SetAvailabilityStart(time.Unix(0, 0))
	tl2.SetDuration(10) // finished long ago
	assert.False(t, tl2.IsInProgress())

	tl3 := New(clock)
	tl3.SetStatic(false)
	assert.False(t, tl3.IsInProgress())
}
