package dash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifestd/internal/manifest"
	"manifestd/internal/mpdmodel"
)

func TestRegionsForPeriodComputesPresentationTimes(t *testing.T) {
	period := &mpdmodel.Period{
		ID: "p0",
		EventStreams: []mpdmodel.EventStream{
			{
				SchemeIDURI: "urn:example:ad",
				Timescale:   1000,
				Events: []mpdmodel.Event{
					{ID: "e0", PresentationTime: 2000, Duration: 5000},
					{ID: "e1", PresentationTime: 9000, Duration: 5000},
				},
			},
		},
	}

	regions := regionsForPeriod(period, 10, 20, false, 0)
	require.Len(t, regions, 2)

	assert.Equal(t, "p0", regions[0].PeriodID)
	assert.Equal(t, "e0", regions[0].EventID)
	assert.Equal(t, 12.0, regions[0].StartTime)
	assert.Equal(t, 17.0, regions[0].EndTime)

	// e1 starts at 10+9=19 and ends at 24, within periodStart+periodDuration=30.
	assert.Equal(t, 19.0, regions[1].StartTime)
	assert.Equal(t, 24.0, regions[1].EndTime)
}

func TestRegionsForPeriodClipsToPeriodDuration(t *testing.T) {
	period := &mpdmodel.Period{
		ID: "p0",
		EventStreams: []mpdmodel.EventStream{
			{SchemeIDURI: "urn:example:ad", Timescale: 1, Events: []mpdmodel.Event{
				{ID: "e0", PresentationTime: 8, Duration: 10},
			}},
		},
	}

	regions := regionsForPeriod(period, 0, 10, false, 0)
	require.Len(t, regions, 1)
	assert.Equal(t, 8.0, regions[0].StartTime)
	assert.Equal(t, 10.0, regions[0].EndTime)
}

func TestRegionsForPeriodDropsRegionsBeforeAvailabilityWindow(t *testing.T) {
	period := &mpdmodel.Period{
		ID: "p0",
		EventStreams: []mpdmodel.EventStream{
			{SchemeIDURI: "urn:example:ad", Timescale: 1, Events: []mpdmodel.Event{
				{ID: "stale", PresentationTime: 0, Duration: 5},
				{ID: "fresh", PresentationTime: 100, Duration: 5},
			}},
		},
	}

	regions := regionsForPeriod(period, 0, 1000, true, 50)
	require.Len(t, regions, 1)
	assert.Equal(t, "fresh", regions[0].EventID)
}

func TestNewRegionsDeliversEachRegionOnce(t *testing.T) {
	delivered := make(map[regionKey]bool)
	first := []manifest.TimelineRegion{
		{SchemeIDURI: "urn:example:ad", PeriodID: "p0", EventID: "e0"},
	}

	added := newRegions(delivered, first)
	require.Len(t, added, 1)

	againSameRegions := []manifest.TimelineRegion{
		{SchemeIDURI: "urn:example:ad", PeriodID: "p0", EventID: "e0"},
		{SchemeIDURI: "urn:example:ad", PeriodID: "p0", EventID: "e1"},
	}
	added = newRegions(delivered, againSameRegions)
	require.Len(t, added, 1)
	assert.Equal(t, "e1", added[0].EventID)
}
