package dash

import (
	"manifestd/internal/manifest"
	"manifestd/internal/mpdmodel"
)

// regionsForPeriod collects the §4.4.4 timed-event regions a Period's
// EventStream children describe, clipping each one to the Period's own
// duration (a region starting past the Period's end collapses to a
// zero-length region at that end). For a dynamic presentation, hasWindow is
// true and any region
// lying entirely before the current availability window (end < windowStart)
// is dropped — it scrolled out before a player could ever observe it.
func regionsForPeriod(period *mpdmodel.Period, periodStart, periodDuration float64, hasWindow bool, windowStart float64) []manifest.TimelineRegion {
	var regions []manifest.TimelineRegion
	for _, es := range period.EventStreams {
		timescale := es.Timescale
		if timescale == 0 {
			timescale = 1
		}
		for _, ev := range es.Events {
			start := periodStart + float64(ev.PresentationTime)/float64(timescale)
			end := start + float64(ev.Duration)/float64(timescale)
			if periodDuration > 0 {
				periodEnd := periodStart + periodDuration
				if start > periodEnd {
					start = periodEnd
				}
				if end > periodEnd {
					end = periodEnd
				}
			}
			if hasWindow && end < windowStart {
				continue
			}
			regions = append(regions, manifest.TimelineRegion{
				SchemeIDURI: es.SchemeIDURI,
				Value:       es.Value,
				PeriodID:    period.ID,
				EventID:     ev.ID,
				StartTime:   start,
				EndTime:     end,
			})
		}
	}
	return regions
}

// newRegions filters fresh against already-delivered so a Session's
// onTimelineRegionAdded fires exactly once per (scheme, period, event id)
// triple even though the same EventStream keeps reappearing on every
// subsequent MPD refresh until its Period scrolls out of the window.
func newRegions(delivered map[regionKey]bool, fresh []manifest.TimelineRegion) []manifest.TimelineRegion {
	var added []manifest.TimelineRegion
	for _, r := range fresh {
		k := regionKey{r.SchemeIDURI, r.PeriodID, r.EventID}
		if delivered[k] {
			continue
		}
		delivered[k] = true
		added = append(added, r)
	}
	return added
}

type regionKey struct {
	scheme   string
	periodID string
	eventID  string
}
