package dash

import (
	"context"
	"math"
	"time"

	"manifestd/internal/manifest"
	"manifestd/internal/manifesterrors"
	"manifestd/internal/mpdmodel"
	"manifestd/internal/netfetch"
	"manifestd/internal/timeline"
	"manifestd/internal/urlresolve"
)

// BuildOptions configures BuildManifest's fetching behavior.
type BuildOptions struct {
	Engine netfetch.Engine
	// ClockSyncURI is a last-resort UTC-timing source (HEAD + Date header),
	// tried only after every MPD-declared UTCTiming element has failed
	// (§4.4.3).
	ClockSyncURI string
}

// BuildManifest parses an MPD and assembles the shared manifest.Manifest
// model: one manifest.Period per <Period> element, chained start-to-start
// across the presentation (§4.4.2), each holding one manifest.Variant per
// video Representation, each carrying its own video Stream plus the
// highest-bandwidth Stream from every sibling audio/text AdaptationSet in
// that period. DASH does not define an explicit cross-AdaptationSet pairing
// the way HLS's EXT-X-MEDIA groups do, so this mirrors the common
// single-rendition-per-type player behavior; an audio/text-only period (no
// video AdaptationSet) instead produces one Variant per Representation of
// its single AdaptationSet.
func BuildManifest(ctx context.Context, mpdURI string, mpdData []byte, opts BuildOptions) (*manifest.Manifest, error) {
	mpd, err := mpdmodel.ParseMPD(mpdData)
	if err != nil {
		return nil, err
	}
	if len(mpd.Periods) == 0 {
		return nil, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryManifest,
			manifesterrors.CodeManifestInvalid, nil, "MPD has no Period elements")
	}

	tl := timeline.New(nil)
	dynamic := mpd.IsDynamic()
	tl.SetStatic(!dynamic)

	if mpd.AvailabilityStartTime != "" {
		t, err := mpdmodel.ParseDateTime(mpd.AvailabilityStartTime)
		if err != nil {
			return nil, err
		}
		tl.SetAvailabilityStart(t)
	}
	if dynamic {
		tl.SetDuration(math.Inf(1))
	}
	setSecondsFromISODuration(mpd.MediaPresentationDuration, tl.SetDuration)
	setSecondsFromISODuration(mpd.TimeShiftBufferDepth, tl.SetSegmentAvailabilityDuration)
	setSecondsFromISODuration(mpd.MaxSegmentDuration, tl.SetMaxSegmentDuration)
	setSecondsFromISODuration(mpd.SuggestedPresentationDelay, tl.SetDelay)

	if offset, ok := syncClockOffset(ctx, opts.Engine, mpd.UTCTimings, opts.ClockSyncURI, time.Now()); ok {
		tl.SetClockOffset(offset)
	}

	m := manifest.New(tl)
	m.URI = mpdURI
	setSecondsFromISODuration(mpd.MinimumUpdatePeriod, func(s float64) { m.MinUpdatePeriod = s })
	m.Locations = resolveLocations(mpdURI, mpd.Location)

	mpdDuration := 0.0
	if d, err := mpdmodel.ParseDuration(mpd.MediaPresentationDuration); err == nil {
		mpdDuration = d.Seconds()
	}
	mpdBaseURLs := baseURLValues(mpd.BaseURLs)

	var periods []*manifest.Period
	var regions []manifest.TimelineRegion
	var cursor float64

	for i := range mpd.Periods {
		period := &mpd.Periods[i]

		periodStart := cursor
		if period.Start != "" {
			if d, err := mpdmodel.ParseDuration(period.Start); err == nil {
				periodStart = d.Seconds()
			}
		}

		periodDuration, hasDuration := 0.0, false
		if period.Duration != "" {
			if d, err := mpdmodel.ParseDuration(period.Duration); err == nil {
				periodDuration, hasDuration = d.Seconds(), true
			}
		}
		if !hasDuration && i+1 < len(mpd.Periods) && mpd.Periods[i+1].Start != "" {
			if d, err := mpdmodel.ParseDuration(mpd.Periods[i+1].Start); err == nil {
				periodDuration, hasDuration = d.Seconds()-periodStart, true
			}
		}
		if !hasDuration && !dynamic && mpdDuration > 0 {
			periodDuration = mpdDuration - periodStart
		}
		if periodDuration < 0 {
			periodDuration = 0
		}
		cursor = periodStart + periodDuration

		liveEdge := tl.GetSegmentAvailabilityEnd() - periodStart
		if liveEdge < 0 {
			liveEdge = 0
		}
		pp := periodParams{dynamic: dynamic, liveEdgeSeconds: liveEdge, durationSeconds: periodDuration}

		videoVariants, err := buildPeriodVariants(mpdURI, mpdBaseURLs, pp, period, periodStart)
		if err != nil {
			return nil, err
		}

		mPeriod := manifest.NewPeriod(period.ID, periodStart, periodDuration)
		for _, v := range videoVariants {
			mPeriod.AddVariant(v)
		}
		periods = append(periods, mPeriod)

		regions = append(regions, regionsForPeriod(period, periodStart, periodDuration, dynamic, tl.GetSegmentAvailabilityStart())...)
	}

	m.SetPeriods(periods)
	m.SetRegions(regions)

	return m, nil
}

// buildPeriodVariants builds every video Variant of one Period, pairing
// each with the highest-bandwidth Stream from every sibling audio/text
// AdaptationSet, and shifts every segment.Reference it produces from
// period-relative to presentation-relative time by periodStart so that a
// later Period's references never collide with an earlier one's (§4.4.2).
func buildPeriodVariants(mpdURI string, mpdBaseURLs []string, pp periodParams, period *mpdmodel.Period, periodStart float64) ([]*manifest.Variant, error) {
	var videoVariants []*manifest.Variant
	var sharedStreams []*manifest.Stream

	for i := range period.Sets {
		as := &period.Sets[i]
		ct := contentTypeOf(as)

		var bestShared *manifest.Stream
		for j := range as.Representations {
			rep := &as.Representations[j]
			bases, err := combineBases(mpdURI, mpdBaseURLs, period, as, rep)
			if err != nil {
				return nil, err
			}

			stream, err := buildStream(pp, as, rep, bases)
			if err != nil {
				return nil, err
			}
			shiftStream(stream, periodStart)

			if ct == manifest.ContentVideo {
				v := manifest.NewVariant(rep.Bandwidth)
				v.DRM = stream.DRM
				v.AddStream(stream)
				videoVariants = append(videoVariants, v)
			} else if bestShared == nil || stream.Bandwidth > bestShared.Bandwidth {
				bestShared = stream
			}
		}
		if ct != manifest.ContentVideo && bestShared != nil {
			sharedStreams = append(sharedStreams, bestShared)
		}
	}

	if len(videoVariants) == 0 {
		for _, s := range sharedStreams {
			v := manifest.NewVariant(s.Bandwidth)
			v.AddStream(s)
			videoVariants = append(videoVariants, v)
		}
		sharedStreams = nil
	}

	for _, v := range videoVariants {
		for _, s := range sharedStreams {
			v.AddStream(s)
		}
	}

	return videoVariants, nil
}

// shiftStream moves every segment.Reference in stream's Index from
// period-relative to presentation-relative time by offset; a no-op for the
// first Period, whose offset is always zero.
func shiftStream(stream *manifest.Stream, offset float64) {
	if offset == 0 {
		return
	}
	for _, pos := range stream.Index.Positions() {
		ref := stream.Index.Get(pos)
		ref.StartTime += offset
		ref.EndTime += offset
	}
}

// resolveLocations resolves a dynamic MPD's <Location> children against
// mpdURI, the URI BuildManifest was given, skipping any that fail to parse.
// Session passes the effective URI after redirects, so a relative Location
// resolves against the redirected URI, not the original request URI.
func resolveLocations(mpdURI string, locations []string) []string {
	var out []string
	for _, loc := range locations {
		resolved, err := urlresolve.Resolve(mpdURI, loc)
		if err != nil {
			continue
		}
		out = append(out, resolved)
	}
	return out
}

func setSecondsFromISODuration(s string, set func(float64)) {
	if s == "" {
		return
	}
	d, err := mpdmodel.ParseDuration(s)
	if err != nil {
		return
	}
	set(d.Seconds())
}
