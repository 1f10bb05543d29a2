package dash

import (
	"context"
	"fmt"
	"sync"
	"time"

	"manifestd/internal/manifest"
	"manifestd/internal/netfetch"
	"manifestd/internal/scheduler"
	"manifestd/internal/segment"
)

// Session owns one live DASH presentation across repeated MPD refreshes: it
// keeps the original Manifest/Variant/Stream identities stable (§5) while
// re-running BuildManifest against each refreshed MPD and merging the
// resulting segment references into the existing Stream Indexes in place,
// the same position-stable merge internal/segment.Index.Merge implements
// for HLS media-sequence numbers.
type Session struct {
	engine  netfetch.Engine
	mpdURI  string
	onError func(error)

	// ClockSyncURI, if set, is tried as a last-resort UTC-timing source
	// after every MPD-declared UTCTiming element fails (§4.4.3's configured
	// fallback); a host sets it from config.DASHConfig.ClockSyncURI before
	// Start.
	ClockSyncURI string

	// OnTimelineRegion, if set, is called once per unique
	// manifest.TimelineRegion (§6.2 onTimelineRegionAdded) the first time
	// Start or a later update observes it.
	OnTimelineRegion func(manifest.TimelineRegion)

	// OnUpdate, if set, is called after every successful background update
	// reconciles into Manifest, letting a higher layer (internal/player)
	// re-run its own post-processing (config re-application, filter(),
	// duration-change notification) against the same shared Manifest.
	OnUpdate func(*manifest.Manifest)

	Manifest  *manifest.Manifest
	scheduler *scheduler.Scheduler

	// updateMu serializes refresh() bodies. The scheduler's own timer can
	// fire a call concurrently with a host-driven Refresh, and both fetch
	// into and reconcile the same Manifest, so they must not overlap.
	updateMu sync.Mutex

	// bannedMu/banned track mirror URIs a host has steered away from via
	// BanLocation; the next refresh fetch skips them when choosing among
	// Manifest.Locations (§4.4.5 step 1).
	bannedMu sync.Mutex
	banned   map[string]bool

	deliveredRegions map[regionKey]bool
}

// NewSession creates a Session. onError receives every error a background
// update produces (§7: update errors are reported, not fatal); it is never
// called for Start, whose error is returned directly to the caller.
func NewSession(engine netfetch.Engine, onError func(error)) *Session {
	if onError == nil {
		onError = func(error) {}
	}
	return &Session{
		engine:           engine,
		onError:          onError,
		banned:           make(map[string]bool),
		deliveredRegions: make(map[regionKey]bool),
	}
}

// Start fetches and builds the initial Manifest, then — for a dynamic
// presentation — arms the update scheduler using the MPD's
// minimumUpdatePeriod as the nominal refresh interval.
func (s *Session) Start(ctx context.Context, mpdURI string) error {
	data, effectiveURI, err := fetch(ctx, s.engine, mpdURI)
	if err != nil {
		return err
	}
	s.mpdURI = effectiveURI

	m, err := BuildManifest(ctx, effectiveURI, data, BuildOptions{Engine: s.engine, ClockSyncURI: s.ClockSyncURI})
	if err != nil {
		return err
	}
	s.Manifest = m
	s.deliverNewRegions(m.AllRegions())

	if m.Timeline.IsLive() {
		s.scheduler = scheduler.New(s.update)
		s.scheduler.TickAfter(s.nominalDelay())
	}
	return nil
}

// Stop cancels any pending or in-flight update.
func (s *Session) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Session) nominalDelay() time.Duration {
	d := s.Manifest.MinUpdatePeriod
	if d <= 0 {
		d = 2
	}
	return time.Duration(d * float64(time.Second))
}

// update is the scheduler's callback: it runs refresh and hands any error to
// onError, re-arming at the nominal delay so a failed refresh does not end
// the update schedule.
func (s *Session) update(ctx context.Context) (time.Duration, error) {
	measured, err := s.refresh(ctx)
	if err != nil {
		s.onError(err)
		if s.scheduler != nil {
			s.scheduler.TickAfter(s.nominalDelay())
		}
	}
	return measured, err
}

func (s *Session) refresh(ctx context.Context) (time.Duration, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	start := time.Now()

	data, effectiveURI, err := fetch(ctx, s.engine, s.nextFetchURI())
	if err != nil {
		return s.nominalDelay(), err
	}

	fresh, err := BuildManifest(ctx, effectiveURI, data, BuildOptions{Engine: s.engine, ClockSyncURI: s.ClockSyncURI})
	if err != nil {
		return s.nominalDelay(), err
	}

	s.reconcile(fresh)
	evictStale(s.Manifest)
	if s.OnUpdate != nil {
		s.OnUpdate(s.Manifest)
	}
	measured := time.Since(start)
	if s.scheduler != nil {
		s.scheduler.TickAfter(scheduler.NextDelay(s.nominalDelay(), measured))
	}
	return measured, nil
}

// nextFetchURI picks the candidate URI the next refresh should fetch:
// the first of the last build's Manifest.Locations not banned, falling back
// to the original mpdURI when there is no Location or all are banned
// (§4.4.5 step 1).
func (s *Session) nextFetchURI() string {
	s.bannedMu.Lock()
	defer s.bannedMu.Unlock()
	for _, loc := range s.Manifest.Locations {
		if !s.banned[loc] {
			return loc
		}
	}
	return s.mpdURI
}

// BanLocation removes uri from the candidate set nextFetchURI consults, so a
// host can steer subsequent refreshes away from a repeatedly-failing mirror
// (§6.3 banLocation, §9: a real set-subtraction on the next update's
// candidate list, not a no-op stub or a rewrite of already-built segment
// references).
func (s *Session) BanLocation(uri string) {
	s.bannedMu.Lock()
	s.banned[uri] = true
	s.bannedMu.Unlock()
}

// Refresh forces an immediate out-of-band update (§6.3 update(): a
// test/host hook distinct from the scheduler's own periodic tick), and
// returns its error synchronously rather than handing it to onError. It is
// safe to call even for a static presentation with no armed scheduler, and
// updateMu keeps it from racing a concurrently firing scheduled tick.
func (s *Session) Refresh(ctx context.Context) error {
	_, err := s.refresh(ctx)
	return err
}

// reconcile folds fresh's Periods into the live Session.Manifest, matching
// each fresh Period against an existing one by @id, falling back to start
// time for MPDs that omit @id (§4.4.5 step 3), and merging each matching
// Variant's Streams by position within the period — DASH AdaptationSet/
// Representation ordering is stable across refreshes of the same
// presentation. Merging a Stream's segment.Index in place, rather than
// replacing the Stream itself, lets a player holding a Stream handle across
// the update keep a valid reference. A fresh Period with no match (a newly
// announced Period) is adopted as-is.
func (s *Session) reconcile(fresh *manifest.Manifest) {
	old := s.Manifest
	old.Timeline.SetStatic(!fresh.Timeline.IsLive())
	old.Timeline.SetDuration(fresh.Timeline.GetDuration())
	old.Locations = fresh.Locations

	oldPeriods := old.AllPeriods()
	freshPeriods := fresh.AllPeriods()

	merged := make([]*manifest.Period, 0, len(freshPeriods))
	for _, fp := range freshPeriods {
		op := periodByID(oldPeriods, fp.ID)
		if op == nil {
			op = periodByStart(oldPeriods, fp.Start)
		}
		if op == nil {
			merged = append(merged, fp)
			continue
		}
		reconcilePeriod(op, fp)
		merged = append(merged, op)
	}
	old.SetPeriods(merged)

	old.SetRegions(fresh.AllRegions())
	s.deliverNewRegions(fresh.AllRegions())
}

// periodByID finds a Period by @id; DASH MPDs with no @id attribute all
// carry the empty string, so an empty id never matches here and callers
// fall back to periodByStart.
func periodByID(periods []*manifest.Period, id string) *manifest.Period {
	if id == "" {
		return nil
	}
	for _, p := range periods {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func periodByStart(periods []*manifest.Period, start float64) *manifest.Period {
	for _, p := range periods {
		if p.Start == start {
			return p
		}
	}
	return nil
}

// reconcilePeriod merges fp's Variants into op by position, the same
// Stream-preserving merge reconcile applies across the whole presentation.
func reconcilePeriod(op, fp *manifest.Period) {
	op.Duration = fp.Duration

	n := len(op.Variants)
	if len(fp.Variants) < n {
		n = len(fp.Variants)
	}
	for i := 0; i < n; i++ {
		ov, nv := op.Variants[i], fp.Variants[i]
		ov.Bandwidth = nv.Bandwidth
		for ct, ns := range nv.Streams {
			os := ov.Stream(ct)
			if os == nil {
				ov.AddStream(ns)
				continue
			}
			mergeIndex(os.Index, ns.Index)
		}
	}
	if len(fp.Variants) > n {
		op.Variants = append(op.Variants, fp.Variants[n:]...)
	}
}

// evictStale drops every segment.Reference that has scrolled out of the
// availability window from every Stream in every Period (§4.4.5 step 5: for
// all streams in all Periods, evict(getSegmentAvailabilityStart())).
func evictStale(m *manifest.Manifest) {
	threshold := m.Timeline.GetSegmentAvailabilityStart()
	for _, v := range m.AllVariants() {
		for _, st := range v.Streams {
			st.Index.Evict(threshold)
		}
	}
}

// deliverNewRegions calls OnTimelineRegion for every region in fresh not
// already delivered on a prior Start/update.
func (s *Session) deliverNewRegions(fresh []manifest.TimelineRegion) {
	added := newRegions(s.deliveredRegions, fresh)
	if s.OnTimelineRegion == nil {
		return
	}
	for _, r := range added {
		s.OnTimelineRegion(r)
	}
}

func mergeIndex(dst, src *segment.Index) {
	newRefs := make(map[int]*segment.Reference, src.Len())
	for _, p := range src.Positions() {
		newRefs[p] = src.Get(p)
	}
	dst.Merge(newRefs)
}

func fetch(ctx context.Context, engine netfetch.Engine, uri string) ([]byte, string, error) {
	if engine == nil {
		return nil, "", fmt.Errorf("dash: no netfetch.Engine configured")
	}
	op := engine.Request(netfetch.RequestManifest, &netfetch.Request{URIs: []string{uri}})
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, "", err
	}
	return resp.Data, resp.URI, nil
}
