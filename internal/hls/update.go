package hls

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

// Session owns one live HLS presentation across repeated master/media
// playlist refreshes, mirroring internal/dash/update.go's Session: it keeps
// the original Manifest/Variant/Stream identities stable while re-running
// BuildManifest against freshly fetched playlists and merging the resulting
// segment references into the existing Stream Indexes in place via
// internal/segment.Index.Merge, keyed by EXT-X-MEDIA-SEQUENCE position.
type Session struct {
	engine    netfetch.Engine
	masterURI string
	opts      BuildOptions
	onError   func(error)

	// OnUpdate, if set, is called after every successful background update
	// reconciles into Manifest, mirroring internal/dash/update.go's Session
	// hook of the same name.
	OnUpdate func(*manifest.Manifest)

	Manifest  *manifest.Manifest
	scheduler *scheduler.Scheduler

	// updateMu serializes refresh() bodies. The scheduler's own timer can
	// fire a call concurrently with a host-driven Refresh, and both fetch
	// into and reconcile the same Manifest, so they must not overlap.
	updateMu sync.Mutex
}

// NewSession creates a Session. onError receives every error a background
// refresh produces; it is never called for Start, whose error is returned
// directly to the caller.
func NewSession(engine netfetch.Engine, opts BuildOptions, onError func(error)) *Session {
	if onError == nil {
		onError = func(error) {}
	}
	opts.Engine = engine
	return &Session{engine: engine, opts: opts, onError: onError}
}

// Start fetches and builds the initial Manifest, then — if any playlist
// lacks EXT-X-ENDLIST — arms the update scheduler using the shortest
// EXT-X-TARGETDURATION among all referenced media playlists as the nominal
// refresh interval (§4.7.12).
func (s *Session) Start(ctx context.Context, masterURI string) error {
	data, effectiveURI, err := fetchMaster(ctx, s.engine, masterURI)
	if err != nil {
		return err
	}
	s.masterURI = effectiveURI

	m, err := BuildManifest(ctx, effectiveURI, data, s.opts)
	if err != nil {
		return err
	}
	s.Manifest = m

	if m.Timeline.IsLive() {
		s.scheduler = scheduler.New(s.update)
		s.scheduler.TickAfter(s.nominalDelay())
	}
	return nil
}

// Stop cancels any pending or in-flight refresh.
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

	data, effectiveURI, err := fetchMaster(ctx, s.engine, s.masterURI)
	if err != nil {
		return s.nominalDelay(), err
	}

	fresh, err := BuildManifest(ctx, effectiveURI, data, s.opts)
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

// evictStale drops every segment.Reference that has scrolled out of the
// availability window from every Stream the Manifest holds (§4.4.5 step 5's
// contract applied to HLS media-sequence eviction the same way).
func evictStale(m *manifest.Manifest) {
	threshold := m.Timeline.GetSegmentAvailabilityStart()
	for _, v := range m.AllVariants() {
		for _, st := range v.Streams {
			st.Index.Evict(threshold)
		}
	}
}

// Refresh forces an immediate out-of-band update (§6.3 update(): a
// test/host hook distinct from the scheduler's own periodic tick), and
// returns its error synchronously rather than handing it to onError. It is
// safe to call even for a VOD presentation with no armed scheduler, and
// updateMu keeps it from racing a concurrently firing scheduled tick.
func (s *Session) Refresh(ctx context.Context) error {
	_, err := s.refresh(ctx)
	return err
}

// reconcile folds fresh's variants into the live Session.Manifest by
// position (a master playlist's EXT-X-STREAM-INF/EXT-X-MEDIA ordering is
// stable across refreshes of the same presentation), merging each matching
// Stream's segment.Index rather than replacing the Stream itself so a
// player holding a Stream handle across the update keeps a valid reference.
func (s *Session) reconcile(fresh *manifest.Manifest) {
	old := s.Manifest
	old.Timeline.SetStatic(!fresh.Timeline.IsLive())
	old.MinUpdatePeriod = fresh.MinUpdatePeriod

	oldVariants := old.AllVariants()
	freshVariants := fresh.AllVariants()
	n := len(oldVariants)
	if len(freshVariants) < n {
		n = len(freshVariants)
	}

	for i := 0; i < n; i++ {
		ov, nv := oldVariants[i], freshVariants[i]
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
}

func mergeIndex(dst, src *segment.Index) {
	newRefs := make(map[int]*segment.Reference, src.Len())
	for _, p := range src.Positions() {
		newRefs[p] = src.Get(p)
	}
	dst.Merge(newRefs)
}

func fetchMaster(ctx context.Context, engine netfetch.Engine, uri string) ([]byte, string, error) {
	if engine == nil {
		return nil, "", fmt.Errorf("hls: no netfetch.Engine configured")
	}
	op := engine.Request(netfetch.RequestManifest, &netfetch.Request{URIs: []string{uri}})
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, "", err
	}
	return resp.Data, resp.URI, nil
}
