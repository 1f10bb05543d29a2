// Package player implements the §6.2/§6.3 boundary: the Interface record a
// host supplies to Start, and the Parser it gets back. One Parser owns one
// live presentation end to end rather than a map of named channels,
// dispatching internally between the DASH and HLS parsers by sniffing the
// fetched manifest instead of reading a preconfigured channel type.
package player

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"manifestd/internal/aes128"
	"manifestd/internal/config"
	"manifestd/internal/dash"
	"manifestd/internal/hls"
	"manifestd/internal/manifest"
	"manifestd/internal/manifesterrors"
	"manifestd/internal/netfetch"
)

// Event is a session-data-and-similar notification (§6.2 onEvent).
type Event struct {
	Type string
	Data map[string]string
}

// Interface is the record a host supplies to Start (§6.2). Every field is
// optional; a nil callback is simply never invoked.
type Interface struct {
	// Filter is invoked once after the initial parse and once after every
	// live update, before Start/the update's result is handed back, giving
	// the host a chance to reject or mutate the parsed manifest.
	Filter func(ctx context.Context, m *manifest.Manifest) error

	OnError               func(error)
	OnEvent                func(Event)
	OnTimelineRegionAdded func(manifest.TimelineRegion)

	IsLowLatencyMode     func() bool
	IsAutoLowLatencyMode func() bool
	EnableLowLatencyMode func()

	UpdateDuration func()
	NewDrmInfo     func(*manifest.Stream)
}

func (pi Interface) fireError(err error) {
	if pi.OnError != nil && err != nil {
		pi.OnError(err)
	}
}

func (pi Interface) fireEvent(e Event) {
	if pi.OnEvent != nil {
		pi.OnEvent(e)
	}
}

func (pi Interface) fireRegion(r manifest.TimelineRegion) {
	if pi.OnTimelineRegionAdded != nil {
		pi.OnTimelineRegionAdded(r)
	}
}

func (pi Interface) runFilter(ctx context.Context, m *manifest.Manifest) error {
	if pi.Filter == nil {
		return nil
	}
	return pi.Filter(ctx, m)
}

// format distinguishes which underlying parser owns the live presentation.
type format int

const (
	formatDASH format = iota
	formatHLS
)

// Parser is the exposed §6.3 surface. One Parser owns one live
// presentation at a time: its own dash.Session or hls.Session, not a map
// keyed by channel ID.
type Parser struct {
	engine netfetch.Engine
	cfg    config.Config
	pi     Interface

	mu       sync.Mutex
	format   format
	dashSess *dash.Session
	hlsSess  *hls.Session

	lastDuration float64
	knownDRM     map[uuid.UUID]bool
}

// NewParser creates a Parser bound to engine for every fetch it issues.
func NewParser(engine netfetch.Engine) *Parser {
	return &Parser{engine: engine, knownDRM: make(map[uuid.UUID]bool)}
}

// Configure installs cfg, effective from the next Start or update (§6.3
// configure(config)).
func (p *Parser) Configure(cfg config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// Start fetches uri, detects whether it is an MPD or an HLS master
// playlist, builds the initial Manifest through the matching parser, wires
// pi's callbacks into that parser's live-update session, and runs pi's
// filter before returning (§6.3 start(uri, playerInterface)).
func (p *Parser) Start(ctx context.Context, uri string, pi Interface) (*manifest.Manifest, error) {
	if p.engine == nil {
		return nil, fmt.Errorf("player: no netfetch.Engine configured")
	}

	// The extension decides format without a network round trip in the
	// common case; only a URI with no recognizable extension costs an
	// extra fetch to sniff the body, since the matching Session.Start
	// below re-fetches uri itself regardless.
	f, ok := detectFormatByExtension(uri)
	if !ok {
		data, effectiveURI, err := fetch(ctx, p.engine, uri)
		if err != nil {
			return nil, err
		}
		f, err = detectFormatByContent(effectiveURI, data)
		if err != nil {
			return nil, err
		}
		uri = effectiveURI
	}

	p.mu.Lock()
	p.pi = pi
	p.format = f
	cfg := p.cfg
	p.mu.Unlock()

	var m *manifest.Manifest
	switch f {
	case formatDASH:
		sess := dash.NewSession(p.engine, pi.fireError)
		sess.OnTimelineRegion = pi.fireRegion
		sess.OnUpdate = func(fresh *manifest.Manifest) { p.onLiveUpdate(ctx, fresh) }
		sess.ClockSyncURI = cfg.DASH.ClockSyncURI
		if err := sess.Start(ctx, uri); err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.dashSess = sess
		p.mu.Unlock()
		m = sess.Manifest
	case formatHLS:
		sess := hls.NewSession(p.engine, hls.BuildOptions{Engine: p.engine, KeyCache: aes128.NewCache()}, pi.fireError)
		sess.OnUpdate = func(fresh *manifest.Manifest) { p.onLiveUpdate(ctx, fresh) }
		if err := sess.Start(ctx, uri); err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.hlsSess = sess
		p.mu.Unlock()
		m = sess.Manifest
	}

	applyConfig(m, cfg)
	maybeEnableLowLatency(m, pi)
	p.mu.Lock()
	p.lastDuration = m.Timeline.GetDuration()
	p.mu.Unlock()
	p.signalNewDRM(m, pi)

	if err := pi.runFilter(ctx, m); err != nil {
		return nil, err
	}
	pi.fireEvent(Event{Type: "manifestparsed"})
	return m, nil
}

// onLiveUpdate runs after a background update reconciles fresh changes into
// the shared Manifest: config filtering is re-applied, duration changes and
// newly-discovered DRM are signaled, and
// the host's filter is re-run before the update is considered complete.
func (p *Parser) onLiveUpdate(ctx context.Context, m *manifest.Manifest) {
	p.mu.Lock()
	cfg, pi := p.cfg, p.pi
	previousDuration := p.lastDuration
	p.mu.Unlock()

	applyConfig(m, cfg)

	if d := m.Timeline.GetDuration(); d != previousDuration {
		p.mu.Lock()
		p.lastDuration = d
		p.mu.Unlock()
		if pi.UpdateDuration != nil {
			pi.UpdateDuration()
		}
	}
	p.signalNewDRM(m, pi)

	if err := pi.runFilter(ctx, m); err != nil {
		pi.fireError(err)
	}
	pi.fireEvent(Event{Type: "manifestupdated"})
}

// signalNewDRM calls pi.NewDrmInfo once for every Stream carrying DRM
// metadata the first time it is observed across this Parser's lifetime
// (§6.2 newDrmInfo: encryption metadata discovered lazily).
func (p *Parser) signalNewDRM(m *manifest.Manifest, pi Interface) {
	if pi.NewDrmInfo == nil {
		return
	}
	for _, v := range m.AllVariants() {
		for _, s := range v.Streams {
			if len(s.DRM) == 0 {
				continue
			}
			p.mu.Lock()
			known := p.knownDRM[s.ID]
			if !known {
				p.knownDRM[s.ID] = true
			}
			p.mu.Unlock()
			if !known {
				pi.NewDrmInfo(s)
			}
		}
	}
}

// Stop tears down the active presentation's background update, if any
// (§5).
func (p *Parser) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dashSess != nil {
		p.dashSess.Stop()
		p.dashSess = nil
	}
	if p.hlsSess != nil {
		p.hlsSess.Stop()
		p.hlsSess = nil
	}
}

// Update forces an immediate out-of-band refresh of the active
// presentation (§6.3 update(): a test/host hook).
func (p *Parser) Update(ctx context.Context) error {
	p.mu.Lock()
	dashSess, hlsSess := p.dashSess, p.hlsSess
	p.mu.Unlock()

	switch {
	case dashSess != nil:
		return dashSess.Refresh(ctx)
	case hlsSess != nil:
		return hlsSess.Refresh(ctx)
	default:
		return fmt.Errorf("player: update called with no active presentation")
	}
}

// OnExpirationUpdated is a host notification; a no-op for the core parser
// (§6.3): manifestd has no DRM-license renewal loop of its own to react to
// an updated expiration time.
func (p *Parser) OnExpirationUpdated(sessionID string, newExpiration float64) {}

// BanLocation steers the active DASH session's next refresh away from uri
// by subtracting it from its Manifest.Locations candidate list (§6.3
// banLocation, §9). HLS has no mirror-candidate-list analogue in this
// model (a media playlist's variant/media-group URIs come from the master
// it was built from, not a pool of interchangeable Locations), so this is a
// no-op when the active presentation is HLS.
func (p *Parser) BanLocation(uri string) {
	p.mu.Lock()
	dashSess := p.dashSess
	p.mu.Unlock()

	if dashSess != nil {
		dashSess.BanLocation(uri)
	}
}

// maybeEnableLowLatency asks the host whether it wants low-latency mode
// auto-enabled for a live presentation, skipping the call entirely when
// the host is already in low-latency mode or never asked for auto mode
// (§6.2 isAutoLowLatencyMode/enableLowLatencyMode).
func maybeEnableLowLatency(m *manifest.Manifest, pi Interface) {
	if pi.IsAutoLowLatencyMode == nil || pi.EnableLowLatencyMode == nil {
		return
	}
	if !m.Timeline.IsLive() {
		return
	}
	if pi.IsLowLatencyMode != nil && pi.IsLowLatencyMode() {
		return
	}
	if pi.IsAutoLowLatencyMode() {
		pi.EnableLowLatencyMode()
	}
}

// applyConfig enforces the disable{Audio,Video,Text,Thumbnails} and
// availabilityWindowOverride options (§6.3) against a freshly built or
// freshly updated Manifest.
func applyConfig(m *manifest.Manifest, cfg config.Config) {
	if cfg.AvailabilityWindowOverride > 0 {
		m.Timeline.SetSegmentAvailabilityDuration(cfg.AvailabilityWindowOverride)
	}

	disabled := map[manifest.ContentType]bool{
		manifest.ContentAudio: cfg.DisableAudio,
		manifest.ContentVideo: cfg.DisableVideo,
		manifest.ContentText:  cfg.DisableText,
		manifest.ContentImage: cfg.DisableThumbnails,
	}

	for _, v := range m.AllVariants() {
		for ct := range v.Streams {
			if disabled[ct] {
				delete(v.Streams, ct)
			}
		}
	}
}

// detectFormatByExtension recognizes the two extensions DASH and HLS
// manifests conventionally use.
func detectFormatByExtension(uri string) (format, bool) {
	lower := strings.ToLower(uri)
	switch {
	case strings.HasSuffix(lower, ".mpd"):
		return formatDASH, true
	case strings.HasSuffix(lower, ".m3u8"):
		return formatHLS, true
	}
	return 0, false
}

// detectFormatByContent sniffs an already-fetched body: an MPD's "<MPD"
// root element vs. an HLS playlist's "#EXTM3U" header.
func detectFormatByContent(uri string, data []byte) (format, error) {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Contains(trimmed[:min(len(trimmed), 256)], []byte("<MPD")):
		return formatDASH, nil
	case bytes.HasPrefix(trimmed, []byte("#EXTM3U")):
		return formatHLS, nil
	}

	return 0, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryManifest,
		manifesterrors.CodeManifestInvalid, nil, "could not determine manifest format for "+uri)
}

func fetch(ctx context.Context, engine netfetch.Engine, uri string) ([]byte, string, error) {
	op := engine.Request(netfetch.RequestManifest, &netfetch.Request{URIs: []string{uri}})
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, "", err
	}
	return resp.Data, resp.URI, nil
}
