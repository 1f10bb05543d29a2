// Package manifest holds the parser-agnostic presentation model shared by
// the DASH and HLS parsers (§3.1/§3.5/§3.6): a Manifest holding Variants,
// each Variant holding Streams (one per selectable media type), each Stream
// backed by a segment.Index and a reference count so a consumer can hold a
// Stream handle across live updates without racing the parser that
// replaces it.
package manifest

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"manifestd/internal/segment"
	"manifestd/internal/timeline"
)

// ContentType distinguishes the media kinds a Stream may carry.
type ContentType int

const (
	ContentVideo ContentType = iota
	ContentAudio
	ContentText
	ContentImage // HLS #EXT-X-TILES / thumbnail tracks
)

func (c ContentType) String() string {
	switch c {
	case ContentVideo:
		return "video"
	case ContentAudio:
		return "audio"
	case ContentText:
		return "text"
	case ContentImage:
		return "image"
	default:
		return "unknown"
	}
}

// DRMInfo describes one key system's ContentProtection/EXT-X-KEY entry
// attached to a Variant or Stream (§3.6).
type DRMInfo struct {
	KeySystem   string // UUID (DASH) or METHOD (HLS), e.g. "com.widevine.alpha" or "SAMPLE-AES"
	LicenseURI  string
	PSSH        []byte
	Initialized bool
}

// Stream is one selectable media track: a fixed content type, codec string,
// and the segment index backing it. Streams are reference-counted because
// the player may hold a handle to the currently-playing Stream while a live
// update replaces the Variant/Stream it came from.
type Stream struct {
	ID uuid.UUID

	ContentType ContentType
	Codecs      string
	MimeType    string
	Bandwidth   int
	Language    string
	Label       string

	Width, Height int
	FrameRate     float64
	Channels      int
	SampleRate    int

	DRM []DRMInfo

	Index *segment.Index

	mu       sync.Mutex
	refCount int
}

// NewStream creates a Stream with a fresh identity and an empty index
// starting at startPosition.
func NewStream(contentType ContentType, startPosition int) *Stream {
	return &Stream{
		ID:          uuid.New(),
		ContentType: contentType,
		Index:       segment.NewIndex(startPosition),
	}
}

// Retain increments the reference count; callers that keep a *Stream beyond
// the current update cycle (e.g. a player mid-segment-fetch) must Retain it
// and Release when done.
func (s *Stream) Retain() {
	s.mu.Lock()
	s.refCount++
	s.mu.Unlock()
}

// Release decrements the reference count. It does not free anything itself
// (Go's GC does that); it exists so a Manifest can report whether a Stream
// it is about to replace is still in use (InUse).
func (s *Stream) Release() {
	s.mu.Lock()
	if s.refCount > 0 {
		s.refCount--
	}
	s.mu.Unlock()
}

// InUse reports whether any caller currently holds a Retain on this Stream.
func (s *Stream) InUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refCount > 0
}

// Variant is one switchable quality level: a set of Streams that play
// together (typically one video + one audio, paired by the HLS
// EXT-X-STREAM-INF/EXT-X-MEDIA group association or the DASH AdaptationSet
// grouping), plus the aggregate bandwidth advertised to the ABR layer.
type Variant struct {
	ID        uuid.UUID
	Bandwidth int
	Streams   map[ContentType]*Stream
	DRM       []DRMInfo
}

// NewVariant creates an empty Variant.
func NewVariant(bandwidth int) *Variant {
	return &Variant{ID: uuid.New(), Bandwidth: bandwidth, Streams: make(map[ContentType]*Stream)}
}

// AddStream attaches a Stream under its content type. A second call for the
// same content type replaces the previous Stream (last writer wins), which
// the parsers rely on when repairing a Variant during a live update.
func (v *Variant) AddStream(s *Stream) {
	v.Streams[s.ContentType] = s
}

// Stream returns the Variant's stream of the given content type, or nil.
func (v *Variant) Stream(ct ContentType) *Stream { return v.Streams[ct] }

// TimelineRegion is an out-of-band timed event exposed to the player —
// DASH's Period/EventStream children are the only source today. Identity
// is (SchemeIDURI, PeriodID, EventID): a player delivers each unique region
// exactly once even though it may still appear in every subsequent MPD
// refresh until its Period scrolls out of the manifest.
type TimelineRegion struct {
	SchemeIDURI string
	Value       string
	PeriodID    string
	EventID     string
	StartTime   float64
	EndTime     float64
}

// Period is one timeline segment of a presentation (§4.4.2). HLS has no
// period concept of its own and always resolves into a Manifest's single
// implicit Period; a multi-period DASH MPD resolves into one Period per
// <Period> element, chained start-to-start across the presentation.
type Period struct {
	ID       string
	Start    float64
	Duration float64
	Variants []*Variant
}

// NewPeriod creates an empty Period.
func NewPeriod(id string, start, duration float64) *Period {
	return &Period{ID: id, Start: start, Duration: duration}
}

// AddVariant appends v to the Period.
func (p *Period) AddVariant(v *Variant) {
	p.Variants = append(p.Variants, v)
}

// Manifest is the top-level parsed presentation: one or more Periods sharing
// one Timeline. Both DASH periods and HLS master playlists resolve into
// this shape so the player never branches on source format (§1, §6.3).
type Manifest struct {
	mu sync.RWMutex

	Timeline *timeline.Timeline
	Periods  []*Period
	Regions  []TimelineRegion

	// MinUpdatePeriod is how often the source recommends re-fetching the
	// manifest; zero means the parser decides (HLS target-duration based).
	MinUpdatePeriod float64

	// URI is the manifest's own resolved location, used as the BaseURL for
	// the next relative segment/update fetch.
	URI string

	// Locations holds the candidate mirror URIs a dynamic MPD's own
	// <Location> children advertise for the next refresh fetch (§4.4.1 step
	// 4), already resolved to absolute form. Empty for HLS and for any MPD
	// that declares none, in which case URI is the only fetch candidate.
	Locations []string
}

// New creates an empty Manifest over tl, with a single implicit Period so
// single-period DASH and HLS sources can use the flat AddVariant/SetVariants
// convenience without ever touching the Period type directly.
func New(tl *timeline.Timeline) *Manifest {
	return &Manifest{Timeline: tl, Periods: []*Period{NewPeriod("", 0, 0)}}
}

// AddVariant appends v to the Manifest's first Period under write lock,
// since live updates run concurrently with playback reads of Variants (§5).
func (m *Manifest) AddVariant(v *Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Periods[0].AddVariant(v)
}

// SetVariants atomically replaces the first Period's variant list, the
// shape a live single-period DASH/HLS update takes once a new generation of
// Variants has been built.
func (m *Manifest) SetVariants(vs []*Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Periods[0].Variants = vs
}

// SetPeriods atomically replaces the full Period list, the shape a
// multi-period DASH build or live update takes.
func (m *Manifest) SetPeriods(ps []*Period) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Periods = ps
}

// AllPeriods returns a snapshot of the current Period list.
func (m *Manifest) AllPeriods() []*Period {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Period, len(m.Periods))
	copy(out, m.Periods)
	return out
}

// PeriodByID finds a Period by its MPD @id (or HLS's implicit "").
func (m *Manifest) PeriodByID(id string) (*Period, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.Periods {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// AllVariants returns a flattened snapshot of every Variant across every
// Period, the shape most player code wants since ABR switching does not
// care which Period a Variant belongs to.
func (m *Manifest) AllVariants() []*Variant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Variant
	for _, p := range m.Periods {
		out = append(out, p.Variants...)
	}
	return out
}

// SetRegions replaces the full set of TimelineRegions currently known from
// the source manifest (e.g. every EventStream/Event in the current MPD).
func (m *Manifest) SetRegions(rs []TimelineRegion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Regions = rs
}

// AllRegions returns a snapshot of the current region list.
func (m *Manifest) AllRegions() []TimelineRegion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TimelineRegion, len(m.Regions))
	copy(out, m.Regions)
	return out
}

// VariantByID finds a variant by identity, or returns an error if none of
// the current generation's variants match — the case a player hits when it
// holds a stale ID across a live update that dropped that variant.
func (m *Manifest) VariantByID(id uuid.UUID) (*Variant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.Periods {
		for _, v := range p.Variants {
			if v.ID == id {
				return v, nil
			}
		}
	}
	return nil, fmt.Errorf("manifest: no variant with id %s", id)
}
