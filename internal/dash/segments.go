package dash

import (
	"fmt"
	"strconv"
	"strings"

	"manifestd/internal/manifest"
	"manifestd/internal/mpdmodel"
	"manifestd/internal/segment"
	"manifestd/internal/urlresolve"
)

// contentTypeOf classifies an AdaptationSet by its contentType attribute,
// falling back to the mimeType prefix when contentType is absent (common
// for older MPDs that only ever set mimeType).
func contentTypeOf(as *mpdmodel.AdaptationSet) manifest.ContentType {
	switch as.ContentType {
	case "audio":
		return manifest.ContentAudio
	case "text":
		return manifest.ContentText
	case "image":
		return manifest.ContentImage
	case "video":
		return manifest.ContentVideo
	}
	switch {
	case strings.HasPrefix(as.MimeType, "audio/"):
		return manifest.ContentAudio
	case strings.HasPrefix(as.MimeType, "text/") || strings.HasPrefix(as.MimeType, "application/ttml"):
		return manifest.ContentText
	case strings.HasPrefix(as.MimeType, "image/"):
		return manifest.ContentImage
	default:
		return manifest.ContentVideo
	}
}

func baseURLValues(bs []mpdmodel.BaseURL) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Value
	}
	return out
}

func combineBases(mpdURI string, mpdBaseURLs []string, period *mpdmodel.Period, as *mpdmodel.AdaptationSet, rep *mpdmodel.Representation) ([]string, error) {
	levels := append([][]string{mpdBaseURLs}, mpdmodel.BaseURLLevels(period, as, rep)...)
	return urlresolve.Combine(mpdURI, levels...)
}

func timescaleOf(sb *mpdmodel.SegmentBase) uint64 {
	if sb != nil && sb.Timescale != nil && *sb.Timescale > 0 {
		return uint64(*sb.Timescale)
	}
	return 1
}

func presentationOffsetOf(sb *mpdmodel.SegmentBase) uint64 {
	if sb != nil && sb.PresentationTimeOffset != nil {
		return uint64(*sb.PresentationTimeOffset)
	}
	return 0
}

// periodParams carries the per-period timing context every segment-mode
// builder needs but that isn't itself part of the AdaptationSet/
// Representation being built, so buildStream doesn't have to re-derive it
// per Representation.
type periodParams struct {
	// durationSeconds is the period's (or, lacking that, the whole
	// presentation's) nominal duration; used as the static-mode segment
	// count bound and the SegmentBase single-file mode's end time.
	durationSeconds float64
	// liveEdgeSeconds bounds live-edge (r=-1 / open-ended) expansion for
	// dynamic presentations: the latest presentation time the timeline
	// currently considers available.
	liveEdgeSeconds float64
	dynamic         bool
}

// buildStream constructs the manifest.Stream for one Representation,
// dispatching on which of the three §4.4.6 segment-addressing modes is in
// effect.
func buildStream(pp periodParams, as *mpdmodel.AdaptationSet, rep *mpdmodel.Representation, bases []string) (*manifest.Stream, error) {
	ct := contentTypeOf(as)
	codecs := mpdmodel.EffectiveCodecs(as, rep)
	mimeType := mpdmodel.EffectiveMimeType(as, rep)
	drm := drmInfoFromProtections(mpdmodel.EffectiveContentProtections(as, rep))

	var (
		refs        []*segment.Reference
		startNumber = uint64(1)
	)

	switch {
	case mpdmodel.EffectiveSegmentTemplate(as, rep) != nil:
		template := mpdmodel.EffectiveSegmentTemplate(as, rep)
		if template.StartNumber != nil {
			startNumber = uint64(*template.StartNumber)
		}
		r, err := refsFromTemplate(pp, template, rep.ID, rep.Bandwidth, startNumber, bases)
		if err != nil {
			return nil, err
		}
		refs = r

	case mpdmodel.EffectiveSegmentList(as, rep) != nil:
		segList := mpdmodel.EffectiveSegmentList(as, rep)
		if segList.StartNumber != nil {
			startNumber = uint64(*segList.StartNumber)
		}
		r, err := refsFromList(segList, bases)
		if err != nil {
			return nil, err
		}
		refs = r

	default:
		segBase := mpdmodel.EffectiveSegmentBase(as, rep)
		r, err := refFromSegmentBase(pp, segBase, bases)
		if err != nil {
			return nil, err
		}
		refs = r
	}

	stream := manifest.NewStream(ct, int(startNumber))
	stream.Codecs = codecs
	stream.MimeType = mimeType
	stream.Bandwidth = rep.Bandwidth
	stream.Width = rep.Width
	stream.Height = rep.Height
	stream.DRM = drm
	stream.Language = as.Lang
	if stream.Width == 0 {
		stream.Width = as.MaxWidth
	}
	if stream.Height == 0 {
		stream.Height = as.MaxHeight
	}
	stream.Index.Append(refs...)
	return stream, nil
}

func refsFromTemplate(pp periodParams, template *mpdmodel.SegmentTemplate, repID string, bandwidth int, startNumber uint64, bases []string) ([]*segment.Reference, error) {
	timescale := timescaleOf(&template.SegmentBase)
	offset := presentationOffsetOf(&template.SegmentBase)

	var expanded []mpdmodel.ExpandedSegment
	if template.Timeline != nil {
		limit := pp.durationSeconds * float64(timescale)
		if pp.dynamic {
			limit = pp.liveEdgeSeconds * float64(timescale)
		}
		expanded = mpdmodel.ExpandTimeline(template.Timeline, uint64(limit))
	} else if template.Duration != nil {
		segDuration := uint64(*template.Duration)
		if segDuration == 0 {
			return nil, fmt.Errorf("dash: SegmentTemplate duration is zero")
		}
		total := pp.durationSeconds
		if pp.dynamic {
			total = pp.liveEdgeSeconds
		}
		count := (uint64(total*float64(timescale)) + segDuration - 1) / segDuration
		var t uint64
		for i := uint64(0); i < count; i++ {
			expanded = append(expanded, mpdmodel.ExpandedSegment{Time: t, Duration: segDuration})
			t += segDuration
		}
	} else {
		return nil, fmt.Errorf("dash: SegmentTemplate has neither SegmentTimeline nor duration")
	}

	refs := make([]*segment.Reference, 0, len(expanded))
	for i, seg := range expanded {
		number := startNumber + uint64(i)
		mediaPath := SubstituteTemplate(template.Media, TemplateParams{
			RepresentationID: repID, Bandwidth: bandwidth, Number: &number, Time: &seg.Time,
		})
		uris, err := urlresolve.ResolveAll(bases, mediaPath)
		if err != nil {
			return nil, err
		}

		var initSeg *segment.InitSegment
		if template.Initialization != "" {
			initPath := SubstituteTemplate(template.Initialization, TemplateParams{RepresentationID: repID, Bandwidth: bandwidth})
			initURIs, err := urlresolve.ResolveAll(bases, initPath)
			if err != nil {
				return nil, err
			}
			initSeg = &segment.InitSegment{URIs: initURIs, RangeStart: 0, RangeEnd: -1}
		}

		refs = append(refs, &segment.Reference{
			StartTime:   (float64(seg.Time) - float64(offset)) / float64(timescale),
			EndTime:     (float64(seg.Time+seg.Duration) - float64(offset)) / float64(timescale),
			URIs:        uris,
			RangeStart:  0,
			RangeEnd:    -1,
			InitSegment: initSeg,
			Status:      segment.StatusAvailable,
		})
	}
	return refs, nil
}

func refsFromList(segList *mpdmodel.SegmentList, bases []string) ([]*segment.Reference, error) {
	timescale := timescaleOf(&segList.SegmentBase)
	offset := presentationOffsetOf(&segList.SegmentBase)

	var durations []uint64
	if segList.Timeline != nil {
		for _, s := range mpdmodel.ExpandTimeline(segList.Timeline, ^uint64(0)) {
			durations = append(durations, s.Duration)
		}
	} else if segList.Duration != nil {
		d := uint64(*segList.Duration)
		for range segList.SegmentURLs {
			durations = append(durations, d)
		}
	}

	var initSeg *segment.InitSegment
	if segList.Initialization != nil && segList.Initialization.SourceURL != "" {
		initURIs, err := urlresolve.ResolveAll(bases, segList.Initialization.SourceURL)
		if err != nil {
			return nil, err
		}
		initSeg = &segment.InitSegment{URIs: initURIs, RangeStart: 0, RangeEnd: -1}
		if rs, re, ok := parseByteRange(segList.Initialization.Range); ok {
			initSeg.RangeStart, initSeg.RangeEnd = rs, re
		}
	}

	var cursor uint64
	refs := make([]*segment.Reference, 0, len(segList.SegmentURLs))
	for i, su := range segList.SegmentURLs {
		var d uint64 = 1
		if i < len(durations) {
			d = durations[i]
		}

		uris, err := urlresolve.ResolveAll(bases, su.Media)
		if err != nil {
			return nil, err
		}

		ref := &segment.Reference{
			StartTime:   (float64(cursor) - float64(offset)) / float64(timescale),
			EndTime:     (float64(cursor+d) - float64(offset)) / float64(timescale),
			URIs:        uris,
			RangeStart:  0,
			RangeEnd:    -1,
			InitSegment: initSeg,
			Status:      segment.StatusAvailable,
		}
		if rs, re, ok := parseByteRange(su.MediaRange); ok {
			ref.RangeStart, ref.RangeEnd = rs, re
		}
		refs = append(refs, ref)
		cursor += d
	}
	return refs, nil
}

// refFromSegmentBase builds the single whole-representation Reference the
// bare SegmentBase mode implies: one file covering the full period, indexed
// internally by a sidx box this package does not parse (out of scope; see
// DESIGN.md).
func refFromSegmentBase(pp periodParams, segBase *mpdmodel.SegmentBase, bases []string) ([]*segment.Reference, error) {
	uris := bases
	var initSeg *segment.InitSegment
	if segBase != nil && segBase.Initialization != nil && segBase.Initialization.SourceURL != "" {
		initURIs, err := urlresolve.ResolveAll(bases, segBase.Initialization.SourceURL)
		if err != nil {
			return nil, err
		}
		initSeg = &segment.InitSegment{URIs: initURIs, RangeStart: 0, RangeEnd: -1}
	}

	end := pp.durationSeconds
	if pp.dynamic {
		end = pp.liveEdgeSeconds
	}

	ref := &segment.Reference{
		StartTime:   0,
		EndTime:     end,
		URIs:        uris,
		RangeStart:  0,
		RangeEnd:    -1,
		InitSegment: initSeg,
		Status:      segment.StatusAvailable,
	}
	if segBase != nil {
		if rs, re, ok := parseByteRange(segBase.IndexRange); ok {
			ref.RangeStart, ref.RangeEnd = rs, re
		}
	}
	return []*segment.Reference{ref}, nil
}

// parseByteRange parses a DASH "start-end" range attribute (Initialization
// range, SegmentURL mediaRange/indexRange), distinct from HLS's
// length@offset form.
func parseByteRange(s string) (start, end int64, ok bool) {
	if s == "" {
		return 0, 0, false
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	var errA, errB error
	start, errA = parseInt64(parts[0])
	end, errB = parseInt64(parts[1])
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return start, end, true
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
