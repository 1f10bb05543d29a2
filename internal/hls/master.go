// Package hls parses HLS master and media playlists into the shared
// manifest.Manifest/Variant/Stream model (C5, §4.5): it consumes real
// playlist text, built on internal/hlsplaylist's tag/attribute tokenizer,
// recognizing the EXT-X-STREAM-INF/EXT-X-MEDIA attribute shapes (BANDWIDTH,
// CODECS, RESOLUTION, FRAME-RATE, AUDIO/SUBTITLES group association) and
// pairing variants with their media-group members.
package hls

import (
	"strconv"
	"strings"

	"manifestd/internal/hlsplaylist"
	"manifestd/internal/manifest"
	"manifestd/internal/manifesterrors"
)

// MediaGroupKind is the TYPE attribute of an EXT-X-MEDIA tag.
type MediaGroupKind string

const (
	MediaAudio          MediaGroupKind = "AUDIO"
	MediaVideo          MediaGroupKind = "VIDEO"
	MediaSubtitles      MediaGroupKind = "SUBTITLES"
	MediaClosedCaptions MediaGroupKind = "CLOSED-CAPTIONS"
)

// MediaGroupEntry is one EXT-X-MEDIA tag.
type MediaGroupEntry struct {
	Kind       MediaGroupKind
	GroupID    string
	Name       string
	Language   string
	URI        string // empty for CLOSED-CAPTIONS, or when this rendition is muxed into the variant
	Default    bool
	Autoselect bool
	Forced     bool
	Channels   string
}

// VariantEntry is one EXT-X-STREAM-INF + its URI line.
type VariantEntry struct {
	URI              string
	Bandwidth        int
	AverageBandwidth int
	Codecs           string
	Resolution       string
	FrameRate        float64
	AudioGroup       string
	VideoGroup       string
	SubtitlesGroup   string
	ClosedCaptionsGroup string
}

// Master is a parsed master playlist.
type Master struct {
	Version     int
	Variants    []VariantEntry
	MediaGroups []MediaGroupEntry
	Independent bool

	// Variables holds every #EXT-X-DEFINE NAME/VALUE (or resolved IMPORT,
	// always empty at master scope since a master playlist has no parent to
	// import from) this playlist declared, for a media playlist fetched from
	// one of its variants to import from in turn (§4.8.2).
	Variables map[string]string
}

// ParseMaster parses master playlist text.
func ParseMaster(data []byte) (*Master, error) {
	lines, err := hlsplaylist.Scan(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	lines, vars := hlsplaylist.SubstituteVariables(lines, nil)

	m := &Master{Variables: vars}
	var pendingStreamInf *hlsplaylist.Tag

	for _, l := range lines {
		if l.Kind == hlsplaylist.LineURI {
			if pendingStreamInf == nil {
				continue // a URI with no preceding EXT-X-STREAM-INF is not a variant
			}
			m.Variants = append(m.Variants, variantFromTag(pendingStreamInf, l.URI))
			pendingStreamInf = nil
			continue
		}

		tag := l.Tag
		switch tag.Name {
		case "#EXT-X-VERSION":
			if v, err := strconv.Atoi(strings.TrimSpace(tag.Value)); err == nil {
				m.Version = v
			}
		case "#EXT-X-STREAM-INF":
			pendingStreamInf = tag
		case "#EXT-X-MEDIA":
			entry, err := mediaGroupFromTag(tag)
			if err != nil {
				return nil, err
			}
			m.MediaGroups = append(m.MediaGroups, entry)
		case "#EXT-X-INDEPENDENT-SEGMENTS":
			m.Independent = true
		}
	}

	if len(m.Variants) == 0 {
		return nil, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryManifest,
			manifesterrors.CodeHLSInvalidPlaylistHierarchy, nil, "master playlist has no EXT-X-STREAM-INF variants")
	}

	return m, nil
}

func variantFromTag(tag *hlsplaylist.Tag, uri string) VariantEntry {
	attrs := tag.Attributes
	v := VariantEntry{URI: uri}
	v.Bandwidth, _ = hlsplaylist.AttrInt(attrs, "BANDWIDTH")
	v.AverageBandwidth, _ = hlsplaylist.AttrInt(attrs, "AVERAGE-BANDWIDTH")
	v.Codecs = hlsplaylist.AttrString(attrs, "CODECS")
	v.Resolution = hlsplaylist.AttrString(attrs, "RESOLUTION")
	v.FrameRate, _ = hlsplaylist.AttrFloat(attrs, "FRAME-RATE")
	v.AudioGroup = hlsplaylist.AttrString(attrs, "AUDIO")
	v.VideoGroup = hlsplaylist.AttrString(attrs, "VIDEO")
	v.SubtitlesGroup = hlsplaylist.AttrString(attrs, "SUBTITLES")
	v.ClosedCaptionsGroup = hlsplaylist.AttrString(attrs, "CLOSED-CAPTIONS")
	return v
}

func mediaGroupFromTag(tag *hlsplaylist.Tag) (MediaGroupEntry, error) {
	attrs := tag.Attributes
	kind := hlsplaylist.AttrString(attrs, "TYPE")
	groupID := hlsplaylist.AttrString(attrs, "GROUP-ID")
	if kind == "" || groupID == "" {
		return MediaGroupEntry{}, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryManifest,
			manifesterrors.CodeHLSRequiredAttributeMissing, nil, "EXT-X-MEDIA TYPE/GROUP-ID")
	}
	return MediaGroupEntry{
		Kind:       MediaGroupKind(kind),
		GroupID:    groupID,
		Name:       hlsplaylist.AttrString(attrs, "NAME"),
		Language:   hlsplaylist.AttrString(attrs, "LANGUAGE"),
		URI:        hlsplaylist.AttrString(attrs, "URI"),
		Default:    hlsplaylist.AttrBool(attrs, "DEFAULT"),
		Autoselect: hlsplaylist.AttrBool(attrs, "AUTOSELECT"),
		Forced:     hlsplaylist.AttrBool(attrs, "FORCED"),
		Channels:   hlsplaylist.AttrString(attrs, "CHANNELS"),
	}, nil
}

// groupMembers returns every MediaGroupEntry belonging to groupID, in
// playlist order.
func (m *Master) groupMembers(groupID string) []MediaGroupEntry {
	if groupID == "" {
		return nil
	}
	var out []MediaGroupEntry
	for _, g := range m.MediaGroups {
		if g.GroupID == groupID {
			out = append(out, g)
		}
	}
	return out
}

// ContentTypeFor maps an HLS MediaGroupKind to the shared manifest
// content-type enum.
func ContentTypeFor(kind MediaGroupKind) manifest.ContentType {
	switch kind {
	case MediaAudio:
		return manifest.ContentAudio
	case MediaSubtitles, MediaClosedCaptions:
		return manifest.ContentText
	default:
		return manifest.ContentVideo
	}
}
