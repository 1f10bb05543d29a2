package hls

import (
	"strconv"
	"strings"
	"time"

	"manifestd/internal/aes128"
	"manifestd/internal/hlsplaylist"
	"manifestd/internal/manifesterrors"
	"manifestd/internal/segment"
)

// PlaylistType is the EXT-X-PLAYLIST-TYPE value, or "" if absent (a live
// playlist that may still append, remove, or reorder segments).
type PlaylistType string

const (
	PlaylistTypeNone  PlaylistType = ""
	PlaylistTypeVOD   PlaylistType = "VOD"
	PlaylistTypeEvent PlaylistType = "EVENT"
)

// MediaSegmentEntry is one parsed media-playlist segment, still in the
// playlist's own local time (not yet resolved to presentation time, since
// that requires knowing the running discontinuity/PTS alignment state
// the caller tracks across updates).
type MediaSegmentEntry struct {
	URI             string
	Duration        float64
	Title           string
	ByteRangeLength int64
	ByteRangeOffset int64
	HasByteRange    bool
	Discontinuity   bool
	ProgramDateTime *time.Time
	Gap             bool
	Key             *keyTagState
	Map             *MapEntry
}

// MapEntry is an EXT-X-MAP tag: the initialization segment for the
// segments that follow it, until the next EXT-X-MAP.
type MapEntry struct {
	URI             string
	ByteRangeLength int64
	ByteRangeOffset int64
	HasByteRange    bool
}

type keyTagState struct {
	Method aes128.Method
	URI    string
	IVHex  string
	HasIV  bool
}

// MediaPlaylist is a parsed media playlist.
type MediaPlaylist struct {
	Version          int
	TargetDuration   float64
	MediaSequence    uint64
	DiscontinuitySeq uint64
	PlaylistType     PlaylistType
	EndList          bool
	IFramesOnly      bool
	Independent      bool
	Segments         []MediaSegmentEntry
}

// ParseMediaPlaylist parses media playlist text. imported carries the
// enclosing master playlist's #EXT-X-DEFINE Variables so this playlist's own
// IMPORT definitions can resolve (§4.8.2); pass nil for a media playlist
// parsed on its own, outside any master.
func ParseMediaPlaylist(data []byte, imported map[string]string) (*MediaPlaylist, error) {
	lines, err := hlsplaylist.Scan(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	lines, _ = hlsplaylist.SubstituteVariables(lines, imported)

	mp := &MediaPlaylist{}
	var (
		pendingInf       *hlsplaylist.Tag
		pendingTitle     string
		pendingDuration  float64
		discontinuity    bool
		gap              bool
		programDateTime  *time.Time
		currentKey       *keyTagState
		currentMap       *MapEntry
		byteRangeLen     int64
		byteRangeOff     int64
		hasByteRange     bool
	)

	for _, l := range lines {
		if l.Kind == hlsplaylist.LineURI {
			if pendingInf == nil {
				return nil, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryManifest,
					manifesterrors.CodeHLSRequiredTagMissing, nil, "EXTINF before segment URI", l.URI)
			}
			mp.Segments = append(mp.Segments, MediaSegmentEntry{
				URI:             l.URI,
				Duration:        pendingDuration,
				Title:           pendingTitle,
				ByteRangeLength: byteRangeLen,
				ByteRangeOffset: byteRangeOff,
				HasByteRange:    hasByteRange,
				Discontinuity:   discontinuity,
				ProgramDateTime: programDateTime,
				Gap:             gap,
				Key:             currentKey,
				Map:             currentMap,
			})
			pendingInf = nil
			discontinuity = false
			gap = false
			programDateTime = nil
			hasByteRange = false
			continue
		}

		tag := l.Tag
		switch tag.Name {
		case "#EXT-X-VERSION":
			if v, err := strconv.Atoi(strings.TrimSpace(tag.Value)); err == nil {
				mp.Version = v
			}
		case "#EXT-X-TARGETDURATION":
			if v, err := strconv.ParseFloat(tag.Value, 64); err == nil {
				mp.TargetDuration = v
			}
		case "#EXT-X-MEDIA-SEQUENCE":
			if v, err := strconv.ParseUint(tag.Value, 10, 64); err == nil {
				mp.MediaSequence = v
			}
		case "#EXT-X-DISCONTINUITY-SEQUENCE":
			if v, err := strconv.ParseUint(tag.Value, 10, 64); err == nil {
				mp.DiscontinuitySeq = v
			}
		case "#EXT-X-PLAYLIST-TYPE":
			mp.PlaylistType = PlaylistType(strings.TrimSpace(tag.Value))
		case "#EXT-X-ENDLIST":
			mp.EndList = true
		case "#EXT-X-I-FRAMES-ONLY":
			mp.IFramesOnly = true
		case "#EXT-X-INDEPENDENT-SEGMENTS":
			mp.Independent = true
		case "#EXTINF":
			dur, title, err := hlsplaylist.ParseInfValue(tag.Value)
			if err != nil {
				return nil, err
			}
			pendingInf = tag
			pendingDuration = dur
			pendingTitle = title
		case "#EXT-X-BYTERANGE":
			length, offset, hasOffset, err := hlsplaylist.ParseByteRange(tag.Value)
			if err != nil {
				return nil, err
			}
			byteRangeLen = length
			if hasOffset {
				byteRangeOff = offset
			}
			hasByteRange = true
		case "#EXT-X-DISCONTINUITY":
			discontinuity = true
		case "#EXT-X-GAP":
			gap = true
		case "#EXT-X-PROGRAM-DATE-TIME":
			t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(tag.Value))
			if err != nil {
				return nil, manifesterrors.New(manifesterrors.Recoverable, manifesterrors.CategoryManifest,
					manifesterrors.CodeManifestMalformed, err, tag.Value)
			}
			programDateTime = &t
		case "#EXT-X-KEY":
			k, err := keyStateFromTag(tag)
			if err != nil {
				return nil, err
			}
			currentKey = k
		case "#EXT-X-MAP":
			m, err := mapEntryFromTag(tag)
			if err != nil {
				return nil, err
			}
			currentMap = m
		}
	}

	return mp, nil
}

func keyStateFromTag(tag *hlsplaylist.Tag) (*keyTagState, error) {
	attrs := tag.Attributes
	method := hlsplaylist.AttrString(attrs, "METHOD")
	if method == "" {
		return nil, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryManifest,
			manifesterrors.CodeHLSRequiredAttributeMissing, nil, "EXT-X-KEY METHOD")
	}
	k := &keyTagState{Method: aes128.Method(method)}
	if method == string(aes128.MethodNone) {
		return nil, nil // NONE clears any active key
	}
	k.URI = hlsplaylist.AttrString(attrs, "URI")
	if iv, ok := attrs["IV"]; ok {
		k.IVHex = strings.TrimPrefix(strings.TrimPrefix(iv, "0x"), "0X")
		k.HasIV = true
	}
	return k, nil
}

func mapEntryFromTag(tag *hlsplaylist.Tag) (*MapEntry, error) {
	attrs := tag.Attributes
	uri := hlsplaylist.AttrString(attrs, "URI")
	if uri == "" {
		return nil, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryManifest,
			manifesterrors.CodeHLSRequiredAttributeMissing, nil, "EXT-X-MAP URI")
	}
	m := &MapEntry{URI: uri}
	if br, ok := attrs["BYTERANGE"]; ok {
		length, offset, hasOffset, err := hlsplaylist.ParseByteRange(br)
		if err != nil {
			return nil, err
		}
		m.ByteRangeLength = length
		m.ByteRangeOffset = offset
		m.HasByteRange = hasOffset
	}
	return m, nil
}

// segmentStatus maps a parsed Gap flag to the shared segment.Status enum.
func segmentStatus(gap bool) segment.Status {
	if gap {
		return segment.StatusMissing
	}
	return segment.StatusAvailable
}
