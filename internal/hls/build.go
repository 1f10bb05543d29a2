package hls

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"manifestd/internal/aes128"
	"manifestd/internal/manifest"
	"manifestd/internal/manifesterrors"
	"manifestd/internal/netfetch"
	"manifestd/internal/segment"
	"manifestd/internal/timeline"
	"manifestd/internal/urlresolve"
)

// BuildOptions configures BuildManifest's fetching behavior.
type BuildOptions struct {
	Engine   netfetch.Engine
	KeyCache *aes128.Cache
}

// BuildManifest fetches and parses every media playlist a master playlist
// references, builds one Variant per EXT-X-STREAM-INF and attaches the
// members of its audio/subtitle media groups, and assembles the shared
// manifest.Manifest model the player consumes regardless of source format.
// Variant.AddStream keeps one Stream per content type, so when a group has
// several members only the last one listed stays on the Variant; no
// separate Variant is built per member or per group combination.
func BuildManifest(ctx context.Context, masterURI string, masterData []byte, opts BuildOptions) (*manifest.Manifest, error) {
	master, err := ParseMaster(masterData)
	if err != nil {
		return nil, err
	}
	if opts.KeyCache == nil {
		opts.KeyCache = aes128.NewCache()
	}

	tl := timeline.New(nil)
	m := manifest.New(tl)
	m.URI = masterURI

	anyDynamic := false
	minTargetDuration := 0.0

	for _, ve := range master.Variants {
		v := manifest.NewVariant(ve.Bandwidth)

		videoURI, err := urlresolve.Resolve(masterURI, ve.URI)
		if err != nil {
			return nil, err
		}
		videoStream, dynamic, targetDuration, err := buildStream(ctx, opts, videoURI, manifest.ContentVideo, ve.Codecs, master.Variables)
		if err != nil {
			return nil, err
		}
		videoStream.Bandwidth = ve.Bandwidth
		videoStream.Width, videoStream.Height = parseResolution(ve.Resolution)
		videoStream.FrameRate = ve.FrameRate
		v.AddStream(videoStream)
		anyDynamic = anyDynamic || dynamic
		if targetDuration > 0 && (minTargetDuration == 0 || targetDuration < minTargetDuration) {
			minTargetDuration = targetDuration
		}

		for _, group := range []struct {
			id string
			ct manifest.ContentType
		}{
			{ve.AudioGroup, manifest.ContentAudio},
			{ve.SubtitlesGroup, manifest.ContentText},
		} {
			if group.id == "" {
				continue
			}
			for _, member := range master.groupMembers(group.id) {
				if member.URI == "" {
					continue // muxed into the variant stream, no separate playlist to fetch
				}
				memberURI, err := urlresolve.Resolve(masterURI, member.URI)
				if err != nil {
					return nil, err
				}
				stream, dyn, memberTarget, err := buildStream(ctx, opts, memberURI, ContentTypeFor(member.Kind), ve.Codecs, master.Variables)
				if err != nil {
					return nil, err
				}
				stream.Language = member.Language
				stream.Label = member.Name
				v.AddStream(stream)
				anyDynamic = anyDynamic || dyn
				if memberTarget > 0 && (minTargetDuration == 0 || memberTarget < minTargetDuration) {
					minTargetDuration = memberTarget
				}
			}
		}

		m.AddVariant(v)
	}

	tl.SetStatic(!anyDynamic)
	m.MinUpdatePeriod = minTargetDuration
	return m, nil
}

// buildStream fetches one media playlist and builds the manifest.Stream
// backing it, reporting whether that playlist lacks EXT-X-ENDLIST (still
// live, so the overall presentation's timeline must be dynamic) and its
// EXT-X-TARGETDURATION, the basis for the live-refresh interval (§4.7.12).
func buildStream(ctx context.Context, opts BuildOptions, uri string, ct manifest.ContentType, codecs string, masterVars map[string]string) (*manifest.Stream, bool, float64, error) {
	data, effectiveURI, err := fetch(ctx, opts.Engine, netfetch.RequestManifest, []string{uri})
	if err != nil {
		return nil, false, 0, err
	}

	mp, err := ParseMediaPlaylist(data, masterVars)
	if err != nil {
		return nil, false, 0, err
	}

	stream := manifest.NewStream(ct, int(mp.MediaSequence))
	stream.Codecs = codecs

	var cursor float64
	var currentInit *segment.InitSegment

	for i, seg := range mp.Segments {
		sequenceNumber := mp.MediaSequence + uint64(i)

		segURI, err := urlresolve.Resolve(effectiveURI, seg.URI)
		if err != nil {
			return nil, false, 0, err
		}

		if seg.Map != nil {
			mapURI, err := urlresolve.Resolve(effectiveURI, seg.Map.URI)
			if err != nil {
				return nil, false, 0, err
			}
			init := &segment.InitSegment{URIs: []string{mapURI}, RangeStart: 0, RangeEnd: -1}
			if seg.Map.HasByteRange {
				init.RangeStart = seg.Map.ByteRangeOffset
				init.RangeEnd = seg.Map.ByteRangeOffset + seg.Map.ByteRangeLength - 1
			}
			currentInit = init
		}

		ref := &segment.Reference{
			StartTime:   cursor,
			EndTime:     cursor + seg.Duration,
			URIs:        []string{segURI},
			RangeStart:  0,
			RangeEnd:    -1,
			InitSegment: currentInit,
			Status:      segmentStatus(seg.Gap),
		}
		if seg.HasByteRange {
			ref.RangeStart = seg.ByteRangeOffset
			ref.RangeEnd = seg.ByteRangeOffset + seg.ByteRangeLength - 1
		}
		if seg.ProgramDateTime != nil {
			t := float64(seg.ProgramDateTime.UnixNano()) / 1e9
			ref.SyncTime = &t
		}

		if seg.Key != nil && seg.Key.Method != aes128.MethodNone {
			handle, err := resolveKey(ctx, opts, effectiveURI, seg.Key, sequenceNumber)
			if err != nil {
				return nil, false, 0, err
			}
			ref.Key = handle
		}

		stream.Index.Append(ref)
		cursor = ref.EndTime
	}

	return stream, !mp.EndList, mp.TargetDuration, nil
}

func resolveKey(ctx context.Context, opts BuildOptions, playlistURI string, key *keyTagState, sequenceNumber uint64) (*aes128.Handle, error) {
	keyURI, err := urlresolve.Resolve(playlistURI, key.URI)
	if err != nil {
		return nil, err
	}

	iv := aes128.SequenceIV(sequenceNumber)
	if key.HasIV {
		parsed, err := parseIVHex(key.IVHex)
		if err != nil {
			return nil, err
		}
		iv = parsed
	}

	keyBytes, _, err := fetch(ctx, opts.Engine, netfetch.RequestKey, []string{keyURI})
	if err != nil {
		return nil, err
	}

	return opts.KeyCache.Resolve(keyURI, key.Method, keyBytes, iv)
}

func parseIVHex(s string) ([16]byte, error) {
	var iv [16]byte
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return iv, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryDRM,
			manifesterrors.CodeManifestMalformed, err, "EXT-X-KEY IV")
	}
	if len(decoded) != 16 {
		return iv, fmt.Errorf("hls: IV must be 16 bytes, got %d", len(decoded))
	}
	copy(iv[:], decoded)
	return iv, nil
}

func fetch(ctx context.Context, engine netfetch.Engine, reqType netfetch.RequestType, uris []string) ([]byte, string, error) {
	if engine == nil {
		return nil, "", fmt.Errorf("hls: no netfetch.Engine configured")
	}
	op := engine.Request(reqType, &netfetch.Request{URIs: uris})
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, "", err
	}
	return resp.Data, resp.URI, nil
}

func parseResolution(s string) (width, height int) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil {
		return 0, 0
	}
	return w, h
}
