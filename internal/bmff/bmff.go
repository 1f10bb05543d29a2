// Package bmff probes ISO Base Media File Format (fMP4) boxes for the
// timing information the manifest engine needs but cannot get from the
// manifest alone: a segment's actual base media decode time (moof/traf/
// tfdt) and a track's timescale (moov/trak/mdia/mdhd) (§4.5.4, §6.4). No
// other package in this module calls it; HLS fMP4 segments are not aligned
// by a probed decode time.
package bmff

import (
	"bytes"
	"fmt"

	"github.com/abema/go-mp4"
)

// ProbeResult is what a single init-or-media-segment probe yields.
type ProbeResult struct {
	// Timescale is the track timescale found in moov/trak/mdia/mdhd, or 0
	// if the probed buffer had no moov (a media segment rather than init).
	Timescale uint32
	// BaseMediaDecodeTime is the tfdt value found in moof/traf/tfdt, or 0
	// with FoundTfdt=false if the buffer had no moof (an init segment).
	BaseMediaDecodeTime uint64
	FoundTfdt           bool
}

// ProbeInitSegment reads the track timescale out of an initialization
// segment's moov/trak/mdia/mdhd box.
func ProbeInitSegment(data []byte) (uint32, error) {
	var timescale uint32
	_, err := mp4.ReadBoxStructure(bytes.NewReader(data), func(h *mp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type.String() {
		case "mdhd":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mdhd, ok := box.(*mp4.Mdhd)
			if !ok {
				return nil, nil
			}
			timescale = mdhd.Timescale
			return nil, nil
		case "moov", "trak", "mdia":
			return h.Expand()
		default:
			return nil, nil
		}
	})
	if err != nil {
		return 0, fmt.Errorf("bmff: probe init segment: %w", err)
	}
	if timescale == 0 {
		return 0, fmt.Errorf("bmff: no mdhd box found in init segment")
	}
	return timescale, nil
}

// ProbeMediaSegment reads the base media decode time out of a media
// segment's first moof/traf/tfdt box.
func ProbeMediaSegment(data []byte) (uint64, error) {
	var (
		baseMediaDecodeTime uint64
		found               bool
	)

	_, err := mp4.ReadBoxStructure(bytes.NewReader(data), func(h *mp4.ReadHandle) (interface{}, error) {
		if found {
			return nil, nil
		}
		switch h.BoxInfo.Type.String() {
		case "tfdt":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tfdt, ok := box.(*mp4.Tfdt)
			if !ok {
				return nil, nil
			}
			if tfdt.GetVersion() == 1 {
				baseMediaDecodeTime = tfdt.BaseMediaDecodeTimeV1
			} else {
				baseMediaDecodeTime = uint64(tfdt.BaseMediaDecodeTimeV0)
			}
			found = true
			return nil, nil
		case "moof", "traf":
			return h.Expand()
		default:
			return nil, nil
		}
	})
	if err != nil {
		return 0, fmt.Errorf("bmff: probe media segment: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("bmff: no tfdt box found in media segment")
	}
	return baseMediaDecodeTime, nil
}
