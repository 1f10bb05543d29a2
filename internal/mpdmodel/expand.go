package mpdmodel

import "math"

// ExpandedSegment is one segment time/duration pair produced by expanding
// a SegmentTimeline, in timescale units (not yet divided by Timescale).
type ExpandedSegment struct {
	Time     uint64
	Duration uint64
}

// ExpandTimeline walks a SegmentTimeline's S elements and produces one
// ExpandedSegment per repetition (§4.4.6, S/t/d/r semantics):
//   - t, when present, resets the running time cursor (a gap or the first
//     entry); when absent, the entry continues immediately after the
//     previous one's end.
//   - d is the duration of every repetition of this entry.
//   - r is the repeat count: r additional repetitions beyond the first,
//     so an entry with r=2 expands to 3 segments. r=-1 is the live-edge
//     case: repeat until the next S element's t or knownDurationLimit (the
//     time the MPD's publishTime/availability window can vouch for),
//     whichever comes first. A caller with no such cap passes
//     math.MaxUint64; an r=-1 entry with no later t then expands to
//     nothing.
func ExpandTimeline(tl *SegmentTimeline, knownDurationLimit uint64) []ExpandedSegment {
	if tl == nil {
		return nil
	}

	var out []ExpandedSegment
	var cursor uint64

	for i, s := range tl.Segments {
		if s.T != nil {
			cursor = *s.T
		}

		if s.R < 0 {
			limit := knownDurationLimit
			if i+1 < len(tl.Segments) && tl.Segments[i+1].T != nil && *tl.Segments[i+1].T < limit {
				limit = *tl.Segments[i+1].T
			}
			if limit == math.MaxUint64 {
				continue
			}
			for cursor+s.D <= limit {
				out = append(out, ExpandedSegment{Time: cursor, Duration: s.D})
				cursor += s.D
			}
			continue
		}

		count := s.R + 1
		for i := 0; i < count; i++ {
			out = append(out, ExpandedSegment{Time: cursor, Duration: s.D})
			cursor += s.D
		}
	}

	return out
}
