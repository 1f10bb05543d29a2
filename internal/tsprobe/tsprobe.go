// Package tsprobe extracts the first presentation timestamp from an
// MPEG-TS media segment, the MPEG-TS analogue of internal/bmff's tfdt
// probe (§4.5.4, §6.4). No other package in this module calls it; HLS TS
// segments are not aligned by a probed PTS.
package tsprobe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astits"
)

// PTSTimescale is the fixed 90kHz clock MPEG-TS PES timestamps are
// expressed in.
const PTSTimescale = 90000

// ErrNoPTS is returned when the segment's TS packets carry no PES header
// with a PTS before EOF.
var ErrNoPTS = errors.New("tsprobe: no PES PTS found")

// FirstPTS scans data for the first PES packet carrying a PTS and returns
// its value in 90kHz ticks.
func FirstPTS(data []byte) (uint64, error) {
	demuxer := astits.NewDemuxer(context.Background(), bytes.NewReader(data))

	for {
		d, err := demuxer.NextData()
		if err != nil {
			if err == io.EOF {
				return 0, ErrNoPTS
			}
			return 0, fmt.Errorf("tsprobe: demux: %w", err)
		}

		if d.PES == nil || d.PES.Header == nil || d.PES.Header.OptionalHeader == nil {
			continue
		}
		pts := d.PES.Header.OptionalHeader.PTS
		if pts == nil {
			continue
		}
		return pts.Base, nil
	}
}
