// Package mpdmodel decodes DASH Media Presentation Description XML into a
// Go struct tree (C4, §4.4.1) and resolves attribute inheritance down the
// MPD -> Period -> AdaptationSet -> Representation chain (§4.4.2). The
// struct tree covers SegmentList/SegmentURL, multiple BaseURL,
// ContentProtection, and EventStream, following a
// SegmentBase/MultipleSegmentBase/SegmentList pointer-optional-attribute
// idiom for elements that may be absent at any inheritance level.
package mpdmodel

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MPD is the root element of a Media Presentation Description.
type MPD struct {
	XMLName               xml.Name   `xml:"MPD"`
	Type                  string     `xml:"type,attr"`
	Profiles               string    `xml:"profiles,attr"`
	MinimumUpdatePeriod    string     `xml:"minimumUpdatePeriod,attr"`
	TimeShiftBufferDepth   string     `xml:"timeShiftBufferDepth,attr"`
	AvailabilityStartTime  string     `xml:"availabilityStartTime,attr"`
	PublishTime            string     `xml:"publishTime,attr"`
	MediaPresentationDuration string  `xml:"mediaPresentationDuration,attr"`
	MaxSegmentDuration     string     `xml:"maxSegmentDuration,attr"`
	MinBufferTime          string     `xml:"minBufferTime,attr"`
	SuggestedPresentationDelay string `xml:"suggestedPresentationDelay,attr"`
	BaseURLs               []BaseURL  `xml:"BaseURL"`
	UTCTimings             []UTCTiming `xml:"UTCTiming"`
	Periods                []Period   `xml:"Period"`
	Location               []string   `xml:"Location"`
}

// BaseURL is a possibly-repeated BaseURL element at any inheritance level.
type BaseURL struct {
	Value                  string  `xml:",chardata"`
	ServiceLocation        string  `xml:"serviceLocation,attr,omitempty"`
	AvailabilityTimeOffset float64 `xml:"availabilityTimeOffset,attr,omitempty"`
}

// UTCTiming describes a clock-synchronization source (§4.4.3).
type UTCTiming struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
}

// Period is one timeline segment of the overall presentation.
type Period struct {
	ID        string          `xml:"id,attr"`
	Start     string          `xml:"start,attr,omitempty"`
	Duration  string          `xml:"duration,attr,omitempty"`
	BaseURLs  []BaseURL       `xml:"BaseURL"`
	Sets      []AdaptationSet `xml:"AdaptationSet"`
	EventStreams []EventStream `xml:"EventStream"`
}

// EventStream carries out-of-band timed events (§4.4.4).
type EventStream struct {
	SchemeIDURI string  `xml:"schemeIdUri,attr"`
	Value       string  `xml:"value,attr,omitempty"`
	Timescale   uint64  `xml:"timescale,attr,omitempty"`
	Events      []Event `xml:"Event"`
}

// Event is a single EventStream entry.
type Event struct {
	PresentationTime uint64 `xml:"presentationTime,attr,omitempty"`
	Duration         uint64 `xml:"duration,attr,omitempty"`
	ID               string `xml:"id,attr,omitempty"`
	Content          string `xml:",innerxml"`
}

// AdaptationSet groups interchangeable Representations.
type AdaptationSet struct {
	ID                     string               `xml:"id,attr,omitempty"`
	ContentType            string               `xml:"contentType,attr,omitempty"`
	Lang                   string               `xml:"lang,attr,omitempty"`
	MimeType               string               `xml:"mimeType,attr,omitempty"`
	Codecs                 string               `xml:"codecs,attr,omitempty"`
	SegmentAlignment       bool                 `xml:"segmentAlignment,attr,omitempty"`
	StartWithSAP           int                  `xml:"startWithSAP,attr,omitempty"`
	MaxWidth               int                  `xml:"maxWidth,attr,omitempty"`
	MaxHeight              int                  `xml:"maxHeight,attr,omitempty"`
	Par                    string               `xml:"par,attr,omitempty"`
	BaseURLs               []BaseURL            `xml:"BaseURL"`
	ContentProtections     []ContentProtection  `xml:"ContentProtection"`
	Representations        []Representation     `xml:"Representation"`
	SegmentTemplate        *SegmentTemplate     `xml:"SegmentTemplate"`
	SegmentList            *SegmentList         `xml:"SegmentList"`
	SegmentBase            *SegmentBase         `xml:"SegmentBase"`
}

// ContentProtection describes one DRM key system's MPD-level signaling
// (§4.4.7).
type ContentProtection struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr,omitempty"`
	// cenc:default_KID and clearkey/pssh payloads are carried as raw inner
	// XML since their element namespaces vary by DRM vendor.
	Content string `xml:",innerxml"`
}

// Representation is a specific encoded media stream within an
// AdaptationSet.
type Representation struct {
	ID                 string              `xml:"id,attr"`
	Bandwidth          int                 `xml:"bandwidth,attr"`
	Codecs             string              `xml:"codecs,attr,omitempty"`
	MimeType           string              `xml:"mimeType,attr,omitempty"`
	Width              int                 `xml:"width,attr,omitempty"`
	Height             int                 `xml:"height,attr,omitempty"`
	FrameRate          string              `xml:"frameRate,attr,omitempty"`
	AudioSamplingRate  int                 `xml:"audioSamplingRate,attr,omitempty"`
	BaseURLs           []BaseURL           `xml:"BaseURL"`
	ContentProtections []ContentProtection `xml:"ContentProtection"`
	SegmentTemplate    *SegmentTemplate    `xml:"SegmentTemplate"`
	SegmentList        *SegmentList        `xml:"SegmentList"`
	SegmentBase        *SegmentBase        `xml:"SegmentBase"`
}

// SegmentBase is shared by SegmentTemplate/SegmentList/bare SegmentBase
// (§4.4.6 mode 1).
type SegmentBase struct {
	Initialization         *URLElement `xml:"Initialization,omitempty"`
	Timescale              *int64      `xml:"timescale,attr,omitempty"`
	PresentationTimeOffset *int64      `xml:"presentationTimeOffset,attr,omitempty"`
	IndexRange             string      `xml:"indexRange,attr,omitempty"`
}

// URLElement is a <Initialization> or <RepresentationIndex> child with
// optional sourceURL/range attributes.
type URLElement struct {
	SourceURL string `xml:"sourceURL,attr,omitempty"`
	Range     string `xml:"range,attr,omitempty"`
}

// SegmentTemplate is the $Number$/$Time$ templated segment addressing mode
// (§4.4.6 mode 3).
type SegmentTemplate struct {
	SegmentBase
	Media          string           `xml:"media,attr,omitempty"`
	Initialization string           `xml:"initialization,attr,omitempty"`
	Duration       *int64           `xml:"duration,attr,omitempty"`
	StartNumber    *int64           `xml:"startNumber,attr,omitempty"`
	Timeline       *SegmentTimeline `xml:"SegmentTimeline,omitempty"`
}

// SegmentList is the explicit per-segment-URL addressing mode
// (§4.4.6 mode 2).
type SegmentList struct {
	SegmentBase
	Duration    *int64        `xml:"duration,attr,omitempty"`
	StartNumber *int64        `xml:"startNumber,attr,omitempty"`
	Timeline    *SegmentTimeline `xml:"SegmentTimeline,omitempty"`
	SegmentURLs []SegmentURL  `xml:"SegmentURL"`
}

// SegmentURL is one explicit segment entry within a SegmentList.
type SegmentURL struct {
	Media      string `xml:"media,attr,omitempty"`
	MediaRange string `xml:"mediaRange,attr,omitempty"`
	Index      string `xml:"index,attr,omitempty"`
	IndexRange string `xml:"indexRange,attr,omitempty"`
}

// SegmentTimeline is the S-element run-length-encoded segment schedule.
type SegmentTimeline struct {
	Segments []S `xml:"S"`
}

// S is one SegmentTimeline entry: starts at T (or continues from the
// previous entry's end if T is absent), lasts D, and repeats R additional
// times (R=-1 means "repeat until the next S element or the end of
// knowledge", the live-edge expansion case).
type S struct {
	T  *uint64 `xml:"t,attr"`
	D  uint64  `xml:"d,attr"`
	R  int     `xml:"r,attr,omitempty"`
}

// ParseMPD decodes raw MPD XML.
func ParseMPD(data []byte) (*MPD, error) {
	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return nil, fmt.Errorf("mpdmodel: parse: %w", err)
	}
	return &mpd, nil
}

// IsDynamic reports whether the MPD is a live (type="dynamic") or
// static (VOD) presentation.
func (m *MPD) IsDynamic() bool { return m.Type == "dynamic" }

// ParseDuration parses an ISO 8601 duration string ("PT1H30M5.5S") as used
// throughout MPD attributes (duration, maxSegmentDuration,
// timeShiftBufferDepth, suggestedPresentationDelay, minBufferTime,
// minimumUpdatePeriod).
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("mpdmodel: duration %q missing P prefix", s)
	}
	s = s[1:]

	var datePart, timePart string
	if idx := strings.IndexByte(s, 'T'); idx >= 0 {
		datePart, timePart = s[:idx], s[idx+1:]
	} else {
		datePart = s
	}

	var total time.Duration

	// Date part: years/months/weeks/days. Months/years use calendar
	// approximations since MPD durations are media timing, not calendar
	// arithmetic.
	num := ""
	for _, r := range datePart {
		switch {
		case r >= '0' && r <= '9' || r == '.':
			num += string(r)
		case r == 'Y':
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("mpdmodel: invalid duration %q: %w", s, err)
			}
			total += time.Duration(v * 365.25 * 24 * float64(time.Hour))
			num = ""
		case r == 'M':
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("mpdmodel: invalid duration %q: %w", s, err)
			}
			total += time.Duration(v * 30 * 24 * float64(time.Hour))
			num = ""
		case r == 'D':
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("mpdmodel: invalid duration %q: %w", s, err)
			}
			total += time.Duration(v * 24 * float64(time.Hour))
			num = ""
		}
	}

	num = ""
	for _, r := range timePart {
		switch {
		case r >= '0' && r <= '9' || r == '.':
			num += string(r)
		case r == 'H':
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("mpdmodel: invalid duration %q: %w", s, err)
			}
			total += time.Duration(v * float64(time.Hour))
			num = ""
		case r == 'M':
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("mpdmodel: invalid duration %q: %w", s, err)
			}
			total += time.Duration(v * float64(time.Minute))
			num = ""
		case r == 'S':
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("mpdmodel: invalid duration %q: %w", s, err)
			}
			total += time.Duration(v * float64(time.Second))
			num = ""
		}
	}

	return total, nil
}

// ParseDateTime parses an MPD xs:dateTime attribute (availabilityStartTime,
// publishTime).
func ParseDateTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("mpdmodel: invalid dateTime %q: %w", s, err)
	}
	return t, nil
}
